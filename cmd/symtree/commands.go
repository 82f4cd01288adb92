package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dshills/symtree/internal/config"
	"github.com/dshills/symtree/internal/logging"
)

// app holds what every subcommand shares.
type app struct {
	configPath  string
	logLevel    string
	metricsAddr string

	cfg *config.Config
	log *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "symtree",
		Short: "Render debugger symbol trees",
		Long: `symtree builds the symbol tree of a stack frame, runs the configured
type dumpers over it and writes the result as protocol records or as a
diagnostic listing.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "configuration file (.toml, .yaml, .yml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	pf.StringVar(&a.metricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")

	root.AddCommand(newDumpCmd(a), newAttachCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  a.level(),
		Output: cmd.ErrOrStderr(),
		Prefix: "symtree",
	})
	if a.metricsAddr != "" {
		a.serveMetrics(cmd.Context())
	}
	return nil
}

func (a *app) level() logging.Level {
	if a.logLevel != "" {
		return logging.ParseLevel(a.logLevel)
	}
	return a.cfg.LogLevel()
}

// reloadConfig re-reads the config file. The old config stays in effect
// on failure.
func (a *app) reloadConfig() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log.SetLevel(a.level())
	a.log.Info("reloaded %s", a.configPath)
	return nil
}

func (a *app) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              a.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	a.log.Info("serving metrics on %s/metrics", a.metricsAddr)
}
