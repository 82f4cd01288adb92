package dumper

import (
	"context"
	"slices"

	"github.com/dshills/symtree/internal/logging"
)

// Setup builds the chain used by the tool. Script dumpers take precedence
// over configured layouts, which take precedence over the defaults.
func Setup(ctx context.Context, layouts []Config, scripts []string, log *logging.Logger) (*Chain, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.WithComponent("dumper")
	chain := NewChain()

	if len(scripts) > 0 {
		host := NewScripts(log)
		chain.closers = append(chain.closers, host)
		for _, path := range scripts {
			if err := host.LoadFile(ctx, path); err != nil {
				chain.Close()
				return nil, err
			}
			log.Debug("loaded script %s", path)
		}
		chain.Add(host.Dumpers()...)
	}

	for _, cfg := range slices.Concat(layouts, DefaultConfigs()) {
		l, err := NewLayout(cfg)
		if err != nil {
			chain.Close()
			return nil, err
		}
		chain.Add(l)
	}
	log.Info("%d dumpers ready", len(chain.Dumpers()))
	return chain, nil
}
