package symbolgroup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// expansionsTotal counts expansion requests by outcome:
	// ok, already, not_expandable, error.
	expansionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symtree_expansions_total",
		Help: "Symbol node expansion requests by result",
	}, []string{"result"})

	insertedRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "symtree_inserted_records_total",
		Help: "Backend records inserted by expansions",
	})

	// dumperRunsTotal counts dumper runs by phase (simple, complex) and
	// result.
	dumperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symtree_dumper_runs_total",
		Help: "Dumper runs by phase and result",
	}, []string{"phase", "result"})
)
