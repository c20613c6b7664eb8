package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the addon fetch pipeline. Labels stay low-cardinality: the
// operation name and a coarse outcome, never per-content identifiers.
var (
	AddonFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_addon_fetches_total",
		Help: "Addon protocol fetches by operation and outcome.",
	}, []string{"op", "outcome"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_cache_lookups_total",
		Help: "Response cache lookups by kind and result.",
	}, []string{"kind", "result"})

	SourcesReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_sources_returned_total",
		Help: "Normalized sources delivered to callers.",
	})
)

// Fetch outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)
