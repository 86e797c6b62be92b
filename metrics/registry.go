// Package metrics exposes registry state as prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Process-wide registry all emuplug collectors register to
	registry = prometheus.NewRegistry()
	// Additional sources merged into Gatherer, e.g. private registries of modules
	extraGatherers []prometheus.Gatherer
)

// RegisterGatherer merges g into the output of Gatherer
func RegisterGatherer(g prometheus.Gatherer) {
	if g == nil {
		return
	}
	extraGatherers = append(extraGatherers, g)
}

// RegisterCollector registers a Collector to the process-wide registry
func RegisterCollector(c prometheus.Collector) error {
	return registry.Register(c)
}

// UnregisterCollector removes a Collector registered with RegisterCollector
func UnregisterCollector(c prometheus.Collector) bool {
	return registry.Unregister(c)
}

// Gatherer returns the process-wide registry together with every registered extra source
func Gatherer() prometheus.Gatherer {
	if len(extraGatherers) == 0 {
		return registry
	}
	return prometheus.Gatherers(append([]prometheus.Gatherer{registry}, extraGatherers...))
}
