package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/plugins"
)

const namespace = "emuplug"

// Source is the registry side of the collector
type Source interface {
	ID() string
	Stats() emuplug.Stats
}

// registryCollector turns a Stats snapshot into metrics on every scrape:
// - emuplug_plugins{status} gauge
// - emuplug_event_subscribers{event} gauge
// - emuplug_regions, emuplug_scoreboards, emuplug_vcpus gauges
// - emuplug_*_total counters for lifecycle operations and flushes
type registryCollector struct {
	src Source

	plugins     *prometheus.Desc
	subscribers *prometheus.Desc
	regions     *prometheus.Desc
	scoreboards *prometheus.Desc
	vcpus       *prometheus.Desc

	installs        *prometheus.Desc
	installFailures *prometheus.Desc
	uninstalls      *prometheus.Desc
	resets          *prometheus.Desc
	deferred        *prometheus.Desc
	flushes         *prometheus.Desc
}

var statuses = []plugins.Status{
	plugins.StatusInstalling,
	plugins.StatusActive,
	plugins.StatusResetting,
	plugins.StatusUninstalling,
}

// NewCollector creates a collector for src. Every metric carries a
// registry label with the registry instance id.
func NewCollector(src Source) prometheus.Collector {
	constLabels := prometheus.Labels{"registry": src.ID()}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}
	return &registryCollector{
		src:             src,
		plugins:         desc("plugins", "Installed plugin contexts by lifecycle status", "status"),
		subscribers:     desc("event_subscribers", "Subscribers per event kind", "event"),
		regions:         desc("regions", "Live translated regions"),
		scoreboards:     desc("scoreboards", "Live scoreboards"),
		vcpus:           desc("vcpus", "Running vcpus"),
		installs:        desc("installs_total", "Successful plugin installs"),
		installFailures: desc("install_failures_total", "Plugin installs that failed"),
		uninstalls:      desc("uninstalls_total", "Completed plugin uninstalls"),
		resets:          desc("resets_total", "Completed plugin resets"),
		deferred:        desc("deferred_teardowns_total", "Teardowns requested from a plugin's own callback"),
		flushes:         desc("flushes_total", "Code-cache flushes"),
	}
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.plugins
	ch <- c.subscribers
	ch <- c.regions
	ch <- c.scoreboards
	ch <- c.vcpus
	ch <- c.installs
	ch <- c.installFailures
	ch <- c.uninstalls
	ch <- c.resets
	ch <- c.deferred
	ch <- c.flushes
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, st := range statuses {
		ch <- prometheus.MustNewConstMetric(c.plugins, prometheus.GaugeValue, float64(s.Contexts[st]), st.String())
	}
	for _, k := range events.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers[k]), k.String())
	}
	ch <- prometheus.MustNewConstMetric(c.regions, prometheus.GaugeValue, float64(s.Regions))
	ch <- prometheus.MustNewConstMetric(c.scoreboards, prometheus.GaugeValue, float64(s.Scoreboards))
	ch <- prometheus.MustNewConstMetric(c.vcpus, prometheus.GaugeValue, float64(s.VCPUs))
	ch <- prometheus.MustNewConstMetric(c.installs, prometheus.CounterValue, float64(s.Installs))
	ch <- prometheus.MustNewConstMetric(c.installFailures, prometheus.CounterValue, float64(s.InstallFailures))
	ch <- prometheus.MustNewConstMetric(c.uninstalls, prometheus.CounterValue, float64(s.Uninstalls))
	ch <- prometheus.MustNewConstMetric(c.resets, prometheus.CounterValue, float64(s.Resets))
	ch <- prometheus.MustNewConstMetric(c.deferred, prometheus.CounterValue, float64(s.Deferred))
	ch <- prometheus.MustNewConstMetric(c.flushes, prometheus.CounterValue, float64(s.Flushes))
}
