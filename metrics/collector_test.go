package metrics

import (
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/plugins"
)

type fakeSource struct {
	stats emuplug.Stats
}

func (f *fakeSource) ID() string           { return "r-1" }
func (f *fakeSource) Stats() emuplug.Stats { return f.stats }

func TestCollectorValues(t *testing.T) {
	src := &fakeSource{stats: emuplug.Stats{
		Contexts:    map[plugins.Status]int{plugins.StatusActive: 2, plugins.StatusUninstalling: 1},
		Regions:     7,
		Scoreboards: 3,
		VCPUs:       4,
		Installs:    5,
		Flushes:     2,
	}}
	src.stats.Subscribers[events.VCPUTBTrans] = 2
	c := NewCollector(src)

	// 4 statuses + 9 event kinds + 3 gauges + 6 counters
	assert.Equal(t, 4+int(events.NumKinds)+3+6, testutil.CollectAndCount(c))

	expected := `
# HELP emuplug_plugins Installed plugin contexts by lifecycle status
# TYPE emuplug_plugins gauge
emuplug_plugins{registry="r-1",status="active"} 2
emuplug_plugins{registry="r-1",status="installing"} 0
emuplug_plugins{registry="r-1",status="resetting"} 0
emuplug_plugins{registry="r-1",status="uninstalling"} 1
# HELP emuplug_regions Live translated regions
# TYPE emuplug_regions gauge
emuplug_regions{registry="r-1"} 7
# HELP emuplug_flushes_total Code-cache flushes
# TYPE emuplug_flushes_total counter
emuplug_flushes_total{registry="r-1"} 2
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"emuplug_plugins", "emuplug_regions", "emuplug_flushes_total"))
}

func TestCollectorOverRegistry(t *testing.T) {
	loader := plugins.NewStaticLoader()
	loader.Register("m", map[string]any{
		plugins.SymbolVersion: plugins.CurrentVersion,
		plugins.SymbolInstall: emuplug.InstallFunc(func(r *emuplug.Registry, id plugins.ID, _ *plugins.Info, _ []string) error {
			return r.RegisterFlush(id, func(plugins.ID) {})
		}),
	})
	r := emuplug.New(emuplug.WithLoader(loader))
	defer r.Close()
	_, err := r.Install(plugins.Descriptor{Path: "m"})
	require.NoError(t, err)
	r.FlushCodeCache()

	c := NewCollector(r)
	require.NoError(t, RegisterCollector(c))
	defer UnregisterCollector(c)

	expected := fmt.Sprintf(`
# HELP emuplug_event_subscribers Subscribers per event kind
# TYPE emuplug_event_subscribers gauge
emuplug_event_subscribers{event="atexit",registry=%[1]q} 0
emuplug_event_subscribers{event="flush",registry=%[1]q} 1
emuplug_event_subscribers{event="vcpu_exit",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_idle",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_init",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_resume",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_syscall",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_syscall_ret",registry=%[1]q} 0
emuplug_event_subscribers{event="vcpu_tb_trans",registry=%[1]q} 0
# HELP emuplug_installs_total Successful plugin installs
# TYPE emuplug_installs_total counter
emuplug_installs_total{registry=%[1]q} 1
# HELP emuplug_flushes_total Code-cache flushes
# TYPE emuplug_flushes_total counter
emuplug_flushes_total{registry=%[1]q} 1
`, r.ID())
	require.NoError(t, testutil.GatherAndCompare(Gatherer(), strings.NewReader(expected),
		"emuplug_event_subscribers", "emuplug_installs_total", "emuplug_flushes_total"))

	extra := prometheus.NewRegistry()
	extra.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "module_private_total", Help: "x"}))
	RegisterGatherer(extra)
	RegisterGatherer(nil)
	n, err := testutil.GatherAndCount(Gatherer(), "module_private_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
