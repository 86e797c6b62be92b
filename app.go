package emuplug

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/go-lynx/emuplug/conf"
	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/internal/exclusive"
	"github.com/go-lynx/emuplug/internal/recmutex"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
	"github.com/go-lynx/emuplug/scoreboard"
)

// InstallFunc is the signature of a module's SymbolInstall entry point.
// It runs under the registry lock and may call any registry operation.
// A non-nil error or a panic aborts the install.
type InstallFunc func(r *Registry, id plugins.ID, info *plugins.Info, args []string) error

// Translator is the translation engine's side of a code-cache flush: Discard
// drops every cached reference to translated regions. It is called while no
// vcpu executes translated code.
type Translator interface {
	Discard()
}

// Option configures a Registry
type Option func(r *Registry)

// WithLoader sets the module loader. The default loader knows no modules.
func WithLoader(l plugins.Loader) Option {
	return func(r *Registry) {
		r.loader = l
	}
}

// WithTranslator sets the engine notified on code-cache flushes
func WithTranslator(t Translator) Option {
	return func(r *Registry) {
		r.translator = t
	}
}

// WithInfo sets the emulator description handed to modules at install time
func WithInfo(info plugins.Info) Option {
	return func(r *Registry) {
		r.info = info
	}
}

// WithConfig derives the emulator description from configuration.
// The lock settings of the section are process-wide; see ConfigureLockDetection.
func WithConfig(c *conf.Registry) Option {
	return func(r *Registry) {
		if c == nil {
			return
		}
		r.info.TargetName = c.TargetName
		r.info.SystemEmulation = c.SystemEmulation
		r.info.SMP = plugins.SMPInfo{VCPUs: c.SMPVCPUs, MaxVCPUs: c.MaxVCPUs}
	}
}

// ConfigureLockDetection applies the deadlock detector settings of c.
// The detector is shared by every Registry in the process, so call it once
// at start-up, before the first Registry is created.
func ConfigureLockDetection(c *conf.Registry) {
	if c == nil {
		return
	}
	recmutex.Configure(c.DeadlockDetection, c.DeadlockTimeout.Std())
}

// Registry owns every installed module context, the event subscriber lists,
// the translated region arena and the scoreboards.
//
// Hot paths (event dispatch, region execution, inline ops) take no lock.
// Everything else is serialized by a single re-entrant lock, so modules may
// call back into the registry from code that runs under it.
type Registry struct {
	id uuid.UUID

	mu         recmutex.Mutex
	loader     plugins.Loader
	translator Translator
	info       plugins.Info

	ids  plugins.Allocator
	ctxs []*plugins.Context
	byID map[plugins.ID]*plugins.Context

	events  *events.Table
	regions *dyncb.Store
	boards  *scoreboard.Set
	vcpus   map[int]*VCPU
	nvcpus  atomic.Int32

	gate    *exclusive.Gate
	threads sync.Map // goroutine id -> *thread
	guard   guard

	// async teardowns and flushes still running
	work   *jobs
	closed atomic.Bool

	stats counters
}

type counters struct {
	installs        atomic.Uint64
	installFailures atomic.Uint64
	uninstalls      atomic.Uint64
	resets          atomic.Uint64
	deferred        atomic.Uint64
	flushes         atomic.Uint64
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		id:      uuid.New(),
		loader:  plugins.NewStaticLoader(),
		byID:    make(map[plugins.ID]*plugins.Context),
		events:  events.NewTable(),
		regions: dyncb.NewStore(),
		boards:  scoreboard.NewSet(0),
		vcpus:   make(map[int]*VCPU),
		gate:    exclusive.New(),
		work:    newJobs(),
		info: plugins.Info{
			TargetName:      "unknown",
			SystemEmulation: true,
			SMP:             plugins.SMPInfo{VCPUs: 1, MaxVCPUs: 1},
		},
	}
	r.guard = guard{r: r}
	for _, o := range opts {
		o(r)
	}
	r.info.Version = plugins.VersionInfo{Min: plugins.MinVersion, Cur: plugins.CurrentVersion}
	log.Debugw("msg", "registry created", "registry", r.id.String(), "target", r.info.TargetName)
	return r
}

// ID returns the unique id of this registry instance
func (r *Registry) ID() string {
	return r.id.String()
}

// Info returns the emulator description handed to modules
func (r *Registry) Info() plugins.Info {
	return r.info
}

// Lookup returns the context of an installed module. Contexts are reachable
// from install completion until their removal completes.
func (r *Registry) Lookup(id plugins.ID) (*plugins.Context, error) {
	r.mu.Lock()
	c, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return nil, plugins.NewPluginError(id, "lookup", "unknown id", plugins.ErrPluginNotFound)
	}
	switch c.Status() {
	case plugins.StatusInstalling, plugins.StatusRemoved:
		return nil, plugins.NewPluginError(id, "lookup", "not installed", plugins.ErrPluginNotFound)
	}
	return c, nil
}

// IDs returns the reachable ids in install order
func (r *Registry) IDs() []plugins.ID {
	ctxs := r.Contexts()
	out := make([]plugins.ID, len(ctxs))
	for i, c := range ctxs {
		out[i] = c.ID()
	}
	return out
}

// Contexts returns the reachable contexts in install order
func (r *Registry) Contexts() []*plugins.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*plugins.Context, 0, len(r.ctxs))
	for _, c := range r.ctxs {
		switch c.Status() {
		case plugins.StatusInstalling, plugins.StatusRemoved:
			continue
		}
		out = append(out, c)
	}
	return out
}

// Close uninstalls every module and waits for all teardowns to complete,
// including work that running callbacks request while it waits.
// It must not be called from a callback or from inside an execution section.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, id := range r.IDs() {
		if err := r.Uninstall(id, nil); err != nil {
			log.Warnw("msg", "uninstall on close failed", "plugin", id, "err", err)
		}
	}
	r.work.wait()
	log.Infow("msg", "registry closed", "registry", r.id.String())
	return nil
}

// Stats is a point-in-time snapshot of registry state
type Stats struct {
	Contexts        map[plugins.Status]int
	Subscribers     [events.NumKinds]int
	Regions         int
	Scoreboards     int
	VCPUs           int
	Installs        uint64
	InstallFailures uint64
	Uninstalls      uint64
	Resets          uint64
	Deferred        uint64
	Flushes         uint64
}

// Stats returns a snapshot of registry state
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	s := Stats{
		Contexts:    make(map[plugins.Status]int),
		Scoreboards: r.boards.Len(),
		VCPUs:       len(r.vcpus),
	}
	for _, c := range r.ctxs {
		s.Contexts[c.Status()]++
	}
	r.mu.Unlock()

	for k := events.Kind(0); k < events.NumKinds; k++ {
		s.Subscribers[k] = r.events.Len(k)
	}
	s.Regions = r.regions.Len()
	s.Installs = r.stats.installs.Load()
	s.InstallFailures = r.stats.installFailures.Load()
	s.Uninstalls = r.stats.uninstalls.Load()
	s.Resets = r.stats.resets.Load()
	s.Deferred = r.stats.deferred.Load()
	s.Flushes = r.stats.flushes.Load()
	return s
}

// sortedVCPUs returns the started vcpus ordered by index; the lock must be held
func (r *Registry) sortedVCPUs() []*VCPU {
	out := make([]*VCPU, 0, len(r.vcpus))
	for _, v := range r.vcpus {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}
