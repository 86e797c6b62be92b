package plugins

import (
	"fmt"
	"sort"
	"sync"
)

// Entry symbols every module must export
const (
	// SymbolVersion resolves to an int holding the API version the module was built against
	SymbolVersion = "plugin_version"
	// SymbolInstall resolves to the module's install function
	SymbolInstall = "plugin_install"
)

// Loader opens modules by path. It is the boundary to whatever mechanism
// actually brings module code into the process.
type Loader interface {
	// Open returns a handle to the module at path.
	Open(path string) (Handle, error)
}

// Handle is an opened module.
type Handle interface {
	// Lookup resolves an exported symbol.
	// A missing symbol must be reported with an error wrapping ErrSymbolNotFound.
	Lookup(symbol string) (any, error)
	// Close releases the module. It is called exactly once per successful Open.
	Close() error
}

// StaticLoader is an in-process module table mapping paths to symbol sets.
// Modules compiled into the binary register here instead of being loaded from disk.
type StaticLoader struct {
	mu      sync.RWMutex
	modules map[string]map[string]any
	opened  map[string]int
}

// NewStaticLoader creates an empty StaticLoader
func NewStaticLoader() *StaticLoader {
	return &StaticLoader{
		modules: make(map[string]map[string]any),
		opened:  make(map[string]int),
	}
}

// Register adds a module under path.
// Panics if a module with the same path is already registered.
func (l *StaticLoader) Register(path string, symbols map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.modules[path]; exists {
		panic(fmt.Errorf("module already registered: %s", path))
	}
	syms := make(map[string]any, len(symbols))
	for k, v := range symbols {
		syms[k] = v
	}
	l.modules[path] = syms
}

// Unregister removes a module. Handles already opened stay usable.
func (l *StaticLoader) Unregister(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.modules, path)
}

// Has reports whether a module is registered under path
func (l *StaticLoader) Has(path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.modules[path]
	return ok
}

// Paths returns the registered module paths in sorted order
func (l *StaticLoader) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.modules))
	for p := range l.modules {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// OpenCount returns how many handles for path are currently open
func (l *StaticLoader) OpenCount(path string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opened[path]
}

// Open implements Loader
func (l *StaticLoader) Open(path string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	syms, ok := l.modules[path]
	if !ok {
		return nil, fmt.Errorf("module not found: %s", path)
	}
	l.opened[path]++
	return &staticHandle{loader: l, path: path, symbols: syms}, nil
}

type staticHandle struct {
	loader  *StaticLoader
	path    string
	symbols map[string]any
	closed  bool
}

func (h *staticHandle) Lookup(symbol string) (any, error) {
	v, ok := h.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbol, h.path)
	}
	return v, nil
}

func (h *staticHandle) Close() error {
	h.loader.mu.Lock()
	defer h.loader.mu.Unlock()
	if h.closed {
		return fmt.Errorf("module %s closed twice", h.path)
	}
	h.closed = true
	if h.loader.opened[h.path]--; h.loader.opened[h.path] <= 0 {
		delete(h.loader.opened, h.path)
	}
	return nil
}
