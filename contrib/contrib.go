// Package contrib holds the builtin instrumentation modules.
//
// Each module is registered on a plugins.StaticLoader under "builtin:<name>"
// and installed like any other module, e.g. "builtin:mem,rw=w,inline=false".
// Modules print their totals to the output given to Register when the
// emulator exits.
package contrib

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-lynx/emuplug"
	"github.com/go-lynx/emuplug/plugins"
)

// Prefix of every builtin module path
const Prefix = "builtin:"

// Module describes a builtin module
type Module struct {
	Name    string
	Summary string
	Install func(out io.Writer) emuplug.InstallFunc
}

// Path returns the loader path of the module
func (m Module) Path() string { return Prefix + m.Name }

// Modules lists every builtin module
func Modules() []Module {
	return []Module{
		{Name: "insn", Summary: "count executed instructions per vcpu (inline=true|false)", Install: installInsn},
		{Name: "mem", Summary: "count memory accesses per vcpu (rw=r|w|rw, inline=true|false)", Install: installMem},
		{Name: "bb", Summary: "count executed blocks, report every n-th (every=n)", Install: installBB},
	}
}

// Register makes every builtin module loadable from loader. Reports are
// written to out; a nil out discards them.
func Register(loader *plugins.StaticLoader, out io.Writer) {
	if out == nil {
		out = io.Discard
	}
	w := &syncWriter{w: out}
	for _, m := range Modules() {
		loader.Register(m.Path(), map[string]any{
			plugins.SymbolVersion: plugins.CurrentVersion,
			plugins.SymbolInstall: m.Install(w),
		})
	}
}

// syncWriter serializes reports of modules running on different goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// args holds "key=value" module arguments
type args map[string]string

func parseArgs(list []string) (args, error) {
	a := make(args, len(list))
	for _, kv := range list {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: argument %q is not key=value", plugins.ErrInvalidArgument, kv)
		}
		a[k] = v
	}
	return a, nil
}

// check rejects keys a module does not know
func (a args) check(known ...string) error {
next:
	for k := range a {
		for _, n := range known {
			if k == n {
				continue next
			}
		}
		return fmt.Errorf("%w: unknown argument %q", plugins.ErrInvalidArgument, k)
	}
	return nil
}

func (a args) bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	switch strings.ToLower(v) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", plugins.ErrInvalidArgument, key, v)
	}
	return b, nil
}

func (a args) uint(key string, def uint64) (uint64, error) {
	v, ok := a[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a positive integer", plugins.ErrInvalidArgument, key, v)
	}
	return n, nil
}
