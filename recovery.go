package emuplug

import (
	"fmt"
	"runtime/debug"

	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
)

// resolveVersion reads the API version a module was built against.
// The symbol may be the value itself, a pointer to it or a getter.
func resolveVersion(h plugins.Handle) (int, error) {
	sym, err := h.Lookup(plugins.SymbolVersion)
	if err != nil {
		return 0, err
	}
	switch v := sym.(type) {
	case int:
		return v, nil
	case *int:
		if v == nil {
			return 0, fmt.Errorf("%s is a nil pointer", plugins.SymbolVersion)
		}
		return *v, nil
	case func() int:
		return v(), nil
	default:
		return 0, fmt.Errorf("%s has type %T, want int", plugins.SymbolVersion, sym)
	}
}

func resolveInstall(h plugins.Handle) (InstallFunc, error) {
	sym, err := h.Lookup(plugins.SymbolInstall)
	if err != nil {
		return nil, err
	}
	switch fn := sym.(type) {
	case InstallFunc:
		if fn != nil {
			return fn, nil
		}
	case func(*Registry, plugins.ID, *plugins.Info, []string) error:
		if fn != nil {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%s has type %T, want %T", plugins.SymbolInstall, sym, InstallFunc(nil))
}

// safeInstall runs a module's install function, turning a panic into an error
func safeInstall(fn InstallFunc, r *Registry, id plugins.ID, info *plugins.Info, args []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("msg", "panic in plugin install", "plugin", id, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("install panicked: %v", p)
		}
	}()
	a := append([]string(nil), args...)
	return fn(r, id, info, a)
}
