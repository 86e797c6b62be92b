// Package plugins provides the plugin model shared by the instrumentation registry:
// ids, contexts and their lifecycle status, module descriptors, the loader
// collaborator and the error vocabulary.
package plugins

import (
	"fmt"
	"strings"
)

// API version range accepted by the registry. A module declares the version it was
// built against through its SymbolVersion symbol.
const (
	// MinVersion is the oldest API version a module may declare
	MinVersion = 2
	// CurrentVersion is the API version implemented by this registry
	CurrentVersion = 4
)

// Status represents the lifecycle state of a plugin context.
//
// Transitions:
//
//	Installing -> Active -> Uninstalling -> Removed
//	Active -> Resetting -> Active
type Status int32

const (
	// StatusInstalling indicates the module's install function has not returned yet.
	// The context is indexed but not reachable through Lookup
	StatusInstalling Status = iota

	// StatusActive indicates the module is installed and its callbacks are dispatched
	StatusActive

	// StatusResetting indicates the module's callbacks are being cleared.
	// The context returns to StatusActive with the same id
	StatusResetting

	// StatusUninstalling indicates teardown is in progress.
	// Callbacks are no longer dispatched and new registrations are ignored
	StatusUninstalling

	// StatusRemoved is terminal: the context left the id index
	StatusRemoved
)

// String returns the lower-case name of the status
func (s Status) String() string {
	switch s {
	case StatusInstalling:
		return "installing"
	case StatusActive:
		return "active"
	case StatusResetting:
		return "resetting"
	case StatusUninstalling:
		return "uninstalling"
	case StatusRemoved:
		return "removed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Runnable reports whether callbacks owned by a context in this status may run
func (s Status) Runnable() bool {
	return s == StatusActive || s == StatusResetting
}

// Descriptor identifies a module to load. The registry keeps it for the module's
// lifetime so modules may hold on to Args without copying them.
type Descriptor struct {
	// Path is handed to the Loader
	Path string
	// Args are passed verbatim to the module's install function
	Args []string
}

// String renders the descriptor the way it would be written on a command line
func (d Descriptor) String() string {
	if len(d.Args) == 0 {
		return d.Path
	}
	return d.Path + "," + strings.Join(d.Args, ",")
}

// ParseDescriptor splits "path,arg1,arg2" into a Descriptor
func ParseDescriptor(s string) (Descriptor, error) {
	parts := strings.Split(s, ",")
	if parts[0] == "" {
		return Descriptor{}, fmt.Errorf("%w: empty plugin path in %q", ErrInvalidArgument, s)
	}
	d := Descriptor{Path: parts[0]}
	for _, a := range parts[1:] {
		if a != "" {
			d.Args = append(d.Args, a)
		}
	}
	return d, nil
}

// VersionInfo is the API version range advertised to modules
type VersionInfo struct {
	Min int
	Cur int
}

// SMPInfo describes the configured processor topology in system emulation
type SMPInfo struct {
	VCPUs    int
	MaxVCPUs int
}

// Info describes the emulator to a module at install time
type Info struct {
	// TargetName is the guest architecture, e.g. "aarch64"
	TargetName string
	Version    VersionInfo
	// SystemEmulation is false for user-mode emulation
	SystemEmulation bool
	// SMP is only meaningful when SystemEmulation is true
	SMP SMPInfo
}

// Guard brackets every callback invocation on behalf of its owning context.
// Enter returns false when the context must not run (it is being torn down);
// Leave is called only after a successful Enter.
type Guard interface {
	Enter(c *Context) bool
	Leave(c *Context)
}
