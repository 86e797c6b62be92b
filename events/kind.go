// Package events implements the per-kind subscriber lists of global
// instrumentation events and their lock-free dispatch.
package events

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/plugins"
)

// Kind is a global event a module can subscribe to
type Kind int

const (
	// VCPUInit fires on the vcpu goroutine when a vcpu starts
	VCPUInit Kind = iota
	// VCPUExit fires when a vcpu stops
	VCPUExit
	// VCPUTBTrans fires while a region is being translated
	VCPUTBTrans
	// VCPUIdle fires when a vcpu halts waiting for work
	VCPUIdle
	// VCPUResume fires when an idle vcpu resumes
	VCPUResume
	// VCPUSyscall fires before a guest system call (user emulation)
	VCPUSyscall
	// VCPUSyscallRet fires after a guest system call returned
	VCPUSyscallRet
	// Flush fires after the code cache was discarded
	Flush
	// AtExit fires once when the emulator shuts down
	AtExit

	// NumKinds is the number of event kinds
	NumKinds
)

var kindNames = [NumKinds]string{
	"vcpu_init",
	"vcpu_exit",
	"vcpu_tb_trans",
	"vcpu_idle",
	"vcpu_resume",
	"vcpu_syscall",
	"vcpu_syscall_ret",
	"flush",
	"atexit",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k names an event kind
func (k Kind) Valid() bool {
	return k >= 0 && k < NumKinds
}

// Kinds returns every event kind in order
func Kinds() []Kind {
	out := make([]Kind, NumKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Mask has bit k set iff the subscriber list of kind k is non-empty
type Mask uint32

// Has reports whether bit k is set
func (m Mask) Has(k Kind) bool {
	return m&(1<<uint(k)) != 0
}

// Count returns the number of kinds with subscribers
func (m Mask) Count() int {
	return bits.OnesCount32(uint32(m))
}

func (m Mask) String() string {
	var names []string
	for k := Kind(0); k < NumKinds; k++ {
		if m.Has(k) {
			names = append(names, k.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

// Callback signatures per event kind
type (
	// VCPUSimpleFunc serves VCPUInit, VCPUExit, VCPUIdle and VCPUResume
	VCPUSimpleFunc func(id plugins.ID, vcpu int)
	// TBTransFunc serves VCPUTBTrans
	TBTransFunc func(id plugins.ID, tb *dyncb.TB)
	// SyscallFunc serves VCPUSyscall
	SyscallFunc func(id plugins.ID, vcpu int, num int64, args [8]uint64)
	// SyscallRetFunc serves VCPUSyscallRet
	SyscallRetFunc func(id plugins.ID, vcpu int, num int64, ret int64)
	// SimpleFunc serves Flush
	SimpleFunc func(id plugins.ID)
	// UdataFunc serves AtExit
	UdataFunc func(id plugins.ID, udata any)
)

// Normalize checks that fn has the signature kind requires and returns it
// as the named callback type. Unnamed function values of the right signature
// are accepted.
func Normalize(kind Kind, fn any) (any, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback for %s", plugins.ErrCallbackKind, kind)
	}
	switch kind {
	case VCPUInit, VCPUExit, VCPUIdle, VCPUResume:
		switch f := fn.(type) {
		case VCPUSimpleFunc:
			return f, nil
		case func(plugins.ID, int):
			return VCPUSimpleFunc(f), nil
		}
	case VCPUTBTrans:
		switch f := fn.(type) {
		case TBTransFunc:
			return f, nil
		case func(plugins.ID, *dyncb.TB):
			return TBTransFunc(f), nil
		}
	case VCPUSyscall:
		switch f := fn.(type) {
		case SyscallFunc:
			return f, nil
		case func(plugins.ID, int, int64, [8]uint64):
			return SyscallFunc(f), nil
		}
	case VCPUSyscallRet:
		switch f := fn.(type) {
		case SyscallRetFunc:
			return f, nil
		case func(plugins.ID, int, int64, int64):
			return SyscallRetFunc(f), nil
		}
	case Flush:
		switch f := fn.(type) {
		case SimpleFunc:
			return f, nil
		case func(plugins.ID):
			return SimpleFunc(f), nil
		}
	case AtExit:
		switch f := fn.(type) {
		case UdataFunc:
			return f, nil
		case func(plugins.ID, any):
			return UdataFunc(f), nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown event %s", plugins.ErrCallbackKind, kind)
	}
	return nil, fmt.Errorf("%w: %T for %s", plugins.ErrCallbackKind, fn, kind)
}
