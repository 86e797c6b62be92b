package emuplug

import (
	"fmt"

	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/log"
	"github.com/go-lynx/emuplug/plugins"
	"github.com/go-lynx/emuplug/scoreboard"
)

// VCPU is the registry's handle on one virtual cpu. Its methods are called by
// the emulator on the goroutine that runs the vcpu.
type VCPU struct {
	r      *Registry
	index  int
	thread *thread
}

// VCPUInit records a started vcpu and runs the VCPUInit subscribers on the
// calling goroutine. Every scoreboard is grown to cover the new vcpu before
// any module sees it.
func (r *Registry) VCPUInit(index int) *VCPU {
	if index < 0 {
		panic(fmt.Sprintf("emuplug: negative vcpu index %d", index))
	}
	r.mu.Lock()
	if _, ok := r.vcpus[index]; ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("emuplug: vcpu %d initialized twice", index))
	}
	t := r.current(true)
	v := &VCPU{r: r, index: index, thread: t}
	t.vcpu = v
	r.vcpus[index] = v
	if n := int32(index + 1); n > r.nvcpus.Load() {
		r.nvcpus.Store(n)
	}
	r.boards.Grow(index + 1)
	r.mu.Unlock()

	log.Debugw("msg", "vcpu started", "vcpu", index)
	r.events.FireVCPU(events.VCPUInit, index, r.guard)
	return v
}

// Exit runs the VCPUExit subscribers and forgets the vcpu
func (v *VCPU) Exit() {
	v.r.events.FireVCPU(events.VCPUExit, v.index, v.r.guard)

	v.r.mu.Lock()
	delete(v.r.vcpus, v.index)
	v.r.mu.Unlock()

	v.thread.vcpu = nil
	v.r.release(v.thread)
	log.Debugw("msg", "vcpu exited", "vcpu", v.index)
}

// Index returns the vcpu index
func (v *VCPU) Index() int { return v.index }

// Idle runs the VCPUIdle subscribers before the vcpu sleeps
func (v *VCPU) Idle() {
	v.r.events.FireVCPU(events.VCPUIdle, v.index, v.r.guard)
}

// Resume runs the VCPUResume subscribers when the vcpu wakes up
func (v *VCPU) Resume() {
	v.r.events.FireVCPU(events.VCPUResume, v.index, v.r.guard)
}

// Syscall runs the syscall-entry subscribers
func (v *VCPU) Syscall(num int64, args [8]uint64) {
	v.r.events.FireSyscall(v.index, num, args, v.r.guard)
}

// SyscallRet runs the syscall-return subscribers
func (v *VCPU) SyscallRet(num, ret int64) {
	v.r.events.FireSyscallRet(v.index, num, ret, v.r.guard)
}

// NumVCPUs returns the number of vcpus started so far. It never decreases.
func (r *Registry) NumVCPUs() int {
	return int(r.nvcpus.Load())
}

// VCPUForEach calls fn for every running vcpu in index order. It runs under
// the registry lock, so fn may call back into the registry.
func (r *Registry) VCPUForEach(id plugins.ID, fn func(id plugins.ID, vcpu int)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return plugins.NewPluginError(id, "vcpu_for_each", "unknown id", plugins.ErrPluginNotFound)
	}
	for _, v := range r.sortedVCPUs() {
		fn(id, v.index)
	}
	return nil
}

// NewScoreboard allocates a scoreboard with one element of elemSize bytes per
// vcpu. It grows with the vcpu count until FreeScoreboard.
func (r *Registry) NewScoreboard(elemSize int) *scoreboard.Scoreboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.boards.Create(elemSize)
}

// FreeScoreboard stops growing sb. Inline operations and conditions must no
// longer reference it.
func (r *Registry) FreeScoreboard(sb *scoreboard.Scoreboard) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.boards.Destroy(sb) {
		log.Warnw("msg", "freeing unknown scoreboard")
	}
}
