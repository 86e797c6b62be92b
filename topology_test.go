package emuplug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/emuplug/events"
	"github.com/go-lynx/emuplug/plugins"
)

func TestVCPUForEachMayReenter(t *testing.T) {
	var exits []int
	r, _ := newTestRegistry(t, map[string]InstallFunc{"m": nopInstall})
	id := install(t, r, "m")
	for _, i := range []int{2, 0, 3, 1} {
		r.VCPUInit(i)
	}
	assert.Equal(t, 4, r.NumVCPUs())

	var seen []int
	err := r.VCPUForEach(id, func(got plugins.ID, vcpu int) {
		assert.Equal(t, id, got)
		seen = append(seen, vcpu)
		// registry operations from under the lock
		require.NoError(t, r.RegisterVCPUExit(id, func(_ plugins.ID, vcpu int) { exits = append(exits, vcpu) }))
		assert.Equal(t, 4, r.NumVCPUs())
		_, err := r.Lookup(id)
		assert.NoError(t, err)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Equal(t, 1, r.Stats().Subscribers[events.VCPUExit])

	err = r.VCPUForEach(99, func(plugins.ID, int) { t.Error("called for unknown id") })
	assert.ErrorIs(t, err, plugins.ErrPluginNotFound)
}

func TestVCPUForEachFromInstall(t *testing.T) {
	var seen []int
	r, _ := newTestRegistry(t, map[string]InstallFunc{
		"m": func(r *Registry, id plugins.ID, _ *plugins.Info, _ []string) error {
			return r.VCPUForEach(id, func(_ plugins.ID, vcpu int) { seen = append(seen, vcpu) })
		},
	})
	r.VCPUInit(0)
	r.VCPUInit(1)
	install(t, r, "m")
	assert.Equal(t, []int{0, 1}, seen)
}

func TestVCPUEvents(t *testing.T) {
	var got []string
	r, _ := newTestRegistry(t, map[string]InstallFunc{
		"m": func(r *Registry, id plugins.ID, _ *plugins.Info, _ []string) error {
			add := func(s string) { got = append(got, s) }
			for _, err := range []error{
				r.RegisterVCPUInit(id, func(_ plugins.ID, v int) { add("init") }),
				r.RegisterVCPUIdle(id, func(_ plugins.ID, v int) { add("idle") }),
				r.RegisterVCPUResume(id, func(_ plugins.ID, v int) { add("resume") }),
				r.RegisterSyscall(id, func(_ plugins.ID, v int, num int64, args [8]uint64) {
					assert.Equal(t, uint64(7), args[1])
					add("syscall")
				}),
				r.RegisterSyscallRet(id, func(_ plugins.ID, v int, num, ret int64) {
					assert.Equal(t, int64(-2), ret)
					add("sysret")
				}),
				r.RegisterVCPUExit(id, func(_ plugins.ID, v int) { add("exit") }),
			} {
				if err != nil {
					return err
				}
			}
			return nil
		},
	})
	install(t, r, "m")

	v := r.VCPUInit(3)
	assert.Equal(t, 3, v.Index())
	v.Idle()
	v.Resume()
	v.Syscall(64, [8]uint64{1, 7})
	v.SyscallRet(64, -2)
	v.Exit()
	assert.Equal(t, []string{"init", "idle", "resume", "syscall", "sysret", "exit"}, got)
	assert.Equal(t, 0, r.Stats().VCPUs)
	assert.Equal(t, 4, r.NumVCPUs(), "vcpu count never decreases")

	assert.Panics(t, func() { r.VCPUInit(-1) })
}
