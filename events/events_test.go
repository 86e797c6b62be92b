package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-lynx/emuplug/dyncb"
	"github.com/go-lynx/emuplug/plugins"
)

type passGuard struct{}

func (passGuard) Enter(c *plugins.Context) bool { return c.Enter() }
func (passGuard) Leave(c *plugins.Context)      { c.Leave() }

func newActive(id plugins.ID) *plugins.Context {
	c := plugins.NewContext(id, plugins.Descriptor{Path: "test"})
	c.SetStatus(plugins.StatusActive)
	return c
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		fn   any
		ok   bool
	}{
		{"vcpu init named", VCPUInit, VCPUSimpleFunc(func(plugins.ID, int) {}), true},
		{"vcpu exit literal", VCPUExit, func(plugins.ID, int) {}, true},
		{"idle literal", VCPUIdle, func(plugins.ID, int) {}, true},
		{"tb trans", VCPUTBTrans, func(plugins.ID, *dyncb.TB) {}, true},
		{"syscall", VCPUSyscall, func(plugins.ID, int, int64, [8]uint64) {}, true},
		{"syscall ret", VCPUSyscallRet, func(plugins.ID, int, int64, int64) {}, true},
		{"flush", Flush, func(plugins.ID) {}, true},
		{"atexit", AtExit, func(plugins.ID, any) {}, true},
		{"flush with vcpu signature", Flush, func(plugins.ID, int) {}, false},
		{"tb trans with simple signature", VCPUTBTrans, func(plugins.ID) {}, false},
		{"nil", VCPUInit, nil, false},
		{"unknown kind", NumKinds, func(plugins.ID) {}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.kind, tt.fn)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, plugins.ErrCallbackKind))
			}
		})
	}
}

func TestKindAndMaskStrings(t *testing.T) {
	assert.Equal(t, "vcpu_tb_trans", VCPUTBTrans.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.Len(t, Kinds(), int(NumKinds))

	m := Mask(1<<uint(VCPUInit) | 1<<uint(Flush))
	assert.True(t, m.Has(Flush))
	assert.False(t, m.Has(AtExit))
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, "{vcpu_init,flush}", m.String())
}

func TestRegisterKeepsInstallOrder(t *testing.T) {
	tbl := NewTable()
	c1, c2, c3 := newActive(1), newActive(2), newActive(3)
	var order []plugins.ID
	rec := func(id plugins.ID, vcpu int) { order = append(order, id) }

	// registration order differs from install order
	require.NoError(t, tbl.Register(c3, VCPUInit, rec, nil))
	require.NoError(t, tbl.Register(c1, VCPUInit, rec, nil))
	require.NoError(t, tbl.Register(c2, VCPUInit, rec, nil))

	for i := 0; i < 3; i++ {
		tbl.FireVCPU(VCPUInit, 0, passGuard{})
	}
	want := []plugins.ID{1, 2, 3, 1, 2, 3, 1, 2, 3}
	assert.Equal(t, want, order)
}

func TestRegisterReplacesInPlace(t *testing.T) {
	tbl := NewTable()
	c1, c2 := newActive(1), newActive(2)
	var got []string

	require.NoError(t, tbl.Register(c1, AtExit, func(id plugins.ID, udata any) { got = append(got, "old") }, nil))
	require.NoError(t, tbl.Register(c2, AtExit, func(id plugins.ID, udata any) { got = append(got, udata.(string)) }, "two"))
	require.NoError(t, tbl.Register(c1, AtExit, func(id plugins.ID, udata any) { got = append(got, udata.(string)) }, "one"))

	assert.Equal(t, 2, tbl.Len(AtExit))
	tbl.FireUdata(AtExit, passGuard{})
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestMaskTracksNonEmptyLists(t *testing.T) {
	tbl := NewTable()
	c1, c2 := newActive(1), newActive(2)

	assert.Equal(t, Mask(0), tbl.Mask())
	require.NoError(t, tbl.Register(c1, Flush, func(plugins.ID) {}, nil))
	require.NoError(t, tbl.Register(c2, Flush, func(plugins.ID) {}, nil))
	require.NoError(t, tbl.Register(c2, VCPUIdle, func(plugins.ID, int) {}, nil))
	assert.True(t, tbl.Mask().Has(Flush))
	assert.True(t, tbl.Mask().Has(VCPUIdle))

	assert.True(t, tbl.Unregister(c1, Flush))
	assert.False(t, tbl.Unregister(c1, Flush))
	assert.True(t, tbl.Mask().Has(Flush))

	assert.Equal(t, 2, tbl.UnregisterAll(c2))
	assert.Equal(t, Mask(0), tbl.Mask())
	assert.Nil(t, tbl.Snapshot(Flush))
}

func TestRegisterRejectsWrongSignature(t *testing.T) {
	tbl := NewTable()
	c := newActive(1)
	err := tbl.Register(c, VCPUSyscall, func(plugins.ID, int) {}, nil)
	assert.True(t, errors.Is(err, plugins.ErrCallbackKind))
	assert.False(t, tbl.Mask().Has(VCPUSyscall))
}

func TestFireSkipsNonRunnable(t *testing.T) {
	tbl := NewTable()
	c1, c2 := newActive(1), newActive(2)
	var got []plugins.ID
	rec := func(id plugins.ID) { got = append(got, id) }
	require.NoError(t, tbl.Register(c1, Flush, rec, nil))
	require.NoError(t, tbl.Register(c2, Flush, rec, nil))

	c1.SetStatus(plugins.StatusUninstalling)
	c2.SetStatus(plugins.StatusResetting)
	tbl.FireSimple(Flush, passGuard{})
	assert.Equal(t, []plugins.ID{2}, got)
}

func TestFireSyscallArguments(t *testing.T) {
	tbl := NewTable()
	c := newActive(4)
	var gotArgs [8]uint64
	var gotRet int64
	require.NoError(t, tbl.Register(c, VCPUSyscall, func(id plugins.ID, vcpu int, num int64, args [8]uint64) {
		assert.Equal(t, plugins.ID(4), id)
		assert.Equal(t, 2, vcpu)
		assert.Equal(t, int64(64), num)
		gotArgs = args
	}, nil))
	require.NoError(t, tbl.Register(c, VCPUSyscallRet, func(id plugins.ID, vcpu int, num, ret int64) {
		gotRet = ret
	}, nil))

	tbl.FireSyscall(2, 64, [8]uint64{1, 2, 3}, passGuard{})
	tbl.FireSyscallRet(2, 64, -14, passGuard{})
	assert.Equal(t, [8]uint64{1, 2, 3}, gotArgs)
	assert.Equal(t, int64(-14), gotRet)
}

func TestFireTBTransSetsOwner(t *testing.T) {
	tbl := NewTable()
	c1, c2 := newActive(1), newActive(2)
	store := dyncb.NewStore()
	region := store.Alloc(0x1000, []dyncb.InsnInfo{{Vaddr: 0x1000}})
	tb := dyncb.NewTB(region, nil)

	var owners []plugins.ID
	cb := func(id plugins.ID, tb *dyncb.TB) {
		owners = append(owners, tb.Owner().ID())
		assert.NoError(t, tb.RegisterExecCallback(func(int, any) {}, dyncb.NoRegs, nil))
	}
	require.NoError(t, tbl.Register(c2, VCPUTBTrans, cb, nil))
	require.NoError(t, tbl.Register(c1, VCPUTBTrans, cb, nil))

	tbl.FireTBTrans(tb, passGuard{})
	assert.Equal(t, []plugins.ID{1, 2}, owners)
	assert.Nil(t, tb.Owner())

	entries := region.BlockArray().Entries()
	require.Len(t, entries, 2)
	assert.Same(t, c1, entries[0].Ctx)
	assert.Same(t, c2, entries[1].Ctx)
}

func TestFireConcurrentWithMutation(t *testing.T) {
	tbl := NewTable()
	ctxs := make([]*plugins.Context, 8)
	for i := range ctxs {
		ctxs[i] = newActive(plugins.ID(i + 1))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for vcpu := 0; vcpu < 4; vcpu++ {
		wg.Add(1)
		go func(vcpu int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					tbl.FireVCPU(VCPUResume, vcpu, passGuard{})
				}
			}
		}(vcpu)
	}

	for round := 0; round < 200; round++ {
		c := ctxs[round%len(ctxs)]
		require.NoError(t, tbl.Register(c, VCPUResume, func(plugins.ID, int) {}, nil))
		if round%3 == 0 {
			tbl.Unregister(c, VCPUResume)
		}
	}
	close(stop)
	wg.Wait()

	for _, c := range ctxs {
		assert.Equal(t, int64(0), c.InFlight())
	}
}
