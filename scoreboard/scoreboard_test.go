package scoreboard

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsElementSize(t *testing.T) {
	tests := []struct {
		name     string
		elemSize int
		want     int
	}{
		{"zero", 0, 8},
		{"one byte", 1, 8},
		{"exact word", 8, 8},
		{"word and a bit", 9, 16},
		{"three words", 24, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := New(tt.elemSize, 2)
			assert.Equal(t, tt.want, sb.ElementSize())
			assert.Equal(t, 2, sb.Len())
			assert.Len(t, sb.Find(1), tt.want/8)
		})
	}
}

func TestU64Offsets(t *testing.T) {
	sb := New(16, 1)

	e, err := sb.U64(8)
	require.NoError(t, err)
	assert.Equal(t, 8, e.Offset())
	assert.Same(t, sb, e.Scoreboard())

	for _, off := range []int{-8, 3, 16, 24} {
		_, err := sb.U64(off)
		assert.True(t, errors.Is(err, ErrOffset), "offset %d", off)
	}
	assert.Panics(t, func() { sb.MustU64(4) })
}

func TestGrowKeepsSlotAddresses(t *testing.T) {
	sb := New(8, 1)
	e := sb.MustU64(0)
	before := e.Addr(0)
	e.Set(0, 42)

	sb.Grow(64)

	assert.Equal(t, 64, sb.Len())
	assert.Same(t, before, e.Addr(0))
	assert.Equal(t, uint64(42), e.Get(0))
	assert.Equal(t, uint64(0), e.Get(63))

	// shrinking is ignored
	sb.Grow(2)
	assert.Equal(t, 64, sb.Len())
}

func TestFindOutOfRangePanics(t *testing.T) {
	sb := New(8, 2)
	assert.Panics(t, func() { sb.Find(2) })
	assert.Panics(t, func() { sb.Find(-1) })
}

func TestConcurrentWritersOwnSlots(t *testing.T) {
	const n = 16
	const iterations = 1000
	sb := New(8, n)
	e := sb.MustU64(0)

	var wg sync.WaitGroup
	for vcpu := 0; vcpu < n; vcpu++ {
		wg.Add(1)
		go func(vcpu int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				e.Set(vcpu, uint64(vcpu))
			}
		}(vcpu)
	}
	// growth concurrent with writers must not lose writes
	for i := n; i < 4*n; i++ {
		sb.Grow(i)
	}
	wg.Wait()

	for vcpu := 0; vcpu < n; vcpu++ {
		assert.Equal(t, uint64(vcpu), e.Get(vcpu))
	}
}

func TestEntryAddAndSum(t *testing.T) {
	sb := New(16, 4)
	hits := sb.MustU64(0)
	misses := sb.MustU64(8)

	for vcpu := 0; vcpu < 4; vcpu++ {
		hits.Add(vcpu, uint64(vcpu+1))
		misses.Add(vcpu, 10)
	}

	assert.Equal(t, uint64(10), hits.Sum())
	assert.Equal(t, uint64(40), misses.Sum())
	assert.Equal(t, uint64(3), hits.Get(2))
}

func TestSet(t *testing.T) {
	s := NewSet(2)
	a := s.Create(8)
	b := s.Create(16)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, a.Len())

	s.Grow(5)
	assert.Equal(t, 5, s.Capacity())
	assert.Equal(t, 5, a.Len())
	assert.Equal(t, 5, b.Len())

	assert.True(t, s.Destroy(a))
	assert.False(t, s.Destroy(a))
	assert.Equal(t, 1, s.Len())

	s.Grow(3)
	assert.Equal(t, 5, s.Capacity())

	c := s.Create(8)
	assert.Equal(t, 5, c.Len())
}
