package recmutex

import (
	"sync"
	"testing"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	assert.True(t, deadlock.Opts.Disable, "detector is off until configured")
	defer Configure(false, 0)

	before := deadlock.Opts.DeadlockTimeout
	Configure(true, 0)
	assert.False(t, deadlock.Opts.Disable)
	assert.Equal(t, before, deadlock.Opts.DeadlockTimeout, "zero keeps the timeout")

	Configure(true, 5*time.Second)
	assert.Equal(t, 5*time.Second, deadlock.Opts.DeadlockTimeout)
	deadlock.Opts.DeadlockTimeout = before
}

func TestReentrant(t *testing.T) {
	var m Mutex
	assert.False(t, m.Owned())
	assert.Equal(t, 0, m.Depth())

	m.Lock()
	m.Lock()
	m.Lock()
	assert.True(t, m.Owned())
	assert.Equal(t, 3, m.Depth())

	m.Unlock()
	m.Unlock()
	assert.Equal(t, 1, m.Depth())
	m.Unlock()
	assert.False(t, m.Owned())
}

func TestUnlockByStrangerPanics(t *testing.T) {
	var m Mutex
	assert.Panics(t, func() { m.Unlock() })

	m.Lock()
	done := make(chan any)
	go func() {
		defer func() { done <- recover() }()
		m.Unlock()
	}()
	assert.NotNil(t, <-done)
	m.Unlock()
}

func TestOtherGoroutineBlocks(t *testing.T) {
	var m Mutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		assert.True(t, m.Owned())
		m.Unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired a held mutex")
	case <-time.After(20 * time.Millisecond):
	}
	m.Unlock()
	<-acquired
}

func TestMutualExclusion(t *testing.T) {
	Configure(false, 0)
	var m Mutex
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				m.Lock()
				m.Lock()
				counter++
				m.Unlock()
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 16*500, counter)
}
