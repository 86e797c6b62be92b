package log

import (
	"io"
	"sync"
	"time"
)

// batchWriter buffers records for a slow writer, usually the rotating file,
// and hands them over when the buffer fills or the interval elapses.
// Records are never split across flushes.
type batchWriter struct {
	mu       sync.Mutex
	w        io.Writer
	buf      []byte
	size     int
	interval time.Duration

	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool

	flushes int64
	errs    int64
}

func newBatchWriter(w io.Writer, size int, interval time.Duration) *batchWriter {
	if size <= 0 {
		size = 64 << 10
	}
	bw := &batchWriter{
		w:        w,
		buf:      make([]byte, 0, size),
		size:     size,
		interval: interval,
		stop:     make(chan struct{}),
	}
	if interval > 0 {
		bw.wg.Add(1)
		go bw.loop()
	}
	return bw
}

// Write appends p to the batch. A record larger than the batch bypasses it
// after the pending bytes are written, keeping order.
func (bw *batchWriter) Write(p []byte) (int, error) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return 0, io.ErrClosedPipe
	}
	if len(bw.buf)+len(p) > bw.size {
		if err := bw.flushLocked(); err != nil {
			return 0, err
		}
	}
	if len(p) > bw.size {
		n, err := bw.w.Write(p)
		if err != nil {
			bw.errs++
		}
		return n, err
	}
	bw.buf = append(bw.buf, p...)
	return len(p), nil
}

func (bw *batchWriter) flushLocked() error {
	if len(bw.buf) == 0 {
		return nil
	}
	_, err := bw.w.Write(bw.buf)
	bw.buf = bw.buf[:0]
	bw.flushes++
	if err != nil {
		bw.errs++
	}
	return err
}

// Flush writes out the pending batch
func (bw *batchWriter) Flush() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked()
}

func (bw *batchWriter) loop() {
	defer bw.wg.Done()
	t := time.NewTicker(bw.interval)
	defer t.Stop()
	for {
		select {
		case <-bw.stop:
			return
		case <-t.C:
			_ = bw.Flush()
		}
	}
}

// Close flushes what is left and stops the timer. The underlying writer stays open.
func (bw *batchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return nil
	}
	bw.closed = true
	err := bw.flushLocked()
	bw.mu.Unlock()

	close(bw.stop)
	bw.wg.Wait()
	return err
}

// stats returns the number of flushes and failed writes
func (bw *batchWriter) stats() (flushes, errs int64) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushes, bw.errs
}
