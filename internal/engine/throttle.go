package engine

import (
	"context"
	"sync"
	"time"
)

// throttle is a token bucket bounding how fast the pump pulls batches.
// A nil *throttle never blocks.
type throttle struct {
	capacity int64
	refill   int64

	mu     sync.Mutex
	tokens int64
	cond   *sync.Cond
	closed bool
	stop   chan struct{}
}

// newThrottle allows perSec batches per second with bursts up to burst.
func newThrottle(perSec float64, burst int64) *throttle {
	if perSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	tick := time.Duration(float64(time.Second) / perSec)
	t := &throttle{capacity: burst, refill: 1, tokens: burst, stop: make(chan struct{})}
	t.cond = sync.NewCond(&t.mu)

	go func() {
		tk := time.NewTicker(tick)
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tk.C:
			}
			t.mu.Lock()
			t.tokens = min(t.tokens+t.refill, t.capacity)
			t.mu.Unlock()
			t.cond.Broadcast()
		}
	}()
	return t
}

// acquire takes one token, waiting for a refill if the bucket is empty.
func (t *throttle) acquire(ctx context.Context) error {
	if t == nil {
		return nil
	}
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.cond.Broadcast()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.tokens == 0 && !t.closed && ctx.Err() == nil {
		t.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.closed {
		return context.Canceled
	}
	t.tokens--
	return nil
}

func (t *throttle) close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.stop)
	}
	t.mu.Unlock()
	t.cond.Broadcast()
}
