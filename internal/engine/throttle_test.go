package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestThrottle_BurstThenRefill(t *testing.T) {
	th := newThrottle(50, 2)
	defer th.close()
	ctx := context.Background()

	start := time.Now()
	for range 2 {
		if err := th.acquire(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 15*time.Millisecond {
		t.Fatal("burst tokens should be immediate")
	}
	if err := th.acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("third token should wait for a refill")
	}
}

func TestThrottle_CancelAndClose(t *testing.T) {
	th := newThrottle(0.1, 1)
	if err := th.acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := th.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- th.acquire(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	th.close()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("acquire after close should fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake waiter")
	}
}

func TestThrottle_NilNeverBlocks(t *testing.T) {
	th := newThrottle(0, 0)
	if th != nil {
		t.Fatal("zero rate should disable throttling")
	}
	if err := th.acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	th.close()
}
