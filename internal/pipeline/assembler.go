package pipeline

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// assembler tracks slot completion for one batch. Slots are dispatched in
// rounds; a round ends when every dispatched slot was filled, failed or
// skipped. Failed slots are redispatched in the next round.
type assembler struct {
	ctx    context.Context
	cancel context.CancelFunc
	seq    uint64
	batch  *Batch

	attempts []int // failures per slot, dispatcher only
	filled   atomic.Int64

	mu     sync.Mutex
	failed []slotFailure
}

type slotFailure struct {
	slot int
	err  error
}

// round is the completion barrier for one dispatch pass.
type round struct {
	pending atomic.Int64
	done    chan struct{}
}

func newAssembler(ctx context.Context, seq uint64, b *Batch) *assembler {
	ctx, cancel := context.WithCancel(ctx)
	return &assembler{
		ctx:      ctx,
		cancel:   cancel,
		seq:      seq,
		batch:    b,
		attempts: make([]int, b.Size()),
	}
}

// prepare returns every slot of the batch, in order.
func (a *assembler) prepare() []int {
	slots := make([]int, a.batch.Size())
	for i := range slots {
		slots[i] = i
	}
	return slots
}

func newRound(n int) *round {
	r := &round{done: make(chan struct{})}
	r.pending.Store(int64(n))
	if n == 0 {
		close(r.done)
	}
	return r
}

func (r *round) finish(n int) {
	if n > 0 && r.pending.Add(-int64(n)) == 0 {
		close(r.done)
	}
}

func (a *assembler) markFilled(r *round) {
	a.filled.Add(1)
	r.finish(1)
}

func (a *assembler) markFailed(r *round, slot int, err error) {
	a.mu.Lock()
	a.failed = append(a.failed, slotFailure{slot: slot, err: err})
	a.mu.Unlock()
	r.finish(1)
}

// markSkipped ends n dispatches that never produced a sample.
func (a *assembler) markSkipped(r *round, n int) { r.finish(n) }

// retry collects the failed slots of the last round in ascending order. A
// slot that failed more than maxRetries times ends the batch.
func (a *assembler) retry(maxRetries int) ([]int, error) {
	a.mu.Lock()
	failed := a.failed
	a.failed = nil
	a.mu.Unlock()

	slices.SortFunc(failed, func(x, y slotFailure) int { return x.slot - y.slot })
	slots := make([]int, 0, len(failed))
	for _, f := range failed {
		a.attempts[f.slot]++
		if a.attempts[f.slot] > maxRetries {
			return nil, &BatchError{Seq: a.seq, Slot: f.slot, Attempts: a.attempts[f.slot], Err: f.err}
		}
		slots = append(slots, f.slot)
	}
	return slots, nil
}

func (a *assembler) complete() bool { return int(a.filled.Load()) == a.batch.Size() }
