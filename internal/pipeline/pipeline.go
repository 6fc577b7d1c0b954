// Package pipeline turns a stream of encoded image records into fixed-size
// batches of normalized tensors. Records are pulled from the source in
// order and bound to batch slots before decoding, so the content of every
// batch is independent of the number of decode workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"imagefeed/internal/decode"
	"imagefeed/internal/logging"
	"imagefeed/internal/tensor"
	"imagefeed/internal/transform"
	"imagefeed/source"
)

type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	ID            string
	State         State
	Batches       uint64
	FailedBatches uint64
	Samples       uint64
	SampleErrors  uint64
	Retries       uint64
	RecordsRead   uint64
}

type counters struct {
	batches, failedBatches atomic.Uint64
	samples, sampleErrors  atomic.Uint64
	retries                atomic.Uint64
}

type Option func(*Pipeline)

// WithAllocator places batch tensors with a, e.g. in device memory.
func WithAllocator(a tensor.Allocator) Option { return func(p *Pipeline) { p.alloc = a } }

func WithObserver(o Observer) Option { return func(p *Pipeline) { p.obs = o } }

// WithDecoder overrides the decoder chosen from Color and UseCaffeDatum.
func WithDecoder(d decode.Decoder) Option { return func(p *Pipeline) { p.dec = d } }

// prefetch is a batch being filled in the background.
type prefetch struct {
	batch *Batch
	err   error
	done  chan struct{}
}

type Pipeline struct {
	id    string
	cfg   Config
	tcfg  transform.Config
	src   *source.Serialized
	dec   decode.Decoder
	stage transform.Stage
	alloc tensor.Allocator
	obs   Observer
	log   *slog.Logger

	queue chan workItem
	wg    sync.WaitGroup

	// life is cancelled by Close; background prefetches run under it.
	life   context.Context
	cancel context.CancelFunc

	state atomic.Int32
	stats counters

	mu   sync.Mutex // serializes Run and Close
	bufs [2]*Batch
	flip int
	seq  uint64
	next *prefetch
}

// New validates cfg, starts the decode workers and returns a running
// pipeline. The pipeline takes ownership of src and closes it on Close.
func New(cfg Config, src source.Source, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, configErr("source", "no record source")
	}
	tcfg, err := transform.Resolve(cfg.transformOptions())
	if err != nil {
		return nil, configErr("transform", "%v", err)
	}
	stage, err := transform.New(cfg.stageName(), tcfg)
	if err != nil {
		return nil, configErr("use_gpu_transform", "%v", err)
	}
	dec, err := decode.New(cfg.Color, cfg.UseCaffeDatum)
	if err != nil {
		return nil, configErr("color", "%v", err)
	}

	id := uuid.NewString()
	p := &Pipeline{
		id:    id,
		cfg:   cfg,
		tcfg:  tcfg,
		src:   source.Serialize(src),
		dec:   dec,
		stage: stage,
		alloc: tensor.Host{},
		obs:   NoopObserver{},
		log:   logging.Component("pipeline", "pipeline", id),
		queue: make(chan workItem, cfg.BatchSize),
	}
	for _, o := range opts {
		o(p)
	}
	p.life, p.cancel = context.WithCancel(context.Background())
	p.start()
	return p, nil
}

func (p *Pipeline) start() {
	for i := range p.cfg.DecodeThreads {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.state.Store(int32(StateRunning))
	p.log.Info("pipeline started",
		"batch_size", p.cfg.BatchSize, "crop", p.cfg.Crop,
		"color", p.cfg.Color, "threads", p.cfg.DecodeThreads,
		"output", p.cfg.OutputType.String(), "stage", p.cfg.stageName(), "prefetch", p.cfg.Prefetch)
}

func (p *Pipeline) ID() string     { return p.id }
func (p *Pipeline) Config() Config { return p.cfg }
func (p *Pipeline) State() State   { return State(p.state.Load()) }

func (p *Pipeline) Stats() Stats {
	return Stats{
		ID:            p.id,
		State:         p.State(),
		Batches:       p.stats.batches.Load(),
		FailedBatches: p.stats.failedBatches.Load(),
		Samples:       p.stats.samples.Load(),
		SampleErrors:  p.stats.sampleErrors.Load(),
		Retries:       p.stats.retries.Load(),
		RecordsRead:   p.src.Read(),
	}
}

// Run assembles and returns the next batch. Concurrent calls are
// serialized. The returned tensors are owned by the pipeline.
func (p *Pipeline) Run(ctx context.Context) (*Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != StateRunning {
		return nil, ErrNotRunning
	}
	if !p.cfg.Prefetch {
		b, err := p.buffer(0)
		if err != nil {
			return nil, err
		}
		// Close must reach a fill blocked on the source.
		ctx, stop := context.WithCancel(ctx)
		defer stop()
		defer context.AfterFunc(p.life, stop)()
		if err := p.fill(ctx, b, p.nextSeq()); err != nil {
			if p.life.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrNotRunning, err)
			}
			return nil, err
		}
		return b, nil
	}

	if p.next == nil {
		if err := p.launch(); err != nil {
			return nil, err
		}
	}
	f := p.next
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	p.next = nil
	if f.err != nil {
		if p.life.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotRunning, f.err)
		}
		return nil, f.err
	}
	if err := p.launch(); err != nil {
		p.log.Warn("prefetch not started", "err", err)
	}
	return f.batch, nil
}

func (p *Pipeline) nextSeq() uint64 {
	s := p.seq
	p.seq++
	return s
}

// launch starts filling the idle buffer in the background.
func (p *Pipeline) launch() error {
	b, err := p.buffer(p.flip)
	if err != nil {
		return err
	}
	p.flip ^= 1
	f := &prefetch{batch: b, done: make(chan struct{})}
	seq := p.nextSeq()
	p.next = f
	go func() {
		defer close(f.done)
		f.err = p.fill(p.life, b, seq)
	}()
	return nil
}

func (p *Pipeline) buffer(i int) (*Batch, error) {
	if p.bufs[i] != nil {
		return p.bufs[i], nil
	}
	n, c := p.cfg.BatchSize, p.cfg.Crop
	img, err := p.alloc.Alloc(p.cfg.OutputType, n, c, c, p.cfg.Color)
	if err != nil {
		return nil, fmt.Errorf("pipeline: allocate images: %w", err)
	}
	lbl, err := p.alloc.Alloc(tensor.Int32, 1, n)
	if err != nil {
		return nil, fmt.Errorf("pipeline: allocate labels: %w", err)
	}
	p.bufs[i] = &Batch{Images: img, Labels: lbl}
	return p.bufs[i], nil
}

func (p *Pipeline) fill(ctx context.Context, b *Batch, seq uint64) error {
	b.ID, b.Seq = uuid.NewString(), seq
	clear(b.Labels.Int32s())

	a := newAssembler(ctx, seq, b)
	defer a.cancel()

	n := b.Size()
	start := time.Now()
	p.obs.BatchStarted(n)
	err := p.dispatch(a)
	if err == nil && !a.complete() {
		err = fmt.Errorf("pipeline: batch %d incomplete", seq)
	}
	p.obs.BatchCompleted(n, time.Since(start), err)
	if err != nil {
		p.stats.failedBatches.Add(1)
		if !errors.Is(err, context.Canceled) {
			p.log.Error("batch failed", "batch", seq, "err", err)
		}
		return err
	}
	p.stats.batches.Add(1)
	p.log.Debug("batch ready", "batch", seq, "took", time.Since(start))
	return nil
}

// dispatch binds records to slots and waits for each round to settle. A
// cancelled round still waits for in-flight samples so no worker writes into
// the buffer after dispatch returns.
func (p *Pipeline) dispatch(a *assembler) error {
	slots := a.prepare()
	for {
		r := newRound(len(slots))
		err := p.enqueue(a, r, slots)
		if err != nil {
			a.cancel()
		}
		<-r.done
		if err != nil {
			return err
		}
		if err := a.ctx.Err(); err != nil {
			return err
		}
		if slots, err = a.retry(p.cfg.MaxRetries); err != nil {
			return err
		}
		if len(slots) == 0 {
			return nil
		}
		p.stats.retries.Add(uint64(len(slots)))
		p.obs.SlotsRetried(len(slots))
		p.log.Warn("retrying failed slots", "batch", a.seq, "slots", slots)
	}
}

func (p *Pipeline) enqueue(a *assembler, r *round, slots []int) error {
	for i, slot := range slots {
		rec, err := p.fetch(a.ctx)
		if err != nil {
			a.markSkipped(r, len(slots)-i)
			return err
		}
		select {
		case p.queue <- workItem{asm: a, round: r, slot: slot, rec: rec}:
		case <-a.ctx.Done():
			a.markSkipped(r, len(slots)-i)
			return a.ctx.Err()
		}
	}
	return nil
}

// fetch reads the next record, skipping up to MaxRetries failed reads.
func (p *Pipeline) fetch(ctx context.Context) (source.Record, error) {
	var last error
	for range p.cfg.MaxRetries + 1 {
		rec, err := p.src.Next(ctx)
		if err == nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return source.Record{}, ctx.Err()
		}
		if errors.Is(err, source.ErrEndOfStream) {
			return source.Record{}, fmt.Errorf("%w: %w", ErrSourceExhausted, err)
		}
		last = err
		p.log.Warn("record read failed", "err", err)
	}
	return source.Record{}, fmt.Errorf("%w: %w", ErrSourceExhausted, last)
}

// Close stops the workers, waits for any background batch and releases the
// buffers and the source. It is idempotent.
func (p *Pipeline) Close() error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return nil
	}
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next != nil {
		<-p.next.done
		p.next = nil
	}
	close(p.queue)
	p.wg.Wait()
	p.bufs = [2]*Batch{}
	err := p.src.Close()
	p.state.Store(int32(StateStopped))
	p.log.Info("pipeline stopped", "batches", p.stats.batches.Load(), "records", p.src.Read())
	return err
}
