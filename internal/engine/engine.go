// Package engine wires a compiled pipeline to its sinks and to the control
// and metrics servers.
package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"imagefeed/internal/logging"
	"imagefeed/internal/pipeline"
	"imagefeed/internal/transport"
	"imagefeed/internal/wire"
	"imagefeed/sink"
)

// Debug bounds the sink pump.
type Debug struct {
	MaxBatches    int // 0 = until the source is exhausted or ctx ends
	BatchDelay    time.Duration
	BatchesPerSec float64 // 0 = unthrottled
	Burst         int64
}

type Engine struct {
	pipe      *pipeline.Pipeline
	sinks     []sink.Adapter
	debug     Debug
	transport *transport.Server
	metrics   *http.Server
	throttle  *throttle

	// mu keeps one batch in hand at a time; the pipeline reuses its buffers.
	mu     sync.Mutex
	pushed atomic.Uint64
	acked  atomic.Uint64
}

// New builds an engine around an already running pipeline.
func New(p *pipeline.Pipeline, sinks []sink.Adapter, d Debug) *Engine {
	return &Engine{pipe: p, sinks: sinks, debug: d, throttle: newThrottle(d.BatchesPerSec, d.Burst)}
}

// NextBatch runs the pipeline once and returns the wire-encoded batch.
func (e *Engine) NextBatch(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.pipe.Run(ctx)
	if err != nil {
		return nil, err
	}
	return wire.EncodeBatch(b), nil
}

func (e *Engine) Stats() pipeline.Stats { return e.pipe.Stats() }

// Pushed and Acked count batches handed to every sink and delivery
// confirmations reported by ack-aware sinks.
func (e *Engine) Pushed() uint64 { return e.pushed.Load() }
func (e *Engine) Acked() uint64  { return e.acked.Load() }

func (e *Engine) delivered(id string, seq uint64) {
	e.acked.Add(1)
	logging.Component("engine").Debug("batch delivered", "batch", seq, "id", id)
}

// Run serves until ctx ends, the pump finishes with no control server
// running, or either fails. It always shuts everything down.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 2)
	active := 0
	if e.transport != nil {
		active++
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- e.transport.Serve()
		}()
	}
	if len(e.sinks) > 0 {
		active++
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- e.pump(ctx)
		}()
	}

	var runErr error
loop:
	for active > 0 {
		select {
		case <-ctx.Done():
			break loop
		case err := <-errc:
			active--
			if err != nil {
				runErr = err
				break loop
			}
		}
	}

	cancel()
	if e.transport != nil {
		e.transport.Stop()
	}
	wg.Wait()
	return errors.Join(runErr, e.shutdown(context.Background()))
}

// pump pushes batches to every sink in order.
func (e *Engine) pump(ctx context.Context) error {
	log := logging.Component("engine", "pipeline", e.pipe.ID())
	for n := 0; e.debug.MaxBatches == 0 || n < e.debug.MaxBatches; n++ {
		if err := e.throttle.acquire(ctx); err != nil {
			return nil
		}
		err := e.deliver(ctx)
		var be *pipeline.BatchError
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, pipeline.ErrSourceExhausted):
			log.Info("record source exhausted; pump stopped", "batches", e.pushed.Load(), "err", err)
			return nil
		case errors.As(err, &be):
			log.Warn("batch dropped", "batch", be.Seq, "slot", be.Slot, "err", be.Err)
		default:
			return err
		}
		if e.debug.BatchDelay > 0 {
			select {
			case <-time.After(e.debug.BatchDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
	log.Info("max batches reached", "batches", e.pushed.Load())
	return nil
}

func (e *Engine) deliver(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.pipe.Run(ctx)
	if err != nil {
		return err
	}
	for _, s := range e.sinks {
		if err := s.Push(b); err != nil {
			return err
		}
	}
	e.pushed.Add(1)
	return nil
}

func (e *Engine) shutdown(ctx context.Context) error {
	e.throttle.close()
	errs := []error{e.pipe.Close()}
	for _, s := range e.sinks {
		errs = append(errs, s.Close())
	}
	if e.metrics != nil {
		errs = append(errs, e.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
