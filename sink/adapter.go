// Package sink defines the destinations assembled batches are pushed to.
package sink

import (
	"fmt"
	"sync"

	"imagefeed/internal/pipeline"
)

// EmitFn is what a sink calls once a batch has been durably handed off.
type EmitFn func(id string, seq uint64)

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error          // driver-specific config struct
	Push(b *pipeline.Batch) error // must not retain b after returning
	Close() error                 // idempotent
}

// AckAware is optional; sinks that report delivery implement it and the
// engine binds the callback.
type AckAware interface {
	BindAck(EmitFn)
}

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	reg[name] = f
	mu.Unlock()
}

func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
