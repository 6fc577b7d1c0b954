// Package source defines the record source capability the pipeline reads
// from and a registry of drivers selectable by name (the spec file's
// db_type). Drivers live in sub-packages and register from init().
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrEndOfStream is returned by Next when a non-wrapping source is drained.
var ErrEndOfStream = errors.New("source: end of stream")

// Record is one encoded image and its label. Data must not be modified
// after Next returns it.
type Record struct {
	Key   string
	Data  []byte
	Label int32
}

type Source interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Options carries the driver-independent source settings from the spec.
type Options struct {
	DB     string // database location: directory, file path, topic...
	Config string // optional driver config file
}

// Factory opens a Source (folder, recordio, kafka, ...).
type Factory func(Options) (Source, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register is called from each driver's init().
func Register(name string, f Factory) {
	regMu.Lock()
	registry[name] = f
	regMu.Unlock()
}

// Open returns a source by driver name.
func Open(name string, opts Options) (Source, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source: unsupported db_type %q (have %v)", name, Drivers())
	}
	return f(opts)
}

func Drivers() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
