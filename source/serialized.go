package source

import (
	"context"
	"sync"
	"sync/atomic"
)

// Serialized gives exclusive access to an underlying Source so records are
// handed out one at a time, in source order, whoever calls Next.
type Serialized struct {
	mu   sync.Mutex
	src  Source
	read atomic.Uint64
}

func Serialize(src Source) *Serialized {
	if s, ok := src.(*Serialized); ok {
		return s
	}
	return &Serialized{src: src}
}

func (s *Serialized) Next(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err := s.src.Next(ctx)
	if err == nil {
		s.read.Add(1)
	}
	return rec, err
}

// Read reports how many records have been handed out.
func (s *Serialized) Read() uint64 { return s.read.Load() }

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Close()
}
