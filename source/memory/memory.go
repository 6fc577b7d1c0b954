// Package memory is an in-process record source backed by a slice.
package memory

import (
	"context"
	"sync"

	"imagefeed/source"
)

type Source struct {
	mu     sync.Mutex
	recs   []source.Record
	pos    int
	wrap   bool
	closed bool
}

// New serves recs in order; with wrap it restarts from the first record
// once the slice is exhausted, otherwise it reports source.ErrEndOfStream.
func New(recs []source.Record, wrap bool) *Source {
	return &Source{recs: recs, wrap: wrap}
}

func (s *Source) Next(ctx context.Context) (source.Record, error) {
	if err := ctx.Err(); err != nil {
		return source.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.recs) == 0 {
		return source.Record{}, source.ErrEndOfStream
	}
	if s.pos == len(s.recs) {
		if !s.wrap {
			return source.Record{}, source.ErrEndOfStream
		}
		s.pos = 0
	}
	r := s.recs[s.pos]
	s.pos++
	return r, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
