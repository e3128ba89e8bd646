package engine

import (
	"context"
	"sync"
)

// Row is one exported item, normalized for downstream rendering.
type Row struct {
	ID            string
	Status        string
	OriginalPrice float64
	CurrentPrice  *float64
}

type RowSink interface {
	Append(ctx context.Context, row Row) error
}

// MemorySink buffers rows in memory; the default sink.
type MemorySink struct {
	mu   sync.Mutex
	rows []Row
}

func (s *MemorySink) Append(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemorySink) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}
