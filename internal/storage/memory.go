package storage

import (
	"context"
	"sync"
)

// MemorySink keeps every export in memory. It is used in tests and when nothing should
// touch the disk.
type MemorySink struct {
	mu      sync.RWMutex
	exports []Export
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write records a copy of export.
func (s *MemorySink) Write(ctx context.Context, export Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cp := Export{
		WrittenAt: export.WrittenAt,
		Positions: append([]PositionRecord(nil), export.Positions...),
		Snapshots: append([]SnapshotRecord(nil), export.Snapshots...),
	}
	s.exports = append(s.exports, cp)
	return nil
}

// Exports returns every export written so far.
func (s *MemorySink) Exports() []Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Export(nil), s.exports...)
}

// Last returns the most recent export.
func (s *MemorySink) Last() (Export, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.exports) == 0 {
		return Export{}, false
	}
	return s.exports[len(s.exports)-1], true
}

// Close rejects further writes.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
