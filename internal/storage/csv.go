package storage

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// CSVSink writes positions and snapshots to path + "_positions.csv" and path + "_snapshots.csv".
type CSVSink struct {
	mu            sync.Mutex
	positionsPath string
	snapshotsPath string
}

// NewCSVSink creates a CSV sink.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{
		positionsPath: path + "_positions.csv",
		snapshotsPath: path + "_snapshots.csv",
	}
}

// Paths returns the positions and snapshots files.
func (s *CSVSink) Paths() (positions, snapshots string) {
	return s.positionsPath, s.snapshotsPath
}

// Write replaces both files.
func (s *CSVSink) Write(ctx context.Context, export Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	positions := export.Positions
	if positions == nil {
		positions = []PositionRecord{}
	}
	if err := writeAtomic(s.positionsPath, func(f *os.File) error {
		return gocsv.MarshalFile(&positions, f)
	}); err != nil {
		return fmt.Errorf("writing positions csv: %w", err)
	}

	snapshots := export.Snapshots
	if snapshots == nil {
		snapshots = []SnapshotRecord{}
	}
	if err := writeAtomic(s.snapshotsPath, func(f *os.File) error {
		return gocsv.MarshalFile(&snapshots, f)
	}); err != nil {
		return fmt.Errorf("writing snapshots csv: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *CSVSink) Close() error { return nil }
