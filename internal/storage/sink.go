// Package storage writes end-of-run position and snapshot records.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink receives the export of a run.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, export Export) error
	Close() error
}

// NewSink creates the sink for a format. path is a file prefix; each format adds its own
// extension.
func NewSink(format, path string) (Sink, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONSink(path), nil
	case "csv":
		return NewCSVSink(path), nil
	case "sqlite":
		return NewSQLiteSink(path)
	case "memory":
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Ensure all sinks implement Sink
var (
	_ Sink = (*JSONSink)(nil)
	_ Sink = (*CSVSink)(nil)
	_ Sink = (*SQLiteSink)(nil)
	_ Sink = (*MemorySink)(nil)
)

// writeAtomic writes to a temp file next to path and renames it into place.
func writeAtomic(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Atomic rename
	return os.Rename(tmpName, path)
}
