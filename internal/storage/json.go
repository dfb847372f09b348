package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONSink writes the export as one indented JSON document at path + ".json".
type JSONSink struct {
	mu   sync.Mutex
	path string
}

// NewJSONSink creates a JSON sink.
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path + ".json"}
}

// Path returns the output file.
func (s *JSONSink) Path() string { return s.path }

// Write replaces the output file.
func (s *JSONSink) Write(ctx context.Context, export Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return writeAtomic(s.path, func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// Close is a no-op.
func (s *JSONSink) Close() error { return nil }

// ReadJSON loads an export written by JSONSink.
func ReadJSON(path string) (Export, error) {
	var export Export
	data, err := os.ReadFile(path) // #nosec G304 -- path is an export file chosen by the operator
	if err != nil {
		return export, err
	}
	if err := json.Unmarshal(data, &export); err != nil {
		return export, fmt.Errorf("decoding %s: %w", path, err)
	}
	return export, nil
}
