package storage

import "errors"

// ErrUnsupportedFormat is returned by NewSink for an unknown format name
var ErrUnsupportedFormat = errors.New("unsupported storage format")

// ErrClosed is returned when writing to a closed sink
var ErrClosed = errors.New("sink is closed")
