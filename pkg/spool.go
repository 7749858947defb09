package pkg

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Spool buffers one stage's output on disk so the next stage can stream it
// back, instead of holding a whole archive's worth of items in memory.
type Spool[T any] interface {
	Len() uint64
	Path() string
	Append(item T) error
	AppendBatch(items []T) error
	Range(f func(index uint64, item T) error) error
	Close() error
}

type spoolImpl[T any] struct {
	path    string
	file    *os.File
	encoder *gob.Encoder
	mu      sync.Mutex
	length  uint64
}

// Append implements Spool.
func (s *spoolImpl[T]) Append(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.encoder.Encode(item); err != nil {
		slog.Error("failed to encode spooled item", "path", s.path, "index", s.length, "error", err)
		return fmt.Errorf("failed to encode spooled item: %w", err)
	}

	s.length++

	return nil
}

// AppendBatch implements Spool.
func (s *spoolImpl[T]) AppendBatch(items []T) error {
	for _, item := range items {
		if err := s.Append(item); err != nil {
			return err
		}
	}

	return nil
}

// Path implements Spool.
func (s *spoolImpl[T]) Path() string {
	return s.path
}

// Len implements Spool.
func (s *spoolImpl[T]) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.length
}

// Range implements Spool. It reads the spool from the start with a separate
// handle, so it can run repeatedly and never disturbs appends already
// written.
func (s *spoolImpl[T]) Range(fn func(index uint64, item T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		slog.Error("failed to open spool for range", "path", s.path, "error", err)
		return fmt.Errorf("failed to open spool: %w", err)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close spool", "path", s.path, "error", err)
		}
	}()

	decoder := gob.NewDecoder(file)

	for i := uint64(0); i < s.length; i++ {
		// A fresh target per item: gob omits zero-valued fields, so reusing
		// one target would leak fields across items.
		var item T

		if err := decoder.Decode(&item); err != nil {
			slog.Error("failed to decode spooled item", "path", s.path, "index", i, "error", err)
			return fmt.Errorf("failed to decode spooled item at index %d: %w", i, err)
		}

		if err := fn(i, item); err != nil {
			return err
		}
	}

	slog.Debug("spool range completed", "path", s.path, "count", s.length)

	return nil
}

// Close implements Spool. The backing file is removed; a closed spool cannot
// be read again.
func (s *spoolImpl[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.file.Close(); err != nil {
		slog.Error("failed to close spool", "path", s.path, "error", err)
		return err
	}

	s.file = nil

	if err := os.Remove(s.path); err != nil {
		slog.Warn("failed to remove spool file", "path", s.path, "error", err)
	}

	return nil
}

// NewSpool creates a disk-backed Spool for items of type T. The prefix names
// the temp file for debuggability.
func NewSpool[T any](prefix string) (Spool[T], error) {
	file, err := os.CreateTemp("", prefix+"-*.gob")
	if err != nil {
		slog.Error("failed to create spool file", "prefix", prefix, "error", err)
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	slog.Debug("created spool", "path", file.Name())

	return &spoolImpl[T]{
		path:    file.Name(),
		file:    file,
		encoder: gob.NewEncoder(file),
	}, nil
}
