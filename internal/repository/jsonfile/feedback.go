// Package jsonfile implements the feedback repository as an in-memory slice
// mirrored to a single JSON file.
//
// ON-DISK FORMAT:
// The file is one JSON array holding every entry the process has collected:
//
//	[
//	  {"description": "...", "code_snippet": "...", "model_name": "gpt-3.5-turbo",
//	   "feedback": "Great code snippet!", "rating": "good"}
//	]
//
// WRITE POLICY:
// Each Add appends in memory first, then rewrites the whole file. The new
// content goes to a temp file in the same directory which is renamed over the
// destination, so readers never observe a half-written array. If the write
// fails the entry is NOT rolled back: memory is authoritative and the disk
// copy is best effort.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/repository"
)

var _ repository.FeedbackRepository = (*FeedbackStore)(nil)

// FeedbackStore is safe for concurrent use. mu is held across the append and
// the file write so two concurrent Adds cannot reorder their snapshots on disk.
type FeedbackStore struct {
	path string

	mu      sync.Mutex
	entries []model.FeedbackEntry
}

// NewFeedbackStore returns an empty store that writes to path.
// The file is not read: a new process starts with an empty collection and
// its first Add replaces whatever the file held before.
func NewFeedbackStore(path string) *FeedbackStore {
	return &FeedbackStore{path: path}
}

// Path returns the destination file.
func (s *FeedbackStore) Path() string {
	return s.path
}

// Add appends entry and flushes the full collection to disk.
// A write failure is returned as apperror.ErrPersistence; the entry remains
// visible to List either way.
func (s *FeedbackStore) Add(_ context.Context, entry model.FeedbackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	if err := s.flush(); err != nil {
		return apperror.PersistenceFailed(s.path, err)
	}
	return nil
}

// List returns a copy of all entries in submission order.
func (s *FeedbackStore) List(_ context.Context) ([]model.FeedbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.FeedbackEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// flush must be called with mu held.
func (s *FeedbackStore) flush() error {
	data, err := json.MarshalIndent(s.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("jsonfile: encoding feedback: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("jsonfile: creating temp file: %w", err)
	}
	// Remove is a no-op once the rename has succeeded.
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: setting mode on %s: %w", tmp.Name(), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("jsonfile: writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("jsonfile: closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("jsonfile: replacing %s: %w", s.path, err)
	}
	return nil
}
