// Package memory implements the snippet repository as a process-local slice.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/samber/lo"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/model"
	"github.com/sakif/codegen-playground/internal/repository"
)

var _ repository.SnippetRepository = (*SnippetStore)(nil)

// SnippetStore keeps snippets in insertion order. Every read and write holds
// mu, so concurrent generate/delete requests cannot interleave into a
// duplicated or torn listing.
type SnippetStore struct {
	mu       sync.RWMutex
	snippets []model.Snippet
}

// NewSnippetStore returns an empty store.
func NewSnippetStore() *SnippetStore {
	return &SnippetStore{}
}

// Add assigns a fresh xid, stamps CreatedAt and appends the snippet.
// The caller's struct is updated in place.
func (s *SnippetStore) Add(_ context.Context, snippet *model.Snippet) (string, error) {
	snippet.ID = xid.New().String()
	snippet.CreatedAt = time.Now()

	s.mu.Lock()
	s.snippets = append(s.snippets, *snippet)
	s.mu.Unlock()

	return snippet.ID, nil
}

// Get returns a copy of the first snippet with the given ID.
func (s *SnippetStore) Get(_ context.Context, id string) (*model.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := lo.Find(s.snippets, func(sn model.Snippet) bool { return sn.ID == id })
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	return &found, nil
}

// List returns a copy of all snippets in insertion order.
func (s *SnippetStore) List(_ context.Context) ([]model.Snippet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Snippet, len(s.snippets))
	copy(out, s.snippets)
	return out, nil
}

// Remove filters out every snippet whose ID equals id.
func (s *SnippetStore) Remove(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.snippets)
	s.snippets = lo.Filter(s.snippets, func(sn model.Snippet, _ int) bool { return sn.ID != id })
	return before - len(s.snippets), nil
}
