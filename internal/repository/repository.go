// Package repository declares the storage contracts used by the service layer.
// Implementations live in the subpackages: memory (default snippet store),
// sqlite (optional persistent snippet store) and jsonfile (feedback store).
package repository

import (
	"context"

	"github.com/sakif/codegen-playground/internal/model"
)

// SnippetRepository is an ordered collection of generated snippets.
//
// List returns snippets in insertion order. Remove deletes every entry whose
// ID matches and reports how many were removed; zero matches is not an error.
// Implementations must be safe for concurrent use.
type SnippetRepository interface {
	Add(ctx context.Context, snippet *model.Snippet) (string, error)
	Get(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context) ([]model.Snippet, error)
	Remove(ctx context.Context, id string) (int, error)
}

// FeedbackRepository is an append-only collection of feedback entries.
type FeedbackRepository interface {
	Add(ctx context.Context, entry model.FeedbackEntry) error
	List(ctx context.Context) ([]model.FeedbackEntry, error)
}
