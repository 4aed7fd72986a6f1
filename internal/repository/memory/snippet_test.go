package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/codegen-playground/internal/apperror"
	"github.com/sakif/codegen-playground/internal/model"
)

func addSnippet(t *testing.T, s *SnippetStore, description, code string) string {
	t.Helper()
	id, err := s.Add(context.Background(), &model.Snippet{Description: description, CodeSnippet: code})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return id
}

func mustList(t *testing.T, s *SnippetStore) []model.Snippet {
	t.Helper()
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return list
}

func TestAdd_AssignsUniqueIDs(t *testing.T) {
	s := NewSnippetStore()
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := addSnippet(t, s, "d", "c")
		if id == "" {
			t.Fatal("Add() returned empty id")
		}
		if seen[id] {
			t.Fatalf("Add() returned duplicate id %s", id)
		}
		seen[id] = true

		if got := len(mustList(t, s)); got != i+1 {
			t.Fatalf("List() length = %d after %d adds", got, i+1)
		}
	}
}

func TestAdd_SetsFieldsInPlace(t *testing.T) {
	s := NewSnippetStore()
	sn := &model.Snippet{Description: "reverse a string", CodeSnippet: "s[::-1]"}

	id, err := s.Add(context.Background(), sn)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if sn.ID != id {
		t.Errorf("snippet.ID = %q, want %q", sn.ID, id)
	}
	if sn.CreatedAt.IsZero() {
		t.Error("Add() did not set CreatedAt")
	}
}

func TestList_InsertionOrder(t *testing.T) {
	s := NewSnippetStore()
	first := addSnippet(t, s, "first", "a")
	second := addSnippet(t, s, "second", "b")
	third := addSnippet(t, s, "third", "c")

	list := mustList(t, s)
	want := []string{first, second, third}
	for i, sn := range list {
		if sn.ID != want[i] {
			t.Errorf("List()[%d].ID = %s, want %s", i, sn.ID, want[i])
		}
	}
}

func TestList_EmptyIsNonNil(t *testing.T) {
	if list := mustList(t, NewSnippetStore()); list == nil {
		t.Error("List() on empty store returned nil, want empty slice")
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	s := NewSnippetStore()
	addSnippet(t, s, "original", "x")

	list := mustList(t, s)
	list[0].Description = "mutated"

	if got := mustList(t, s)[0].Description; got != "original" {
		t.Errorf("store was mutated through List() result: %q", got)
	}
}

func TestRemove(t *testing.T) {
	s := NewSnippetStore()
	keep := addSnippet(t, s, "keep", "a")
	drop := addSnippet(t, s, "drop", "b")

	n, err := s.Remove(context.Background(), drop)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Remove() removed %d, want 1", n)
	}

	list := mustList(t, s)
	if len(list) != 1 || list[0].ID != keep {
		t.Errorf("List() after Remove = %+v", list)
	}
}

func TestRemove_NonexistentIsNoop(t *testing.T) {
	s := NewSnippetStore()
	id := addSnippet(t, s, "a", "b")

	for _, target := range []string{"does-not-exist", id} {
		if _, err := s.Remove(context.Background(), target); err != nil {
			t.Fatalf("Remove(%q) error = %v", target, err)
		}
	}

	// Second removal of the same id must be a silent no-op.
	n, err := s.Remove(context.Background(), id)
	if err != nil {
		t.Fatalf("Remove() again error = %v", err)
	}
	if n != 0 {
		t.Errorf("Remove() again removed %d, want 0", n)
	}
	if got := len(mustList(t, s)); got != 0 {
		t.Errorf("List() length = %d, want 0", got)
	}
}

func TestRemove_AllMatches(t *testing.T) {
	s := NewSnippetStore()
	s.snippets = []model.Snippet{{ID: "dup"}, {ID: "other"}, {ID: "dup"}}

	n, err := s.Remove(context.Background(), "dup")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Remove() removed %d, want 2", n)
	}
	if list := mustList(t, s); len(list) != 1 || list[0].ID != "other" {
		t.Errorf("List() = %+v, want only 'other'", list)
	}
}

func TestGet(t *testing.T) {
	s := NewSnippetStore()
	id := addSnippet(t, s, "find me", "x = 1")

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Description != "find me" {
		t.Errorf("Description = %q", got.Description)
	}

	_, err = s.Get(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	s := NewSnippetStore()
	var wg sync.WaitGroup

	ids := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := s.Add(context.Background(), &model.Snippet{Description: "c"})
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	removed := 0
	for id := range ids {
		if removed == 25 {
			break
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.Remove(context.Background(), id)
		}(id)
		removed++
	}
	wg.Wait()

	if got := len(mustList(t, s)); got != 25 {
		t.Errorf("List() length = %d, want 25", got)
	}
}
