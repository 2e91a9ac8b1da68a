package index

import (
	"context"
	"errors"
	"testing"
)

func TestChromemAddSearchDelete(t *testing.T) {
	idx, err := NewChromemIndex("", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	entries := []Entry{
		{ID: "exact", UserID: "user-1", SessionID: "sess-1", Vector: []float32{1, 0, 0}},
		{ID: "close", UserID: "user-1", SessionID: "sess-2", Vector: []float32{0.9, 0.1, 0}},
	}
	for _, e := range entries {
		if err := idx.Add(ctx, e); err != nil {
			t.Fatalf("add %s: %v", e.ID, err)
		}
	}
	if idx.Len() != 2 {
		t.Fatalf("len = %d, want 2", idx.Len())
	}

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, SearchOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "exact" {
		t.Fatalf("matches = %v", matches)
	}

	if err := idx.Delete(ctx, "exact"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	matches, err = idx.Search(ctx, []float32{1, 0, 0}, SearchOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "close" {
		t.Fatalf("matches after delete = %v", matches)
	}
	// Deleting a missing id is not an error.
	if err := idx.Delete(ctx, "exact"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestChromemSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewChromemIndex(dir, 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	entries := []Entry{
		{ID: "ep-1", UserID: "user-1", SessionID: "sess-1", Vector: []float32{1, 0, 0}},
		{ID: "ep-2", UserID: "user-1", SessionID: "sess-2", Vector: []float32{0, 1, 0}},
	}
	for _, e := range entries {
		if err := idx.Add(ctx, e); err != nil {
			t.Fatalf("add %s: %v", e.ID, err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewChromemIndex(dir, 3)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 2 {
		t.Fatalf("len after reopen = %d, want 2", reopened.Len())
	}

	vec, err := reopened.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Fatalf("vector after reopen = %v", vec)
	}

	matches, err := reopened.Search(ctx, []float32{1, 0, 0}, SearchOptions{UserID: "user-1", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("session search after reopen: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "ep-1" {
		t.Fatalf("session-scoped matches after reopen = %v", matches)
	}

	if err := reopened.Delete(ctx, "ep-1"); err != nil {
		t.Fatalf("delete after reopen: %v", err)
	}
	matches, err = reopened.Search(ctx, []float32{1, 0, 0}, SearchOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	for _, m := range matches {
		if m.ID == "ep-1" {
			t.Fatal("deleted vector still searchable after reopen")
		}
	}
	if _, err := reopened.Get(ctx, "ep-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted err = %v, want ErrNotFound", err)
	}
}

func TestChromemSessionFilter(t *testing.T) {
	idx, err := NewChromemIndex("", 3)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	idx.Add(ctx, Entry{ID: "a", UserID: "user-1", SessionID: "sess-1", Vector: []float32{1, 0, 0}})
	idx.Add(ctx, Entry{ID: "b", UserID: "user-1", SessionID: "sess-2", Vector: []float32{1, 0, 0}})

	matches, err := idx.Search(ctx, []float32{1, 0, 0}, SearchOptions{UserID: "user-1", SessionID: "sess-2"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "b" {
		t.Fatalf("matches = %v, want only sess-2 entry", matches)
	}
}
