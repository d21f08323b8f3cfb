package testsupport

import (
	"context"
	"testing"

	"prdforge/internal/config"
	"prdforge/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProject creates a project for tests using the provided store.
func NewProject(t testing.TB, st *store.Store, title string) *store.Project {
	t.Helper()

	project, err := st.CreateProject(context.Background(), store.NewProject{Title: title})
	if err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}
