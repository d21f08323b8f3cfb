// Package summary keeps rolling-summary bookkeeping for live sessions: which
// summary windows a project has already claimed, and the running overview.
//
// Memory state serves a single process. Redis state lets several server
// instances share one recording without summarizing a window twice.
package summary

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Guard grants each (project, window) pair at most once.
type Guard interface {
	Claim(ctx context.Context, projectID string, window int64) (bool, error)
}

// OverviewStore holds the latest overview per project.
type OverviewStore interface {
	Overview(ctx context.Context, projectID string) (string, error)
	SetOverview(ctx context.Context, projectID, overview string) error
}

// State combines both capabilities.
type State interface {
	Guard
	OverviewStore
	Close() error
}

// WindowFor returns the window index for a recording offset.
func WindowFor(offset, interval time.Duration) int64 {
	if interval <= 0 || offset <= 0 {
		return 0
	}
	return int64(offset / interval)
}

func projectKey(projectID string) string {
	if p := strings.TrimSpace(projectID); p != "" {
		return p
	}
	return "anonymous"
}

// MemoryState is an in-process State.
type MemoryState struct {
	mu        sync.Mutex
	windows   map[string]map[int64]struct{}
	overviews map[string]string
}

// NewMemory constructs an empty in-process state.
func NewMemory() *MemoryState {
	return &MemoryState{
		windows:   make(map[string]map[int64]struct{}),
		overviews: make(map[string]string),
	}
}

// Claim records the window and reports whether it was new.
func (m *MemoryState) Claim(_ context.Context, projectID string, window int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := projectKey(projectID)
	claimed, ok := m.windows[key]
	if !ok {
		claimed = make(map[int64]struct{})
		m.windows[key] = claimed
	}
	if _, seen := claimed[window]; seen {
		return false, nil
	}
	claimed[window] = struct{}{}
	return true, nil
}

// Overview returns the stored overview or "".
func (m *MemoryState) Overview(_ context.Context, projectID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overviews[projectKey(projectID)], nil
}

// SetOverview replaces the overview.
func (m *MemoryState) SetOverview(_ context.Context, projectID, overview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overviews[projectKey(projectID)] = overview
	return nil
}

// Close is a no-op.
func (m *MemoryState) Close() error { return nil }

func windowMember(window int64) string {
	return strconv.FormatInt(window, 10)
}
