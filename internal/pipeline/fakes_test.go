package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"prdforge/internal/media/segment"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/oss"
	"prdforge/internal/store"
	"prdforge/internal/transcript"
)

type fakeSegmenter struct {
	total float64
	err   error
}

func (f *fakeSegmenter) Split(_ context.Context, input string, window float64, outDir string) ([]segment.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("input missing: %w", err)
	}
	var out []segment.Segment
	for _, w := range segment.Plan(f.total, window) {
		path := filepath.Join(outDir, fmt.Sprintf("input_part%d.wav", w.Index+1))
		if err := os.WriteFile(path, []byte("segment"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, segment.Segment{
			Index:     w.Index,
			StartTime: w.Start,
			EndTime:   w.End,
			Duration:  w.Duration(),
			FilePath:  path,
		})
	}
	return out, nil
}

type spyObjects struct {
	mu       sync.Mutex
	uploads  []string
	deletes  []string
	failOn   map[int]bool
	attempts int
}

func (s *spyObjects) Upload(_ context.Context, data io.Reader, objectName string, _ oss.UploadOptions) (oss.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt := s.attempts
	s.attempts++
	if s.failOn[attempt] {
		return oss.UploadResult{}, &services.UpstreamError{Provider: "oss", StatusCode: 500, Message: "boom"}
	}
	if _, err := io.ReadAll(data); err != nil {
		return oss.UploadResult{}, err
	}
	s.uploads = append(s.uploads, objectName)
	return oss.UploadResult{URL: "https://bucket/" + objectName, ObjectName: objectName}, nil
}

func (s *spyObjects) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, objectName)
	return nil
}

func (s *spyObjects) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads), len(s.deletes)
}

type fakeTranscriber struct {
	mu      sync.Mutex
	texts   []string
	submits int
	pollErr error
	// onPoll runs before Poll returns.
	onPoll func(taskID string)
}

func (f *fakeTranscriber) Submit(_ context.Context, fileURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("task-%d", f.submits)
	f.submits++
	return id, nil
}

func (f *fakeTranscriber) Status(_ context.Context, taskID string) (filetrans.Task, error) {
	return filetrans.Task{ID: taskID, Status: filetrans.StatusRunning}, nil
}

func (f *fakeTranscriber) Poll(ctx context.Context, taskID string, opts filetrans.PollOptions) (filetrans.Task, error) {
	if opts.OnProgress != nil {
		opts.OnProgress(filetrans.StatusRunning)
	}
	if f.onPoll != nil {
		f.onPoll(taskID)
	}
	if err := ctx.Err(); err != nil {
		return filetrans.Task{}, err
	}
	if f.pollErr != nil {
		return filetrans.Task{}, f.pollErr
	}
	if opts.OnProgress != nil {
		opts.OnProgress(filetrans.StatusSuccess)
	}
	var index int
	_, _ = fmt.Sscanf(taskID, "task-%d", &index)
	text := ""
	if index < len(f.texts) {
		text = f.texts[index]
	}
	return filetrans.Task{
		ID:     taskID,
		Status: filetrans.StatusSuccess,
		Text:   text,
		Segments: []transcript.Segment{
			{SpeakerID: 0, Text: text, BeginTime: 10000, EndTime: 12000},
		},
	}, nil
}

type fakeSummarizer struct {
	mu       sync.Mutex
	calls    []string
	err      error
	previous []string
}

func (f *fakeSummarizer) MiniSummary(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("摘要%d", len(f.calls)), nil
}

func (f *fakeSummarizer) Overview(_ context.Context, previous, newSummary string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previous = append(f.previous, previous)
	return previous + newSummary, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type savedSummary struct {
	projectID string
	timestamp int
	content   string
}

type spySummaryStore struct {
	mu    sync.Mutex
	saved []savedSummary
}

func (s *spySummaryStore) CreateMiniSummary(_ context.Context, projectID string, timestamp int, content string) (*store.MiniSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, savedSummary{projectID, timestamp, content})
	return &store.MiniSummary{ProjectID: projectID, Timestamp: timestamp, Content: content}, nil
}

// fakeSession is a scripted recognizer session. Hooks run on their own
// goroutine so they never block the caller.
type fakeSession struct {
	mu        sync.Mutex
	sent      [][]byte
	events    chan transcript.StreamEvent
	closed    chan struct{}
	closeOnce sync.Once
	sendErr   error

	onFirstSend func(s *fakeSession)
	onCloseSend func(s *fakeSession)
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan transcript.StreamEvent, 32),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) Send(pcm []byte) error {
	s.mu.Lock()
	if s.sendErr != nil {
		s.mu.Unlock()
		return s.sendErr
	}
	s.sent = append(s.sent, append([]byte(nil), pcm...))
	first := len(s.sent) == 1
	s.mu.Unlock()
	if first && s.onFirstSend != nil {
		go s.onFirstSend(s)
	}
	return nil
}

func (s *fakeSession) Events() <-chan transcript.StreamEvent { return s.events }

func (s *fakeSession) CloseSend() error {
	if s.onCloseSend != nil {
		go s.onCloseSend(s)
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) emit(evs ...transcript.StreamEvent) {
	for _, ev := range evs {
		select {
		case s.events <- ev:
		case <-s.closed:
			return
		}
	}
}

func (s *fakeSession) finish(evs ...transcript.StreamEvent) {
	s.emit(evs...)
	close(s.events)
}

func (s *fakeSession) bytesSent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.sent {
		n += len(b)
	}
	return n
}

type fakeRecognizer struct {
	session *fakeSession
	opts    transcript.StreamOptions
	err     error
}

func (r *fakeRecognizer) Open(_ context.Context, opts transcript.StreamOptions) (transcript.StreamSession, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.opts = opts
	r.session.events <- transcript.StreamEvent{Type: transcript.EventStarted}
	return r.session, nil
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func types(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func countType(events []Event, t EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
