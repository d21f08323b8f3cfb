package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"prdforge/internal/summary"
	"prdforge/internal/testsupport"
	"prdforge/internal/transcript"
)

func liveConfig() LiveConfig {
	cfg := testStreamConfig()
	cfg.IdleTimeout = time.Second
	return LiveConfig{
		Stream:      cfg,
		Interval:    30 * time.Millisecond,
		MinNewChars: 50,
		CheckEvery:  5 * time.Millisecond,
	}
}

func TestLiveSessionSummarizesNewText(t *testing.T) {
	long := strings.Repeat("讨", 60)
	session := newFakeSession()
	session.onFirstSend = func(s *fakeSession) {
		s.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: long})
	}
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{}
	saved := &spySummaryStore{}
	state := summary.NewMemory()
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, liveConfig(),
		WithProject("p1", saved),
		WithSummaryState(state),
	)

	frames := make(chan []byte, 4)
	frames <- testsupport.Float32Frame(0.5, -0.5, 0, 1)
	events := live.Run(context.Background(), frames)

	var got []Event
	closed := false
	for ev := range events {
		got = append(got, ev)
		if ev.Type == EventOverview && !closed {
			close(frames)
			closed = true
		}
	}

	if countType(got, EventSummary) != 1 || countType(got, EventOverview) != 1 {
		t.Fatalf("expected one summary and overview, got %v", types(got))
	}
	if got[len(got)-1].Type != EventComplete || got[len(got)-1].Text != long {
		t.Fatalf("expected complete with transcript, got %+v", got[len(got)-1])
	}
	if sum.callCount() != 1 || sum.calls[0] != long {
		t.Fatalf("expected the delta to be summarized once, got %v", sum.calls)
	}
	if len(saved.saved) != 1 || saved.saved[0].projectID != "p1" {
		t.Fatalf("expected summary persisted for project, got %+v", saved.saved)
	}
	if ov, _ := state.Overview(context.Background(), "p1"); ov != "摘要1" {
		t.Fatalf("overview not stored, got %q", ov)
	}
	if session.bytesSent() != 8 {
		t.Fatalf("expected 4 int16 samples relayed, got %d bytes", session.bytesSent())
	}
}

func TestLiveSessionSkipsShortDelta(t *testing.T) {
	session := newFakeSession()
	session.onFirstSend = func(s *fakeSession) {
		s.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: strings.Repeat("短", 50)})
	}
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{}
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, liveConfig())

	frames := make(chan []byte, 1)
	frames <- testsupport.Float32Frame(0.1)
	events := live.Run(context.Background(), frames)
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(frames)
	}()
	got := collect(events)

	if sum.callCount() != 0 || countType(got, EventSummary) != 0 {
		t.Fatalf("exactly 50 new characters must not trigger a summary, got %v", types(got))
	}
}

func TestLiveSessionWindowClaimedElsewhere(t *testing.T) {
	state := summary.NewMemory()
	for w := int64(0); w < 1000; w++ {
		_, _ = state.Claim(context.Background(), "p1", w)
	}
	session := newFakeSession()
	session.onFirstSend = func(s *fakeSession) {
		s.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: strings.Repeat("重", 80)})
	}
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{}
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, liveConfig(),
		WithProject("p1", nil),
		WithSummaryState(state),
	)
	frames := make(chan []byte, 1)
	frames <- testsupport.Float32Frame(0.1)
	events := live.Run(context.Background(), frames)
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(frames)
	}()
	got := collect(events)
	if sum.callCount() != 0 || countType(got, EventSummary) != 0 {
		t.Fatalf("claimed windows must not be summarized again, got %v", types(got))
	}
}

type stepClock struct {
	mu   sync.Mutex
	base time.Time
	at   time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{base: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.at)
}

func (c *stepClock) Set(at time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = at
}

func scheduledLiveConfig() LiveConfig {
	cfg := testStreamConfig()
	cfg.IdleTimeout = time.Second
	return LiveConfig{
		Stream:      cfg,
		Interval:    2 * time.Minute,
		MinNewChars: 50,
		CheckEvery:  2 * time.Millisecond,
	}
}

// nextOf reads events until one of type want arrives.
func nextOf(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed before %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestLiveSessionFlushesAfterMidWindowSummary(t *testing.T) {
	clock := newStepClock()
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{}
	saved := &spySummaryStore{}
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, scheduledLiveConfig(),
		WithProject("p1", saved),
		WithSummaryState(summary.NewMemory()),
		WithLiveClock(clock.Now),
	)
	frames := make(chan []byte, 1)
	frames <- testsupport.Float32Frame(0.2)
	events := live.Run(context.Background(), frames)

	first := strings.Repeat("一", 60)
	session.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: first})
	nextOf(t, events, EventFinal)
	clock.Set(125 * time.Second)
	if ev := nextOf(t, events, EventSummary); ev.Timestamp != 120 {
		t.Fatalf("first summary timestamp = %d, want 120", ev.Timestamp)
	}
	nextOf(t, events, EventOverview)

	second := strings.Repeat("二", 70)
	session.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: second})
	nextOf(t, events, EventFinal)
	clock.Set(200 * time.Second)
	close(frames)

	rest := collect(events)
	if countType(rest, EventSummary) != 1 {
		t.Fatalf("expected the leftover text to be summarized at stop, got %v", types(rest))
	}
	if rest[len(rest)-1].Type != EventComplete {
		t.Fatalf("expected complete last, got %v", types(rest))
	}
	if sum.callCount() != 2 || sum.calls[1] != second {
		t.Fatalf("expected the 70 new characters summarized, got %v", sum.calls)
	}
	if len(saved.saved) != 2 || saved.saved[0].timestamp != 120 || saved.saved[1].timestamp != 200 {
		t.Fatalf("expected summaries saved at 120s and 200s, got %+v", saved.saved)
	}
}

func TestLiveSessionSummarizesOnlyAtTicks(t *testing.T) {
	clock := newStepClock()
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{}
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, scheduledLiveConfig(),
		WithLiveClock(clock.Now),
	)
	frames := make(chan []byte, 1)
	frames <- testsupport.Float32Frame(0.2)
	events := live.Run(context.Background(), frames)

	session.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: strings.Repeat("早", 30)})
	nextOf(t, events, EventFinal)
	clock.Set(125 * time.Second)
	time.Sleep(50 * time.Millisecond)

	session.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: strings.Repeat("晚", 30)})
	nextOf(t, events, EventFinal)
	clock.Set(130 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if sum.callCount() != 0 {
		t.Fatalf("text that arrives after a spent tick must wait for the next tick, got %d calls", sum.callCount())
	}

	clock.Set(239 * time.Second)
	time.Sleep(50 * time.Millisecond)
	if sum.callCount() != 0 {
		t.Fatalf("no summary expected before 240s, got %d calls", sum.callCount())
	}

	clock.Set(241 * time.Second)
	ev := nextOf(t, events, EventSummary)
	if ev.Timestamp != 240 {
		t.Fatalf("summary timestamp = %d, want 240", ev.Timestamp)
	}
	close(frames)
	rest := collect(events)
	if countType(rest, EventSummary) != 0 || sum.callCount() != 1 {
		t.Fatalf("expected a single summary, got %v after the tick", types(rest))
	}
}

func TestLiveSessionRetriesFailedSummaryNextTick(t *testing.T) {
	clock := newStepClock()
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	sum := &fakeSummarizer{err: errBoom}
	live := NewLiveSession(&fakeRecognizer{session: session}, sum, scheduledLiveConfig(),
		WithLiveClock(clock.Now),
	)
	frames := make(chan []byte, 1)
	frames <- testsupport.Float32Frame(0.2)
	events := live.Run(context.Background(), frames)

	text := strings.Repeat("败", 60)
	session.emit(transcript.StreamEvent{Type: transcript.EventFinal, Text: text})
	nextOf(t, events, EventFinal)
	clock.Set(121 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for sum.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	sum.mu.Lock()
	sum.err = nil
	sum.mu.Unlock()
	clock.Set(241 * time.Second)
	ev := nextOf(t, events, EventSummary)
	if ev.Timestamp != 240 {
		t.Fatalf("retry timestamp = %d, want 240", ev.Timestamp)
	}
	if sum.callCount() != 2 || sum.calls[1] != text {
		t.Fatalf("expected the failed text summarized again, got %v", sum.calls)
	}
	close(frames)
	collect(events)
}
