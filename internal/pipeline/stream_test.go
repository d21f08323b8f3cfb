package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"prdforge/internal/services"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/transcript"
)

func testStreamConfig() StreamConfig {
	return StreamConfig{
		SampleRate:    16000,
		FrameBytes:    1000,
		FrameInterval: 0,
		IdleTimeout:   200 * time.Millisecond,
		MinAudioBytes: 2000,
	}
}

func TestRealtimeSkipsShortAudio(t *testing.T) {
	rec := &fakeRecognizer{session: newFakeSession()}
	events := collect(NewRealtime(rec, testStreamConfig()).Run(context.Background(), make([]byte, 1999)))
	if len(events) != 1 || events[0].Type != EventComplete || !events[0].Skipped || events[0].Text != "" {
		t.Fatalf("expected skipped complete, got %+v", events)
	}
	if rec.session.bytesSent() != 0 {
		t.Fatal("short audio must not reach the recognizer")
	}
}

func TestRealtimeRelaysHypothesesAndFinal(t *testing.T) {
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(
			transcript.StreamEvent{Type: transcript.EventIntermediate, Text: "你好"},
			transcript.StreamEvent{Type: transcript.EventIntermediate, Text: "你好世"},
			transcript.StreamEvent{Type: transcript.EventFinal, Text: "你好世界。"},
			transcript.StreamEvent{Type: transcript.EventCompleted},
		)
	}
	rec := &fakeRecognizer{session: session}

	events := collect(NewRealtime(rec, testStreamConfig()).Run(context.Background(), make([]byte, 4500)))

	want := []EventType{EventIntermediate, EventIntermediate, EventFinal, EventComplete}
	if !reflect.DeepEqual(types(events), want) {
		t.Fatalf("events = %v, want %v", types(events), want)
	}
	if events[3].Text != "你好世界。" {
		t.Fatalf("final text should be appended once, got %q", events[3].Text)
	}
	if session.bytesSent() != 4500 {
		t.Fatalf("expected all audio sent, got %d bytes", session.bytesSent())
	}
	if !rec.opts.Intermediate || rec.opts.SampleRate != 16000 {
		t.Fatalf("unexpected stream options %+v", rec.opts)
	}
}

func TestRealtimeIdleTimeoutKeepsPartial(t *testing.T) {
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.emit(transcript.StreamEvent{Type: transcript.EventIntermediate, Text: "部分"})
	}
	cfg := testStreamConfig()
	cfg.IdleTimeout = 30 * time.Millisecond

	events := collect(NewRealtime(&fakeRecognizer{session: session}, cfg).Run(context.Background(), make([]byte, 3000)))

	want := []EventType{EventIntermediate, EventTimeout, EventComplete}
	if !reflect.DeepEqual(types(events), want) {
		t.Fatalf("events = %v, want %v", types(events), want)
	}
	if events[2].Text != "部分" {
		t.Fatalf("expected partial hypothesis in complete, got %q", events[2].Text)
	}
}

func TestRealtimeSessionTimeout(t *testing.T) {
	session := newFakeSession()
	cfg := testStreamConfig()
	cfg.FrameBytes = 100
	cfg.FrameInterval = 50 * time.Millisecond
	cfg.SessionTimeout = 40 * time.Millisecond

	events := collect(NewRealtime(&fakeRecognizer{session: session}, cfg).Run(context.Background(), make([]byte, 3000)))

	if !reflect.DeepEqual(types(events), []EventType{EventTimeout, EventComplete}) {
		t.Fatalf("unexpected events %v", types(events))
	}
	if session.bytesSent() >= 3000 {
		t.Fatal("sending should stop at the session limit")
	}
}

func TestRealtimeOpenFailure(t *testing.T) {
	rec := &fakeRecognizer{session: newFakeSession(), err: services.Wrap(services.ErrConfiguration, "nls", "open", "app key required", nil)}
	events := collect(NewRealtime(rec, testStreamConfig()).Run(context.Background(), make([]byte, 3000)))
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected single error, got %v", types(events))
	}
}

func TestStreamRelaysEveryEvent(t *testing.T) {
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(
			transcript.StreamEvent{Type: transcript.EventSentenceBegin, BeginTime: 0, SpeakerID: 1},
			transcript.StreamEvent{Type: transcript.EventIntermediate, Text: "今天", SpeakerID: 1},
			transcript.StreamEvent{Type: transcript.EventFinal, Text: "今天开会。", BeginTime: 0, EndTime: 1800, SpeakerID: 1},
			transcript.StreamEvent{Type: transcript.EventCompleted},
		)
	}

	events := collect(NewStream(&fakeRecognizer{session: session}, testStreamConfig()).Run(context.Background(), make([]byte, 2500)))

	want := []EventType{EventStarted, EventSentenceBegin, EventIntermediate, EventFinal, EventCompleted}
	if !reflect.DeepEqual(types(events), want) {
		t.Fatalf("events = %v, want %v", types(events), want)
	}
	final := events[3]
	if final.EndTimeMs != 1800 || final.SpeakerID != 1 || final.Text != "今天开会。" {
		t.Fatalf("unexpected final %+v", final)
	}
}

func TestStreamWithoutFinalIsError(t *testing.T) {
	session := newFakeSession()
	session.onCloseSend = func(s *fakeSession) {
		s.finish(transcript.StreamEvent{Type: transcript.EventCompleted})
	}
	events := collect(NewStream(&fakeRecognizer{session: session}, testStreamConfig()).Run(context.Background(), make([]byte, 2500)))
	last := events[len(events)-1]
	if last.Type != EventError || countType(events, EventCompleted) != 0 {
		t.Fatalf("expected error instead of completed, got %v", types(events))
	}
}

func TestStreamSendFailure(t *testing.T) {
	session := newFakeSession()
	session.sendErr = services.Wrap(services.ErrStreamSend, "nls", "send", "connection closed", nil)
	var got error
	_, got = StreamAudio(context.Background(), &fakeRecognizer{session: session}, make([]byte, 2000), testStreamConfig(), nil)
	if !errors.Is(got, services.ErrStreamSend) {
		t.Fatalf("expected ErrStreamSend, got %v", got)
	}
}

func TestStreamAudioRecognizerError(t *testing.T) {
	session := newFakeSession()
	upstream := &services.UpstreamError{Provider: "aliyun-nls", Code: "40000001", Message: "bad token"}
	session.onCloseSend = func(s *fakeSession) {
		s.emit(
			transcript.StreamEvent{Type: transcript.EventFinal, Text: "前半句"},
			transcript.StreamEvent{Type: transcript.EventError, Err: upstream},
		)
	}
	result, err := StreamAudio(context.Background(), &fakeRecognizer{session: session}, make([]byte, 2000), testStreamConfig(), nil)
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if result.Text != "前半句" {
		t.Fatalf("partial results should be retained, got %q", result.Text)
	}
}

func TestWatchTaskStreamsProgress(t *testing.T) {
	tr := &fakeTranscriber{texts: []string{"结果"}}
	events := collect(WatchTask(context.Background(), tr, "task-0", filetrans.PollOptions{}))
	want := []EventType{EventProgress, EventProgress, EventComplete}
	if !reflect.DeepEqual(types(events), want) {
		t.Fatalf("events = %v, want %v", types(events), want)
	}
	if events[2].Task == nil || events[2].Task.Text != "结果" {
		t.Fatalf("unexpected result %+v", events[2])
	}
}

func TestWatchTaskFailure(t *testing.T) {
	tr := &fakeTranscriber{pollErr: services.Wrap(services.ErrPollTimeout, "filetrans", "poll", "too slow", nil)}
	events := collect(WatchTask(context.Background(), tr, "task-0", filetrans.PollOptions{}))
	if events[len(events)-1].Type != EventError {
		t.Fatalf("expected error, got %v", types(events))
	}
	if len(collect(WatchTask(context.Background(), tr, " ", filetrans.PollOptions{}))) != 1 {
		t.Fatal("blank task id should produce a single error")
	}
}
