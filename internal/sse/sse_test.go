package sse_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"prdforge/internal/sse"
)

func TestWriterHeadersAndFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.New(rec, nil)
	if err := w.Send(map[string]string{"type": "status", "message": "正在切分音频..."}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("cache control = %q", got)
	}
	if got := rec.Header().Get("Connection"); got != "keep-alive" {
		t.Fatalf("connection = %q", got)
	}
	want := `data: {"message":"正在切分音频...","type":"status"}` + "\n\n"
	if rec.Body.String() != want {
		t.Fatalf("body = %q, want %q", rec.Body.String(), want)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}

func TestWriterRejectsUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.New(rec, nil)
	if err := w.Send(func() {}); err == nil {
		t.Fatal("expected encode error")
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", rec.Body.String())
	}
}

func TestRelayDrainsChannel(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.New(rec, nil)
	events := make(chan map[string]int, 3)
	for i := 1; i <= 3; i++ {
		events <- map[string]int{"index": i}
	}
	close(events)

	if n := sse.Relay(context.Background(), w, events); n != 3 {
		t.Fatalf("sent = %d, want 3", n)
	}
	if got := strings.Count(rec.Body.String(), "data: "); got != 3 {
		t.Fatalf("frames = %d, want 3", got)
	}
}

func TestRelayStopsWritingAfterCancel(t *testing.T) {
	rec := httptest.NewRecorder()
	w := sse.New(rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := make(chan int, 2)
	events <- 1
	events <- 2
	close(events)

	if n := sse.Relay(ctx, w, events); n != 0 {
		t.Fatalf("sent = %d, want 0", n)
	}
}
