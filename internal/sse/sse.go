// Package sse writes pipeline events to an HTTP response as a
// text/event-stream, one `data: <json>` frame per event.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"prdforge/internal/logging"
)

// Writer frames JSON payloads onto a flushed response.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger
}

// New sets the stream headers and writes the status line. The response must
// not have been written to yet.
func New(w http.ResponseWriter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	sw := &Writer{w: w, flusher: flusher, logger: logger}
	sw.flush()
	return sw
}

// Send writes one frame. Encoding failures are returned; write failures mean
// the client went away.
func (s *Writer) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// Relay drains events onto the stream until the channel closes. A failed
// write stops relaying but keeps draining so the producer can finish its
// cleanup; the caller should cancel the producer's context on return.
func Relay[T any](ctx context.Context, s *Writer, events <-chan T) int {
	sent := 0
	broken := false
	for ev := range events {
		if broken || ctx.Err() != nil {
			continue
		}
		if err := s.Send(ev); err != nil {
			s.logger.Debug("sse client gone", logging.Error(err))
			broken = true
			continue
		}
		sent++
	}
	return sent
}
