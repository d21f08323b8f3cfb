package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"prdforge/internal/logging"
	"prdforge/internal/pipeline"
	"prdforge/internal/services"
)

const liveWriteTimeout = 10 * time.Second

// handleLive upgrades to a WebSocket. Binary messages are Float32 PCM frames
// from the browser; a text "stop" message or a client close ends the audio.
// Pipeline events are written back as JSON text messages.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectID != "" {
		if _, err := s.components.Store.GetProject(r.Context(), projectID); err != nil {
			s.writeFailure(w, r, "project unavailable", err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("live upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(services.WithProjectID(r.Context(), projectID))
	defer cancel()
	logger := logging.WithContext(ctx, s.logger)

	opts := []pipeline.LiveOption{
		pipeline.WithSummaryState(s.components.State),
		pipeline.WithLiveLogger(s.logger),
	}
	if projectID != "" {
		opts = append(opts, pipeline.WithProject(projectID, s.components.Store))
	}
	session := pipeline.NewLiveSession(s.components.Recognizer, s.components.Generator, pipeline.LiveConfig{
		Stream:      StreamConfig(s.cfg),
		Interval:    s.cfg.SummaryInterval(),
		MinNewChars: s.cfg.Summary.MinNewChars,
	}, opts...)

	frames := make(chan []byte, 32)
	go readFrames(ctx, conn, frames)
	events := session.Run(ctx, frames)

	logger.Info("live session started")
	began := time.Now()
	sent := 0
	for ev := range events {
		if ctx.Err() != nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("live client gone", logging.Error(err))
			cancel()
			continue
		}
		sent++
	}
	logger.Info("live session ended",
		logging.Int("events", sent),
		logging.Duration("elapsed", time.Since(began)),
	)

	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readFrames forwards binary messages until "stop" or a read error, then
// closes frames. After "stop" it keeps reading so control frames are still
// processed.
func readFrames(ctx context.Context, conn *websocket.Conn, frames chan<- []byte) {
	open := true
	finish := func() {
		if open {
			close(frames)
			open = false
		}
	}
	defer finish()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !open {
			continue
		}
		switch kind {
		case websocket.BinaryMessage:
			if len(data) == 0 {
				continue
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			if strings.EqualFold(strings.TrimSpace(string(data)), "stop") {
				finish()
			}
		}
	}
}
