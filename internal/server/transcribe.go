package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"prdforge/internal/pipeline"
	"prdforge/internal/services"
	"prdforge/internal/sse"
)

var (
	acceptedAudioTypes = map[string]struct{}{
		"audio/mpeg":  {},
		"audio/wav":   {},
		"audio/mp4":   {},
		"audio/webm":  {},
		"audio/x-m4a": {},
	}
	acceptedAudioExtensions = map[string]struct{}{
		".mp3":  {},
		".wav":  {},
		".m4a":  {},
		".webm": {},
	}
)

// acceptedAudio reports whether the upload is a supported recording, by
// declared content type or by file extension.
func acceptedAudio(header *multipart.FileHeader) bool {
	if header == nil {
		return false
	}
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if _, ok := acceptedAudioTypes[contentType]; ok {
		return true
	}
	_, ok := acceptedAudioExtensions[strings.ToLower(filepath.Ext(header.Filename))]
	return ok
}

func (s *Server) maxUploadBytes() int64 {
	mb := s.cfg.Server.MaxUploadMB
	if mb <= 0 {
		mb = 512
	}
	return int64(mb) << 20
}

// formFile parses the multipart body and returns the "file" part. On failure
// the response is already written.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the configured size limit")
			return nil, nil, false
		}
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "no audio file provided")
		return nil, nil, false
	}
	return file, header, true
}

func (s *Server) audioFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	file, header, ok := s.formFile(w, r)
	if !ok {
		return nil, nil, false
	}
	if !acceptedAudio(header) {
		_ = file.Close()
		s.writeError(w, http.StatusBadRequest, "unsupported file format; upload MP3, WAV, M4A, or WebM audio")
		return nil, nil, false
	}
	return file, header, true
}

// streamEvents relays a pipeline's events as SSE and cancels the pipeline
// when the client goes away.
func (s *Server) streamEvents(ctx context.Context, cancel context.CancelFunc, w http.ResponseWriter, events <-chan pipeline.Event) {
	defer cancel()
	stream := sse.New(w, s.logger)
	sse.Relay(ctx, stream, events)
}

func (s *Server) handleSegmentedTranscribe(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.audioFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	var window float64
	if raw := strings.TrimSpace(r.FormValue("windowSeconds")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			s.writeError(w, http.StatusBadRequest, "windowSeconds must be a positive number")
			return
		}
		window = value
	}
	projectID := strings.TrimSpace(r.FormValue("projectId"))

	ctx, cancel := context.WithCancel(services.WithProjectID(r.Context(), projectID))
	events := s.components.Segmented(s.cfg, s.logger).Run(ctx, pipeline.Request{
		Reader:    file,
		FileName:  header.Filename,
		ProjectID: projectID,
		Window:    window,
	})
	s.streamEvents(ctx, cancel, w, events)
}

func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	file, _, ok := s.formFile(w, r)
	if !ok {
		return nil, false
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read audio")
		return nil, false
	}
	return audio, true
}

func (s *Server) handleRealtimeTranscribe(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.readAudio(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	flow := pipeline.NewRealtime(s.components.Recognizer, StreamConfig(s.cfg), pipeline.WithStreamLogger(s.logger))
	s.streamEvents(ctx, cancel, w, flow.Run(ctx, audio))
}

func (s *Server) handleTranscribeStream(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.readAudio(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	flow := pipeline.NewStream(s.components.Recognizer, StreamConfig(s.cfg), pipeline.WithStreamLogger(s.logger))
	s.streamEvents(ctx, cancel, w, flow.Run(ctx, audio))
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	if s.components.Transcriber == nil {
		s.writeFailure(w, r, "transcription failed", services.Wrap(services.ErrConfiguration, "transcribe", "", "no transcription provider configured", nil))
		return
	}
	text, err := s.components.Transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		s.writeFailure(w, r, "transcription failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
