package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prdforge/internal/config"
	"prdforge/internal/logging"
	"prdforge/internal/services"
)

// Server is the HTTP API.
type Server struct {
	cfg        *config.Config
	components *Components
	logger     *slog.Logger
	handler    http.Handler
	upgrader   websocket.Upgrader
	now        func() time.Time

	lockPath string
	lock     *flock.Flock
	listener net.Listener
	server   *http.Server
}

// New builds the router. Nothing is bound until Start.
func New(cfg *config.Config, components *Components, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if components == nil || components.Store == nil || components.Generator == nil {
		return nil, fmt.Errorf("store and generator are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		components: components,
		logger:     logging.NewComponentLogger(logger, "api-server"),
		now:        time.Now,
		lockPath:   cfg.LockPath(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.lock = flock.New(s.lockPath)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/segmented-transcribe", s.handleSegmentedTranscribe)
	mux.HandleFunc("POST /api/aliyun/segmented-transcribe", s.handleSegmentedTranscribe)
	mux.HandleFunc("POST /api/realtime-transcribe", s.handleRealtimeTranscribe)
	mux.HandleFunc("POST /api/transcribe-stream", s.handleTranscribeStream)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /api/live", s.handleLive)

	mux.HandleFunc("POST /api/summarize", s.handleSummarize)
	mux.HandleFunc("POST /api/overview", s.handleOverview)
	mux.HandleFunc("POST /api/generate-prd", s.handleGeneratePRD)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/mini-summaries", s.handleListMiniSummaries)
	mux.HandleFunc("POST /api/mini-summaries", s.handleCreateMiniSummary)
	mux.HandleFunc("POST /api/mini-summaries/batch", s.handleCreateMiniSummaries)

	mux.HandleFunc("GET /api/aliyun/token", s.handleAliyunToken)
	mux.HandleFunc("POST /api/aliyun/upload", s.handleAliyunUpload)
	mux.HandleFunc("POST /api/aliyun/file-transcribe", s.handleSubmitFileTask)
	mux.HandleFunc("GET /api/aliyun/file-transcribe", s.handleFileTaskStatus)
	mux.HandleFunc("PUT /api/aliyun/file-transcribe", s.handleWatchFileTask)
	mux.HandleFunc("POST /api/upload", s.handleLocalUpload)
	mux.Handle("GET /uploads/audio/", http.StripPrefix("/uploads/audio/", http.FileServer(http.Dir(cfg.Paths.UploadDir))))

	s.handler = withRequestID(authMiddleware(strings.TrimSpace(cfg.Server.APIToken), mux))
	return s, nil
}

// Handler returns the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start takes the single-instance lock, binds the listener, and serves until
// ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another prdforge server is running (lock %s)", s.lockPath)
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	// Event streams outlive any fixed write deadline.
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", s.lockPath),
		logging.Bool("auth", strings.TrimSpace(s.cfg.Server.APIToken) != ""),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and releases the lock. Safe to call twice.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release server lock", logging.Error(err))
		}
	}
}

// withRequestID tags each request context with an id that flows into log
// lines and echoes it back to the client.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

type healthResponse struct {
	Status            string `json:"status"`
	Mock              bool   `json:"mock"`
	LLMProvider       string `json:"llmProvider"`
	StreamingProvider string `json:"streamingProvider"`
	Transcription     string `json:"transcriptionProvider"`
	Database          string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resolved := s.cfg.ResolveLLM()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		Mock:              s.components.Generator.Mock(),
		LLMProvider:       resolved.Provider,
		StreamingProvider: s.cfg.Streaming.Provider,
		Transcription:     s.cfg.Transcription.Provider,
		Database:          s.components.Store.Path(),
	})
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure classifies err into a status and remediation hint. summary is
// the short user-facing headline; the cause goes into details.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, summary string, err error) {
	c := services.Classify(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if c.Status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logger, summary, "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", c.Status),
			logging.Error(err),
		)
	} else {
		logger.Info(summary,
			logging.String("path", r.URL.Path),
			logging.Int("status", c.Status),
			logging.String("detail", c.Message),
		)
	}
	s.writeJSON(w, c.Status, errorResponse{Error: summary, Details: c.Message, Suggestion: c.Suggestion})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
