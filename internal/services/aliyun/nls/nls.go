// Package nls streams PCM audio to Alibaba Cloud's real-time transcription
// gateway over WebSocket and surfaces recognizer events.
package nls

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prdforge/internal/logging"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun"
	"prdforge/internal/transcript"
)

const (
	namespace = "SpeechTranscriber"

	defaultHeartbeat    = 3 * time.Second
	defaultStartTimeout = 10 * time.Second
	writeTimeout        = 5 * time.Second
	eventBuffer         = 64
)

// TokenSource yields gateway access tokens.
type TokenSource interface {
	Token(ctx context.Context) (aliyun.Token, error)
}

// Recognizer opens transcription sessions against the NLS gateway.
type Recognizer struct {
	tokens       TokenSource
	appKey       string
	url          string
	heartbeat    time.Duration
	startTimeout time.Duration
	dialer       *websocket.Dialer
	logger       *slog.Logger
}

// Option customizes the recognizer.
type Option func(*Recognizer)

// WithURL overrides the gateway URL.
func WithURL(url string) Option {
	return func(r *Recognizer) {
		if strings.TrimSpace(url) != "" {
			r.url = url
		}
	}
}

// WithHeartbeat sets the WebSocket ping interval.
func WithHeartbeat(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.heartbeat = d
		}
	}
}

// WithStartTimeout bounds the wait for TranscriptionStarted.
func WithStartTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.startTimeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a recognizer for region.
func New(tokens TokenSource, appKey, region string, opts ...Option) *Recognizer {
	r := &Recognizer{
		tokens:       tokens,
		appKey:       strings.TrimSpace(appKey),
		url:          aliyun.GatewayURL(region),
		heartbeat:    defaultHeartbeat,
		startTimeout: defaultStartTimeout,
		dialer:       websocket.DefaultDialer,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "nls")
	return r
}

type header struct {
	MessageID     string `json:"message_id"`
	TaskID        string `json:"task_id"`
	Namespace     string `json:"namespace"`
	Name          string `json:"name"`
	AppKey        string `json:"appkey,omitempty"`
	Status        int    `json:"status,omitempty"`
	StatusText    string `json:"status_text,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

type startPayload struct {
	Format                         string `json:"format"`
	SampleRate                     int    `json:"sample_rate"`
	EnableIntermediateResult       bool   `json:"enable_intermediate_result"`
	EnablePunctuationPrediction    bool   `json:"enable_punctuation_prediction"`
	EnableInverseTextNormalization bool   `json:"enable_inverse_text_normalization"`
	EnableSemanticSentence         bool   `json:"enable_semantic_sentence_detection"`
	EnableVoiceDetection           bool   `json:"enable_voice_detection"`
	MaxStartSilence                int    `json:"max_start_silence"`
	MaxEndSilence                  int    `json:"max_end_silence"`
}

type outbound struct {
	Header  header `json:"header"`
	Payload any    `json:"payload,omitempty"`
}

type inboundPayload struct {
	Index     int    `json:"index"`
	Time      int64  `json:"time"`
	Result    string `json:"result"`
	BeginTime int64  `json:"begin_time"`
	EndTime   int64  `json:"end_time"`
	SpkID     *int   `json:"spk_id"`
	SpeakerID *int   `json:"speaker_id"`
}

type inbound struct {
	Header  header         `json:"header"`
	Payload inboundPayload `json:"payload"`
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Open fetches a token, dials the gateway, and starts a transcription task.
func (r *Recognizer) Open(ctx context.Context, opts transcript.StreamOptions) (transcript.StreamSession, error) {
	if r.appKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "nls", "open", "app key required (ALIYUN_ASR_APP_KEY)", nil)
	}
	if r.tokens == nil {
		return nil, services.Wrap(services.ErrConfiguration, "nls", "open", "token source required", nil)
	}
	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	hdr := http.Header{}
	hdr.Set("X-NLS-Token", token.ID)
	conn, resp, err := r.dialer.DialContext(ctx, r.url, hdr)
	if err != nil {
		if resp != nil {
			return nil, &services.UpstreamError{Provider: "aliyun-nls", StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, services.Wrap(services.ErrTransient, "nls", "dial", r.url, err)
	}

	s := &session{
		conn:   conn,
		appKey: r.appKey,
		taskID: newID(),
		events: make(chan transcript.StreamEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	s.logger = r.logger.With(logging.String("task_id", s.taskID))

	start := outbound{
		Header: s.header("StartTranscription"),
		Payload: startPayload{
			Format:                         "pcm",
			SampleRate:                     sampleRate,
			EnableIntermediateResult:       opts.Intermediate,
			EnablePunctuationPrediction:    true,
			EnableInverseTextNormalization: true,
			EnableSemanticSentence:         true,
			EnableVoiceDetection:           true,
			MaxStartSilence:                5000,
			MaxEndSilence:                  500,
		},
	}
	if err := s.writeJSON(start); err != nil {
		_ = conn.Close()
		return nil, err
	}

	started, err := s.awaitStarted(ctx, r.startTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.events <- started

	go s.readLoop()
	go s.pingLoop(r.heartbeat)
	s.logger.Info("transcription session started", logging.String("url", r.url))
	return s, nil
}

type session struct {
	conn   *websocket.Conn
	appKey string
	taskID string
	events chan transcript.StreamEvent
	logger *slog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) header(name string) header {
	return header{
		MessageID: newID(),
		TaskID:    s.taskID,
		Namespace: namespace,
		Name:      name,
		AppKey:    s.appKey,
	}
}

func (s *session) writeJSON(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Header.Name, err)
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) write(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteMessage(kind, data); err != nil {
		return services.Wrap(services.ErrStreamSend, "nls", "send", "write frame", err)
	}
	return nil
}

func (s *session) awaitStarted(ctx context.Context, timeout time.Duration) (transcript.StreamEvent, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return transcript.StreamEvent{}, ctx.Err()
			}
			return transcript.StreamEvent{}, services.Wrap(services.ErrStreamTimeout, "nls", "start", "no TranscriptionStarted from gateway", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, ok := decodeEvent(data)
		if !ok {
			continue
		}
		switch ev.Type {
		case transcript.EventStarted:
			return ev, nil
		case transcript.EventError:
			return transcript.StreamEvent{}, ev.Err
		}
	}
}

func decodeEvent(data []byte) (transcript.StreamEvent, bool) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return transcript.StreamEvent{}, false
	}
	p := msg.Payload
	ev := transcript.StreamEvent{
		Index:     p.Index,
		SpeakerID: speakerOf(p),
		Received:  time.Now(),
	}
	switch msg.Header.Name {
	case "TranscriptionStarted":
		ev.Type = transcript.EventStarted
		ev.Message = string(data)
	case "SentenceBegin":
		ev.Type = transcript.EventSentenceBegin
		ev.BeginTime = p.BeginTime
	case "TranscriptionResultChanged":
		ev.Type = transcript.EventIntermediate
		ev.Text = p.Result
		ev.BeginTime = p.BeginTime
		ev.EndTime = p.Time
	case "SentenceEnd":
		ev.Type = transcript.EventFinal
		ev.Text = p.Result
		ev.BeginTime = p.BeginTime
		ev.EndTime = p.Time
		if ev.EndTime == 0 {
			ev.EndTime = p.EndTime
		}
	case "TranscriptionCompleted":
		ev.Type = transcript.EventCompleted
	case "TaskFailed":
		ev.Type = transcript.EventError
		ev.Message = firstNonEmpty(msg.Header.StatusMessage, msg.Header.StatusText, "transcription task failed")
		ev.Err = &services.UpstreamError{
			Provider:   "aliyun-nls",
			StatusCode: msg.Header.Status,
			Code:       msg.Header.StatusText,
			Message:    ev.Message,
		}
	default:
		return transcript.StreamEvent{}, false
	}
	return ev, true
}

func speakerOf(p inboundPayload) int {
	switch {
	case p.SpkID != nil:
		return *p.SpkID
	case p.SpeakerID != nil:
		return *p.SpeakerID
	default:
		return 0
	}
}

func (s *session) emit(ev transcript.StreamEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) readLoop() {
	defer close(s.events)
	defer s.Close()
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed() {
				s.emit(transcript.StreamEvent{
					Type:     transcript.EventError,
					Message:  "connection closed before completion",
					Err:      services.Wrap(services.ErrTransient, "nls", "receive", "read frame", err),
					Received: time.Now(),
				})
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, ok := decodeEvent(data)
		if !ok {
			continue
		}
		if !s.emit(ev) {
			return
		}
		switch ev.Type {
		case transcript.EventCompleted:
			s.logger.Info("transcription session completed")
			return
		case transcript.EventError:
			s.logger.Warn("transcription task failed",
				logging.String(logging.FieldEventType, "nls_task_failed"),
				logging.String("reason", ev.Message),
			)
			return
		}
	}
}

func (s *session) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes one PCM frame.
func (s *session) Send(pcm []byte) error {
	if s.closed() {
		return services.Wrap(services.ErrStreamSend, "nls", "send", "session closed", nil)
	}
	return s.write(websocket.BinaryMessage, pcm)
}

// Events returns the event channel. It closes after completion, failure, or
// Close.
func (s *session) Events() <-chan transcript.StreamEvent {
	return s.events
}

// CloseSend asks the gateway to finish the task.
func (s *session) CloseSend() error {
	return s.writeJSON(outbound{Header: s.header("StopTranscription")})
}

// Close tears down the connection.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
