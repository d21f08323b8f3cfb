// Package googlestt adapts Cloud Speech-to-Text streaming recognition to the
// transcript.StreamSession contract.
package googlestt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"prdforge/internal/logging"
	"prdforge/internal/services"
	"prdforge/internal/transcript"
)

const eventBuffer = 64

// Stream is the bidirectional StreamingRecognize call.
type Stream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// StreamDialer opens a raw StreamingRecognize stream. The returned closer
// releases the underlying client.
type StreamDialer func(ctx context.Context) (Stream, func() error, error)

// Recognizer opens streaming recognition sessions.
type Recognizer struct {
	dial         StreamDialer
	languageCode string
	logger       *slog.Logger
}

// Option customizes the recognizer.
type Option func(*Recognizer)

// WithStreamDialer replaces the gRPC dial (primarily for tests).
func WithStreamDialer(dial StreamDialer) Option {
	return func(r *Recognizer) {
		if dial != nil {
			r.dial = dial
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

// New constructs a recognizer. Credentials come from Application Default
// Credentials when the first session opens.
func New(languageCode string, opts ...Option) *Recognizer {
	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" {
		languageCode = "zh-CN"
	}
	r := &Recognizer{dial: dialSpeech, languageCode: languageCode, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "googlestt")
	return r
}

func dialSpeech(ctx context.Context) (Stream, func() error, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, "googlestt", "dial", "create speech client", err)
	}
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, services.Wrap(services.ErrTransient, "googlestt", "dial", "open stream", err)
	}
	return stream, client.Close, nil
}

// Open starts a session. The first request carries the recognition config.
func (r *Recognizer) Open(ctx context.Context, opts transcript.StreamOptions) (transcript.StreamSession, error) {
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	language := strings.TrimSpace(opts.LanguageCode)
	if language == "" {
		language = r.languageCode
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, closer, err := r.dial(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	cfg := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(sampleRate),
					LanguageCode:               language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: opts.Intermediate,
			},
		},
	}
	if err := stream.Send(cfg); err != nil {
		cancel()
		if closer != nil {
			_ = closer()
		}
		return nil, services.Wrap(services.ErrStreamSend, "googlestt", "open", "send config", err)
	}

	s := &session{
		stream: stream,
		closer: closer,
		cancel: cancel,
		events: make(chan transcript.StreamEvent, eventBuffer),
		done:   make(chan struct{}),
		logger: r.logger,
	}
	s.events <- transcript.StreamEvent{Type: transcript.EventStarted, Received: time.Now()}
	go s.recvLoop()
	r.logger.Info("speech session started", logging.String("language", language), logging.Int("sample_rate", sampleRate))
	return s, nil
}

type session struct {
	stream Stream
	closer func() error
	cancel context.CancelFunc
	events chan transcript.StreamEvent
	logger *slog.Logger

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *session) emit(ev transcript.StreamEvent) bool {
	ev.Received = time.Now()
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *session) recvLoop() {
	defer close(s.events)
	defer s.Close()

	var (
		index       int
		lastEnd     int64
		inUtterance bool
	)
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.emit(transcript.StreamEvent{Type: transcript.EventCompleted})
			return
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				s.emit(transcript.StreamEvent{
					Type:    transcript.EventError,
					Message: err.Error(),
					Err:     services.Wrap(services.ErrUpstream, "googlestt", "receive", "", err),
				})
			}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			s.emit(transcript.StreamEvent{
				Type:    transcript.EventError,
				Message: st.GetMessage(),
				Err:     &services.UpstreamError{Provider: "google-speech", Code: codeName(st.GetCode()), Message: st.GetMessage()},
			})
			return
		}

		var interim strings.Builder
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			text := alts[0].GetTranscript()
			if !inUtterance {
				index++
				inUtterance = true
				if !s.emit(transcript.StreamEvent{Type: transcript.EventSentenceBegin, Index: index, BeginTime: lastEnd}) {
					return
				}
			}
			if result.GetIsFinal() {
				end := lastEnd
				if d := result.GetResultEndTime(); d != nil {
					end = d.AsDuration().Milliseconds()
				}
				if !s.emit(transcript.StreamEvent{Type: transcript.EventFinal, Index: index, Text: text, BeginTime: lastEnd, EndTime: end}) {
					return
				}
				lastEnd = end
				inUtterance = false
				continue
			}
			interim.WriteString(text)
		}
		if interim.Len() > 0 {
			if !s.emit(transcript.StreamEvent{Type: transcript.EventIntermediate, Index: index, Text: interim.String(), BeginTime: lastEnd}) {
				return
			}
		}
	}
}

func codeName(code int32) string {
	switch code {
	case 3:
		return "INVALID_ARGUMENT"
	case 7:
		return "PERMISSION_DENIED"
	case 8:
		return "RESOURCE_EXHAUSTED"
	case 11:
		return "OUT_OF_RANGE"
	case 16:
		return "UNAUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

func (s *session) Send(pcm []byte) error {
	select {
	case <-s.done:
		return services.Wrap(services.ErrStreamSend, "googlestt", "send", "session closed", nil)
	default:
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: pcm},
	})
	if err != nil {
		return services.Wrap(services.ErrStreamSend, "googlestt", "send", "write audio", err)
	}
	return nil
}

func (s *session) Events() <-chan transcript.StreamEvent {
	return s.events
}

func (s *session) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.CloseSend()
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}
