package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"prdforge/internal/logging"
	"prdforge/internal/media/pcm"
	"prdforge/internal/services"
	"prdforge/internal/transcript"
)

// StreamOption customizes the Realtime and Stream flows.
type StreamOption func(*streamFlow)

type streamFlow struct {
	recognizer StreamRecognizer
	cfg        StreamConfig
	logger     *slog.Logger
	now        func() time.Time
}

// WithStreamLogger sets the flow logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(f *streamFlow) {
		f.logger = logger
	}
}

func newStreamFlow(component string, recognizer StreamRecognizer, cfg StreamConfig, opts []StreamOption) streamFlow {
	f := streamFlow{recognizer: recognizer, cfg: cfg, logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&f)
	}
	f.logger = logging.NewComponentLogger(f.logger, component)
	return f
}

// prepare strips a WAV header when present and adopts its sample rate.
func (f streamFlow) prepare(audio []byte) ([]byte, StreamConfig, error) {
	cfg := f.cfg
	data, rate, err := pcm.Normalize(audio)
	if err != nil {
		return nil, cfg, services.Wrap(services.ErrValidation, "stream", "decode audio", "unreadable WAV data", err)
	}
	if rate > 0 {
		cfg.SampleRate = rate
	}
	return data, cfg, nil
}

// Realtime transcribes one short recorded blob and reports the text as soon
// as the recognizer settles. Blobs shorter than the minimum are skipped.
type Realtime struct {
	streamFlow
}

// NewRealtime wires the blob flow.
func NewRealtime(recognizer StreamRecognizer, cfg StreamConfig, opts ...StreamOption) *Realtime {
	return &Realtime{streamFlow: newStreamFlow("realtime", recognizer, cfg, opts)}
}

// Run starts the flow and returns its event channel.
func (r *Realtime) Run(ctx context.Context, audio []byte) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		r.run(ctx, audio, out)
	}()
	return out
}

func (r *Realtime) run(ctx context.Context, audio []byte, out chan<- Event) {
	if len(audio) < r.cfg.MinAudioBytes {
		r.logger.Debug("audio too short, skipping", logging.Int("bytes", len(audio)))
		send(ctx, out, Event{Type: EventComplete, Text: "", Skipped: true})
		return
	}
	data, cfg, err := r.prepare(audio)
	if err != nil {
		send(ctx, out, errorEvent(err))
		return
	}

	start := r.now()
	result, err := StreamAudio(ctx, r.recognizer, data, cfg, func(ev transcript.StreamEvent) bool {
		switch ev.Type {
		case transcript.EventIntermediate, transcript.EventFinal:
			converted, ok := recognizerEvent(ev, r.now().Sub(start))
			if !ok {
				return true
			}
			return send(ctx, out, converted)
		}
		return true
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrStreamTimeout):
		r.logger.Info("realtime recognition timed out", logging.Int("chars", len([]rune(result.Partial()))))
		if !send(ctx, out, Event{Type: EventTimeout, Error: "识别超时"}) {
			return
		}
	case ctx.Err() != nil:
		return
	default:
		logging.WarnWithContext(r.logger, "realtime recognition failed", "realtime_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "blob not transcribed"),
		)
		send(ctx, out, errorEvent(err))
		return
	}
	send(ctx, out, Event{Type: EventComplete, Text: result.Partial(), Segments: result.Segments})
}

// Stream transcribes an uploaded file over the duplex recognizer and relays
// every sentence boundary, hypothesis, and final as it arrives.
type Stream struct {
	streamFlow
}

// NewStream wires the file streaming flow.
func NewStream(recognizer StreamRecognizer, cfg StreamConfig, opts ...StreamOption) *Stream {
	return &Stream{streamFlow: newStreamFlow("stream", recognizer, cfg, opts)}
}

// Run starts the flow and returns its event channel.
func (s *Stream) Run(ctx context.Context, audio []byte) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		s.run(ctx, audio, out)
	}()
	return out
}

func (s *Stream) run(ctx context.Context, audio []byte, out chan<- Event) {
	data, cfg, err := s.prepare(audio)
	if err != nil {
		send(ctx, out, errorEvent(err))
		return
	}
	if len(data) == 0 {
		send(ctx, out, errorEvent(services.Wrap(services.ErrValidation, "stream", "run", "empty audio", nil)))
		return
	}

	start := s.now()
	var completed *Event
	result, err := StreamAudio(ctx, s.recognizer, data, cfg, func(ev transcript.StreamEvent) bool {
		converted, ok := recognizerEvent(ev, s.now().Sub(start))
		if !ok {
			return true
		}
		if converted.Type == EventCompleted {
			// held back until the result is known to contain text
			if converted.Message == "" {
				converted.Message = "识别完成"
			}
			completed = &converted
			return true
		}
		return send(ctx, out, converted)
	})
	if ctx.Err() != nil && !errors.Is(err, services.ErrStreamTimeout) {
		return
	}
	if err == nil && !result.HasFinal {
		err = services.Wrap(services.ErrStreamTimeout, "stream", "run", "识别超时或未返回结果", nil)
	}
	if err != nil {
		logging.WarnWithContext(s.logger, "stream recognition failed", "stream_failed",
			logging.Error(err),
			logging.Int("chars", len([]rune(result.Text))),
			logging.String(logging.FieldImpact, "transcript incomplete"),
		)
		send(ctx, out, errorEvent(err))
		return
	}
	if completed == nil {
		completed = &Event{Type: EventCompleted, Message: "识别完成"}
	}
	s.logger.Info("stream recognition complete", logging.Int("chars", len([]rune(result.Text))))
	send(ctx, out, *completed)
}
