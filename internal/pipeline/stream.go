package pipeline

import (
	"context"
	"errors"
	"time"

	"prdforge/internal/media/pcm"
	"prdforge/internal/services"
	"prdforge/internal/transcript"
)

// StreamConfig tunes the duplex driver. Zero values take defaults.
type StreamConfig struct {
	SampleRate    int
	LanguageCode  string
	FrameBytes    int
	FrameInterval time.Duration
	// IdleTimeout bounds the wait for the next event once all audio is sent.
	IdleTimeout time.Duration
	// SessionTimeout caps the whole session; zero means no cap.
	SessionTimeout time.Duration
	MinAudioBytes  int
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameBytes <= 0 {
		c.FrameBytes = 6400
	}
	if c.FrameInterval < 0 {
		c.FrameInterval = 0
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 8 * time.Second
	}
	return c
}

// StreamResult is what a session produced before it ended.
type StreamResult struct {
	Text     string
	Pending  string
	Segments []transcript.Segment
	HasFinal bool
}

// Partial returns the committed text, or the last hypothesis when nothing
// was committed.
func (r StreamResult) Partial() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Pending
}

// StreamAudio sends audio to a fresh recognizer session in paced frames and
// forwards every recognizer event to onEvent until the session completes.
// onEvent returning false stops the session. The result carries whatever was
// recognized even when an error is returned.
func StreamAudio(ctx context.Context, recognizer StreamRecognizer, audio []byte, cfg StreamConfig, onEvent func(transcript.StreamEvent) bool) (StreamResult, error) {
	cfg = cfg.withDefaults()
	parent := ctx
	if cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.SessionTimeout)
		defer cancel()
	}

	session, err := recognizer.Open(ctx, transcript.StreamOptions{
		SampleRate:   cfg.SampleRate,
		LanguageCode: cfg.LanguageCode,
		Intermediate: true,
	})
	if err != nil {
		return StreamResult{}, err
	}
	defer session.Close()

	sendCtx, stopSending := context.WithCancel(ctx)
	defer stopSending()
	sent := make(chan error, 1)
	go func() {
		sent <- sendFrames(sendCtx, session, audio, cfg)
	}()

	var acc transcript.StreamAccumulator
	snapshot := func() StreamResult {
		return StreamResult{
			Text:     acc.Final(),
			Pending:  acc.Pending(),
			Segments: acc.Segments(),
			HasFinal: acc.HasFinal(),
		}
	}

	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()
	events := session.Events()
	for {
		select {
		case err := <-sent:
			sent = nil
			if err != nil {
				return snapshot(), err
			}
			idle = time.NewTimer(cfg.IdleTimeout)
			idleC = idle.C
		case ev, ok := <-events:
			if !ok {
				return snapshot(), nil
			}
			acc.Apply(ev)
			if onEvent != nil && !onEvent(ev) {
				return snapshot(), context.Canceled
			}
			switch ev.Type {
			case transcript.EventCompleted:
				return snapshot(), nil
			case transcript.EventError:
				return snapshot(), eventError(ev)
			}
			if idle != nil {
				idle.Reset(cfg.IdleTimeout)
			}
		case <-idleC:
			return snapshot(), services.Wrap(services.ErrStreamTimeout, "stream", "wait", "no result before the idle timeout", nil)
		case <-ctx.Done():
			if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return snapshot(), services.Wrap(services.ErrStreamTimeout, "stream", "session", "session time limit reached", nil)
			}
			return snapshot(), ctx.Err()
		}
	}
}

// sendFrames stops quietly when ctx ends; the caller owns that outcome.
func sendFrames(ctx context.Context, session transcript.StreamSession, audio []byte, cfg StreamConfig) error {
	frames := pcm.Frames(audio, cfg.FrameBytes)
	for i, frame := range frames {
		if ctx.Err() != nil {
			return nil
		}
		if err := session.Send(frame); err != nil {
			return err
		}
		if cfg.FrameInterval > 0 && i < len(frames)-1 {
			timer := time.NewTimer(cfg.FrameInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
	return session.CloseSend()
}

func eventError(ev transcript.StreamEvent) error {
	if ev.Err != nil {
		return ev.Err
	}
	msg := ev.Message
	if msg == "" {
		msg = "recognizer reported an error"
	}
	return services.Wrap(services.ErrUpstream, "stream", "recognize", msg, nil)
}

// recognizerEvent converts a recognizer event to a pipeline event. Timestamp
// is milliseconds since start.
func recognizerEvent(ev transcript.StreamEvent, since time.Duration) (Event, bool) {
	out := Event{
		Text:      ev.Text,
		BeginTime: ev.BeginTime,
		EndTimeMs: ev.EndTime,
		SpeakerID: ev.SpeakerID,
		Timestamp: since.Milliseconds(),
		Message:   ev.Message,
	}
	switch ev.Type {
	case transcript.EventStarted:
		out.Type = EventStarted
	case transcript.EventSentenceBegin:
		out.Type = EventSentenceBegin
	case transcript.EventIntermediate:
		if ev.Text == "" {
			return Event{}, false
		}
		out.Type = EventIntermediate
	case transcript.EventFinal:
		if ev.Text == "" {
			return Event{}, false
		}
		out.Type = EventFinal
	case transcript.EventCompleted:
		out.Type = EventCompleted
	default:
		return Event{}, false
	}
	return out, true
}
