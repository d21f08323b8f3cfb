package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"prdforge/internal/logging"
	"prdforge/internal/media/pcm"
	"prdforge/internal/summary"
	"prdforge/internal/transcript"
)

// LiveConfig tunes a live session.
type LiveConfig struct {
	Stream      StreamConfig
	Interval    time.Duration
	MinNewChars int
	// CheckEvery is how often the rolling trigger is evaluated.
	CheckEvery time.Duration
}

// LiveSession relays browser microphone frames to a recognizer and produces
// a rolling summary of the new text every interval.
type LiveSession struct {
	recognizer StreamRecognizer
	summarizer Summarizer
	summaries  SummaryStore
	guard      summary.Guard
	overviews  summary.OverviewStore
	cfg        LiveConfig
	projectID  string
	scope      string
	logger     *slog.Logger
	now        func() time.Time
}

// LiveOption customizes a LiveSession.
type LiveOption func(*LiveSession)

// WithProject ties the session to a stored project; summaries are persisted.
func WithProject(projectID string, summaries SummaryStore) LiveOption {
	return func(s *LiveSession) {
		s.projectID = strings.TrimSpace(projectID)
		s.summaries = summaries
	}
}

// WithSummaryState shares window claims and the overview with other sessions.
func WithSummaryState(state summary.State) LiveOption {
	return func(s *LiveSession) {
		if state != nil {
			s.guard = state
			s.overviews = state
		}
	}
}

// WithLiveLogger sets the session logger.
func WithLiveLogger(logger *slog.Logger) LiveOption {
	return func(s *LiveSession) {
		s.logger = logging.NewComponentLogger(logger, "live")
	}
}

// WithLiveClock overrides the clock used for windows and timestamps.
func WithLiveClock(now func() time.Time) LiveOption {
	return func(s *LiveSession) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLiveSession wires a live session. Without WithSummaryState the window
// guard and overview live in memory for this session only.
func NewLiveSession(recognizer StreamRecognizer, summarizer Summarizer, cfg LiveConfig, opts ...LiveOption) *LiveSession {
	cfg.Stream = cfg.Stream.withDefaults()
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.MinNewChars < 0 {
		cfg.MinNewChars = 0
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = time.Second
	}
	mem := summary.NewMemory()
	s := &LiveSession{
		recognizer: recognizer,
		summarizer: summarizer,
		guard:      mem,
		overviews:  mem,
		cfg:        cfg,
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scope = s.projectID
	if s.scope == "" {
		s.scope = "session:" + uuid.NewString()
	}
	return s
}

type liveSummary struct {
	fullText  string
	at        time.Time
	timestamp int64
	summary   string
	overview  string
	// skipped is set when another session already summarized the window.
	skipped bool
	err     error
}

// Run consumes Float32 frames until frames is closed or ctx ends, and
// returns the event channel. Closing frames ends the audio; the session then
// drains the recognizer and flushes a last summary for any remaining text.
func (s *LiveSession) Run(ctx context.Context, frames <-chan []byte) <-chan Event {
	out := make(chan Event, 32)
	go func() {
		defer close(out)
		s.run(ctx, frames, out)
	}()
	return out
}

func (s *LiveSession) run(ctx context.Context, frames <-chan []byte, out chan<- Event) {
	session, err := s.recognizer.Open(ctx, transcript.StreamOptions{
		SampleRate:   s.cfg.Stream.SampleRate,
		LanguageCode: s.cfg.Stream.LanguageCode,
		Intermediate: true,
	})
	if err != nil {
		send(ctx, out, errorEvent(err))
		return
	}
	defer session.Close()

	start := s.now()
	trigger := transcript.RollingTrigger{Interval: s.cfg.Interval, MinNewChars: s.cfg.MinNewChars}
	trigger.Start(start)
	var acc transcript.StreamAccumulator

	ticker := time.NewTicker(s.cfg.CheckEvery)
	defer ticker.Stop()
	results := make(chan liveSummary, 1)
	inFlight := false
	lastStamp := int64(-1)
	launch := func(delta, fullText string, window, timestamp int64, at time.Time) {
		inFlight = true
		go func() {
			results <- s.summarize(ctx, delta, fullText, window, timestamp, at)
		}()
	}

	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()
	events := session.Events()
	input := frames
	finished := false

	for {
		if finished && !inFlight {
			s.flush(ctx, &trigger, acc.Final(), start, lastStamp, out)
			return
		}
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-input:
			if !ok {
				input = nil
				if err := session.CloseSend(); err != nil {
					send(ctx, out, errorEvent(err))
					return
				}
				idle = time.NewTimer(s.cfg.Stream.IdleTimeout)
				idleC = idle.C
				continue
			}
			data, err := pcm.FromFloat32Frame(frame)
			if err != nil {
				s.logger.Debug("dropping malformed frame", logging.Int("bytes", len(frame)))
				continue
			}
			if err := session.Send(data); err != nil {
				send(ctx, out, errorEvent(err))
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				finished = true
				continue
			}
			acc.Apply(ev)
			if ev.Type == transcript.EventError {
				send(ctx, out, errorEvent(eventError(ev)))
				return
			}
			if converted, ok := recognizerEvent(ev, s.now().Sub(start)); ok {
				if !send(ctx, out, converted) {
					return
				}
			}
			if ev.Type == transcript.EventCompleted {
				events = nil
				finished = true
			}
			if idle != nil {
				idle.Reset(s.cfg.Stream.IdleTimeout)
			}
		case <-idleC:
			idleC = nil
			finished = true
			send(ctx, out, Event{Type: EventTimeout, Error: "识别超时"})
		case <-ticker.C:
			if finished {
				continue
			}
			full := acc.Final()
			delta, due := trigger.Due(s.now(), full)
			if !due {
				continue
			}
			if inFlight {
				s.logger.Debug("previous summary still running, tick skipped", logging.Int64("tick", trigger.Tick()))
				continue
			}
			at := trigger.TickTime()
			offset := at.Sub(start)
			launch(delta, full, summary.WindowFor(offset, s.cfg.Interval), int64(offset/time.Second), at)
		case res := <-results:
			inFlight = false
			if res.summary != "" {
				lastStamp = res.timestamp
			}
			if !s.deliver(ctx, &trigger, res, out) {
				return
			}
		}
	}
}

// flush summarizes text left over when the recording stops, if there is
// enough of it. The leftover gets the window after the last tick, so a
// summary already made earlier in the current window does not block it, and
// it is stamped with the stop offset.
func (s *LiveSession) flush(ctx context.Context, trigger *transcript.RollingTrigger, full string, start time.Time, lastStamp int64, out chan<- Event) {
	if ctx.Err() != nil {
		return
	}
	delta := trigger.Pending(full)
	if transcript.Exceeds(strings.TrimSpace(delta), s.cfg.MinNewChars) {
		stopped := s.now()
		timestamp := max(int64(stopped.Sub(start)/time.Second), lastStamp+1)
		res := s.summarize(ctx, delta, full, trigger.Tick()+1, timestamp, stopped)
		s.deliver(ctx, trigger, res, out)
	}
	send(ctx, out, Event{Type: EventComplete, Text: full})
}

func (s *LiveSession) deliver(ctx context.Context, trigger *transcript.RollingTrigger, res liveSummary, out chan<- Event) bool {
	if res.err != nil {
		logging.WarnWithContext(s.logger, "rolling summary failed", "live_summary_failed",
			logging.Error(res.err),
			logging.String(logging.FieldImpact, "text stays pending for the next tick"),
		)
		return true
	}
	if res.skipped {
		trigger.Commit(res.at, res.fullText)
		return true
	}
	if res.summary == "" {
		return true
	}
	trigger.Commit(res.at, res.fullText)
	if !send(ctx, out, Event{Type: EventSummary, Timestamp: res.timestamp, Summary: res.summary}) {
		return false
	}
	if res.overview != "" {
		return send(ctx, out, Event{Type: EventOverview, Summary: res.overview})
	}
	return true
}

// summarize claims window, then produces the mini summary, persists it at
// timestamp, and merges it into the overview. A window already claimed by
// another session yields a skipped result.
func (s *LiveSession) summarize(ctx context.Context, delta, fullText string, window, timestamp int64, at time.Time) liveSummary {
	res := liveSummary{fullText: fullText, at: at, timestamp: timestamp}

	claimed, err := s.guard.Claim(ctx, s.scope, window)
	if err != nil {
		logging.WarnWithContext(s.logger, "summary window claim failed", "summary_claim_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "window summarized without a cross-session guard"),
		)
		claimed = true
	}
	if !claimed {
		s.logger.Debug("summary window already claimed", logging.Int64("window", window))
		res.skipped = true
		return res
	}

	text, err := s.summarizer.MiniSummary(ctx, delta)
	if err != nil {
		res.err = err
		return res
	}
	res.summary = text

	if s.projectID != "" && s.summaries != nil {
		if _, err := s.summaries.CreateMiniSummary(ctx, s.projectID, int(res.timestamp), text); err != nil {
			logging.WarnWithContext(s.logger, "rolling summary not saved", "live_summary_save_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "summary shown but not persisted"),
			)
		}
	}

	previous, err := s.overviews.Overview(ctx, s.scope)
	if err != nil {
		s.logger.Debug("overview read failed", logging.Error(err))
	}
	overview, err := s.summarizer.Overview(ctx, previous, text)
	if err != nil {
		logging.WarnWithContext(s.logger, "overview merge failed", "overview_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "overview not updated"),
		)
		return res
	}
	res.overview = overview
	if err := s.overviews.SetOverview(ctx, s.scope, overview); err != nil {
		s.logger.Debug("overview write failed", logging.Error(err))
	}
	return res
}
