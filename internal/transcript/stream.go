package transcript

import (
	"strings"
	"time"
)

// EventType names the recognizer events surfaced to callers.
type EventType string

const (
	EventStarted       EventType = "started"
	EventSentenceBegin EventType = "sentence_begin"
	EventIntermediate  EventType = "intermediate"
	EventFinal         EventType = "final"
	EventCompleted     EventType = "completed"
	EventError         EventType = "error"
)

// StreamEvent is one recognizer event. Intermediate text is a revisable
// hypothesis for the current sentence; final text is stable.
type StreamEvent struct {
	Type      EventType
	Text      string
	SpeakerID int
	BeginTime int64
	EndTime   int64
	Index     int
	Message   string
	Err       error
	Received  time.Time
}

// StreamAccumulator folds recognizer events into transcript text. An
// intermediate event replaces the pending hypothesis; a final event appends
// to the committed text exactly once and clears the hypothesis.
type StreamAccumulator struct {
	committed strings.Builder
	pending   string
	segments  []Segment
	finals    int
}

// Apply records ev and reports whether the visible text changed.
func (a *StreamAccumulator) Apply(ev StreamEvent) bool {
	switch ev.Type {
	case EventIntermediate:
		if a.pending == ev.Text {
			return false
		}
		a.pending = ev.Text
		return true
	case EventFinal:
		a.pending = ""
		if strings.TrimSpace(ev.Text) == "" {
			return false
		}
		a.committed.WriteString(ev.Text)
		a.finals++
		a.segments = append(a.segments, Segment{
			SpeakerID: ev.SpeakerID,
			Text:      ev.Text,
			BeginTime: ev.BeginTime,
			EndTime:   ev.EndTime,
		})
		return true
	case EventCompleted:
		changed := a.pending != ""
		a.pending = ""
		return changed
	}
	return false
}

// Final returns the committed text.
func (a *StreamAccumulator) Final() string {
	return a.committed.String()
}

// Pending returns the current unstable hypothesis.
func (a *StreamAccumulator) Pending() string {
	return a.pending
}

// Text returns committed text followed by the pending hypothesis.
func (a *StreamAccumulator) Text() string {
	return a.committed.String() + a.pending
}

// HasFinal reports whether any non-empty final has been applied.
func (a *StreamAccumulator) HasFinal() bool {
	return a.finals > 0
}

// Segments returns the committed spans merged by speaker.
func (a *StreamAccumulator) Segments() []Segment {
	return MergeSpeakers(a.segments)
}

// StreamOptions configures one recognition session.
type StreamOptions struct {
	SampleRate   int
	LanguageCode string
	// Intermediate requests revisable hypotheses in addition to finals.
	Intermediate bool
}

// StreamSession is an open duplex recognition session. Send writes 16-bit
// little-endian mono PCM. CloseSend signals end of audio; the session then
// drains remaining events and closes the Events channel. Close tears the
// session down immediately.
type StreamSession interface {
	Send(pcm []byte) error
	Events() <-chan StreamEvent
	CloseSend() error
	Close() error
}
