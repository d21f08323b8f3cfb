package pipeline

import (
	"context"
	"encoding/json"

	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/transcript"
)

// EventType is the "type" field of a streamed event.
type EventType string

const (
	EventStatus          EventType = "status"
	EventSegmentsInfo    EventType = "segments_info"
	EventSegmentStart    EventType = "segment_start"
	EventSegmentProgress EventType = "segment_progress"
	EventSegmentComplete EventType = "segment_complete"
	EventSegmentSummary  EventType = "segment_summary"
	EventSegmentError    EventType = "segment_error"
	EventComplete        EventType = "complete"
	EventError           EventType = "error"
	EventStarted         EventType = "started"
	EventSentenceBegin   EventType = "sentence_begin"
	EventIntermediate    EventType = "intermediate"
	EventFinal           EventType = "final"
	EventCompleted       EventType = "completed"
	EventTimeout         EventType = "timeout"
	EventProgress        EventType = "progress"
	EventSummary         EventType = "summary"
	EventOverview        EventType = "overview"
)

// SegmentResult is one successfully transcribed window.
type SegmentResult struct {
	Index     int                  `json:"index"`
	StartTime float64              `json:"startTime"`
	EndTime   float64              `json:"endTime"`
	Text      string               `json:"text"`
	Segments  []transcript.Segment `json:"segments"`
}

// Event is one step of a flow. Which fields are meaningful depends on Type;
// MarshalJSON writes only those.
type Event struct {
	Type    EventType
	Message string
	Error   string

	Index         int
	TotalSegments int
	StartTime     float64
	EndTime       float64
	Status        string

	Text           string
	Summary        string
	Skipped        bool
	Segments       []transcript.Segment
	SegmentResults []SegmentResult
	Task           *filetrans.Task

	// Recognizer times are milliseconds. Timestamp is the recording offset
	// in seconds for summaries and milliseconds since recognition started
	// for recognizer events.
	BeginTime int64
	EndTimeMs int64
	SpeakerID int
	Timestamp int64
}

// MarshalJSON renders the event as {type, ...fields}.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}
	put := func(key string, value any) { m[key] = value }
	putText := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}

	switch e.Type {
	case EventStatus:
		putText("message", e.Message)
	case EventSegmentsInfo:
		put("totalSegments", e.TotalSegments)
		putText("message", e.Message)
	case EventSegmentStart:
		put("index", e.Index)
		put("startTime", e.StartTime)
		put("endTime", e.EndTime)
		putText("message", e.Message)
	case EventSegmentProgress:
		put("index", e.Index)
		put("status", e.Status)
	case EventSegmentComplete:
		put("index", e.Index)
		put("startTime", e.StartTime)
		put("endTime", e.EndTime)
		put("text", e.Text)
		put("segments", nonNilSegments(e.Segments))
		putText("message", e.Message)
	case EventSegmentSummary:
		put("index", e.Index)
		put("timestamp", e.Timestamp)
		put("summary", e.Summary)
	case EventSegmentError:
		put("index", e.Index)
		put("error", e.Error)
	case EventComplete:
		put("text", e.Text)
		if e.Skipped {
			put("skipped", true)
		}
		if e.Segments != nil {
			put("segments", e.Segments)
		}
		if e.SegmentResults != nil {
			put("segmentResults", e.SegmentResults)
		}
		if e.Task != nil {
			put("result", e.Task)
		}
		putText("message", e.Message)
	case EventSentenceBegin:
		put("beginTime", e.BeginTime)
		put("speakerId", e.SpeakerID)
		put("timestamp", e.Timestamp)
	case EventIntermediate:
		put("text", e.Text)
		put("beginTime", e.BeginTime)
		put("speakerId", e.SpeakerID)
		put("timestamp", e.Timestamp)
	case EventFinal:
		put("text", e.Text)
		put("beginTime", e.BeginTime)
		put("endTime", e.EndTimeMs)
		put("speakerId", e.SpeakerID)
		put("timestamp", e.Timestamp)
	case EventProgress:
		put("status", e.Status)
	case EventSummary:
		put("timestamp", e.Timestamp)
		put("summary", e.Summary)
	case EventOverview:
		put("overview", e.Summary)
	case EventError, EventTimeout:
		put("error", e.Error)
	default:
		putText("message", e.Message)
		putText("text", e.Text)
	}
	return json.Marshal(m)
}

func nonNilSegments(segments []transcript.Segment) []transcript.Segment {
	if segments == nil {
		return []transcript.Segment{}
	}
	return segments
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error()}
}

// send delivers ev unless the consumer has gone away.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
