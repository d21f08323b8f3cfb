package transcript

import "strings"

// Segment is a speaker-attributed span. Times are milliseconds. SpeakerID is
// a per-call cluster index and is not stable across calls.
type Segment struct {
	SpeakerID int    `json:"speakerId"`
	Text      string `json:"text"`
	BeginTime int64  `json:"beginTime"`
	EndTime   int64  `json:"endTime"`
}

// MergeSpeakers joins consecutive spans from the same speaker. The merged
// span keeps the first BeginTime, takes the later EndTime, and concatenates
// the texts without a separator. Spans with blank text are dropped.
func MergeSpeakers(segments []Segment) []Segment {
	merged := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].SpeakerID == seg.SpeakerID {
			merged[n-1].Text += seg.Text
			merged[n-1].EndTime = seg.EndTime
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// Offset returns copies of segments shifted by offsetMillis.
func Offset(segments []Segment, offsetMillis int64) []Segment {
	out := make([]Segment, len(segments))
	for i, seg := range segments {
		seg.BeginTime += offsetMillis
		seg.EndTime += offsetMillis
		out[i] = seg
	}
	return out
}

// SecondsToMillis converts a segment start offset to milliseconds.
func SecondsToMillis(seconds float64) int64 {
	return int64(seconds*1000 + 0.5)
}

// JoinText concatenates span texts with no separator.
func JoinText(segments []Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}
