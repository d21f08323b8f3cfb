package transcript

import (
	"time"
	"unicode/utf8"
)

// RollingTrigger decides when a rolling summary is due. Checks happen on a
// fixed schedule of ticks at Start + k*Interval; a tick fires only when
// strictly more than MinNewChars runes have not been summarized yet. A tick
// that passes without enough text is spent and the next chance is the
// following tick.
type RollingTrigger struct {
	Interval    time.Duration
	MinNewChars int

	start          time.Time
	tick           int64
	lastRun        time.Time
	summarizedRune int
}

// Start marks the beginning of the first window.
func (r *RollingTrigger) Start(now time.Time) {
	r.start = now
	r.tick = 0
	r.lastRun = now
	r.summarizedRune = 0
}

// Due consumes any tick boundary reached by now and returns the unsummarized
// suffix of fullText when that tick should produce a summary.
func (r *RollingTrigger) Due(now time.Time, fullText string) (string, bool) {
	if r.start.IsZero() {
		r.Start(now)
	}
	if r.Interval <= 0 {
		return "", false
	}
	tick := int64(now.Sub(r.start) / r.Interval)
	if tick <= r.tick {
		return "", false
	}
	r.tick = tick
	delta := r.delta(fullText)
	if utf8.RuneCountInString(delta) <= r.MinNewChars {
		return "", false
	}
	return delta, true
}

// Tick returns the index of the most recently consumed tick; 0 before the
// first one.
func (r *RollingTrigger) Tick() int64 {
	return r.tick
}

// TickTime returns the scheduled time of the most recently consumed tick.
func (r *RollingTrigger) TickTime() time.Time {
	return r.start.Add(time.Duration(r.tick) * r.Interval)
}

// LastRun returns when text was last committed as summarized.
func (r *RollingTrigger) LastRun() time.Time {
	return r.lastRun
}

// Pending returns the text not yet summarized, regardless of timing.
func (r *RollingTrigger) Pending(fullText string) string {
	return r.delta(fullText)
}

// Commit records that fullText has been summarized as of at. It does not
// move the tick schedule.
func (r *RollingTrigger) Commit(at time.Time, fullText string) {
	r.lastRun = at
	r.summarizedRune = utf8.RuneCountInString(fullText)
}

// Exceeds reports whether text is long enough to summarize on its own.
func Exceeds(text string, minChars int) bool {
	return utf8.RuneCountInString(text) > minChars
}

func (r *RollingTrigger) delta(fullText string) string {
	if r.summarizedRune <= 0 {
		return fullText
	}
	seen := 0
	for i := range fullText {
		if seen == r.summarizedRune {
			return fullText[i:]
		}
		seen++
	}
	return ""
}
