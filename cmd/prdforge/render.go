package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"prdforge/internal/pipeline"
	"prdforge/internal/prd"
)

var (
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGreen  = lipgloss.Color("#00FF00")
	colorYellow = lipgloss.Color("#FFFF00")
	colorRed    = lipgloss.Color("#FF0000")
	colorGray   = lipgloss.Color("#666666")
)

var (
	statusStyle  = lipgloss.NewStyle().Foreground(colorGray)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	doneStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	summaryStyle = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
)

// eventRenderer prints pipeline events as one or more terminal lines.
type eventRenderer struct {
	out    io.Writer
	styled bool
	total  int
}

func newEventRenderer(out io.Writer) *eventRenderer {
	return &eventRenderer{out: out, styled: isTerminal(out)}
}

func (r *eventRenderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r *eventRenderer) segmentLabel(index int) string {
	if r.total > 0 {
		return fmt.Sprintf("[%d/%d]", index+1, r.total)
	}
	return fmt.Sprintf("[%d]", index+1)
}

// Render writes ev. Complete events print only a footer; the caller owns the
// final transcript.
func (r *eventRenderer) Render(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventStatus:
		fmt.Fprintln(r.out, r.style(statusStyle, "· "+ev.Message))
	case pipeline.EventSegmentsInfo:
		r.total = ev.TotalSegments
		fmt.Fprintln(r.out, r.style(headerStyle, fmt.Sprintf("%d segments", ev.TotalSegments)))
	case pipeline.EventSegmentStart:
		fmt.Fprintf(r.out, "%s %s-%s transcribing\n",
			r.style(headerStyle, r.segmentLabel(ev.Index)),
			prd.FormatTimestamp(int(ev.StartTime)),
			prd.FormatTimestamp(int(ev.EndTime)),
		)
	case pipeline.EventSegmentProgress:
		fmt.Fprintln(r.out, r.style(statusStyle, fmt.Sprintf("%s %s", r.segmentLabel(ev.Index), strings.ToLower(ev.Status))))
	case pipeline.EventSegmentComplete:
		fmt.Fprintf(r.out, "%s %s\n", r.style(doneStyle, r.segmentLabel(ev.Index)), strings.TrimSpace(ev.Text))
	case pipeline.EventSegmentSummary:
		fmt.Fprintf(r.out, "%s %s\n", r.style(summaryStyle, r.segmentLabel(ev.Index)+" summary"), ev.Summary)
	case pipeline.EventSegmentError:
		fmt.Fprintf(r.out, "%s %s\n", r.style(errorStyle, r.segmentLabel(ev.Index)+" failed"), ev.Error)
	case pipeline.EventComplete:
		fmt.Fprintln(r.out, r.style(doneStyle, fmt.Sprintf("done: %d of %d segments, %d characters",
			len(ev.SegmentResults), r.total, len([]rune(ev.Text)))))
	case pipeline.EventError:
		fmt.Fprintln(r.out, r.style(errorStyle, "error: "+ev.Error))
	}
}
