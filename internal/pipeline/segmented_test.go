package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"prdforge/internal/services"
)

func newTestSegmented(t *testing.T, seg Segmenter, objects ObjectStore, tr FileTranscriber, sum Summarizer, opts ...SegmentedOption) (*Segmented, string) {
	t.Helper()
	root := t.TempDir()
	return NewSegmented(seg, objects, tr, sum, SegmentedConfig{ScratchRoot: root}, opts...), root
}

func assertScratchEmpty(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch root to be empty, found %d entries", len(entries))
	}
}

func TestSegmentedRunThreeWindows(t *testing.T) {
	long := strings.Repeat("需", 60)
	objects := &spyObjects{}
	tr := &fakeTranscriber{texts: []string{long, "第二段", "第三段"}}
	sum := &fakeSummarizer{}
	summaries := &spySummaryStore{}
	p, root := newTestSegmented(t, &fakeSegmenter{total: 300}, objects, tr, sum, WithSummaryStore(summaries))

	events := collect(p.Run(context.Background(), Request{
		Reader:    strings.NewReader("audio"),
		FileName:  "meeting.mp3",
		ProjectID: "p1",
		Window:    120,
	}))

	if countType(events, EventSegmentComplete) != 3 {
		t.Fatalf("expected 3 segment_complete events, got %v", types(events))
	}
	if countType(events, EventComplete) != 1 || events[len(events)-1].Type != EventComplete {
		t.Fatalf("expected a single trailing complete event, got %v", types(events))
	}

	var starts [][2]float64
	for _, ev := range events {
		if ev.Type == EventSegmentStart {
			starts = append(starts, [2]float64{ev.StartTime, ev.EndTime})
		}
		if ev.Type == EventSegmentComplete {
			if len(ev.Segments) != 1 || ev.Segments[0].BeginTime != 10000 || ev.Segments[0].EndTime != 12000 {
				t.Fatalf("segment_complete %d must carry segment-local spans, got %+v", ev.Index, ev.Segments)
			}
		}
	}
	want := [][2]float64{{0, 120}, {120, 240}, {240, 300}}
	if !reflect.DeepEqual(starts, want) {
		t.Fatalf("unexpected windows %v", starts)
	}

	final := events[len(events)-1]
	if final.Text != long+"\n\n第二段\n\n第三段" {
		t.Fatalf("unexpected joined text %q", final.Text)
	}
	if len(final.Segments) != 3 || final.Segments[1].BeginTime != 130000 || final.Segments[2].EndTime != 252000 {
		t.Fatalf("expected spans offset by segment start, got %+v", final.Segments)
	}
	if len(final.SegmentResults) != 3 {
		t.Fatalf("expected 3 segment results, got %d", len(final.SegmentResults))
	}

	if countType(events, EventSegmentSummary) != 1 || sum.callCount() != 1 {
		t.Fatalf("expected only the long segment to be summarized, got %v", types(events))
	}
	if len(summaries.saved) != 1 || summaries.saved[0] != (savedSummary{"p1", 0, "摘要1"}) {
		t.Fatalf("unexpected persisted summaries %+v", summaries.saved)
	}

	uploads, deletes := objects.counts()
	if uploads != 3 || deletes != 3 {
		t.Fatalf("expected every upload deleted, got %d uploads %d deletes", uploads, deletes)
	}
	if !strings.HasPrefix(objects.uploads[0], "p1/segment_1_") || !strings.HasSuffix(objects.uploads[0], ".mp3") {
		t.Fatalf("unexpected object name %q", objects.uploads[0])
	}
	assertScratchEmpty(t, root)
}

func TestSegmentedEventOrder(t *testing.T) {
	p, _ := newTestSegmented(t, &fakeSegmenter{total: 100}, &spyObjects{}, &fakeTranscriber{texts: []string{"短"}}, nil)
	tmp := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(tmp, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := types(collect(p.Run(context.Background(), Request{FilePath: tmp})))
	want := []EventType{
		EventStatus, EventStatus, EventSegmentsInfo,
		EventSegmentStart, EventSegmentProgress, EventSegmentProgress, EventSegmentComplete,
		EventComplete,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("event order = %v, want %v", got, want)
	}
	if _, err := os.Stat(tmp); err != nil {
		t.Fatalf("caller-owned input file should survive: %v", err)
	}
}

func TestSegmentedSegmentFailureIsIsolated(t *testing.T) {
	objects := &spyObjects{failOn: map[int]bool{1: true}}
	p, root := newTestSegmented(t, &fakeSegmenter{total: 300}, objects, &fakeTranscriber{texts: []string{"一", "三"}}, nil)

	events := collect(p.Run(context.Background(), Request{Reader: strings.NewReader("a"), FileName: "a.wav"}))

	if countType(events, EventSegmentError) != 1 || countType(events, EventSegmentComplete) != 2 {
		t.Fatalf("expected one isolated failure, got %v", types(events))
	}
	for _, ev := range events {
		if ev.Type == EventSegmentError && ev.Index != 1 {
			t.Fatalf("segment_error reported for index %d", ev.Index)
		}
	}
	final := events[len(events)-1]
	if final.Type != EventComplete || len(final.SegmentResults) != 2 {
		t.Fatalf("expected complete with 2 results, got %+v", final)
	}
	uploads, deletes := objects.counts()
	if uploads != 2 || deletes != 2 {
		t.Fatalf("uploads %d deletes %d", uploads, deletes)
	}
	assertScratchEmpty(t, root)
}

func TestSegmentedSplitFailure(t *testing.T) {
	splitErr := services.Wrap(services.ErrDurationProbe, "segmenter", "probe", "ffprobe missing", nil)
	objects := &spyObjects{}
	p, root := newTestSegmented(t, &fakeSegmenter{err: splitErr}, objects, &fakeTranscriber{}, nil)

	events := collect(p.Run(context.Background(), Request{Reader: strings.NewReader("a"), FileName: "a.wav"}))
	last := events[len(events)-1]
	if last.Type != EventError || !strings.Contains(last.Error, "ffprobe missing") {
		t.Fatalf("expected terminal error event, got %+v", last)
	}
	if uploads, _ := objects.counts(); uploads != 0 {
		t.Fatalf("no uploads expected, got %d", uploads)
	}
	assertScratchEmpty(t, root)
}

func TestSegmentedRequiresInput(t *testing.T) {
	p, _ := newTestSegmented(t, &fakeSegmenter{total: 10}, &spyObjects{}, &fakeTranscriber{}, nil)
	events := collect(p.Run(context.Background(), Request{}))
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("expected a single error event, got %v", types(events))
	}
}

func TestSegmentedSummaryFailureDoesNotFailSegment(t *testing.T) {
	sum := &fakeSummarizer{err: errBoom}
	p, _ := newTestSegmented(t, &fakeSegmenter{total: 60}, &spyObjects{}, &fakeTranscriber{texts: []string{strings.Repeat("字", 80)}}, sum)
	events := collect(p.Run(context.Background(), Request{Reader: strings.NewReader("a"), FileName: "a.wav"}))
	if countType(events, EventSegmentComplete) != 1 || countType(events, EventSegmentSummary) != 0 {
		t.Fatalf("unexpected events %v", types(events))
	}
	if events[len(events)-1].Type != EventComplete {
		t.Fatalf("expected complete, got %v", types(events))
	}
}

func TestSegmentedCancellationStillCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	objects := &spyObjects{}
	tr := &fakeTranscriber{
		texts: []string{"一", "二", "三"},
		onPoll: func(taskID string) {
			if taskID == "task-1" {
				cancel()
			}
		},
	}
	p, root := newTestSegmented(t, &fakeSegmenter{total: 300}, objects, tr, nil)

	events := collect(p.Run(ctx, Request{Reader: strings.NewReader("a"), FileName: "a.wav"}))

	if countType(events, EventComplete) != 0 {
		t.Fatalf("cancelled run must not complete, got %v", types(events))
	}
	uploads, deletes := objects.counts()
	if uploads != 2 || deletes != uploads {
		t.Fatalf("expected uploads (%d) to equal deletes (%d)", uploads, deletes)
	}
	assertScratchEmpty(t, root)
}

func TestEventJSONKeepsZeroIndex(t *testing.T) {
	data, err := json.Marshal(Event{Type: EventSegmentStart, Index: 0, StartTime: 0, EndTime: 120, Message: "m"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "segment_start" || decoded["index"] != float64(0) || decoded["endTime"] != float64(120) {
		t.Fatalf("unexpected payload %s", data)
	}
	if _, ok := decoded["text"]; ok {
		t.Fatalf("segment_start should not carry text: %s", data)
	}
}

func TestEventJSONSkippedComplete(t *testing.T) {
	data, _ := json.Marshal(Event{Type: EventComplete, Skipped: true})
	if string(data) != `{"skipped":true,"text":"","type":"complete"}` {
		t.Fatalf("unexpected payload %s", data)
	}
}
