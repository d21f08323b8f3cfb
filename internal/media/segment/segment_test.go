package segment_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prdforge/internal/media/segment"
	"prdforge/internal/services"
)

func TestPlanCoversDurationWithoutGaps(t *testing.T) {
	cases := []struct {
		total, window float64
	}{
		{300, 120},
		{240, 120},
		{1, 120},
		{119.5, 120},
		{3601.25, 60},
		{10, 3},
	}
	for _, tc := range cases {
		windows := segment.Plan(tc.total, tc.window)
		want := int(math.Ceil(tc.total / tc.window))
		if len(windows) != want {
			t.Fatalf("Plan(%v, %v): expected %d windows, got %d", tc.total, tc.window, want, len(windows))
		}
		if windows[0].Start != 0 {
			t.Fatalf("Plan(%v, %v): first window starts at %v", tc.total, tc.window, windows[0].Start)
		}
		for i := 1; i < len(windows); i++ {
			if windows[i].Start != windows[i-1].End {
				t.Fatalf("Plan(%v, %v): gap or overlap between %d and %d", tc.total, tc.window, i-1, i)
			}
			if windows[i].Index != i {
				t.Fatalf("unexpected index %d at position %d", windows[i].Index, i)
			}
		}
		if last := windows[len(windows)-1]; last.End != tc.total {
			t.Fatalf("Plan(%v, %v): last window ends at %v", tc.total, tc.window, last.End)
		}
		for _, w := range windows {
			if w.Duration() <= 0 || w.Duration() > tc.window {
				t.Fatalf("Plan(%v, %v): bad window %+v", tc.total, tc.window, w)
			}
		}
	}
}

func TestPlanThreeHundredSeconds(t *testing.T) {
	windows := segment.Plan(300, 120)
	want := [][2]float64{{0, 120}, {120, 240}, {240, 300}}
	for i, w := range windows {
		if w.Start != want[i][0] || w.End != want[i][1] {
			t.Fatalf("window %d: got [%v,%v) want [%v,%v)", i, w.Start, w.End, want[i][0], want[i][1])
		}
	}
}

func TestPlanRejectsDegenerateInput(t *testing.T) {
	if got := segment.Plan(0, 120); got != nil {
		t.Fatalf("expected nil for zero duration, got %v", got)
	}
	if got := segment.Plan(100, 0); got != nil {
		t.Fatalf("expected nil for zero window, got %v", got)
	}
}

type recordingRunner struct {
	calls  [][]string
	failAt int
}

func (r *recordingRunner) run(_ context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.failAt > 0 && len(r.calls) == r.failAt {
		return errors.New("exit status 1")
	}
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("segment"), 0o644)
}

func TestSplitCutsEachWindow(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "meeting.mp3")
	if err := os.WriteFile(input, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	runner := &recordingRunner{}
	seg := segment.New("ffmpeg", "ffprobe",
		segment.WithCommandRunner(runner.run),
		segment.WithDurationProbe(func(context.Context, string) (float64, error) { return 300, nil }),
	)

	outDir := filepath.Join(dir, "parts")
	segments, err := seg.Split(context.Background(), input, 120, outDir)
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if segments[2].StartTime != 240 || segments[2].EndTime != 300 || segments[2].Duration != 60 {
		t.Fatalf("unexpected last segment %+v", segments[2])
	}
	if filepath.Base(segments[1].FilePath) != "meeting_part1.mp3" {
		t.Fatalf("unexpected segment name %q", segments[1].FilePath)
	}
	joined := strings.Join(runner.calls[1], " ")
	if !strings.Contains(joined, "-ss 120 -t 120 -c copy") {
		t.Fatalf("unexpected ffmpeg args: %s", joined)
	}

	segment.Cleanup(nil, segments)
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Fatalf("expected empty segment dir to be removed, stat err=%v", err)
	}
}

func TestSplitProbeFailure(t *testing.T) {
	seg := segment.New("ffmpeg", "ffprobe",
		segment.WithDurationProbe(func(context.Context, string) (float64, error) {
			return 0, errors.New("executable file not found")
		}),
	)
	_, err := seg.Split(context.Background(), "/tmp/in.wav", 120, t.TempDir())
	if !errors.Is(err, services.ErrDurationProbe) {
		t.Fatalf("expected ErrDurationProbe, got %v", err)
	}
}

func TestSplitCutFailureRemovesProducedSegments(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.wav")
	runner := &recordingRunner{failAt: 2}
	seg := segment.New("ffmpeg", "ffprobe",
		segment.WithCommandRunner(runner.run),
		segment.WithDurationProbe(func(context.Context, string) (float64, error) { return 300, nil }),
	)
	outDir := filepath.Join(dir, "parts")
	_, err := seg.Split(context.Background(), input, 120, outDir)
	if !errors.Is(err, services.ErrSegmentExtraction) {
		t.Fatalf("expected ErrSegmentExtraction, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outDir, "in_part0.wav")); !os.IsNotExist(statErr) {
		t.Fatalf("expected first segment to be removed, stat err=%v", statErr)
	}
}

func TestScratchLifecycle(t *testing.T) {
	root := t.TempDir()
	scratch, err := segment.NewScratch(root, "audio-upload")
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(scratch.Dir()), "audio-upload-") {
		t.Fatalf("unexpected scratch dir %q", scratch.Dir())
	}
	path, n, err := scratch.WriteFile("../../escape.mp3", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if n != 5 || filepath.Dir(path) != scratch.Dir() {
		t.Fatalf("unexpected write result path=%q n=%d", path, n)
	}
	scratch.Remove(nil)
	if _, err := os.Stat(scratch.Dir()); !os.IsNotExist(err) {
		t.Fatalf("expected scratch dir removed, stat err=%v", err)
	}
}
