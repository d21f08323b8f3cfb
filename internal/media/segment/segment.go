package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"prdforge/internal/logging"
	"prdforge/internal/media/ffprobe"
	"prdforge/internal/services"
)

// DefaultWindowSeconds is the window length used when callers pass zero.
const DefaultWindowSeconds = 120

// Window is one [Start, End) interval of a recording, in seconds.
type Window struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Segment is a cut window on disk. The file belongs to the caller once
// Split returns.
type Segment struct {
	Index     int
	StartTime float64
	EndTime   float64
	Duration  float64
	FilePath  string
}

// Plan returns ceil(total/window) contiguous windows covering [0, total).
// The last window may be shorter than the rest.
func Plan(total, window float64) []Window {
	if total <= 0 || window <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil
	}
	count := int(math.Ceil(total / window))
	windows := make([]Window, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * window
		end := math.Min(float64(i+1)*window, total)
		if end <= start {
			break
		}
		windows = append(windows, Window{Index: i, Start: start, End: end})
	}
	return windows
}

type (
	commandRunner func(ctx context.Context, name string, args ...string) error
	durationProbe func(ctx context.Context, path string) (float64, error)
)

// Option customizes a Segmenter.
type Option func(*Segmenter)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r func(ctx context.Context, name string, args ...string) error) Option {
	return func(s *Segmenter) {
		if r != nil {
			s.run = r
		}
	}
}

// WithDurationProbe replaces the ffprobe duration lookup.
func WithDurationProbe(p func(ctx context.Context, path string) (float64, error)) Option {
	return func(s *Segmenter) {
		if p != nil {
			s.probe = p
		}
	}
}

// WithLogger sets the logger used for cleanup warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) {
		s.logger = logging.NewComponentLogger(logger, "segmenter")
	}
}

// Segmenter cuts audio files with ffmpeg.
type Segmenter struct {
	ffmpeg string
	run    commandRunner
	probe  durationProbe
	logger *slog.Logger
}

// New constructs a Segmenter using the given ffmpeg and ffprobe binaries.
func New(ffmpegBinary, ffprobeBinary string, opts ...Option) *Segmenter {
	ffmpegBinary = strings.TrimSpace(ffmpegBinary)
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	s := &Segmenter{
		ffmpeg: ffmpegBinary,
		run:    runCommand,
		probe: func(ctx context.Context, path string) (float64, error) {
			return ffprobe.Duration(ctx, ffprobeBinary, path)
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split cuts input into windows of the given length and writes the parts to
// outDir as <base>_part<N><ext>. When a cut fails the parts already written
// are removed before the error is returned.
func (s *Segmenter) Split(ctx context.Context, input string, window float64, outDir string) ([]Segment, error) {
	if window <= 0 {
		window = DefaultWindowSeconds
	}
	if strings.TrimSpace(outDir) == "" {
		outDir = filepath.Dir(input)
	}

	total, err := s.probe(ctx, input)
	if err != nil {
		return nil, services.Wrap(services.ErrDurationProbe, "segment", "probe duration", filepath.Base(input), err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSegmentExtraction, "segment", "create output dir", outDir, err)
	}

	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	windows := Plan(total, window)
	segments := make([]Segment, 0, len(windows))

	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			Cleanup(s.logger, segments)
			return nil, err
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_part%d%s", base, w.Index, ext))
		args := []string{
			"-y",
			"-i", input,
			"-ss", formatSeconds(w.Start),
			"-t", formatSeconds(w.Duration()),
			"-c", "copy",
			out,
		}
		if err := s.run(ctx, s.ffmpeg, args...); err != nil {
			_ = os.Remove(out)
			Cleanup(s.logger, segments)
			return nil, services.Wrap(services.ErrSegmentExtraction, "segment", "cut", fmt.Sprintf("segment %d", w.Index), err)
		}
		segments = append(segments, Segment{
			Index:     w.Index,
			StartTime: w.Start,
			EndTime:   w.End,
			Duration:  w.Duration(),
			FilePath:  out,
		})
	}

	s.logger.Debug("audio split",
		logging.String("input", filepath.Base(input)),
		logging.Float64("duration_seconds", total),
		logging.Int("segments", len(segments)),
	)
	return segments, nil
}

// Cleanup removes segment files and, when it is left empty, their directory.
// Failures are logged and never returned.
func Cleanup(logger *slog.Logger, segments []Segment) {
	if logger == nil {
		logger = logging.NewNop()
	}
	dirs := map[string]struct{}{}
	for _, seg := range segments {
		if seg.FilePath == "" {
			continue
		}
		dirs[filepath.Dir(seg.FilePath)] = struct{}{}
		if err := os.Remove(seg.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "segment cleanup failed", "segment_cleanup_failed",
				logging.String("path", seg.FilePath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temporary audio left on disk"),
			)
		}
	}
	for dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		_ = os.Remove(dir)
	}
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

func lastLine(value string) string {
	if idx := strings.LastIndexByte(value, '\n'); idx >= 0 {
		return strings.TrimSpace(value[idx+1:])
	}
	return value
}
