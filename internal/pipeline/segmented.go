package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prdforge/internal/logging"
	"prdforge/internal/media/segment"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/oss"
	"prdforge/internal/transcript"
)

const (
	defaultWindowSeconds   = 120
	defaultMinSummaryChars = 50
	segmentPollInterval    = 2 * time.Second
	segmentPollTimeout     = 3 * time.Minute
)

// SegmentedConfig tunes the segmented flow. Zero values take defaults.
type SegmentedConfig struct {
	ScratchRoot     string
	Window          float64
	PollInterval    time.Duration
	PollTimeout     time.Duration
	MinSummaryChars int
}

// Request is one segmented transcription. Either FilePath or Reader must be
// set; a Reader is spooled to scratch under FileName first.
type Request struct {
	FilePath  string
	Reader    io.Reader
	FileName  string
	ProjectID string
	Window    float64
}

// Segmented splits long recordings into windows and transcribes them one by
// one through object storage and the asynchronous job API.
type Segmented struct {
	segmenter   Segmenter
	objects     ObjectStore
	transcriber FileTranscriber
	summarizer  Summarizer
	summaries   SummaryStore
	cfg         SegmentedConfig
	logger      *slog.Logger
	now         func() time.Time
}

// SegmentedOption customizes a Segmented pipeline.
type SegmentedOption func(*Segmented)

// WithSummaryStore persists segment summaries for requests carrying a project id.
func WithSummaryStore(s SummaryStore) SegmentedOption {
	return func(p *Segmented) {
		p.summaries = s
	}
}

// WithSegmentedLogger sets the pipeline logger.
func WithSegmentedLogger(logger *slog.Logger) SegmentedOption {
	return func(p *Segmented) {
		p.logger = logging.NewComponentLogger(logger, "segmented")
	}
}

// WithSegmentedClock overrides the clock used for object names.
func WithSegmentedClock(now func() time.Time) SegmentedOption {
	return func(p *Segmented) {
		if now != nil {
			p.now = now
		}
	}
}

// NewSegmented wires the segmented flow. summarizer may be nil to skip
// per-segment summaries.
func NewSegmented(segmenter Segmenter, objects ObjectStore, transcriber FileTranscriber, summarizer Summarizer, cfg SegmentedConfig, opts ...SegmentedOption) *Segmented {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindowSeconds
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = segmentPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = segmentPollTimeout
	}
	if cfg.MinSummaryChars <= 0 {
		cfg.MinSummaryChars = defaultMinSummaryChars
	}
	if strings.TrimSpace(cfg.ScratchRoot) == "" {
		cfg.ScratchRoot = os.TempDir()
	}
	p := &Segmented{
		segmenter:   segmenter,
		objects:     objects,
		transcriber: transcriber,
		summarizer:  summarizer,
		cfg:         cfg,
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the flow and returns its event channel. The channel is closed
// after cleanup has finished.
func (p *Segmented) Run(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 8)
	go p.run(ctx, req, out)
	return out
}

type segmentedRun struct {
	scratch  *segment.Scratch
	segments []segment.Segment
	uploaded []string
}

func (p *Segmented) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)
	if req.ProjectID != "" {
		ctx = services.WithProjectID(ctx, req.ProjectID)
	}
	ctx = services.WithStage(ctx, "segmented")
	logger := logging.WithContext(ctx, p.logger)

	state := &segmentedRun{}
	defer p.cleanup(logger, state)

	if err := p.execute(ctx, logger, req, state, out); err != nil {
		if ctx.Err() != nil {
			logger.Info("segmented transcription cancelled", logging.Error(err))
			return
		}
		logging.ErrorWithContext(logger, "segmented transcription failed", "segmented_failed",
			logging.Error(err),
		)
		send(ctx, out, errorEvent(err))
	}
}

func (p *Segmented) execute(ctx context.Context, logger *slog.Logger, req Request, state *segmentedRun, out chan<- Event) error {
	if req.FilePath == "" && req.Reader == nil {
		return services.Wrap(services.ErrValidation, "segmented", "run", "no audio file provided", nil)
	}
	if !send(ctx, out, Event{Type: EventStatus, Message: "正在处理音频文件..."}) {
		return ctx.Err()
	}

	scratch, err := segment.NewScratch(p.cfg.ScratchRoot, "audio-upload")
	if err != nil {
		return err
	}
	state.scratch = scratch

	input := req.FilePath
	name := req.FileName
	if name == "" {
		name = filepath.Base(req.FilePath)
	}
	if req.Reader != nil {
		path, _, err := scratch.WriteFile(name, req.Reader)
		if err != nil {
			return err
		}
		input = path
	}

	if !send(ctx, out, Event{Type: EventStatus, Message: "正在切分音频..."}) {
		return ctx.Err()
	}
	window := req.Window
	if window <= 0 {
		window = p.cfg.Window
	}
	segments, err := p.segmenter.Split(ctx, input, window, scratch.Dir())
	if err != nil {
		return err
	}
	state.segments = segments
	total := len(segments)
	if !send(ctx, out, Event{
		Type:          EventSegmentsInfo,
		TotalSegments: total,
		Message:       fmt.Sprintf("音频已切分为 %d 个片段", total),
	}) {
		return ctx.Err()
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	results := make([]SegmentResult, 0, total)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !send(ctx, out, Event{
			Type:      EventSegmentStart,
			Index:     seg.Index,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Message:   fmt.Sprintf("正在处理片段 %d/%d", seg.Index+1, total),
		}) {
			return ctx.Err()
		}

		result, err := p.transcribeSegment(ctx, req.ProjectID, ext, seg, state, out)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(logger, "segment failed", "segment_failed",
				logging.Int(logging.FieldSegmentIndex, seg.Index),
				logging.Error(err),
				logging.String(logging.FieldImpact, "segment text missing from the transcript"),
			)
			if !send(ctx, out, Event{Type: EventSegmentError, Index: seg.Index, Error: err.Error()}) {
				return ctx.Err()
			}
			continue
		}
		results = append(results, result)
		if !send(ctx, out, Event{
			Type:      EventSegmentComplete,
			Index:     result.Index,
			StartTime: result.StartTime,
			EndTime:   result.EndTime,
			Text:      result.Text,
			Segments:  result.Segments,
			Message:   fmt.Sprintf("片段 %d/%d 识别完成", seg.Index+1, total),
		}) {
			return ctx.Err()
		}
		if !p.summarizeSegment(ctx, logger, req.ProjectID, result, out) {
			return ctx.Err()
		}
	}

	texts := make([]string, 0, len(results))
	spans := make([]transcript.Segment, 0)
	for _, r := range results {
		texts = append(texts, r.Text)
		spans = append(spans, transcript.Offset(r.Segments, transcript.SecondsToMillis(r.StartTime))...)
	}
	logger.Info("segmented transcription complete",
		logging.Int("segments", total),
		logging.Int("succeeded", len(results)),
	)
	send(ctx, out, Event{
		Type:           EventComplete,
		Text:           strings.Join(texts, "\n\n"),
		Segments:       spans,
		SegmentResults: results,
		Message:        "所有片段识别完成",
	})
	return nil
}

func (p *Segmented) transcribeSegment(ctx context.Context, projectID, ext string, seg segment.Segment, state *segmentedRun, out chan<- Event) (SegmentResult, error) {
	ctx = services.WithSegmentIndex(ctx, seg.Index)
	file, err := os.Open(seg.FilePath)
	if err != nil {
		return SegmentResult{}, fmt.Errorf("open segment: %w", err)
	}
	objectName := oss.SegmentObjectName(projectID, seg.Index, p.now().UnixMilli(), ext)
	uploaded, err := p.objects.Upload(ctx, file, objectName, oss.UploadOptions{ContentType: oss.ContentTypeFor(ext)})
	_ = file.Close()
	if err != nil {
		return SegmentResult{}, err
	}
	state.uploaded = append(state.uploaded, uploaded.ObjectName)

	taskID, err := p.transcriber.Submit(ctx, uploaded.URL)
	if err != nil {
		return SegmentResult{}, err
	}
	task, err := p.transcriber.Poll(ctx, taskID, filetrans.PollOptions{
		Interval: p.cfg.PollInterval,
		Timeout:  p.cfg.PollTimeout,
		OnProgress: func(status filetrans.Status) {
			send(ctx, out, Event{Type: EventSegmentProgress, Index: seg.Index, Status: string(status)})
		},
	})
	if err != nil {
		return SegmentResult{}, err
	}

	return SegmentResult{
		Index:     seg.Index,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Text:      task.Text,
		Segments:  task.Segments,
	}, nil
}

// summarizeSegment returns false only when the consumer has gone away.
func (p *Segmented) summarizeSegment(ctx context.Context, logger *slog.Logger, projectID string, result SegmentResult, out chan<- Event) bool {
	if p.summarizer == nil || !transcript.Exceeds(strings.TrimSpace(result.Text), p.cfg.MinSummaryChars) {
		return true
	}
	summary, err := p.summarizer.MiniSummary(ctx, result.Text)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logging.WarnWithContext(logger, "segment summary failed", "segment_summary_failed",
			logging.Int(logging.FieldSegmentIndex, result.Index),
			logging.Error(err),
			logging.String(logging.FieldImpact, "segment has no summary"),
		)
		return true
	}
	timestamp := int64(result.StartTime)
	if projectID != "" && p.summaries != nil {
		if _, err := p.summaries.CreateMiniSummary(ctx, projectID, int(timestamp), summary); err != nil {
			logging.WarnWithContext(logger, "segment summary not saved", "segment_summary_save_failed",
				logging.Int(logging.FieldSegmentIndex, result.Index),
				logging.Error(err),
				logging.String(logging.FieldImpact, "summary shown but not persisted"),
			)
		}
	}
	return send(ctx, out, Event{Type: EventSegmentSummary, Index: result.Index, Timestamp: timestamp, Summary: summary})
}

// cleanup runs with a fresh context so remote deletes still happen after the
// request context is cancelled.
func (p *Segmented) cleanup(logger *slog.Logger, state *segmentedRun) {
	if len(state.segments) > 0 {
		segment.Cleanup(logger, state.segments)
	}
	if state.scratch != nil {
		state.scratch.Remove(logger)
	}
	if len(state.uploaded) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, name := range state.uploaded {
		if err := p.objects.Delete(ctx, name); err != nil {
			logging.WarnWithContext(logger, "remote object cleanup failed", "object_cleanup_failed",
				logging.String("object", name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "temporary object left in the bucket"),
			)
		}
	}
	logger.Debug("remote objects cleaned up", logging.Int("objects", len(state.uploaded)))
}
