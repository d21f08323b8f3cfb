package pipeline

import (
	"context"
	"io"

	"prdforge/internal/media/segment"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/oss"
	"prdforge/internal/store"
	"prdforge/internal/transcript"
)

// Segmenter cuts a local audio file into fixed windows.
type Segmenter interface {
	Split(ctx context.Context, input string, window float64, outDir string) ([]segment.Segment, error)
}

// ObjectStore holds segment uploads long enough for the transcriber to fetch them.
type ObjectStore interface {
	Upload(ctx context.Context, data io.Reader, objectName string, opts oss.UploadOptions) (oss.UploadResult, error)
	Delete(ctx context.Context, objectName string) error
}

// FileTranscriber runs asynchronous transcription jobs.
type FileTranscriber interface {
	Submit(ctx context.Context, fileURL string) (string, error)
	Status(ctx context.Context, taskID string) (filetrans.Task, error)
	Poll(ctx context.Context, taskID string, opts filetrans.PollOptions) (filetrans.Task, error)
}

// StreamRecognizer opens duplex recognition sessions.
type StreamRecognizer interface {
	Open(ctx context.Context, opts transcript.StreamOptions) (transcript.StreamSession, error)
}

// Summarizer compresses transcript text.
type Summarizer interface {
	MiniSummary(ctx context.Context, text string) (string, error)
	Overview(ctx context.Context, previous, newSummary string) (string, error)
}

// SummaryStore persists mini summaries per project and window.
type SummaryStore interface {
	CreateMiniSummary(ctx context.Context, projectID string, timestamp int, content string) (*store.MiniSummary, error)
}
