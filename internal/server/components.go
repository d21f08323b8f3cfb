package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"prdforge/internal/config"
	"prdforge/internal/logging"
	"prdforge/internal/media/segment"
	"prdforge/internal/pipeline"
	"prdforge/internal/prd"
	"prdforge/internal/services"
	"prdforge/internal/services/aliyun"
	"prdforge/internal/services/aliyun/filetrans"
	"prdforge/internal/services/aliyun/nls"
	"prdforge/internal/services/gemini"
	"prdforge/internal/services/googlestt"
	"prdforge/internal/services/llm"
	"prdforge/internal/services/oss"
	"prdforge/internal/services/whisper"
	"prdforge/internal/store"
	"prdforge/internal/summary"
)

// Transcriber turns one uploaded recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, r io.Reader) (string, error)
}

// Components is everything the API, CLI, and MCP tools call into. Fields are
// exported so commands and tests can assemble partial sets.
type Components struct {
	Store       *store.Store
	Generator   *prd.Generator
	Objects     pipeline.ObjectStore
	FileTrans   pipeline.FileTranscriber
	Tokens      nls.TokenSource
	Segmenter   pipeline.Segmenter
	Recognizer  pipeline.StreamRecognizer
	Transcriber Transcriber
	State       summary.State
}

// Build constructs the full component set from cfg. Missing credentials do
// not fail here; the calls that need them fail with a configuration error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	creds := aliyun.Credentials{
		AccessKeyID:     cfg.Aliyun.AccessKeyID,
		AccessKeySecret: cfg.Aliyun.AccessKeySecret,
	}
	caller := aliyun.NewSDKCaller(creds)
	tokens := aliyun.NewTokenProvider(caller, cfg.Aliyun.TokenRegion)
	objects := oss.New(oss.Config{
		Region:           cfg.OSS.Region,
		Bucket:           cfg.OSS.Bucket,
		Endpoint:         cfg.OSS.Endpoint,
		Credentials:      creds,
		SignedURLExpires: cfg.OSS.SignedURLExpires,
	}, oss.WithLogger(logger))
	fileTrans := filetrans.New(caller, cfg.Aliyun.AppKey, cfg.FileTranscribeRegion(), filetrans.WithLogger(logger))

	c := &Components{
		Store:     st,
		Generator: NewGenerator(cfg, logger),
		Objects:   objects,
		FileTrans: fileTrans,
		Tokens:    tokens,
		Segmenter: segment.New(cfg.Segmenter.FFmpegBinary, cfg.Segmenter.FFprobeBinary, segment.WithLogger(logger)),
		State:     summary.NewMemory(),
	}

	switch cfg.Streaming.Provider {
	case config.ProviderGoogle:
		c.Recognizer = googlestt.New(cfg.Streaming.LanguageCode, googlestt.WithLogger(logger))
	default:
		c.Recognizer = nls.New(tokens, cfg.Aliyun.AppKey, cfg.Aliyun.ASRRegion,
			nls.WithHeartbeat(time.Duration(cfg.Streaming.HeartbeatSeconds)*time.Second),
			nls.WithLogger(logger),
		)
	}

	switch cfg.Transcription.Provider {
	case config.ProviderOpenAI:
		c.Transcriber = whisper.New(whisper.Config{
			APIKey: cfg.LLM.OpenAIAPIKey,
			Model:  cfg.Transcription.OpenAIModel,
		})
	default:
		c.Transcriber = &jobTranscriber{
			objects:     objects,
			transcriber: fileTrans,
			poll: filetrans.PollOptions{
				Interval: cfg.PollInterval(),
				Timeout:  cfg.PollTimeout(),
			},
			logger: logging.NewComponentLogger(logger, "transcribe"),
		}
	}

	if addr := strings.TrimSpace(cfg.Summary.RedisAddr); addr != "" {
		ttl := time.Duration(cfg.Summary.RedisTTLHours) * time.Hour
		state, err := summary.ConnectRedis(ctx, addr, ttl)
		if err != nil {
			logging.WarnWithContext(logger, "redis summary state unavailable; using in-memory state", "summary_state_fallback",
				logging.String("redis_addr", addr),
				logging.Error(err),
				logging.String(logging.FieldImpact, "duplicate window summaries possible across instances"),
			)
		} else {
			c.State = state
		}
	}
	return c, nil
}

// NewGenerator builds the summary/PRD generator for the resolved provider.
func NewGenerator(cfg *config.Config, logger *slog.Logger) *prd.Generator {
	resolved := cfg.ResolveLLM()
	opts := []prd.Option{prd.WithMock(resolved.Mock), prd.WithLogger(logger)}
	if resolved.Mock || resolved.APIKey == "" {
		return prd.NewGenerator(nil, opts...)
	}
	var completer prd.Completer
	switch resolved.Provider {
	case config.ProviderGemini:
		completer = gemini.New(resolved.APIKey, resolved.Model)
	default:
		completer = llm.NewClient(llm.Config{
			Provider:       resolved.Provider,
			APIKey:         resolved.APIKey,
			BaseURL:        resolved.BaseURL,
			Model:          resolved.Model,
			TimeoutSeconds: resolved.TimeoutSeconds,
		})
	}
	return prd.NewGenerator(completer, opts...)
}

// Segmented builds the segmented pipeline over these components.
func (c *Components) Segmented(cfg *config.Config, logger *slog.Logger) *pipeline.Segmented {
	return pipeline.NewSegmented(c.Segmenter, c.Objects, c.FileTrans, c.Generator, pipeline.SegmentedConfig{
		ScratchRoot:  cfg.Paths.ScratchDir,
		Window:       float64(cfg.Segmenter.WindowSeconds),
		PollInterval: cfg.PollInterval(),
		PollTimeout:  cfg.PollTimeout(),
	}, pipeline.WithSummaryStore(c.Store), pipeline.WithSegmentedLogger(logger))
}

// Close releases the store and summary state.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var firstErr error
	if c.State != nil {
		if err := c.State.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StreamConfig maps the streaming section onto the duplex driver settings.
func StreamConfig(cfg *config.Config) pipeline.StreamConfig {
	s := cfg.Streaming
	return pipeline.StreamConfig{
		SampleRate:     s.SampleRate,
		LanguageCode:   s.LanguageCode,
		FrameBytes:     s.FrameBytes,
		FrameInterval:  time.Duration(s.FrameIntervalMillis) * time.Millisecond,
		IdleTimeout:    time.Duration(s.IdleTimeoutSeconds) * time.Second,
		SessionTimeout: time.Duration(s.SessionTimeoutSeconds) * time.Second,
		MinAudioBytes:  s.MinAudioBytes,
	}
}

// jobTranscriber runs a single recording through object storage and the
// asynchronous job API.
type jobTranscriber struct {
	objects     pipeline.ObjectStore
	transcriber pipeline.FileTranscriber
	poll        filetrans.PollOptions
	logger      *slog.Logger
	now         func() time.Time
}

func (j *jobTranscriber) Transcribe(ctx context.Context, fileName string, r io.Reader) (string, error) {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	ext := filepath.Ext(fileName)
	object := oss.UploadObjectName("", now().UnixMilli(), ext)
	uploaded, err := j.objects.Upload(ctx, r, object, oss.UploadOptions{ContentType: oss.ContentTypeFor(ext)})
	if err != nil {
		return "", err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := j.objects.Delete(cleanupCtx, uploaded.ObjectName); err != nil {
			logging.WarnWithContext(j.logger, "failed to delete transcription upload", "upload_cleanup_failed",
				logging.String("object", uploaded.ObjectName),
				logging.Error(err),
				logging.String(logging.FieldImpact, "object remains in the bucket until lifecycle expiry"),
			)
		}
	}()

	taskID, err := j.transcriber.Submit(ctx, uploaded.URL)
	if err != nil {
		return "", err
	}
	task, err := j.transcriber.Poll(ctx, taskID, j.poll)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(task.Text) == "" {
		return "", services.Wrap(services.ErrUpstream, "transcribe", "file", "no speech recognized", nil)
	}
	return task.Text, nil
}
