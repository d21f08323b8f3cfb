package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable. Missing credentials are not
// an error here; the clients that need them fail when called.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateSegmenter(); err != nil {
		return err
	}
	if err := c.validateFileTranscribe(); err != nil {
		return err
	}
	if err := c.validateStreaming(); err != nil {
		return err
	}
	if err := c.validateSummary(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be positive")
	}
	return nil
}

func (c *Config) validateProviders() error {
	switch c.LLM.Provider {
	case ProviderAuto, ProviderDeepSeek, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (use auto, deepseek, openai, or gemini)", c.LLM.Provider)
	}
	switch c.Transcription.Provider {
	case ProviderAliyun, ProviderOpenAI:
	default:
		return fmt.Errorf("transcription.provider: unsupported value %q (use aliyun or openai)", c.Transcription.Provider)
	}
	switch c.Streaming.Provider {
	case ProviderAliyun, ProviderGoogle:
	default:
		return fmt.Errorf("streaming.provider: unsupported value %q (use aliyun or google)", c.Streaming.Provider)
	}
	if c.OSS.SignedURLExpires <= 0 {
		return errors.New("oss.signed_url_expires must be positive")
	}
	return nil
}

func (c *Config) validateSegmenter() error {
	if c.Segmenter.WindowSeconds <= 0 {
		return errors.New("segmenter.window_seconds must be positive")
	}
	return nil
}

func (c *Config) validateFileTranscribe() error {
	if c.FileTranscribe.PollIntervalSeconds <= 0 {
		return errors.New("file_transcribe.poll_interval_seconds must be positive")
	}
	if c.FileTranscribe.PollTimeoutSeconds < c.FileTranscribe.PollIntervalSeconds {
		return errors.New("file_transcribe.poll_timeout_seconds must be at least poll_interval_seconds")
	}
	return nil
}

func (c *Config) validateStreaming() error {
	s := c.Streaming
	if s.SampleRate != 8000 && s.SampleRate != 16000 {
		return fmt.Errorf("streaming.sample_rate must be 8000 or 16000, got %d", s.SampleRate)
	}
	if s.FrameBytes <= 0 || s.FrameBytes%2 != 0 {
		return errors.New("streaming.frame_bytes must be a positive even number")
	}
	if s.FrameIntervalMillis < 0 {
		return errors.New("streaming.frame_interval_ms must not be negative")
	}
	if s.HeartbeatSeconds <= 0 {
		return errors.New("streaming.heartbeat_seconds must be positive")
	}
	if s.IdleTimeoutSeconds <= 0 || s.SessionTimeoutSeconds <= 0 {
		return errors.New("streaming timeouts must be positive")
	}
	if s.MinAudioBytes < 0 {
		return errors.New("streaming.min_audio_bytes must not be negative")
	}
	if _, err := language.Parse(s.LanguageCode); err != nil {
		return fmt.Errorf("streaming.language_code: %w", err)
	}
	return nil
}

func (c *Config) validateSummary() error {
	if c.Summary.IntervalSeconds <= 0 {
		return errors.New("summary.interval_seconds must be positive")
	}
	if c.Summary.MinNewChars < 0 {
		return errors.New("summary.min_new_chars must not be negative")
	}
	if c.Summary.RedisAddr != "" && !strings.Contains(c.Summary.RedisAddr, ":") {
		return fmt.Errorf("summary.redis_addr must be host:port, got %q", c.Summary.RedisAddr)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
