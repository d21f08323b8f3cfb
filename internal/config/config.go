package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	ScratchDir string `toml:"scratch_dir"`
	UploadDir  string `toml:"upload_dir"`
	LogDir     string `toml:"log_dir"`
}

// Server contains HTTP API settings.
type Server struct {
	Bind        string `toml:"bind"`
	APIToken    string `toml:"api_token"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// LLM contains chat completion settings. Provider "auto" picks DeepSeek,
// OpenAI, or Gemini depending on which key is present.
type LLM struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Mock           bool   `toml:"mock"`

	DeepSeekAPIKey string `toml:"deepseek_api_key"`
	OpenAIAPIKey   string `toml:"openai_api_key"`
	GeminiAPIKey   string `toml:"gemini_api_key"`
}

// Transcription selects the single-shot transcription backend.
type Transcription struct {
	Provider    string `toml:"provider"`
	OpenAIModel string `toml:"openai_model"`
}

// Aliyun contains credentials shared by the speech and storage services.
type Aliyun struct {
	AccessKeyID          string `toml:"access_key_id"`
	AccessKeySecret      string `toml:"access_key_secret"`
	AppKey               string `toml:"app_key"`
	ASRRegion            string `toml:"asr_region"`
	FileTranscribeRegion string `toml:"file_transcribe_region"`
	TokenRegion          string `toml:"token_region"`
}

// OSS contains object storage settings.
type OSS struct {
	Region           string `toml:"region"`
	Bucket           string `toml:"bucket"`
	Endpoint         string `toml:"endpoint"`
	SignedURLExpires int    `toml:"signed_url_expires"`
}

// Segmenter contains audio splitting settings.
type Segmenter struct {
	WindowSeconds int    `toml:"window_seconds"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// FileTranscribe contains polling settings for the asynchronous job API.
type FileTranscribe struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	PollTimeoutSeconds  int `toml:"poll_timeout_seconds"`
}

// Streaming contains real-time recognizer settings.
type Streaming struct {
	Provider              string `toml:"provider"`
	SampleRate            int    `toml:"sample_rate"`
	FrameBytes            int    `toml:"frame_bytes"`
	FrameIntervalMillis   int    `toml:"frame_interval_ms"`
	HeartbeatSeconds      int    `toml:"heartbeat_seconds"`
	IdleTimeoutSeconds    int    `toml:"idle_timeout_seconds"`
	SessionTimeoutSeconds int    `toml:"session_timeout_seconds"`
	MinAudioBytes         int    `toml:"min_audio_bytes"`
	LanguageCode          string `toml:"language_code"`
	GoogleProject         string `toml:"google_project"`
}

// Summary contains rolling summary cadence and dedup state settings.
type Summary struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	MinNewChars     int    `toml:"min_new_chars"`
	RedisAddr       string `toml:"redis_addr"`
	RedisTTLHours   int    `toml:"redis_ttl_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for prdforge.
//
// Configuration sections by subsystem:
//   - Paths: data, scratch, upload, and log directories
//   - Server: HTTP bind address, bearer token, upload limit
//   - LLM: summary/PRD provider selection and credentials
//   - Transcription: single-shot transcription backend
//   - Aliyun: speech credentials and regions
//   - OSS: object storage bucket and signed URL expiry
//   - Segmenter: window length and ffmpeg/ffprobe binaries
//   - FileTranscribe: asynchronous job polling cadence
//   - Streaming: real-time recognizer framing and timeouts
//   - Summary: rolling summary cadence and dedup backend
//   - Logging: log format and level
type Config struct {
	Paths          Paths          `toml:"paths"`
	Server         Server         `toml:"server"`
	LLM            LLM            `toml:"llm"`
	Transcription  Transcription  `toml:"transcription"`
	Aliyun         Aliyun         `toml:"aliyun"`
	OSS            OSS            `toml:"oss"`
	Segmenter      Segmenter      `toml:"segmenter"`
	FileTranscribe FileTranscribe `toml:"file_transcribe"`
	Streaming      Streaming      `toml:"streaming"`
	Summary        Summary        `toml:"summary"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/prdforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and provider defaults resolved.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("prdforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, scratch, upload, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.ScratchDir, c.Paths.UploadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "prdforge.db")
}

// LockPath returns the single-instance lock file used by the server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "prdforge.lock")
}

// LLMConfig is the resolved connection for the summary/PRD provider.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Mock           bool
}

// ResolveLLM picks the provider, key, base URL, and model. An explicit
// provider wins; "auto" prefers DeepSeek, then OpenAI, then Gemini.
func (c *Config) ResolveLLM() LLMConfig {
	provider := strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if provider == "" || provider == ProviderAuto {
		switch {
		case strings.TrimSpace(c.LLM.APIKey) != "" && strings.TrimSpace(c.LLM.BaseURL) != "":
			provider = ProviderOpenAI
		case c.LLM.DeepSeekAPIKey != "":
			provider = ProviderDeepSeek
		case c.LLM.OpenAIAPIKey != "":
			provider = ProviderOpenAI
		case c.LLM.GeminiAPIKey != "":
			provider = ProviderGemini
		default:
			provider = ProviderDeepSeek
		}
	}

	resolved := LLMConfig{
		Provider:       provider,
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		Mock:           c.LLM.Mock,
	}
	switch provider {
	case ProviderDeepSeek:
		resolved.APIKey = firstNonEmpty(resolved.APIKey, c.LLM.DeepSeekAPIKey)
		resolved.BaseURL = firstNonEmpty(resolved.BaseURL, defaultDeepSeekBaseURL)
		resolved.Model = firstNonEmpty(resolved.Model, defaultDeepSeekModel)
	case ProviderOpenAI:
		resolved.APIKey = firstNonEmpty(resolved.APIKey, c.LLM.OpenAIAPIKey)
		resolved.BaseURL = firstNonEmpty(resolved.BaseURL, defaultOpenAIBaseURL)
		resolved.Model = firstNonEmpty(resolved.Model, defaultOpenAIModel)
	case ProviderGemini:
		resolved.APIKey = firstNonEmpty(resolved.APIKey, c.LLM.GeminiAPIKey)
		resolved.Model = firstNonEmpty(resolved.Model, defaultGeminiModel)
	}
	return resolved
}

// FileTranscribeRegion returns the region for the file transcription API:
// explicit setting, then the OSS region without its "oss-" prefix, then
// cn-hangzhou.
func (c *Config) FileTranscribeRegion() string {
	if region := strings.TrimSpace(c.Aliyun.FileTranscribeRegion); region != "" {
		return region
	}
	if region := strings.TrimPrefix(strings.TrimSpace(c.OSS.Region), "oss-"); region != "" {
		return region
	}
	return defaultFileTranscribeRegion
}

// PollInterval returns the file transcription polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.FileTranscribe.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the file transcription polling deadline.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.FileTranscribe.PollTimeoutSeconds) * time.Second
}

// SummaryInterval returns the rolling summary cadence.
func (c *Config) SummaryInterval() time.Duration {
	return time.Duration(c.Summary.IntervalSeconds) * time.Second
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
