package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeAliyun()
	c.normalizeSegmenter()
	c.normalizeStreaming()
	c.normalizeSummary()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if c.Paths.UploadDir == "" {
		if value, ok := os.LookupEnv("UPLOAD_DIR"); ok {
			c.Paths.UploadDir = strings.TrimSpace(value)
		}
	}
	for _, field := range []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.scratch_dir", &c.Paths.ScratchDir, defaultScratchDir},
		{"paths.upload_dir", &c.Paths.UploadDir, defaultUploadDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	} {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultAPIBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("PRDFORGE_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderAuto
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.DeepSeekAPIKey = envFallback(c.LLM.DeepSeekAPIKey, "DEEPSEEK_API_KEY")
	c.LLM.OpenAIAPIKey = envFallback(c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	c.LLM.GeminiAPIKey = envFallback(c.LLM.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	if !c.LLM.Mock {
		if value, ok := os.LookupEnv("USE_MOCK"); ok {
			if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
				c.LLM.Mock = parsed
			}
		}
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = ProviderAliyun
	}
	c.Transcription.OpenAIModel = strings.TrimSpace(c.Transcription.OpenAIModel)
	if c.Transcription.OpenAIModel == "" {
		c.Transcription.OpenAIModel = defaultTranscriptionModel
	}
}

func (c *Config) normalizeAliyun() {
	c.Aliyun.AccessKeyID = envFallback(c.Aliyun.AccessKeyID, "ALIYUN_ACCESS_KEY_ID")
	c.Aliyun.AccessKeySecret = envFallback(c.Aliyun.AccessKeySecret, "ALIYUN_ACCESS_KEY_SECRET")
	c.Aliyun.AppKey = envFallback(c.Aliyun.AppKey, "ALIYUN_ASR_APP_KEY")
	c.Aliyun.ASRRegion = envFallback(c.Aliyun.ASRRegion, "ALIYUN_ASR_REGION")
	if c.Aliyun.ASRRegion == "" {
		c.Aliyun.ASRRegion = defaultASRRegion
	}
	c.Aliyun.FileTranscribeRegion = envFallback(c.Aliyun.FileTranscribeRegion, "ALIYUN_FILE_TRANSCRIBE_REGION")
	c.Aliyun.TokenRegion = strings.TrimSpace(c.Aliyun.TokenRegion)
	if c.Aliyun.TokenRegion == "" {
		c.Aliyun.TokenRegion = defaultTokenRegion
	}

	c.OSS.Region = envFallback(c.OSS.Region, "ALIYUN_OSS_REGION")
	if c.OSS.Region == "" {
		c.OSS.Region = defaultOSSRegion
	}
	c.OSS.Bucket = envFallback(c.OSS.Bucket, "ALIYUN_OSS_BUCKET")
	c.OSS.Endpoint = strings.TrimSpace(c.OSS.Endpoint)
	if c.OSS.SignedURLExpires <= 0 {
		c.OSS.SignedURLExpires = defaultSignedURLExpires
	}
}

func (c *Config) normalizeSegmenter() {
	c.Segmenter.FFmpegBinary = strings.TrimSpace(c.Segmenter.FFmpegBinary)
	if c.Segmenter.FFmpegBinary == "" {
		c.Segmenter.FFmpegBinary = defaultFFmpegBinary
	}
	c.Segmenter.FFprobeBinary = strings.TrimSpace(c.Segmenter.FFprobeBinary)
	if c.Segmenter.FFprobeBinary == "" {
		c.Segmenter.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeStreaming() {
	c.Streaming.Provider = strings.ToLower(strings.TrimSpace(c.Streaming.Provider))
	if c.Streaming.Provider == "" {
		c.Streaming.Provider = ProviderAliyun
	}
	c.Streaming.LanguageCode = strings.TrimSpace(c.Streaming.LanguageCode)
	if c.Streaming.LanguageCode == "" {
		c.Streaming.LanguageCode = defaultLanguageCode
	}
	c.Streaming.GoogleProject = envFallback(c.Streaming.GoogleProject, "GOOGLE_CLOUD_PROJECT")
}

func (c *Config) normalizeSummary() {
	c.Summary.RedisAddr = envFallback(c.Summary.RedisAddr, "REDIS_ADDR")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// envFallback returns the trimmed value, or the first non-empty environment
// variable among keys when the value is blank.
func envFallback(value string, keys ...string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	for _, key := range keys {
		if env, ok := os.LookupEnv(key); ok {
			if trimmed := strings.TrimSpace(env); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
