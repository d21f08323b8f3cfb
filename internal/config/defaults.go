package config

// Provider identifiers accepted by [llm] provider, [transcription] provider,
// and [streaming] provider.
const (
	ProviderAuto     = "auto"
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
	ProviderAliyun   = "aliyun"
	ProviderGoogle   = "google"
)

const (
	defaultDataDir                = "~/.local/share/prdforge"
	defaultScratchDir             = "~/.local/share/prdforge/scratch"
	defaultUploadDir              = "~/.local/share/prdforge/uploads"
	defaultLogDir                 = "~/.local/share/prdforge/logs"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultMaxUploadMB            = 512
	defaultLLMTimeoutSeconds      = 120
	defaultDeepSeekBaseURL        = "https://api.deepseek.com/v1"
	defaultDeepSeekModel          = "deepseek-chat"
	defaultOpenAIBaseURL          = "https://api.openai.com/v1"
	defaultOpenAIModel            = "gpt-4o"
	defaultGeminiModel            = "gemini-2.0-flash"
	defaultTranscriptionModel     = "whisper-1"
	defaultASRRegion              = "cn-shanghai"
	defaultTokenRegion            = "cn-shanghai"
	defaultFileTranscribeRegion   = "cn-hangzhou"
	defaultOSSRegion              = "oss-cn-shanghai"
	defaultSignedURLExpires       = 3600
	defaultWindowSeconds          = 120
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultPollIntervalSeconds    = 2
	defaultPollTimeoutSeconds     = 180
	defaultSampleRate             = 16000
	defaultFrameBytes             = 6400
	defaultFrameIntervalMillis    = 200
	defaultHeartbeatSeconds       = 3
	defaultIdleTimeoutSeconds     = 8
	defaultSessionTimeoutSeconds  = 10
	defaultMinAudioBytes          = 2000
	defaultLanguageCode           = "zh-CN"
	defaultSummaryIntervalSeconds = 120
	defaultSummaryMinNewChars     = 50
	defaultSummaryRedisTTLHours   = 72
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults. Fields that
// accept an environment fallback stay empty until normalize runs.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
		},
		Server: Server{
			Bind:        defaultAPIBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		LLM: LLM{
			Provider:       ProviderAuto,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Transcription: Transcription{
			Provider:    ProviderAliyun,
			OpenAIModel: defaultTranscriptionModel,
		},
		Aliyun: Aliyun{
			TokenRegion: defaultTokenRegion,
		},
		OSS: OSS{
			SignedURLExpires: defaultSignedURLExpires,
		},
		Segmenter: Segmenter{
			WindowSeconds: defaultWindowSeconds,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		FileTranscribe: FileTranscribe{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			PollTimeoutSeconds:  defaultPollTimeoutSeconds,
		},
		Streaming: Streaming{
			Provider:              ProviderAliyun,
			SampleRate:            defaultSampleRate,
			FrameBytes:            defaultFrameBytes,
			FrameIntervalMillis:   defaultFrameIntervalMillis,
			HeartbeatSeconds:      defaultHeartbeatSeconds,
			IdleTimeoutSeconds:    defaultIdleTimeoutSeconds,
			SessionTimeoutSeconds: defaultSessionTimeoutSeconds,
			MinAudioBytes:         defaultMinAudioBytes,
			LanguageCode:          defaultLanguageCode,
		},
		Summary: Summary{
			IntervalSeconds: defaultSummaryIntervalSeconds,
			MinNewChars:     defaultSummaryMinNewChars,
			RedisTTLHours:   defaultSummaryRedisTTLHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
