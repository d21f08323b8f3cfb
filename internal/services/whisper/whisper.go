// Package whisper transcribes a whole audio file in one request against the
// OpenAI audio transcription endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"prdforge/internal/services"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultModel    = "whisper-1"
	defaultLanguage = "zh"
	defaultTimeout  = 10 * time.Minute
)

// Config describes the transcription endpoint.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// Client posts audio as multipart form data.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New constructs a client, filling unset fields with defaults.
func New(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns a display label for the provider.
func (c *Client) Name() string { return "OpenAI Whisper" }

type transcriptionResponse struct {
	Text string `json:"text"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Transcribe uploads the audio read from r under fileName and returns the
// recognized text.
func (c *Client) Transcribe(ctx context.Context, fileName string, r io.Reader) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "whisper", "OpenAI API key required (OPENAI_API_KEY)", nil)
	}
	if r == nil {
		return "", services.Wrap(services.ErrValidation, "transcribe", "whisper", "audio required", nil)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.cfg.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField("language", c.cfg.Language); err != nil {
		return "", fmt.Errorf("write language field: %w", err)
	}
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." {
		name = "audio.wav"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "whisper", "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", upstreamError(resp.StatusCode, payload)
	}
	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", services.Wrap(services.ErrParse, "transcribe", "whisper", "decode response", err)
	}
	return strings.TrimSpace(decoded.Text), nil
}

func upstreamError(status int, payload []byte) error {
	upstream := &services.UpstreamError{Provider: "openai", StatusCode: status}
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Error.Message != "" {
		upstream.Message = env.Error.Message
		if env.Error.Code != nil {
			upstream.Code = fmt.Sprint(env.Error.Code)
		} else {
			upstream.Code = env.Error.Type
		}
		return upstream
	}
	upstream.Message = strings.TrimSpace(string(payload))
	if upstream.Message == "" {
		upstream.Message = http.StatusText(status)
	}
	return upstream
}
