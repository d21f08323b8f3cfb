// Package gemini implements the summary completer on Google's Gemini API.
package gemini

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"prdforge/internal/services"
	"prdforge/internal/services/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client issues single-turn GenerateContent calls.
type Client struct {
	apiKey string
	model  string

	once      sync.Once
	initErr   error
	generator contentGenerator
}

// Option customizes the client.
type Option func(*Client)

// WithGenerator replaces the genai model service (primarily for tests).
func WithGenerator(g contentGenerator) Option {
	return func(c *Client) {
		if g != nil {
			c.generator = g
			c.once.Do(func() {})
		}
	}
}

// New constructs a client. The genai SDK client is created on first use so a
// missing key only fails the calls that need it.
func New(apiKey, model string, opts ...Option) *Client {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{apiKey: strings.TrimSpace(apiKey), model: model}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider label.
func (c *Client) Provider() string { return "gemini" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

func (c *Client) init(ctx context.Context) error {
	c.once.Do(func() {
		if c.apiKey == "" {
			c.initErr = services.Wrap(services.ErrConfiguration, "llm", "gemini init", "api key required", nil)
			return
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			c.initErr = services.Wrap(services.ErrConfiguration, "llm", "gemini init", "create client", err)
			return
		}
		c.generator = client.Models
	})
	return c.initErr
}

// Complete sends prompt as one user turn with the system prompt as the
// system instruction.
func (c *Client) Complete(ctx context.Context, prompt llm.Prompt) (string, error) {
	if err := c.init(ctx); err != nil {
		return "", err
	}
	user := strings.TrimSpace(prompt.User)
	if user == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "gemini complete", "user prompt required", nil)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(prompt.Temperature)),
	}
	if prompt.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	if system := strings.TrimSpace(prompt.System); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if prompt.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: user}}},
	}
	resp, err := c.generator.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyError(err)
	}
	if text := responseText(resp); text != "" {
		return text, nil
	}
	return "", services.Wrap(services.ErrUpstream, "llm", "gemini complete", "no content generated", nil)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			if part != nil && !part.Thought {
				b.WriteString(part.Text)
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			return text
		}
	}
	return ""
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		return &services.UpstreamError{
			Provider:   "gemini",
			StatusCode: apiErr.Code,
			Code:       apiErr.Status,
			Message:    apiErr.Message,
		}
	}
	return services.Wrap(services.ErrUpstream, "llm", "gemini complete", "", err)
}
