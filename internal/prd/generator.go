package prd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"prdforge/internal/logging"
	"prdforge/internal/services"
	"prdforge/internal/services/llm"
)

// Completer runs one prompt against a chat model.
type Completer interface {
	Complete(ctx context.Context, prompt llm.Prompt) (string, error)
}

// Generator produces summaries, overviews, and PRDs.
type Generator struct {
	completer Completer
	mock      bool
	logger    *slog.Logger
}

// Option customizes the generator.
type Option func(*Generator)

// WithMock switches every operation to canned output.
func WithMock(enabled bool) Option {
	return func(g *Generator) { g.mock = enabled }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator constructs a generator. completer may be nil in mock mode.
func NewGenerator(completer Completer, opts ...Option) *Generator {
	g := &Generator{completer: completer, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "prd")
	return g
}

// Mock reports whether canned output is in use.
func (g *Generator) Mock() bool { return g.mock }

func (g *Generator) complete(ctx context.Context, op string, prompt llm.Prompt) (string, error) {
	if g.completer == nil {
		return "", services.Wrap(services.ErrConfiguration, "prd", op, "no language model configured (set DEEPSEEK_API_KEY, OPENAI_API_KEY, or GEMINI_API_KEY)", nil)
	}
	return g.completer.Complete(ctx, prompt)
}

// MiniSummary compresses a window of transcript into at most 150 characters
// of plain text.
func (g *Generator) MiniSummary(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "prd", "mini summary", "text required", nil)
	}
	if g.mock {
		return mockMiniSummary(text), nil
	}
	out, err := g.complete(ctx, "mini summary", llm.Prompt{
		System:      miniSummarySystem,
		User:        text,
		Temperature: 0.5,
		MaxTokens:   250,
	})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", services.Wrap(services.ErrUpstream, "prd", "mini summary", "model returned no summary", nil)
	}
	g.logger.Debug("mini summary generated",
		logging.Int("input_chars", runeCount(text)),
		logging.Int("summary_chars", runeCount(out)),
	)
	return out, nil
}

// Overview folds newSummary into previous. An empty previous starts a fresh
// overview.
func (g *Generator) Overview(ctx context.Context, previous, newSummary string) (string, error) {
	previous = strings.TrimSpace(previous)
	newSummary = strings.TrimSpace(newSummary)
	if newSummary == "" {
		return "", services.Wrap(services.ErrValidation, "prd", "overview", "new summary required", nil)
	}
	if g.mock {
		return mockOverview(previous, newSummary), nil
	}
	var user string
	if previous != "" {
		user = fmt.Sprintf(overviewMergeTemplate, previous, newSummary)
	} else {
		user = fmt.Sprintf(overviewFirstTemplate, newSummary)
	}
	out, err := g.complete(ctx, "overview", llm.Prompt{
		User:        user,
		Temperature: 0.5,
		MaxTokens:   500,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// GeneratePRD builds a document from a full transcript.
func (g *Generator) GeneratePRD(ctx context.Context, transcript string) (Document, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Document{}, services.Wrap(services.ErrValidation, "prd", "generate", "transcript required", nil)
	}
	if g.mock {
		return mockDocument(), nil
	}
	g.logger.Info("generating prd from transcript", logging.Int("chars", runeCount(transcript)))
	return g.generate(ctx, "generate", transcriptSystem, transcript)
}

// GeneratePRDFromSummaries builds a document from rolling summaries, which
// keeps the prompt short for long meetings.
func (g *Generator) GeneratePRDFromSummaries(ctx context.Context, summaries []Summary) (Document, error) {
	kept := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if strings.TrimSpace(s.Content) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return Document{}, services.Wrap(services.ErrValidation, "prd", "generate from summaries", "at least one summary required", nil)
	}
	if g.mock {
		return mockDocument(), nil
	}
	user := summariesUserPrompt(kept)
	g.logger.Info("generating prd from summaries",
		logging.Int("summaries", len(kept)),
		logging.Int("chars", runeCount(user)),
	)
	return g.generate(ctx, "generate from summaries", summariesSystem, user)
}

func (g *Generator) generate(ctx context.Context, op, system, user string) (Document, error) {
	out, err := g.complete(ctx, op, llm.Prompt{
		System:      system,
		User:        user,
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		return Document{}, err
	}
	return ParseDocument(out)
}

// ParseDocument decodes a model response into a Document.
func ParseDocument(content string) (Document, error) {
	var doc Document
	if err := llm.DecodeLLMJSON(content, &doc); err != nil {
		return Document{}, services.Wrap(services.ErrParse, "prd", "parse", "malformed prd response", err)
	}
	doc.normalize()
	if doc.empty() {
		return Document{}, services.Wrap(services.ErrParse, "prd", "parse", "prd response has no content", nil)
	}
	return doc, nil
}

func runeCount(s string) int {
	return len([]rune(s))
}
