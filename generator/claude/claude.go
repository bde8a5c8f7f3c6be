// Package claude generates grounded answers with the Anthropic Messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/generator"
)

// DefaultSystemPrompt keeps answers inside the retrieved context.
const DefaultSystemPrompt = `You answer questions using only the numbered context passages provided.
Cite passages by their number in square brackets, e.g. [1].
If the passages do not contain the answer, say that you do not have enough information.
Be concise.`

// Config configures the generator.
type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int64
	Temperature  float64
	SystemPrompt string

	// MaxPassageChars truncates each passage in the prompt. Zero keeps
	// the full text.
	MaxPassageChars int

	// BaseURL overrides the API endpoint.
	BaseURL string

	// MaxRetries is the SDK's own retry count for 429/5xx responses.
	MaxRetries int
}

// Generator calls Claude.
type Generator struct {
	client *anthropic.Client
	cfg    Config
}

// New builds a generator. An empty API key is an error.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("claude: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Generator{client: &client, cfg: cfg}, nil
}

// Name returns "claude:<model>".
func (g *Generator) Name() string {
	return "claude:" + g.cfg.Model
}

// Generate sends the query and numbered passages as one user turn and
// returns the concatenated text blocks of the reply.
func (g *Generator) Generate(ctx context.Context, query string, passages []core.RetrievalResult) (string, error) {
	prompt := fmt.Sprintf("Context passages:\n\n%s\n\nQuestion: %s",
		generator.FormatPassages(passages, g.cfg.MaxPassageChars), query)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: g.cfg.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: g.cfg.SystemPrompt},
		},
		Temperature: anthropic.Float(g.cfg.Temperature),
	}

	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(text.String())
	if answer == "" {
		return "", fmt.Errorf("claude returned no text (stop reason %q)", resp.StopReason)
	}
	return answer, nil
}
