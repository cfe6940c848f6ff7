package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/xhad/yesno/internal/types"
	"go.uber.org/zap"
)

// ClaudeConfig configures a ClaudeGenerator.
type ClaudeConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     *zap.Logger
}

// ClaudeGenerator generates text with the Anthropic Messages API.
type ClaudeGenerator struct {
	config ClaudeConfig
	client anthropic.Client
	logger *zap.Logger
}

var _ types.Generator = (*ClaudeGenerator)(nil)

func NewClaudeGenerator(config ClaudeConfig) (*ClaudeGenerator, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or llm.api_key)")
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(config.MaxRetries),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &ClaudeGenerator{
		config: config,
		client: anthropic.NewClient(opts...),
		logger: config.Logger,
	}, nil
}

// Generate issues a single user turn and concatenates the text blocks of the
// reply.
func (g *ClaudeGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.Generation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	start := time.Now()
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text generated from Claude API")
	}

	generation := &types.Generation{
		Text:         text.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	g.logger.Debug("claude completion finished",
		zap.String("model", req.Model),
		zap.Int("input_tokens", generation.InputTokens),
		zap.Int("output_tokens", generation.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return generation, nil
}
