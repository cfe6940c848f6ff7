package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/yesno/internal/types"
	"go.uber.org/zap"
)

// ChatConfig represents the configuration for a langchaingo backed generator.
type ChatConfig struct {
	Model   string
	BaseURL string // Ollama server URL
	Timeout time.Duration
	Logger  *zap.Logger
}

// ChatGenerator generates text through a langchaingo model.
type ChatGenerator struct {
	config ChatConfig
	llm    llms.Model
	logger *zap.Logger
}

var _ types.Generator = (*ChatGenerator)(nil)

// NewWithConfig creates a ChatGenerator talking to an Ollama server.
func NewWithConfig(config ChatConfig) (*ChatGenerator, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Minute
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(llm, config), nil
}

// NewWithModel wraps an already constructed langchaingo model.
func NewWithModel(model llms.Model, config ChatConfig) *ChatGenerator {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatGenerator{
		config: config,
		llm:    model,
		logger: logger,
	}
}

// Generate sends the system and user prompt as one exchange and returns the
// first choice.
func (g *ChatGenerator) Generate(ctx context.Context, req types.GenerateRequest) (*types.Generation, error) {
	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	content := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	options := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		options = append(options, llms.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	response, err := g.llm.GenerateContent(ctx, content, options...)
	if err != nil {
		return nil, fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return nil, fmt.Errorf("chat error: no response from LLM")
	}

	choice := response.Choices[0]
	generation := &types.Generation{
		Text:         choice.Content,
		InputTokens:  intFromInfo(choice.GenerationInfo, "InputTokens", "PromptTokens"),
		OutputTokens: intFromInfo(choice.GenerationInfo, "OutputTokens", "CompletionTokens"),
	}

	g.logger.Debug("chat completion finished",
		zap.String("model", model),
		zap.Int("input_tokens", generation.InputTokens),
		zap.Int("output_tokens", generation.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return generation, nil
}

// intFromInfo reads the first numeric value found under keys. Providers
// disagree on both the key names and the numeric type.
func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
