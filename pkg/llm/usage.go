package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/yesno/internal/models"
	"github.com/xhad/yesno/internal/types"
	"github.com/xhad/yesno/pkg/config"
	"go.uber.org/zap"
)

// Tokenizer ranks are embedded in the binary; counting never downloads them.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// CountTokens counts text with the tokenizer langchaingo associates with model.
// Models tiktoken does not know, Claude included, are counted as cl100k_base.
func CountTokens(text, model string) int {
	return llms.CountTokens(model, text)
}

var _ types.TokenCounter = CountTokens

// UsageTracker accumulates token usage across model calls. Its Track method
// satisfies types.CounterCallback.
type UsageTracker struct {
	mu      sync.Mutex
	total   models.Usage
	byModel map[string]models.Usage
	logger  *zap.Logger
}

func NewUsageTracker(logger *zap.Logger) *UsageTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UsageTracker{
		byModel: make(map[string]models.Usage),
		logger:  logger,
	}
}

func (t *UsageTracker) Track(inputTokens, outputTokens int, model string, counter types.TokenCounter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	add(&t.total, inputTokens, outputTokens)
	perModel := t.byModel[model]
	add(&perModel, inputTokens, outputTokens)
	t.byModel[model] = perModel

	t.logger.Debug("token usage",
		zap.String("model", model),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
		zap.Int("total_tokens", t.total.TotalTokens))
}

func (t *UsageTracker) Totals() models.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *UsageTracker) ByModel(model string) models.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byModel[model]
}

func add(u *models.Usage, input, output int) {
	u.InputTokens += input
	u.OutputTokens += output
	u.TotalTokens += input + output
	u.Calls++
}

// NewGenerator builds the generator for the configured provider.
func NewGenerator(cfg *config.Config, logger *zap.Logger) (types.Generator, error) {
	switch cfg.LLM.Provider {
	case config.ProviderAnthropic:
		return NewClaudeGenerator(ClaudeConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: 2,
			Logger:     logger,
		})
	case config.ProviderOllama:
		return NewWithConfig(ChatConfig{
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}
