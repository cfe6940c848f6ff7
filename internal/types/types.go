package types

import (
	"context"
	"fmt"
)

// Core interfaces

// GenerateRequest carries one model call's prompt and generation parameters.
type GenerateRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Generation is the text a model produced plus its token usage.
type Generation struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// Searcher maps a query to at most num result URLs, in engine order.
type Searcher interface {
	Search(ctx context.Context, query string, num int) ([]string, error)
}

// TokenCounter counts the tokens text occupies for model.
type TokenCounter func(text, model string) int

// CounterCallback receives token usage after every model call.
type CounterCallback func(inputTokens, outputTokens int, model string, counter TokenCounter)

// ParseError reports a tagged model output field that was missing or malformed.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error parsing %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("error parsing %s", e.Field)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
