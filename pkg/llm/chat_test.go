package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/xhad/yesno/internal/types"
	"github.com/xhad/yesno/pkg/llm"
)

type fakeModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	return m.response, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNewWithConfig(t *testing.T) {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:   "mistral",
		BaseURL: "http://localhost:1234",
	})
	assert.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestChatGenerate(t *testing.T) {
	model := &fakeModel{
		response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{
				Content: "<queries>\nfoo\n</queries>",
				GenerationInfo: map[string]any{
					"PromptTokens":     42,
					"CompletionTokens": float64(7),
				},
			}},
		},
	}
	engine := llm.NewWithModel(model, llm.ChatConfig{Model: "mistral"})

	gen, err := engine.Generate(context.Background(), types.GenerateRequest{
		Prompt:       "question",
		SystemPrompt: "system",
		Temperature:  0.3,
		MaxTokens:    500,
	})
	require.NoError(t, err)

	assert.Equal(t, "<queries>\nfoo\n</queries>", gen.Text)
	assert.Equal(t, 42, gen.InputTokens)
	assert.Equal(t, 7, gen.OutputTokens)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, "mistral", model.options.Model)
	assert.Equal(t, 0.3, model.options.Temperature)
	assert.Equal(t, 500, model.options.MaxTokens)
}

func TestChatGenerateWithoutSystemPrompt(t *testing.T) {
	model := &fakeModel{
		response: &llms.ContentResponse{
			Choices: []*llms.ContentChoice{{Content: "ok"}},
		},
	}
	engine := llm.NewWithModel(model, llm.ChatConfig{Model: "mistral"})

	gen, err := engine.Generate(context.Background(), types.GenerateRequest{Prompt: "hi", Model: "llama3"})
	require.NoError(t, err)

	assert.Equal(t, "ok", gen.Text)
	assert.Zero(t, gen.InputTokens)
	require.Len(t, model.messages, 1)
	assert.Equal(t, "llama3", model.options.Model)
}

func TestChatGenerateErrors(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		model := &fakeModel{err: errors.New("connection refused")}
		engine := llm.NewWithModel(model, llm.ChatConfig{})

		_, err := engine.Generate(context.Background(), types.GenerateRequest{Prompt: "hi"})
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("no choices", func(t *testing.T) {
		model := &fakeModel{response: &llms.ContentResponse{}}
		engine := llm.NewWithModel(model, llm.ChatConfig{})

		_, err := engine.Generate(context.Background(), types.GenerateRequest{Prompt: "hi"})
		assert.ErrorContains(t, err, "no response")
	})
}
