package config

import (
	"errors"
	"fmt"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	DefaultTool = "prediction-url-cot-claude"
)

var (
	ErrUnsupportedTool  = errors.New("tool not supported")
	ErrUnsupportedModel = errors.New("model not supported")
)

var AllowedTools = []string{
	DefaultTool,
}

// AllowedModels maps every usable model to the provider that serves it.
var AllowedModels = map[string]string{
	"claude-3-haiku-20240307": ProviderAnthropic,
	"mistral":                 ProviderOllama,
}

var ToolToEngine = map[string]string{
	DefaultTool: "claude-3-haiku-20240307",
}

// ContextWindow is the prompt token limit per model.
var ContextWindow = map[string]int{
	"claude-2":                 200_000,
	"claude-2.1":               200_000,
	"claude-3-haiku-20240307":  200_000,
	"claude-3-sonnet-20240229": 200_000,
	"claude-3-opus-20240229":   200_000,
	"mistral":                  32_000,
}

func IsAllowedTool(tool string) bool {
	for _, t := range AllowedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// ResolveEngine checks tool and model against the catalog and returns the
// model to run. An empty model falls back to the tool's engine.
func ResolveEngine(tool, model string) (string, error) {
	if !IsAllowedTool(tool) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTool, tool)
	}
	if model == "" {
		model = ToolToEngine[tool]
	}
	if _, ok := AllowedModels[model]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}
	return model, nil
}
