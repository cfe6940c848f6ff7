package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "OLLAMA_BASE_URL", "GOOGLE_API_KEY", "GOOGLE_ENGINE_ID", "YESNO_LOG_LEVEL", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
tool: prediction-url-cot-claude

llm:
  provider: anthropic
  model: claude-3-haiku-20240307
  api_key: "sk-test"
  max_tokens: 800
  temperature: 0.2

search:
  api_key: "google-key"
  engine_id: "engine"
  num_queries: 4
  num_urls: 2

fetcher:
  window: 3
  timeout: 5s
  max_redirects: 2
  retries: 3

selector:
  n_docs: 6
  cutoff: 2

log:
  level: debug
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "claude-3-haiku-20240307", config.LLM.Model)
	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, 800, config.LLM.MaxTokens)
	assert.Equal(t, 0.2, config.LLM.Temperature)
	assert.Equal(t, "google-key", config.Search.APIKey)
	assert.Equal(t, 4, config.Search.NumQueries)
	assert.Equal(t, 2, config.Search.NumURLs)
	assert.Equal(t, 3, config.Fetcher.Window)
	assert.Equal(t, 5*time.Second, config.Fetcher.Timeout)
	assert.Equal(t, 3, config.Fetcher.Retries)
	assert.Equal(t, 6, config.Selector.NDocs)
	assert.Equal(t, 2, config.Selector.Cutoff)
	assert.Equal(t, "debug", config.Log.Level)

	// Unset values fall back to defaults
	assert.Equal(t, DefaultSystemTemplate, config.LLM.SystemTemplate)
	assert.Equal(t, 60, config.Selector.MinWords)
	assert.Equal(t, 10000, config.Selector.MaxWords)
	assert.Equal(t, 500*time.Millisecond, config.Fetcher.RetryBackoff)

	assert.Empty(t, config.Validate())
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config := Default()

	assert.Equal(t, DefaultTool, config.Tool)
	assert.Equal(t, "claude-3-haiku-20240307", config.LLM.Model)
	assert.Equal(t, ProviderAnthropic, config.LLM.Provider)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.0, config.LLM.Temperature)
	assert.Equal(t, 5, config.Search.NumQueries)
	assert.Equal(t, 3, config.Search.NumURLs)
	assert.Equal(t, 5, config.Fetcher.Window)
	assert.Equal(t, 20*time.Second, config.Fetcher.Timeout)
	assert.Equal(t, 5, config.Fetcher.MaxRedirects)
	assert.Equal(t, 2, config.Fetcher.Retries)
	assert.Equal(t, 5, config.Selector.NDocs)
	assert.Equal(t, 4, config.Selector.Cutoff)
}

func validConfig() Config {
	config := Config{}
	applyDefaults(&config)
	config.LLM.APIKey = "sk-test"
	return config
}

func TestConfigValidation(t *testing.T) {
	invalid := validConfig()
	invalid.Tool = "prediction-online"
	invalid.LLM.Model = "gpt-4"
	invalid.LLM.APIKey = ""
	invalid.LLM.BaseURL = "invalid-url"
	invalid.LLM.MaxTokens = 5000
	invalid.LLM.Temperature = 3.0

	mismatched := validConfig()
	mismatched.LLM.Provider = ProviderOllama

	fetcher := validConfig()
	fetcher.Fetcher.Window = 0
	fetcher.Fetcher.Retries = 0
	fetcher.Selector.Cutoff = 0

	disabled := validConfig()
	disabled.Fetcher.MaxRedirects = -1
	disabled.Selector.MinWords = -1

	belowSentinel := validConfig()
	belowSentinel.Fetcher.MaxRedirects = -2
	belowSentinel.Selector.MinWords = -2

	tests := []struct {
		name          string
		config        Config
		expectedErrs  int
		errorMessages []string
	}{
		{
			name:         "valid config",
			config:       validConfig(),
			expectedErrs: 0,
		},
		{
			name:         "invalid config",
			config:       invalid,
			expectedErrs: 6,
			errorMessages: []string{
				"tool: tool prediction-online not supported",
				"llm.model: model gpt-4 not supported",
				"llm.api_key: Anthropic API key is required",
				"llm.base_url: invalid LLM base URL",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 1",
			},
		},
		{
			name:          "provider does not serve model",
			config:        mismatched,
			expectedErrs:  1,
			errorMessages: []string{"llm.provider"},
		},
		{
			name:         "invalid fetcher and selector",
			config:       fetcher,
			expectedErrs: 3,
			errorMessages: []string{
				"fetcher.window: window must be positive",
				"fetcher.retries: retries must be positive",
				"selector.cutoff: cutoff must be positive",
			},
		},
		{
			name:         "none spelled as -1",
			config:       disabled,
			expectedErrs: 0,
		},
		{
			name:         "below the none sentinel",
			config:       belowSentinel,
			expectedErrs: 2,
			errorMessages: []string{
				"fetcher.max_redirects",
				"selector.min_words",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := tt.config.Validate()
			assert.Len(t, errors, tt.expectedErrs)

			for i, msg := range tt.errorMessages {
				require.Greater(t, len(errors), i)
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("GOOGLE_API_KEY", "google-env")
	t.Setenv("GOOGLE_ENGINE_ID", "engine-env")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "sk-env", config.LLM.APIKey)
	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "google-env", config.Search.APIKey)
	assert.Equal(t, "engine-env", config.Search.EngineID)
}

func TestResolveEngine(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		model   string
		want    string
		wantErr error
	}{
		{"tool default engine", DefaultTool, "", "claude-3-haiku-20240307", nil},
		{"explicit model", DefaultTool, "mistral", "mistral", nil},
		{"unknown tool", "prediction-offline", "", "", ErrUnsupportedTool},
		{"unknown model", DefaultTool, "gpt-4", "", ErrUnsupportedModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEngine(tt.tool, tt.model)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
