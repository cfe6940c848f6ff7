package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate tool and model against the catalog
	if !IsAllowedTool(c.Tool) {
		errors = append(errors, ValidationError{
			Field:   "tool",
			Message: fmt.Sprintf("tool %s not supported", c.Tool),
		})
	}

	provider, ok := AllowedModels[c.LLM.Model]
	if !ok {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: fmt.Sprintf("model %s not supported", c.LLM.Model),
		})
	} else if c.LLM.Provider != provider {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("model %s is served by %s, not %q", c.LLM.Model, provider, c.LLM.Provider),
		})
	}

	if c.LLM.Provider == ProviderAnthropic && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "Anthropic API key is required",
		})
	}

	if c.LLM.BaseURL != "" {
		if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid LLM base URL",
			})
		}
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Search config
	if c.Search.NumQueries < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.num_queries",
			Message: "num_queries must be positive",
		})
	}

	if c.Search.NumURLs < 1 || c.Search.NumURLs > 10 {
		errors = append(errors, ValidationError{
			Field:   "search.num_urls",
			Message: "num_urls must be between 1 and 10",
		})
	}

	if c.Search.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate Fetcher config
	if c.Fetcher.Window < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.window",
			Message: "window must be positive",
		})
	}

	if c.Fetcher.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.timeout",
			Message: "timeout must be positive",
		})
	}

	// Zero means the default, so -1 is how "none" is spelled.
	if c.Fetcher.MaxRedirects < -1 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.max_redirects",
			Message: "max_redirects must be -1 (none) or positive",
		})
	}

	if c.Fetcher.Retries < 1 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.retries",
			Message: "retries must be positive",
		})
	}

	// Validate Selector config
	if c.Selector.MinWords < -1 {
		errors = append(errors, ValidationError{
			Field:   "selector.min_words",
			Message: "min_words must be -1 (no minimum) or positive",
		})
	}

	if c.Selector.MaxWords < c.Selector.MinWords {
		errors = append(errors, ValidationError{
			Field:   "selector.max_words",
			Message: "max_words must not be below min_words",
		})
	}

	if c.Selector.Cutoff < 1 {
		errors = append(errors, ValidationError{
			Field:   "selector.cutoff",
			Message: "cutoff must be positive",
		})
	}

	if c.Selector.WordCap < 0 {
		errors = append(errors, ValidationError{
			Field:   "selector.word_cap",
			Message: "word_cap must not be negative",
		})
	}

	return errors
}
