package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultSystemTemplate = "You are a world class algorithm for generating structured output from a given input."

type Config struct {
	Tool string `yaml:"tool"`

	LLM struct {
		Provider       string        `yaml:"provider"`
		Model          string        `yaml:"model"`
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		MaxTokens      int           `yaml:"max_tokens"`
		Temperature    float64       `yaml:"temperature"`
		SystemTemplate string        `yaml:"system_template"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Search struct {
		APIKey     string  `yaml:"api_key"`
		EngineID   string  `yaml:"engine_id"`
		NumQueries int     `yaml:"num_queries"`
		NumURLs    int     `yaml:"num_urls"`
		RateLimit  float64 `yaml:"rate_limit"`
	} `yaml:"search"`

	Fetcher struct {
		Window       int           `yaml:"window"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxRedirects int           `yaml:"max_redirects"` // -1 follows none
		Retries      int           `yaml:"retries"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
		UserAgent    string        `yaml:"user_agent"`
	} `yaml:"fetcher"`

	Selector struct {
		NDocs    int `yaml:"n_docs"`
		MinWords int `yaml:"min_words"` // -1 disables the minimum
		MaxWords int `yaml:"max_words"`
		Cutoff   int `yaml:"cutoff"`
		WordCap  int `yaml:"word_cap"`
	} `yaml:"selector"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/yesno/config.yaml"),
			"/etc/yesno/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

// Default returns a configuration with every default applied and the
// environment merged in, without touching the filesystem.
func Default() *Config {
	config, _ := getDefaultConfig()
	return config
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

// Temperature is left alone: zero is the intended default.
func applyDefaults(config *Config) {
	if config.Tool == "" {
		config.Tool = DefaultTool
	}

	if config.LLM.Model == "" {
		config.LLM.Model = ToolToEngine[config.Tool]
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = AllowedModels[config.LLM.Model]
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.SystemTemplate == "" {
		config.LLM.SystemTemplate = DefaultSystemTemplate
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 2 * time.Minute
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == ProviderOllama {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Search.NumQueries == 0 {
		config.Search.NumQueries = 5
	}
	if config.Search.NumURLs == 0 {
		config.Search.NumURLs = 3
	}
	if config.Search.RateLimit == 0 {
		config.Search.RateLimit = 5
	}

	if config.Fetcher.Window == 0 {
		config.Fetcher.Window = 5
	}
	if config.Fetcher.Timeout == 0 {
		config.Fetcher.Timeout = 20 * time.Second
	}
	if config.Fetcher.MaxRedirects == 0 {
		config.Fetcher.MaxRedirects = 5
	}
	if config.Fetcher.Retries == 0 {
		config.Fetcher.Retries = 2
	}
	if config.Fetcher.RetryBackoff == 0 {
		config.Fetcher.RetryBackoff = 500 * time.Millisecond
	}
	if config.Fetcher.MaxBodyBytes == 0 {
		config.Fetcher.MaxBodyBytes = 20 << 20
	}
	if config.Fetcher.UserAgent == "" {
		config.Fetcher.UserAgent = "Mozilla/5.0 (compatible; yesno/1.0)"
	}

	if config.Selector.NDocs == 0 {
		config.Selector.NDocs = 5
	}
	if config.Selector.MinWords == 0 {
		config.Selector.MinWords = 60
	}
	if config.Selector.MaxWords == 0 {
		config.Selector.MaxWords = 10000
	}
	if config.Selector.Cutoff == 0 {
		config.Selector.Cutoff = 4
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Search.APIKey = apiKey
	}
	if engineID := os.Getenv("GOOGLE_ENGINE_ID"); engineID != "" {
		config.Search.EngineID = engineID
	}
	if level := os.Getenv("YESNO_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}
