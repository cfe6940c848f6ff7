package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/yesno/pkg/config"
	"github.com/xhad/yesno/pkg/llm"
	"github.com/xhad/yesno/pkg/predictor"
	"github.com/xhad/yesno/pkg/search"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "yesno",
	Short: "Forecast yes/no questions from web sources",
	Long: `yesno answers a yes/no forecasting question by generating search queries,
fetching and extracting the pages they find, and asking a language model for
p_yes, p_no, info_utility and confidence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}

		logger, err = newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// newPipeline validates the configuration and wires the generator and
// search engine into a prediction pipeline.
func newPipeline(ctx context.Context) (*predictor.Pipeline, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	generator, err := llm.NewGenerator(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	var searcher *search.GoogleSearcher
	if cfg.Search.APIKey != "" && cfg.Search.EngineID != "" {
		searcher, err = search.NewGoogleSearcher(ctx, search.GoogleConfig{
			APIKey:    cfg.Search.APIKey,
			EngineID:  cfg.Search.EngineID,
			RateLimit: cfg.Search.RateLimit,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize search: %w", err)
		}
	} else {
		logger.Warn("GOOGLE_API_KEY or GOOGLE_ENGINE_ID not set, web search disabled")
	}

	pipelineConfig := predictor.PipelineConfig{
		Config:    cfg,
		Generator: generator,
		Logger:    logger,
	}
	// A nil *GoogleSearcher must not become a non-nil interface.
	if searcher != nil {
		pipelineConfig.Searcher = searcher
	}

	return predictor.NewWithConfig(pipelineConfig)
}
