package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/yesno/internal/models"
	"github.com/xhad/yesno/internal/types"
	"github.com/xhad/yesno/pkg/predictor"
	"github.com/xhad/yesno/server"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	tool            string
	model           string
	numURLs         int
	numQueries      int
	nDocs           int
	temperature     float64
	maxTokens       int
	sourceLinksPath string
	jsonOutput      bool
	showPrompt      bool
)

var predictCmd = &cobra.Command{
	Use:   "predict [prompt]",
	Short: "Estimate the probability of a yes/no question",
	Long: `Runs a single prediction. When the prompt contains a double quoted
question only that question is forecast.

Example:
  yesno predict 'Answer this: "Will the Fed cut rates before July 2025?"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP and websocket",
	RunE:  runServe,
}

func init() {
	flags := predictCmd.Flags()
	flags.StringVar(&tool, "tool", "", "Tool identifier (defaults to config)")
	flags.StringVar(&model, "model", "", "Model identifier (defaults to the tool's engine)")
	flags.IntVar(&numURLs, "num-urls", 0, "Search results per query")
	flags.IntVar(&numQueries, "num-queries", 0, "Search queries to generate")
	flags.IntVar(&nDocs, "n-docs", 0, "Requested number of documents")
	flags.Float64Var(&temperature, "temperature", 0, "Sampling temperature")
	flags.IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens per model response")
	flags.StringVar(&sourceLinksPath, "source-links", "", "YAML file mapping URL to raw HTML, skips search and fetch")
	flags.BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	flags.BoolVar(&showPrompt, "show-prompt", false, "Print the prediction prompt")
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func loadSourceLinks(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading source links: %w", err)
	}
	links := map[string]string{}
	if err := yaml.Unmarshal(data, &links); err != nil {
		return nil, fmt.Errorf("error parsing source links: %w", err)
	}
	return links, nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := newPipeline(ctx)
	if err != nil {
		return err
	}

	req := predictor.Request{
		Prompt:     strings.Join(args, " "),
		Tool:       tool,
		Model:      model,
		NumURLs:    numURLs,
		NumQueries: numQueries,
		NDocs:      nDocs,
		MaxTokens:  maxTokens,
	}
	if cmd.Flags().Changed("temperature") {
		req.Temperature = &temperature
	}
	if sourceLinksPath != "" {
		if req.SourceLinks, err = loadSourceLinks(sourceLinksPath); err != nil {
			return err
		}
	}

	spinner := getSpinner("Generating search queries...")
	var fetched atomic.Int32
	req.OnProgress = func(ev models.ProgressEvent) {
		switch ev.Stage {
		case models.StageQueries:
			spinner.Describe(color.CyanString("Generated %d queries, searching...", ev.Count))
		case models.StageSearch:
			spinner.Describe(color.CyanString("Found %d URLs, fetching...", ev.Count))
		case models.StageFetch:
			n := fetched.Add(int32(ev.Count))
			spinner.Describe(color.CyanString("Fetched %d pages...", n))
		case models.StageSelect:
			spinner.Describe(color.CyanString("Selected %d documents", ev.Count))
		case models.StagePredict:
			spinner.Describe(color.CyanString("Asking the model..."))
		}
	}
	req.CounterCallback = func(in, out int, model string, counter types.TokenCounter) {
		logger.Debug("model call", zap.String("model", model), zap.Int("input_tokens", in), zap.Int("output_tokens", out))
	}

	result, err := pipeline.Run(ctx, req)
	_ = spinner.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(result)
	return nil
}

func printResult(result *models.Result) {
	label := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("%s %s\n", label("Question:"), result.Question)
	fmt.Printf("%s %s\n", label("Model:"), result.Model)

	p := result.Prediction
	yes := color.New(color.FgGreen, color.Bold).SprintfFunc()
	no := color.New(color.FgRed, color.Bold).SprintfFunc()
	fmt.Printf("%s %s  %s %s\n", label("p_yes:"), yes("%.2f", p.PYes), label("p_no:"), no("%.2f", p.PNo))
	fmt.Printf("%s %.2f  %s %.2f\n", label("info_utility:"), p.InfoUtility, label("confidence:"), p.Confidence)

	if len(result.Sources) > 0 {
		fmt.Println(label("Sources:"))
		for _, s := range result.Sources {
			fmt.Printf("  - %s\n", s)
		}
	} else {
		color.Yellow("No web sources were used")
	}

	if result.Usage != nil {
		fmt.Printf("%s %d in / %d out over %d calls (%s)\n",
			label("Tokens:"), result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.Calls, result.Elapsed.Round(time.Millisecond))
	}

	if showPrompt {
		fmt.Println(label("Prompt:"))
		fmt.Println(result.PredictionPrompt)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := newPipeline(ctx)
	if err != nil {
		return err
	}

	srv := server.NewWSServer(pipeline, server.Config{
		Port:   cfg.Server.Port,
		Logger: logger,
	})

	color.Cyan("Serving predictions on http://localhost:%s (Ctrl+C to stop)", cfg.Server.Port)
	return srv.ListenAndServe(ctx)
}
