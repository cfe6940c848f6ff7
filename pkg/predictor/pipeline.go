package predictor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/yesno/internal/models"
	"github.com/xhad/yesno/internal/types"
	"github.com/xhad/yesno/pkg/config"
	"github.com/xhad/yesno/pkg/llm"
	"github.com/xhad/yesno/pkg/processor"
	"github.com/xhad/yesno/pkg/query"
	"github.com/xhad/yesno/pkg/scraper"
	"github.com/xhad/yesno/pkg/search"
	"go.uber.org/zap"
)

// Request describes one prediction run. Zero values fall back to the
// pipeline configuration.
type Request struct {
	Prompt string `json:"prompt"`
	Tool   string `json:"tool,omitempty"`
	Model  string `json:"model,omitempty"`
	// SourceLinks maps URL to raw HTML and replaces search and fetch.
	SourceLinks map[string]string `json:"source_links,omitempty"`
	NumURLs     int               `json:"num_urls,omitempty"`
	NumQueries  int               `json:"num_queries,omitempty"`
	NDocs       int               `json:"n_docs,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`

	// OnProgress may be called from several goroutines at once.
	OnProgress      func(models.ProgressEvent) `json:"-"`
	CounterCallback types.CounterCallback      `json:"-"`
}

type PipelineConfig struct {
	Config    *config.Config
	Generator types.Generator
	// Searcher may be nil, in which case every run proceeds without web
	// results.
	Searcher types.Searcher
	Logger   *zap.Logger
}

// Pipeline answers forecasting questions from web sources.
type Pipeline struct {
	config    *config.Config
	generator types.Generator
	searcher  types.Searcher
	logger    *zap.Logger
}

// run holds the resolved parameters of a single Run call.
type run struct {
	id          string
	question    string
	engine      string
	numURLs     int
	numQueries  int
	nDocs       int
	temperature float64
	maxTokens   int
	onProgress  func(models.ProgressEvent)
	counter     types.CounterCallback
	logger      *zap.Logger
}

func (r *run) emit(stage, message string, count int) {
	if r.onProgress != nil {
		r.onProgress(models.ProgressEvent{RunID: r.id, Stage: stage, Message: message, Count: count})
	}
}

func NewWithConfig(config PipelineConfig) (*Pipeline, error) {
	if config.Config == nil {
		return nil, fmt.Errorf("pipeline requires a configuration")
	}
	if config.Generator == nil {
		return nil, fmt.Errorf("pipeline requires a model generator")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Pipeline{
		config:    config.Config,
		generator: config.Generator,
		searcher:  config.Searcher,
		logger:    config.Logger,
	}, nil
}

// Run resolves the request against the catalog, gathers additional
// information and asks the model for a prediction. Catalog errors are
// returned before any network activity; failures of the prediction call or
// its parsing are returned as is.
func (p *Pipeline) Run(ctx context.Context, req Request) (*models.Result, error) {
	start := time.Now()

	tool := req.Tool
	if tool == "" {
		tool = p.config.Tool
	}
	model := req.Model
	if model == "" && tool == p.config.Tool {
		model = p.config.LLM.Model
	}
	engine, err := config.ResolveEngine(tool, model)
	if err != nil {
		return nil, err
	}

	r := p.newRun(req, engine)
	usage := llm.NewUsageTracker(r.logger)
	r.counter = func(in, out int, model string, counter types.TokenCounter) {
		usage.Track(in, out, model, counter)
		if req.CounterCallback != nil {
			req.CounterCallback(in, out, model, counter)
		}
	}

	r.logger.Info("starting prediction run",
		zap.String("question", r.question),
		zap.String("tool", tool),
		zap.String("engine", engine))

	additionalInformation, sources := p.fetchAdditionalInformation(ctx, r, req.SourceLinks)

	prompt := PredictionPrompt(additionalInformation, r.question)
	if window, ok := config.ContextWindow[engine]; ok {
		if tokens := llm.CountTokens(prompt, engine); tokens > window {
			r.logger.Warn("prediction prompt exceeds context window",
				zap.Int("tokens", tokens),
				zap.Int("context_window", window))
		}
	}

	r.emit(models.StagePredict, "requesting prediction", len(sources))
	gen, err := p.generator.Generate(ctx, types.GenerateRequest{
		Prompt:       prompt,
		SystemPrompt: p.config.LLM.SystemTemplate,
		Model:        engine,
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	r.counter(gen.InputTokens, gen.OutputTokens, engine, llm.CountTokens)

	prediction, err := ParsePrediction(gen.Text)
	if err != nil {
		r.logger.Error("unparseable prediction", zap.Error(err))
		return nil, err
	}

	totals := usage.Totals()
	result := &models.Result{
		RunID:            r.id,
		Question:         r.question,
		Model:            engine,
		Prediction:       prediction,
		PredictionPrompt: prompt,
		Sources:          sources,
		Usage:            &totals,
		Elapsed:          time.Since(start),
	}

	r.logger.Info("prediction run finished",
		zap.Float64("p_yes", prediction.PYes),
		zap.Float64("confidence", prediction.Confidence),
		zap.Int("sources", len(sources)),
		zap.Int("total_tokens", totals.TotalTokens),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

func (p *Pipeline) newRun(req Request, engine string) *run {
	r := &run{
		id:          uuid.NewString(),
		question:    ExtractQuestion(req.Prompt),
		engine:      engine,
		numURLs:     req.NumURLs,
		numQueries:  req.NumQueries,
		nDocs:       req.NDocs,
		temperature: p.config.LLM.Temperature,
		maxTokens:   req.MaxTokens,
		onProgress:  req.OnProgress,
	}
	if r.numURLs == 0 {
		r.numURLs = p.config.Search.NumURLs
	}
	if r.numQueries == 0 {
		r.numQueries = p.config.Search.NumQueries
	}
	if r.nDocs == 0 {
		r.nDocs = p.config.Selector.NDocs
	}
	if req.Temperature != nil {
		r.temperature = *req.Temperature
	}
	if r.maxTokens == 0 {
		r.maxTokens = p.config.LLM.MaxTokens
	}
	r.logger = p.logger.With(zap.String("run_id", r.id))
	return r
}

// fetchAdditionalInformation runs the acquisition stages and returns the
// formatted article block plus the URLs it was built from. It never fails:
// every stage degrades to fewer documents.
func (p *Pipeline) fetchAdditionalInformation(ctx context.Context, r *run, sourceLinks map[string]string) (string, []string) {
	var sources []processor.Source
	if len(sourceLinks) > 0 {
		sources = linkedSources(sourceLinks, r.numURLs)
		r.emit(models.StageFetch, "using supplied source links", len(sources))
	} else {
		queries := p.generateQueries(ctx, r)
		urls := p.searchURLs(ctx, r, queries)
		sources = p.fetch(ctx, r, urls)
	}

	extractor := processor.NewWithConfig(processor.ExtractorConfig{
		WordCap: p.config.Selector.WordCap,
		Logger:  r.logger,
	})
	docs, _ := extractor.ExtractAll(sources)
	r.emit(models.StageExtract, "extracted documents", len(docs))

	selector := processor.NewSelector(processor.SelectorConfig{
		NDocs:    r.nDocs,
		MinWords: p.config.Selector.MinWords,
		MaxWords: p.config.Selector.MaxWords,
		Cutoff:   p.config.Selector.Cutoff,
		Logger:   r.logger,
	})
	selected := selector.Select(docs)
	r.emit(models.StageSelect, "selected documents", len(selected))

	urls := make([]string, len(selected))
	for i, doc := range selected {
		urls[i] = doc.URL
	}
	return FormatAdditionalInformation(selected), urls
}

// generateQueries never returns an empty list: on any failure the question
// itself is the only query.
func (p *Pipeline) generateQueries(ctx context.Context, r *run) []string {
	fallback := []string{r.question}

	gen, err := query.NewWithConfig(query.Config{
		Generator:       p.generator,
		Model:           r.engine,
		SystemPrompt:    p.config.LLM.SystemTemplate,
		Temperature:     r.temperature,
		MaxTokens:       r.maxTokens,
		NumQueries:      r.numQueries,
		CounterCallback: r.counter,
		TokenCounter:    llm.CountTokens,
		Logger:          r.logger,
	})
	if err != nil {
		r.logger.Warn("query generator unavailable", zap.Error(err))
		return fallback
	}

	queries, err := gen.Generate(ctx, r.question)
	if err != nil {
		r.logger.Warn("error generating queries, using the question only", zap.Error(err))
		queries = fallback
	}
	r.emit(models.StageQueries, "generated queries", len(queries))
	return queries
}

func (p *Pipeline) searchURLs(ctx context.Context, r *run, queries []string) []string {
	if p.searcher == nil {
		r.logger.Warn("no search engine configured, continuing without web results")
		r.emit(models.StageSearch, "search disabled", 0)
		return nil
	}

	urls, _ := search.URLsFromQueries(ctx, p.searcher, queries, r.numURLs, r.logger)
	r.emit(models.StageSearch, "collected urls", len(urls))
	return urls
}

func (p *Pipeline) fetch(ctx context.Context, r *run, urls []string) []processor.Source {
	if len(urls) == 0 {
		return nil
	}

	fetcher := scraper.NewWithConfig(scraper.FetcherConfig{
		Window:       p.config.Fetcher.Window,
		Timeout:      p.config.Fetcher.Timeout,
		MaxRedirects: p.config.Fetcher.MaxRedirects,
		Retries:      p.config.Fetcher.Retries,
		RetryBackoff: p.config.Fetcher.RetryBackoff,
		MaxBodyBytes: p.config.Fetcher.MaxBodyBytes,
		UserAgent:    p.config.Fetcher.UserAgent,
		OnProgress: func(res scraper.FetchResult) {
			r.emit(models.StageFetch, res.URL, 1)
		},
		Logger: r.logger,
	})
	defer fetcher.Close()

	var sources []processor.Source
	for _, res := range fetcher.Fetch(ctx, urls) {
		if !res.OK() {
			r.logger.Debug("skipping url",
				zap.String("url", res.URL),
				zap.Int("status", res.StatusCode),
				zap.Error(res.Err))
			continue
		}
		sources = append(sources, processor.Source{URL: res.URL, Body: res.Body})
	}

	r.logger.Info("fetched urls",
		zap.Int("requested", len(urls)),
		zap.Int("fetched", len(sources)))
	return sources
}

// linkedSources orders the supplied links by URL and keeps the first limit.
func linkedSources(links map[string]string, limit int) []processor.Source {
	keys := make([]string, 0, len(links))
	for u := range links {
		keys = append(keys, u)
	}
	sort.Strings(keys)
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	sources := make([]processor.Source, len(keys))
	for i, u := range keys {
		sources[i] = processor.Source{URL: u, Body: []byte(links[u]), ForceHTML: true}
	}
	return sources
}
