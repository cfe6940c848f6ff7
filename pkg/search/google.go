package search

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xhad/yesno/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Google caps a single custom search request at ten results.
const maxResults = 10

type GoogleConfig struct {
	APIKey    string
	EngineID  string
	RateLimit float64 // requests per second
	// Endpoint and HTTPClient override the API location, mostly for tests.
	Endpoint   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GoogleSearcher queries the Google Custom Search JSON API.
type GoogleSearcher struct {
	config  GoogleConfig
	service *customsearch.Service
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ types.Searcher = (*GoogleSearcher)(nil)

func NewGoogleSearcher(ctx context.Context, config GoogleConfig) (*GoogleSearcher, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required (set GOOGLE_API_KEY or search.api_key)")
	}
	if config.EngineID == "" {
		return nil, fmt.Errorf("Google engine ID is required (set GOOGLE_ENGINE_ID or search.engine_id)")
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	service, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search service: %w", err)
	}

	return &GoogleSearcher{
		config:  config,
		service: service,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  config.Logger,
	}, nil
}

// Search returns up to num result links for query in engine order.
func (s *GoogleSearcher) Search(ctx context.Context, query string, num int) ([]string, error) {
	if num < 1 || num > maxResults {
		return nil, fmt.Errorf("result count %d out of range [1, %d]", num, maxResults)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := s.service.Cse.List().
		Q(query).
		Cx(s.config.EngineID).
		Num(int64(num)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	urls := make([]string, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}

	s.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(urls)))
	return urls, nil
}
