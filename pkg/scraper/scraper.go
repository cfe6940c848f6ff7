package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrTooManyRedirects is reported once a URL exceeds the redirect budget.
var ErrTooManyRedirects = errors.New("stopped after too many redirects")

type FetcherConfig struct {
	Window       int // URLs fetched concurrently per batch
	Timeout      time.Duration
	MaxRedirects int // redirects followed per request; -1 follows none
	Retries      int // attempts per URL, including the first
	RetryBackoff time.Duration
	MaxBodyBytes int64
	UserAgent    string
	RateLimit    float64 // requests per second, 0 disables throttling
	// OnProgress is called from worker goroutines as each URL finishes.
	OnProgress func(result FetchResult)
	Logger     *zap.Logger
}

// FetchResult is the outcome of fetching one URL. Err is set only when every
// attempt failed at the request layer; HTTP error statuses are reported
// through StatusCode.
type FetchResult struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Attempts    int
	Err         error
}

// OK reports whether the fetch produced a 200 response.
func (r FetchResult) OK() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

// Fetcher downloads URLs in sequential batches over one shared client.
type Fetcher struct {
	config  FetcherConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config FetcherConfig) *Fetcher {
	if config.Window == 0 {
		config.Window = 5
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.MaxRedirects == 0 {
		config.MaxRedirects = 5
	}
	if config.Retries == 0 {
		config.Retries = 2
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = 20 << 20
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = config.Window

	maxRedirects := max(config.MaxRedirects, 0)
	f := &Fetcher{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		logger: config.Logger,
	}
	if config.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Window)
	}
	return f
}

func New() *Fetcher {
	return NewWithConfig(FetcherConfig{})
}

// Close releases idle connections held by the shared client.
func (f *Fetcher) Close() {
	f.client.CloseIdleConnections()
}

// Fetch downloads urls in batches of Window. Every request of a batch has
// completed before the next batch starts. Results are in input order.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) []FetchResult {
	results := make([]FetchResult, 0, len(urls))

	for start := 0; start < len(urls); start += f.config.Window {
		batch := urls[start:min(start+f.config.Window, len(urls))]
		batchResults := make([]FetchResult, len(batch))

		var g errgroup.Group
		for j, u := range batch {
			g.Go(func() error {
				batchResults[j] = f.fetchWithRetry(ctx, u)
				if f.config.OnProgress != nil {
					f.config.OnProgress(batchResults[j])
				}
				return nil
			})
		}
		_ = g.Wait()

		results = append(results, batchResults...)
		f.logger.Debug("fetched batch",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)))
	}

	return results
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, u string) FetchResult {
	var res FetchResult
	for attempt := 1; attempt <= f.config.Retries; attempt++ {
		res = f.fetchOnce(ctx, u)
		res.Attempts = attempt
		if res.Err == nil {
			return res
		}

		f.logger.Debug("fetch attempt failed",
			zap.String("url", u),
			zap.Int("attempt", attempt),
			zap.Error(res.Err))

		if attempt == f.config.Retries {
			break
		}
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(f.config.RetryBackoff * time.Duration(attempt)):
		}
	}

	f.logger.Warn("max retries reached, skipping url",
		zap.String("url", u),
		zap.Int("attempts", res.Attempts),
		zap.Error(res.Err))
	return res
}

func (f *Fetcher) fetchOnce(ctx context.Context, u string) FetchResult {
	res := FetchResult{URL: u}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		res.Err = fmt.Errorf("invalid request: %w", err)
		return res
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		res.Err = fmt.Errorf("reading body: %w", err)
		return res
	}
	res.Body = body
	return res
}
