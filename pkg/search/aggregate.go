package search

import (
	"context"

	"github.com/xhad/yesno/internal/types"
	"go.uber.org/zap"
)

// QueryResult is the outcome of searching a single query. A failed query
// carries Err and no URLs.
type QueryResult struct {
	Query string
	URLs  []string
	Err   error
}

// URLsFromQueries runs every query in order and merges the links into a
// de-duplicated pool. Failed queries contribute nothing and never stop the
// remaining ones.
func URLsFromQueries(ctx context.Context, searcher types.Searcher, queries []string, num int, logger *zap.Logger) ([]string, []QueryResult) {
	if logger == nil {
		logger = zap.NewNop()
	}

	results := make([]QueryResult, 0, len(queries))
	seen := make(map[string]struct{})
	var pool []string

	for _, q := range queries {
		urls, err := searcher.Search(ctx, q, num)
		if err != nil {
			logger.Warn("search failed", zap.String("query", q), zap.Error(err))
			results = append(results, QueryResult{Query: q, Err: err})
			continue
		}
		results = append(results, QueryResult{Query: q, URLs: urls})

		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			pool = append(pool, u)
		}
	}

	logger.Info("collected search results",
		zap.Int("queries", len(queries)),
		zap.Int("urls", len(pool)))

	return pool, results
}
