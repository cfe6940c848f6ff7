package processor

import (
	"sort"

	"github.com/xhad/yesno/internal/models"
	"go.uber.org/zap"
)

type SelectorConfig struct {
	NDocs    int // requested document count, reported only
	MinWords int // -1 accepts any non-empty document
	MaxWords int
	Cutoff   int // documents kept at most
	Logger   *zap.Logger
}

// Selector picks the longest documents for the prediction context.
type Selector struct {
	config SelectorConfig
	logger *zap.Logger
}

func NewSelector(config SelectorConfig) *Selector {
	if config.MinWords == 0 {
		config.MinWords = 60
	}
	if config.MaxWords == 0 {
		config.MaxWords = 10000
	}
	if config.Cutoff == 0 {
		config.Cutoff = 4
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	if config.NDocs != 0 && config.NDocs != config.Cutoff {
		config.Logger.Debug("selection cutoff differs from requested document count",
			zap.Int("n_docs", config.NDocs),
			zap.Int("cutoff", config.Cutoff))
	}

	return &Selector{
		config: config,
		logger: config.Logger,
	}
}

// Select walks docs from the highest word count down, accepting those with
// at least MinWords words until Cutoff are accepted. Accepted documents over
// MaxWords are truncated to their first MaxWords words. The input slice is
// not modified.
func (s *Selector) Select(docs []models.Document) []models.Document {
	type counted struct {
		doc   models.Document
		words int
	}

	ranked := make([]counted, 0, len(docs))
	for _, doc := range docs {
		if doc.Text == "" {
			continue
		}
		ranked = append(ranked, counted{doc: doc, words: CountWords(doc.Text)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].words > ranked[j].words
	})

	selected := make([]models.Document, 0, s.config.Cutoff)
	seen := make(map[string]struct{})
	for _, c := range ranked {
		if len(selected) == s.config.Cutoff {
			break
		}
		if c.words < s.config.MinWords {
			// Sorted descending, nothing further qualifies.
			break
		}
		if _, dup := seen[c.doc.URL]; dup {
			continue
		}
		seen[c.doc.URL] = struct{}{}

		doc := c.doc
		if c.words > s.config.MaxWords {
			doc.Text = TruncateWords(doc.Text, s.config.MaxWords)
		}
		selected = append(selected, doc)
	}

	s.logger.Info("selected documents",
		zap.Int("candidates", len(docs)),
		zap.Int("selected", len(selected)),
		zap.Int("cutoff", s.config.Cutoff))

	return selected
}
