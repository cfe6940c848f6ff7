package query

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/xhad/yesno/internal/types"
	"go.uber.org/zap"
)

const promptTemplate = `
Here is the user prompt: {USER_PROMPT}

Please read the prompt carefully and identify the key pieces of information that need to be searched for in order to comprehensively address the topic.

Brainstorm a list of {NUM_QUERIES} different search queries that cover various aspects of the user prompt. Each query should be focused on a specific sub-topic or question related to the overarching prompt.

Please write each search query inside its own tags, like this: <query>example search query here</query>

The queries should be concise while still containing enough information to return relevant search results. Focus the queries on gathering factual information to address the prompt rather than opinions.

After you have written all {NUM_QUERIES} search queries, please submit your final response.

<queries></queries>
`

const (
	openTag  = "<queries>"
	closeTag = "</queries>"
)

var (
	ordinalPrefix = regexp.MustCompile(`^\d+\.\s+`)
	markup        = regexp.MustCompile(`<[^>]*>`)
)

type Config struct {
	Generator       types.Generator
	Model           string
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	NumQueries      int
	CounterCallback types.CounterCallback
	TokenCounter    types.TokenCounter
	Logger          *zap.Logger
}

// Generator turns a question into web search queries with one model call.
type Generator struct {
	config Config
	logger *zap.Logger
}

func NewWithConfig(config Config) (*Generator, error) {
	if config.Generator == nil {
		return nil, fmt.Errorf("query generator requires a model generator")
	}
	if config.NumQueries == 0 {
		config.NumQueries = 5
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Generator{
		config: config,
		logger: config.Logger,
	}, nil
}

// Prompt renders the query generation instruction for question.
func Prompt(question string, numQueries int) string {
	return strings.NewReplacer(
		"{USER_PROMPT}", question,
		"{NUM_QUERIES}", strconv.Itoa(numQueries),
	).Replace(promptTemplate)
}

// Generate returns the parsed queries followed by question itself.
func (g *Generator) Generate(ctx context.Context, question string) ([]string, error) {
	gen, err := g.config.Generator.Generate(ctx, types.GenerateRequest{
		Prompt:       Prompt(question, g.config.NumQueries),
		SystemPrompt: g.config.SystemPrompt,
		Model:        g.config.Model,
		Temperature:  g.config.Temperature,
		MaxTokens:    g.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate queries: %w", err)
	}

	if g.config.CounterCallback != nil {
		g.config.CounterCallback(gen.InputTokens, gen.OutputTokens, g.config.Model, g.config.TokenCounter)
	}

	queries, err := ParseQueries(gen.Text, g.config.NumQueries)
	if err != nil {
		return nil, err
	}

	g.logger.Info("generated search queries",
		zap.Int("count", len(queries)),
		zap.Strings("queries", queries))

	return append(queries, question), nil
}

// ParseQueries extracts the line separated queries from the first
// <queries>...</queries> block of response. When exactly 2*numQueries lines
// survive, only the even-indexed ones are kept.
func ParseQueries(response string, numQueries int) ([]string, error) {
	start := strings.Index(response, openTag)
	if start < 0 {
		return nil, &types.ParseError{Field: "queries", Err: fmt.Errorf("missing %s tag", openTag)}
	}
	body := response[start+len(openTag):]

	end := strings.Index(body, closeTag)
	if end < 0 {
		return nil, &types.ParseError{Field: "queries", Err: fmt.Errorf("missing %s tag", closeTag)}
	}
	body = body[:end]

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if unicode.IsDigit(rune(line[0])) {
			line = ordinalPrefix.ReplaceAllString(line, "")
		}
		lines = append(lines, strings.ReplaceAll(line, `"`, ""))
	}

	if len(lines) == numQueries*2 {
		even := make([]string, 0, numQueries)
		for i := 0; i < len(lines); i += 2 {
			even = append(even, lines[i])
		}
		lines = even
	}

	queries := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(markup.ReplaceAllString(line, ""))
		if line != "" {
			queries = append(queries, line)
		}
	}

	return queries, nil
}
