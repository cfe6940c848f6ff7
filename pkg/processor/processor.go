package processor

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xhad/yesno/internal/models"
	"go.uber.org/zap"
)

var pdfMagic = []byte("%PDF")

// ErrEmptyContent is returned when extraction yields no text.
var ErrEmptyContent = errors.New("no text content")

var (
	// Elements that never hold article text.
	boilerplate = "script, style, noscript, iframe, svg, nav, header, footer, aside, form, button"

	contentSelectors = []string{
		"main",
		"article",
		"[role=main]",
		".content",
		"#content",
		".post",
		".entry-content",
	}

	unlikelyCandidates = regexp.MustCompile(`(?i)comment|sidebar|cookie|banner|share|social|promo|related|newsletter|subscribe|advert|popup|breadcrumb`)
	maybeCandidates    = regexp.MustCompile(`(?i)and|article|body|column|content|main|shadow`)
)

type ExtractorConfig struct {
	WordCap int // 0 keeps every word
	Logger  *zap.Logger
}

// Extractor turns fetched HTML or PDF bodies into Documents.
type Extractor struct {
	config    ExtractorConfig
	converter *md.Converter
	logger    *zap.Logger
}

// Source is one body waiting for extraction. ForceHTML skips PDF detection.
type Source struct {
	URL       string
	Body      []byte
	ForceHTML bool
}

// Extraction is the outcome for one Source; exactly one of Document and Err
// is set.
type Extraction struct {
	URL      string
	Document *models.Document
	Err      error
}

func NewWithConfig(config ExtractorConfig) *Extractor {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Extractor{
		config:    config,
		converter: md.NewConverter("", true, nil),
		logger:    config.Logger,
	}
}

// IsPDF reports whether a body should go through PDF extraction: either the
// URL ends in .pdf or the body starts with the PDF magic number.
func IsPDF(url string, body []byte) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf") || bytes.HasPrefix(body, pdfMagic)
}

// Extract converts a single body into a Document.
func (e *Extractor) Extract(url string, body []byte) (*models.Document, error) {
	return e.extract(Source{URL: url, Body: body})
}

// ExtractAll extracts every source, keeping the successes in input order.
// Failures are reported in the returned extractions and logged, never raised.
func (e *Extractor) ExtractAll(sources []Source) ([]models.Document, []Extraction) {
	docs := make([]models.Document, 0, len(sources))
	extractions := make([]Extraction, 0, len(sources))

	for _, src := range sources {
		doc, err := e.extract(src)
		extractions = append(extractions, Extraction{URL: src.URL, Document: doc, Err: err})
		if err != nil {
			e.logger.Warn("extraction failed", zap.String("url", src.URL), zap.Error(err))
			continue
		}
		docs = append(docs, *doc)
	}

	e.logger.Info("extracted documents",
		zap.Int("sources", len(sources)),
		zap.Int("documents", len(docs)))

	return docs, extractions
}

func (e *Extractor) extract(src Source) (*models.Document, error) {
	var (
		text string
		err  error
	)
	if !src.ForceHTML && IsPDF(src.URL, src.Body) {
		text, err = extractPDF(src.Body)
	} else {
		text, err = e.extractHTML(src.Body)
	}
	if err != nil {
		return nil, err
	}

	text = normalize(text, e.config.WordCap)
	if text == "" {
		return nil, ErrEmptyContent
	}

	return &models.Document{URL: src.URL, Text: text}, nil
}

// extractHTML isolates the main content of a page and flattens it to
// markdown.
func (e *Extractor) extractHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	doc.Find(boilerplate).Remove()
	// Wrappers around the article survive even when their names look
	// like page chrome, e.g. <div class="layout has-sidebar">.
	densest := densestParagraphParent(doc)
	doc.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		if s.Is("html, body, main, article") || s.Has("article, main, [role=main]").Length() > 0 {
			return
		}
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		names := class + " " + id
		if !unlikelyCandidates.MatchString(names) || maybeCandidates.MatchString(names) {
			return
		}
		if densest != nil && s.Contains(densest.Get(0)) {
			return
		}
		s.Remove()
	})

	content := mainContent(doc)
	if content.Length() == 0 {
		return "", ErrEmptyContent
	}

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("rendering content: %w", err)
	}

	text, err := e.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("converting to markdown: %w", err)
	}
	return text, nil
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 && CountWords(selected.Text()) > 0 {
			return selected
		}
	}

	if best := densestParagraphParent(doc); best != nil {
		return best
	}

	// Fallback to body if no main content found
	return doc.Find("body")
}

type candidate struct {
	sel   *goquery.Selection
	score int
}

// densestParagraphParent scores each element by the amount of paragraph text
// it directly contains and returns the highest scoring one.
func densestParagraphParent(doc *goquery.Document) *goquery.Selection {
	var candidates []*candidate
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		words := CountWords(p.Text())
		if words < 5 {
			return
		}
		parent := p.Parent()
		for _, c := range candidates {
			if c.sel.IsSelection(parent) {
				c.score += words
				return
			}
		}
		candidates = append(candidates, &candidate{sel: parent, score: words})
	})

	var best *candidate
	for _, c := range candidates {
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return best.sel
}

// extractPDF concatenates the plain text of every page. The pdf package
// panics on some malformed inputs, so those are turned into errors.
func extractPDF(body []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
