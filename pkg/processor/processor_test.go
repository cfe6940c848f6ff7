package processor_test

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/yesno/pkg/processor"
)

// buildPDF writes a minimal uncompressed PDF with one text line per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		url  string
		body []byte
		want bool
	}{
		{"magic number without suffix", "https://example.com/download?id=1", []byte("%PDF-1.7 ..."), true},
		{"suffix without magic number", "https://example.com/report.pdf", []byte("<html></html>"), true},
		{"uppercase suffix", "https://example.com/REPORT.PDF", nil, true},
		{"plain html", "https://example.com/page", []byte("<html></html>"), false},
		{"magic number later in body", "https://example.com/page", []byte("see %PDF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, processor.IsPDF(tt.url, tt.body))
		})
	}
}

func TestExtractHTML(t *testing.T) {
	html := `
<html>
	<head><title>Test Page</title><style>body { color: red; }</style></head>
	<body>
		<nav>Home | About | Contact</nav>
		<div class="cookie-banner">Accept Cookies</div>
		<main>
			<h1>Rate decision</h1>
			<p>The   central bank held rates
			steady this month.</p>
			<script>track()</script>
		</main>
		<footer>Privacy Policy</footer>
	</body>
</html>`

	e := processor.NewWithConfig(processor.ExtractorConfig{})
	doc, err := e.Extract("https://example.com/news", []byte(html))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/news", doc.URL)
	assert.Contains(t, doc.Text, "Rate decision")
	assert.Contains(t, doc.Text, "The central bank held rates steady this month.")
	assert.NotContains(t, doc.Text, "Home | About")
	assert.NotContains(t, doc.Text, "Accept Cookies")
	assert.NotContains(t, doc.Text, "Privacy Policy")
	assert.NotContains(t, doc.Text, "track()")
	assert.NotContains(t, doc.Text, "  ")
	assert.Nil(t, doc.Embedding)
}

func TestExtractHTMLDensestBlock(t *testing.T) {
	html := `
<html><body>
	<div class="teaser"><p>Short teaser text with six words.</p></div>
	<div class="story">
		<p>The first paragraph of the story has plenty of words in it.</p>
		<p>The second paragraph of the story also has plenty of words.</p>
	</div>
</body></html>`

	e := processor.NewWithConfig(processor.ExtractorConfig{})
	doc, err := e.Extract("https://example.com/story", []byte(html))
	require.NoError(t, err)

	assert.Contains(t, doc.Text, "first paragraph")
	assert.Contains(t, doc.Text, "second paragraph")
	assert.NotContains(t, doc.Text, "teaser")
}

func TestExtractHTMLKeepsArticleWrappers(t *testing.T) {
	article := strings.TrimSpace(strings.Repeat("forecast ", 200))

	tests := []struct {
		name    string
		wrapper string
		inner   string
	}{
		{"plain content wrapper", `class="site-content"`, "article"},
		{"layout with sidebar", `class="layout has-sidebar"`, "article"},
		{"content with sidebar", `class="content-with-sidebar"`, "article"},
		{"shared layout", `class="shared-layout"`, "article"},
		{"sidebar id around paragraphs", `id="with-sidebar"`, "div"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := fmt.Sprintf(`<html><body>
	<div %s>
		<%s><p>%s</p><p>%s</p></%s>
		<aside class="sidebar"><p>Trending now on the site today</p></aside>
	</div>
</body></html>`, tt.wrapper, tt.inner, article, article, tt.inner)

			e := processor.NewWithConfig(processor.ExtractorConfig{})
			doc, err := e.Extract("https://example.com/story", []byte(html))
			require.NoError(t, err)

			assert.Equal(t, 400, processor.CountWords(doc.Text))
			assert.NotContains(t, doc.Text, "Trending now")
		})
	}
}

func TestExtractWordCap(t *testing.T) {
	e := processor.NewWithConfig(processor.ExtractorConfig{WordCap: 3})
	doc, err := e.Extract("https://example.com", []byte("<html><body><p>one two three four five</p></body></html>"))
	require.NoError(t, err)
	assert.Equal(t, "one two three", doc.Text)
}

func TestExtractEmptyHTML(t *testing.T) {
	e := processor.NewWithConfig(processor.ExtractorConfig{})
	_, err := e.Extract("https://example.com", []byte("<html><body><script>x()</script></body></html>"))
	assert.True(t, errors.Is(err, processor.ErrEmptyContent))
}

func TestExtractPDF(t *testing.T) {
	body := buildPDF("Inflation fell in March", "Markets expect a cut")

	e := processor.NewWithConfig(processor.ExtractorConfig{})
	doc, err := e.Extract("https://example.com/download", body)
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/download", doc.URL)
	assert.Contains(t, doc.Text, "Inflation fell in March")
	assert.Contains(t, doc.Text, "Markets expect a cut")
	assert.NotContains(t, doc.Text, "\n")
}

func TestExtractPDFWordCap(t *testing.T) {
	e := processor.NewWithConfig(processor.ExtractorConfig{WordCap: 2})
	doc, err := e.Extract("https://example.com/a.pdf", buildPDF("alpha beta gamma delta"))
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", doc.Text)
}

func TestExtractBrokenPDF(t *testing.T) {
	e := processor.NewWithConfig(processor.ExtractorConfig{})

	// A .pdf URL serving HTML is still routed to PDF extraction and fails.
	_, err := e.Extract("https://example.com/report.pdf", []byte("<html><body>not a pdf</body></html>"))
	assert.Error(t, err)

	// Truncated file with a valid header.
	_, err = e.Extract("https://example.com/file", []byte("%PDF-1.4\n1 0 obj\n<<"))
	assert.Error(t, err)
}

func TestExtractAll(t *testing.T) {
	e := processor.NewWithConfig(processor.ExtractorConfig{})

	docs, extractions := e.ExtractAll([]processor.Source{
		{URL: "https://a.example", Body: []byte("<p>first page text</p>")},
		{URL: "https://b.example/broken.pdf", Body: []byte("garbage")},
		{URL: "https://c.example/inline.pdf", Body: []byte("<p>forced html text</p>"), ForceHTML: true},
		{URL: "https://d.example", Body: []byte("")},
	})

	require.Len(t, docs, 2)
	assert.Equal(t, "https://a.example", docs[0].URL)
	assert.Equal(t, "first page text", docs[0].Text)
	assert.Equal(t, "https://c.example/inline.pdf", docs[1].URL)

	require.Len(t, extractions, 4)
	assert.NoError(t, extractions[0].Err)
	assert.Error(t, extractions[1].Err)
	assert.Nil(t, extractions[1].Document)
	assert.Error(t, extractions[3].Err)
}

func TestWordHelpers(t *testing.T) {
	assert.Equal(t, 0, processor.CountWords("   \n\t"))
	assert.Equal(t, 4, processor.CountWords(" a  b\nc\td "))
	assert.Equal(t, "a b c", processor.NormalizeWhitespace("\n a \t b   c  "))
	assert.Equal(t, "a b", processor.TruncateWords("a  b c", 2))
	assert.Equal(t, "a b c", processor.TruncateWords("a b c", 10))
}
