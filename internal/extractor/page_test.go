package extractor_test

import (
	"errors"
	"net/url"
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/extractor"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const pageFixture = `<!DOCTYPE html>
<html lang="en">
<head>
  <title>Example Docs</title>
  <meta name="description" content="An example documentation page.">
  <meta name="keywords" content="docs, example, crawler">
  <meta name="author" content="Example Team">
  <meta property="og:title" content="Example Docs OG">
  <meta property="og:type" content="article">
  <meta name="twitter:card" content="summary">
  <link rel="canonical" href="https://example.com/docs/canonical">
  <script type="application/ld+json">{"@type": "Article", "headline": "Example"}</script>
  <script type="application/ld+json">not json</script>
</head>
<body>
  <header>Site Header</header>
  <nav><a href="/nav-link">Nav link</a></nav>
  <main>
    <h1>Example Docs</h1>
    <h2>Subsection</h2>
    <p>Some body copy that links to <a href="/relative">a relative page</a>,
    an <a href="https://other.com/external" rel="nofollow">external nofollow page</a>,
    and a <a href="#section">fragment-only anchor</a> that should be skipped,
    plus a <a href="javascript:void(0)">javascript anchor</a> also skipped.</p>
    <img src="/images/diagram.png" alt="Diagram">
    <img data-src="/images/lazy.png" alt="Lazy loaded">
  </main>
  <footer>Site Footer</footer>
</body>
</html>`

func mustParseBase(t *testing.T) url.URL {
	t.Helper()
	u, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)
	return *u
}

func TestPageParser_Parse_HeadMetadata(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	assert.Equal(t, "Example Docs", page.Title)
	assert.Equal(t, "An example documentation page.", page.Description)
	assert.Equal(t, []string{"docs", "example", "crawler"}, page.Keywords)
	assert.Equal(t, "Example Team", page.Author)
	assert.Equal(t, "Example Docs OG", page.OpenGraph.Title)
	assert.Equal(t, "article", page.OpenGraph.Type)
	assert.Equal(t, "summary", page.TwitterCard)
	assert.Equal(t, "https://example.com/docs/canonical", page.Canonical)
	assert.Equal(t, "en", page.Lang)
}

func TestPageParser_Parse_StructuredData(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	require.Len(t, page.StructuredData, 1, "invalid JSON-LD block should be skipped")
	assert.Equal(t, "Article", page.StructuredData[0]["@type"])
}

func TestPageParser_Parse_Links(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	var urls []string
	for _, l := range page.Links {
		urls = append(urls, l.URL)
	}

	assert.Contains(t, urls, "https://example.com/relative")
	assert.Contains(t, urls, "https://other.com/external")
	assert.NotContains(t, urls, "https://example.com/docs/#section", "fragment-only anchors must be skipped")
	for _, l := range page.Links {
		assert.NotContains(t, l.URL, "javascript:", "javascript: anchors must be skipped")
	}

	for _, l := range page.Links {
		if l.URL == "https://other.com/external" {
			assert.True(t, l.NoFollow)
			assert.False(t, l.Internal)
		}
		if l.URL == "https://example.com/relative" {
			assert.False(t, l.NoFollow)
			assert.True(t, l.Internal)
		}
	}
}

func TestPageParser_Parse_Headings(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	require.Len(t, page.Headings, 2)
	assert.Equal(t, 1, page.Headings[0].Level)
	assert.Equal(t, "Example Docs", page.Headings[0].Text)
	assert.Equal(t, 2, page.Headings[1].Level)
	assert.Equal(t, "Subsection", page.Headings[1].Text)
}

func TestPageParser_Parse_Images(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	require.Len(t, page.Images, 2)
	assert.Equal(t, "https://example.com/images/diagram.png", page.Images[0].Src)
	assert.Equal(t, "Diagram", page.Images[0].Alt)
	assert.Equal(t, "https://example.com/images/lazy.png", page.Images[1].Src, "data-src should resolve when src is absent")
}

func TestPageParser_Parse_TextExcludesChrome(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, false, nil)
	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	assert.NotContains(t, page.Text, "Site Header")
	assert.NotContains(t, page.Text, "Site Footer")
	assert.NotContains(t, page.Text, "Nav link")
	assert.Contains(t, page.Text, "Some body copy")
}

func TestPageParser_Parse_MarkdownRendering(t *testing.T) {
	rendered := "# rendered markdown"
	var gotRoot *html.Node
	parser := extractor.NewPageParser(metadata.NoopSink{}, true, func(node *html.Node) (string, error) {
		gotRoot = node
		return rendered, nil
	})

	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	assert.Equal(t, rendered, page.Text)
	assert.NotNil(t, gotRoot, "markdown renderer should receive the isolated content node")
}

func TestPageParser_Parse_MarkdownRendererFailureFallsBackToPlainText(t *testing.T) {
	parser := extractor.NewPageParser(metadata.NoopSink{}, true, func(node *html.Node) (string, error) {
		return "", errors.New("render failed")
	})

	page, err := parser.Parse(mustParseBase(t), []byte(pageFixture))
	require.NoError(t, err)

	assert.Contains(t, page.Text, "Some body copy")
}

func TestGetCrawlableLinks_RespectsNofollowAndInternalOnly(t *testing.T) {
	parsed := extractor.ParsedPage{
		Links: []extractor.Link{
			{URL: "https://example.com/a", Internal: true},
			{URL: "https://example.com/b", Internal: true, NoFollow: true},
			{URL: "https://other.com/c", Internal: false},
			{URL: "https://example.com/a", Internal: true}, // duplicate
		},
	}

	all := extractor.GetCrawlableLinks(parsed, false, false)
	assert.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/b", "https://other.com/c"}, all)

	respectNofollow := extractor.GetCrawlableLinks(parsed, true, false)
	assert.NotContains(t, respectNofollow, "https://example.com/b")

	internalOnly := extractor.GetCrawlableLinks(parsed, false, true)
	assert.NotContains(t, internalOnly, "https://other.com/c")
}

func TestGetCrawlableLinks_PageNofollowVetoesEverything(t *testing.T) {
	parsed := extractor.ParsedPage{
		Robots: "noindex, nofollow",
		Links: []extractor.Link{
			{URL: "https://example.com/a", Internal: true},
		},
	}

	assert.Empty(t, extractor.GetCrawlableLinks(parsed, false, false))
}
