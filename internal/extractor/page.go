package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

/*
Page parsing

Parse walks a document in a fixed order, because later steps (text
extraction) mutate the tree that earlier steps (metadata, links,
headings, images) still need intact:

  1. head metadata
  2. structured data (JSON-LD)
  3. anchor/frame links
  4. headings
  5. images
  6. text (plain-text concatenation, or Markdown when configured)
*/

// PageParser turns a fetched document into a ParsedPage. It is the
// page-level counterpart to DomExtractor's content-isolation layer,
// which it reuses for step 6's text extraction.
type PageParser struct {
	metadataSink     metadata.MetadataSink
	domExtractor     DomExtractor
	renderMarkdown   bool
	markdownRenderer func(*html.Node) (string, error)
}

// NewPageParser builds a PageParser. renderer is consulted only when
// renderMarkdown is true; a nil renderer falls back to plain-text
// concatenation regardless of renderMarkdown.
func NewPageParser(sink metadata.MetadataSink, renderMarkdown bool, renderer func(*html.Node) (string, error)) *PageParser {
	return &PageParser{
		metadataSink:     sink,
		domExtractor:     NewDomExtractor(sink),
		renderMarkdown:   renderMarkdown,
		markdownRenderer: renderer,
	}
}

// Parse runs the full extraction pipeline against one document.
func (p *PageParser) Parse(baseURL url.URL, htmlByte []byte) (ParsedPage, error) {
	doc, err := html.Parse(bytes.NewReader(htmlByte))
	if err != nil {
		extractionErr := &ExtractionError{
			Message:   fmt.Sprintf("failed to parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
		p.metadataSink.RecordError(
			time.Now(),
			"extractor",
			"PageParser.Parse",
			mapExtractionErrorToMetadataCause(extractionErr),
			extractionErr.Error(),
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, baseURL.String())},
		)
		return ParsedPage{}, extractionErr
	}

	gqDoc := goquery.NewDocumentFromNode(doc)
	page := ParsedPage{}

	p.extractHeadMetadata(gqDoc, &page)
	page.StructuredData = extractStructuredData(gqDoc)
	page.Links = extractLinks(gqDoc, baseURL)
	page.Headings = extractHeadings(gqDoc)
	page.Images = extractImages(gqDoc, baseURL)
	page.Text = p.extractText(doc)

	return page, nil
}

func (p *PageParser) extractHeadMetadata(doc *goquery.Document, page *ParsedPage) {
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		property, _ := sel.Attr("property")
		content := strings.TrimSpace(sel.AttrOr("content", ""))
		if content == "" {
			return
		}

		switch strings.ToLower(name) {
		case "description":
			page.Description = content
		case "keywords":
			page.Keywords = splitAndTrim(content, ",")
		case "author":
			page.Author = content
		case "robots":
			page.Robots = content
		}

		switch strings.ToLower(property) {
		case "og:title":
			page.OpenGraph.Title = content
		case "og:description":
			page.OpenGraph.Description = content
		case "og:image":
			page.OpenGraph.Image = content
		case "og:type":
			page.OpenGraph.Type = content
		}

		if strings.EqualFold(name, "twitter:card") {
			page.TwitterCard = content
		}
	})

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		page.Canonical = strings.TrimSpace(href)
	}
}

func splitAndTrim(s string, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// extractStructuredData JSON-decodes every <script type="application/ld+json">
// block, flattening arrays and silently skipping invalid payloads.
func extractStructuredData(doc *goquery.Document) []map[string]any {
	var blocks []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := sel.Text()
		if strings.TrimSpace(raw) == "" {
			return
		}

		var asObject map[string]any
		if err := json.Unmarshal([]byte(raw), &asObject); err == nil {
			blocks = append(blocks, asObject)
			return
		}

		var asArray []map[string]any
		if err := json.Unmarshal([]byte(raw), &asArray); err == nil {
			blocks = append(blocks, asArray...)
			return
		}
		// invalid JSON: skip silently
	})

	return blocks
}

var skippedLinkSchemes = map[string]bool{
	"javascript": true,
	"mailto":     true,
	"tel":        true,
}

// extractLinks resolves every crawlable <a>/<frame>/<iframe> reference
// against baseURL, classifying each as internal/external and nofollow.
func extractLinks(doc *goquery.Document, baseURL url.URL) []Link {
	var links []Link
	seenless := func(href string) bool {
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		if idx := strings.Index(href, ":"); idx != -1 {
			if skippedLinkSchemes[strings.ToLower(href[:idx])] {
				return true
			}
		}
		return false
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if seenless(href) {
			return
		}
		resolved, ok := resolveAgainstBase(baseURL, href)
		if !ok {
			return
		}
		rel, _ := sel.Attr("rel")
		links = append(links, Link{
			URL:      resolved.String(),
			Kind:     LinkKindAnchor,
			Internal: resolved.Host == baseURL.Host,
			NoFollow: strings.Contains(strings.ToLower(rel), "nofollow"),
			Text:     truncate(strings.TrimSpace(sel.Text()), maxAnchorTextLen),
		})
	})

	doc.Find("frame[src], iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if seenless(src) {
			return
		}
		resolved, ok := resolveAgainstBase(baseURL, src)
		if !ok {
			return
		}
		links = append(links, Link{
			URL:      resolved.String(),
			Kind:     LinkKindFrame,
			Internal: resolved.Host == baseURL.Host,
		})
	})

	return links
}

func resolveAgainstBase(baseURL url.URL, ref string) (url.URL, bool) {
	parsedRef, err := url.Parse(ref)
	if err != nil {
		return url.URL{}, false
	}
	return *baseURL.ResolveReference(parsedRef), true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var headingSelectors = []string{"h1", "h2", "h3", "h4", "h5", "h6"}

func extractHeadings(doc *goquery.Document) []Heading {
	var headings []Heading
	for level, selector := range headingSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text == "" {
				return
			}
			headings = append(headings, Heading{
				Level: level + 1,
				Text:  truncate(text, maxHeadingTextLen),
			})
		})
	}
	return headings
}

func extractImages(doc *goquery.Document, baseURL url.URL) []Image {
	var images []Image
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if len(images) >= maxImages {
			return false
		}
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, ok = sel.Attr("data-src")
			if !ok || src == "" {
				return true
			}
		}
		resolved, ok := resolveAgainstBase(baseURL, src)
		if !ok {
			return true
		}
		images = append(images, Image{
			Src:   resolved.String(),
			Alt:   sel.AttrOr("alt", ""),
			Title: sel.AttrOr("title", ""),
		})
		return true
	})
	return images
}

// stripForText are elements whose subtree carries no extractable reading
// content and must be dropped before concatenating text, per the text
// extraction step.
var stripForText = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"header": true, "footer": true, "nav": true, "aside": true,
	"form": true, "button": true, "input": true, "select": true,
	"textarea": true, "iframe": true, "svg": true, "canvas": true,
}

func (p *PageParser) extractText(doc *html.Node) string {
	cloned := deepCloneNode(doc)
	removeNodesByName(cloned, stripForText)
	removeComments(cloned)

	if p.renderMarkdown && p.markdownRenderer != nil {
		renderRoot := cloned
		if isolated := p.domExtractor.IsolateContent(cloned); isolated != nil {
			renderRoot = isolated
		}
		if markdown, err := p.markdownRenderer(renderRoot); err == nil {
			return markdown
		}
	}

	return collapseWhitespace(collectText(cloned))
}

func removeNodesByName(root *html.Node, names map[string]bool) {
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && names[n.Data] {
			toRemove = append(toRemove, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func removeComments(root *html.Node) {
	var toRemove []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.CommentNode {
			toRemove = append(toRemove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			trimmed := strings.TrimSpace(node.Data)
			if trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteString(" ")
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// GetCrawlableLinks filters a parsed page's links down to the ones
// eligible to be enqueued. A page-level "nofollow" robots directive
// vetoes all links regardless of filters.
func GetCrawlableLinks(parsed ParsedPage, respectNofollow bool, internalOnly bool) []string {
	if strings.Contains(strings.ToLower(parsed.Robots), "nofollow") {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, link := range parsed.Links {
		if respectNofollow && link.NoFollow {
			continue
		}
		if internalOnly && !link.Internal {
			continue
		}
		if _, ok := seen[link.URL]; ok {
			continue
		}
		seen[link.URL] = struct{}{}
		out = append(out, link.URL)
	}
	return out
}
