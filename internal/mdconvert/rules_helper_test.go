package mdconvert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// parseBodyNode parses an HTML fragment and returns its <body> node, the
// node convert/RenderNode operate on in the live crawl path.
func parseBodyNode(t *testing.T, htmlContent string) *html.Node {
	t.Helper()

	doc, err := html.Parse(strings.NewReader(htmlContent))
	require.NoError(t, err)

	var body *html.Node
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if body != nil {
				return
			}
			traverse(c)
		}
	}
	traverse(doc)

	if body != nil {
		return body
	}
	return doc
}
