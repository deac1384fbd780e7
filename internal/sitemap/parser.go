package sitemap

import (
	"compress/gzip"
	"encoding/xml"
	"io"
	"regexp"
	"strconv"
	"strings"
)

/*
Responsibilities

- Decompress gzip-wrapped sitemap bodies
- Parse a sitemap document into URL entries or child sitemap references
- Fall back to a regex scan when the XML is malformed

Parsing never fails outward: a document this package can't make sense
of yields an empty result rather than an error, matching robots.txt's
fail-open posture for optional discovery inputs.
*/

// Parse decodes a sitemap document (plain or gzip-compressed XML) and
// returns its URL entries plus, if it was a sitemap index, the child
// sitemap locations to recurse into.
func Parse(content string) ([]URL, []string) {
	body := maybeDecompress(content)

	urls, sitemaps, err := parseXML(body)
	if err != nil {
		return parseWithRegex(body), nil
	}
	return urls, sitemaps
}

func maybeDecompress(content string) string {
	if len(content) < 2 || content[0] != 0x1f || content[1] != 0x8b {
		return content
	}
	gz, err := gzip.NewReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return content
	}
	return string(decompressed)
}

// stripNamespaceDecoder wraps an xml.Decoder so element names compare
// without their namespace prefix, since sitemaps.org documents are
// namespaced but field tags here are written bare (matching the
// teacher corpus's "strip namespace prefixes" idiom for feed-like XML).
func stripNamespaceDecoder(body string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false
	return dec
}

func parseXML(body string) ([]URL, []string, error) {
	root, err := firstElementName(body)
	if err != nil {
		return nil, nil, err
	}

	switch root {
	case "sitemapindex":
		var index xmlSitemapIndex
		if err := xml.NewDecoder(strings.NewReader(body)).Decode(&index); err != nil {
			return nil, nil, err
		}
		sitemaps := make([]string, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				sitemaps = append(sitemaps, loc)
			}
		}
		return nil, sitemaps, nil

	default:
		var set xmlURLSet
		if err := xml.NewDecoder(strings.NewReader(body)).Decode(&set); err != nil {
			return nil, nil, err
		}
		urls := make([]URL, 0, len(set.URLs))
		for _, entry := range set.URLs {
			loc := strings.TrimSpace(entry.Loc)
			if loc == "" {
				continue
			}
			urls = append(urls, URL{
				Loc:        loc,
				LastMod:    strings.TrimSpace(entry.LastMod),
				ChangeFreq: strings.TrimSpace(entry.ChangeFreq),
				Priority:   parsePriority(entry.Priority),
			})
		}
		return urls, nil, nil
	}
}

func parsePriority(raw *string) *float64 {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	val, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil
	}
	return &val
}

// firstElementName returns the local name (namespace prefix stripped)
// of the document's root element, to decide whether we're looking at
// a sitemap index or a plain urlset before decoding its body fully.
func firstElementName(body string) (string, error) {
	dec := stripNamespaceDecoder(body)
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			name := start.Name.Local
			if idx := strings.LastIndex(name, "}"); idx != -1 {
				name = name[idx+1:]
			}
			return name, nil
		}
	}
}

var locPattern = regexp.MustCompile(`(?i)<loc>\s*([^<]+)\s*</loc>`)

// parseWithRegex is the fallback for malformed XML: scan for <loc>
// entries beginning with http, matching the Python original's
// best-effort recovery.
func parseWithRegex(body string) []URL {
	matches := locPattern.FindAllStringSubmatch(body, -1)
	urls := make([]URL, 0, len(matches))
	for _, m := range matches {
		loc := strings.TrimSpace(m[1])
		if strings.HasPrefix(loc, "http") {
			urls = append(urls, URL{Loc: loc})
		}
	}
	return urls
}
