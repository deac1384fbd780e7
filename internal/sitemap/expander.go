package sitemap

import (
	"net/http"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

/*
Responsibilities

- Recursively expand a sitemap (or sitemap index) into its full set of
  URL entries, bounded by depth and deduplicated against sitemaps
  already visited in this run.
- Discover candidate sitemap URLs for a host from robots.txt
  declarations plus a handful of conventional paths.

Sitemaps are an optional discovery hint, not an authoritative source:
every failure here is swallowed and reported for observability rather
than surfaced as an error, so a broken or missing sitemap never stalls
a crawl that robots.txt and the frontier would otherwise permit.
*/

// Expander walks a site's sitemaps into a flat list of URL entries.
type Expander struct {
	fetch        FetchFunc
	metadataSink metadata.MetadataSink
	maxDepth     int
}

// NewExpander builds an Expander. maxDepth <= 0 falls back to
// defaultMaxDepth.
func NewExpander(fetch FetchFunc, sink metadata.MetadataSink, maxDepth int) *Expander {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Expander{
		fetch:        fetch,
		metadataSink: sink,
		maxDepth:     maxDepth,
	}
}

// ProcessSitemap expands sitemapURL into its URL entries, recursing
// into any nested sitemap index up to the configured depth. Visited
// sitemap URLs are deduplicated within a single call tree so a cyclic
// or self-referential index can't loop forever.
func (e *Expander) ProcessSitemap(sitemapURL string) []URL {
	visited := make(map[string]struct{})
	return e.processSitemap(sitemapURL, e.maxDepth, visited)
}

func (e *Expander) processSitemap(sitemapURL string, remainingDepth int, visited map[string]struct{}) []URL {
	if remainingDepth < 0 {
		return nil
	}
	if _, seen := visited[sitemapURL]; seen {
		return nil
	}
	visited[sitemapURL] = struct{}{}

	result, err := e.fetch(sitemapURL)
	if err != nil {
		e.recordError("process_sitemap", metadata.CauseNetworkFailure, err.Error(), sitemapURL)
		return nil
	}
	if result.Status != http.StatusOK {
		e.recordError("process_sitemap", metadata.CauseNetworkFailure,
			"non-200 status fetching sitemap", sitemapURL)
		return nil
	}

	urls, childSitemaps := Parse(result.Body)
	if len(childSitemaps) == 0 {
		return urls
	}

	var expanded []URL
	for _, child := range childSitemaps {
		expanded = append(expanded, e.processSitemap(child, remainingDepth-1, visited)...)
	}
	return expanded
}

// DiscoverSitemaps returns the union of robots-declared sitemap URLs
// and a probe of conventional sitemap paths under host, keeping a
// conventional path only when it resolves with HTTP 200.
func (e *Expander) DiscoverSitemaps(host string, robotsSitemaps []string) []string {
	found := make([]string, 0, len(robotsSitemaps)+len(commonSitemapPaths))
	seen := make(map[string]struct{}, len(robotsSitemaps))

	for _, sm := range robotsSitemaps {
		if sm == "" {
			continue
		}
		if _, ok := seen[sm]; ok {
			continue
		}
		seen[sm] = struct{}{}
		found = append(found, sm)
	}

	for _, path := range commonSitemapPaths {
		candidate := host + path
		if _, ok := seen[candidate]; ok {
			continue
		}
		result, err := e.fetch(candidate)
		if err != nil {
			continue
		}
		if result.Status != http.StatusOK {
			continue
		}
		seen[candidate] = struct{}{}
		found = append(found, candidate)
	}

	return found
}

func (e *Expander) recordError(action string, cause metadata.ErrorCause, message string, sitemapURL string) {
	if e.metadataSink == nil {
		return
	}
	e.metadataSink.RecordError(time.Now(), "sitemap", action, cause, message,
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrMessage, sitemapURL)})
}
