package robots

import (
	"context"
	"net/url"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot decides whether a URL may be crawled under its host's robots.txt
// policy. Implementations own fetching, caching, and rule evaluation.
type Robot interface {
	Init(userAgent string)
	InitWithCache(userAgent string, c cache.Cache)
	Decide(target url.URL) (Decision, error)
}

// CachedRobot is the default Robot. It delegates fetching to a
// RobotsFetcher, which caches fetch results for the lifetime of the
// crawl, and evaluates the longest-match decision procedure on every call.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	fetcher      *RobotsFetcher
	userAgent    string
}

// NewCachedRobot constructs a CachedRobot bound to sink. Call Init or
// InitWithCache before Decide.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: sink}
}

// Init configures the user agent and an in-memory cache.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache configures the user agent and a caller-supplied cache,
// letting tests and long-lived crawls share or inspect cache state.
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// applies the longest-match decision procedure to target's path.
func (r *CachedRobot) Decide(target url.URL) (Decision, error) {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}

	result, fetchErr := r.fetcher.Fetch(context.Background(), scheme, target.Hostname())
	if fetchErr != nil {
		r.recordError(fetchErr)
		return Decision{}, fetchErr
	}

	rs := MapResponseToRuleSet(result.Response, r.userAgent, result.FetchedAt)
	return Allowed(rs, target), nil
}

func (r *CachedRobot) recordError(err *RobotsError) {
	if r.metadataSink == nil {
		return
	}
	r.metadataSink.RecordError(
		time.Now(),
		"robots",
		"decide",
		mapRobotsErrorToMetadataCause(err),
		err.Error(),
		nil,
	)
}
