package identity

import (
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
)

/*
Responsibilities

- Present a plausible browser identity on every request: user agent,
  accept headers, client hints.
- Space requests out the way a human browsing session would, on top of
  whatever the rate limiter already enforces.
- Round-robin an optional proxy pool.

Identity never decides whether a URL may be fetched; it only shapes how
a permitted fetch looks on the wire.
*/

// Provider issues headers, inter-request delays, and proxy assignments
// for the fetcher. A Provider is not safe to share across goroutines
// unless built with NewProvider, which guards its mutable state with a
// mutex; the injected *rand.Rand is likewise only ever touched under
// that lock.
type Provider struct {
	mu           sync.Mutex
	rng          *rand.Rand
	metadataSink metadata.MetadataSink

	customUserAgent string
	rotateAgents    bool

	proxies    []string
	proxyIndex int
}

// Option configures a Provider at construction.
type Option func(*Provider)

// WithCustomUserAgent pins every request to a single user agent,
// disabling rotation regardless of WithRotation.
func WithCustomUserAgent(ua string) Option {
	return func(p *Provider) { p.customUserAgent = ua }
}

// WithRotation enables or disables random user agent rotation. Default
// is enabled; has no effect once a custom user agent is set.
func WithRotation(rotate bool) Option {
	return func(p *Provider) { p.rotateAgents = rotate }
}

// WithProxies supplies a pool of proxy URLs for round-robin selection.
// Entries that fail to parse as a URL are dropped and reported through
// metadataSink rather than failing construction: a malformed proxy
// entry should not abort a crawl.
func WithProxies(proxies []string) Option {
	return func(p *Provider) { p.proxies = proxies }
}

// NewProvider builds a Provider. rng drives every random choice this
// package makes (user agent rotation, DNT inclusion, delay sampling);
// callers that need determinism (tests, replay) supply a seeded
// *rand.Rand, mirroring pkg/retry and pkg/limiter.
func NewProvider(sink metadata.MetadataSink, rng *rand.Rand, opts ...Option) *Provider {
	p := &Provider{
		rng:          rng,
		metadataSink: sink,
		rotateAgents: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.proxies = p.validProxies(p.proxies)
	return p
}

func (p *Provider) validProxies(raw []string) []string {
	valid := make([]string, 0, len(raw))
	for _, proxy := range raw {
		if proxy == "" {
			continue
		}
		if _, err := url.Parse(proxy); err != nil {
			p.recordError("proxy_config", metadata.CauseInvariantViolation, err.Error(), proxy)
			continue
		}
		valid = append(valid, proxy)
	}
	return valid
}

func (p *Provider) recordError(action string, cause metadata.ErrorCause, message string, proxy string) {
	if p.metadataSink == nil {
		return
	}
	p.metadataSink.RecordError(time.Now(), "identity", action, cause, message,
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrMessage, proxy)})
}

// GetUserAgent returns the user agent for the next request: the custom
// agent if one was set, a uniformly random pick from the pool if
// rotation is enabled, otherwise the pool's first (default) entry.
func (p *Provider) GetUserAgent() string {
	if p.customUserAgent != "" {
		return p.customUserAgent
	}
	if !p.rotateAgents {
		return staticUserAgents[0]
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return staticUserAgents[p.rng.Intn(len(staticUserAgents))]
}

// GetHeaders builds a realistic browser header set for one request. If
// referer is non-empty it is included as Referer.
func (p *Provider) GetHeaders(referer string) Headers {
	p.mu.Lock()
	ua := p.userAgentLocked()
	accept := acceptHeaders[p.rng.Intn(len(acceptHeaders))]
	lang := acceptLanguages[p.rng.Intn(len(acceptLanguages))]
	includeDNT := p.rng.Float64() < dntProbability
	p.mu.Unlock()

	h := Headers{
		"User-Agent":                ua,
		"Accept":                    accept,
		"Accept-Language":           lang,
		"Accept-Encoding":           acceptEncoding,
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
	}
	if referer != "" {
		h["Referer"] = referer
	}
	if includeDNT {
		h["DNT"] = "1"
	}
	if isChromiumLike(ua) {
		p.mu.Lock()
		h["Sec-Fetch-Mode"] = secFetchModes[p.rng.Intn(len(secFetchModes))]
		h["Sec-Fetch-Site"] = secFetchSites[p.rng.Intn(len(secFetchSites))]
		h["Sec-Fetch-Dest"] = secFetchDests[p.rng.Intn(len(secFetchDests))]
		p.mu.Unlock()
		h["Sec-Fetch-User"] = "?1"
		h["Sec-Ch-Ua"] = secChUa(ua)
		h["Sec-Ch-Ua-Mobile"] = "?0"
		h["Sec-Ch-Ua-Platform"] = secChUaPlatform(ua)
	}
	return h
}

// userAgentLocked is GetUserAgent's body, called while p.mu is already
// held so the caller can sample other randoms in the same critical
// section without a second lock/unlock round trip.
func (p *Provider) userAgentLocked() string {
	if p.customUserAgent != "" {
		return p.customUserAgent
	}
	if !p.rotateAgents {
		return staticUserAgents[0]
	}
	return staticUserAgents[p.rng.Intn(len(staticUserAgents))]
}

func isChromiumLike(ua string) bool {
	return strings.Contains(ua, "Chrome") || strings.Contains(ua, "Edg")
}

func secChUa(ua string) string {
	switch {
	case strings.Contains(ua, "Edg"):
		return `"Microsoft Edge";v="120", "Chromium";v="120", "Not=A?Brand";v="24"`
	case strings.Contains(ua, "Chrome/120"):
		return `"Google Chrome";v="120", "Chromium";v="120", "Not=A?Brand";v="24"`
	case strings.Contains(ua, "Chrome/119"):
		return `"Google Chrome";v="119", "Chromium";v="119", "Not=A?Brand";v="24"`
	default:
		return `"Chromium";v="120", "Not=A?Brand";v="24"`
	}
}

func secChUaPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	case strings.Contains(ua, "Linux"):
		return `"Linux"`
	default:
		return `"Unknown"`
	}
}

// GetDelay samples an inter-request delay from an exponential
// distribution with mean (lo+hi)/2, clamped to [lo, hi], then with
// probability readingPauseP adds a uniform 1-3s "reading pause" on top
// to mimic a human lingering on a page before the next request.
func (p *Provider) GetDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	mean := float64(lo+hi) / 2
	sample := time.Duration(p.rng.ExpFloat64() * mean)
	if sample < lo {
		sample = lo
	}
	if sample > hi {
		sample = hi
	}
	if p.rng.Float64() < readingPauseP {
		extra := readingPauseMin + time.Duration(p.rng.Float64()*float64(readingPauseMax-readingPauseMin))
		sample += extra
	}
	return sample
}

// GetProxy returns the next proxy in round-robin order, or ("", false)
// if no proxies were configured.
func (p *Provider) GetProxy() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return "", false
	}
	proxy := p.proxies[p.proxyIndex%len(p.proxies)]
	p.proxyIndex++
	return proxy, true
}
