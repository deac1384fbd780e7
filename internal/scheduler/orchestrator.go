package scheduler

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/extractor"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/identity"
	"github.com/rohmanhakim/docs-crawler/internal/mdconvert"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/robots"
	"github.com/rohmanhakim/docs-crawler/internal/sitemap"
	"github.com/rohmanhakim/docs-crawler/internal/storage"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
	"golang.org/x/net/html"
)

/*
Orchestrator drives the crawl concurrently: admission rules (robots,
scope, depth, limits all settled before a URL reaches the frontier)
enforced by N workers pulling from one shared Frontier. Frontier,
the rate limiter, the robots cache, and the metadata recorder were
already built mutex-guarded for exactly this; Orchestrator is what
finally drives them concurrently.

Worker loop, per iteration:
 1. block on frontier.Get until a token is ready or the poll timeout
    elapses; on repeated empty polls with nothing in flight, the
    worker retires
 2. acquire the per-host rate-limit slot
 3. fetch
 4. parse the page, persist it, discover and admit its crawlable links
 5. mark the frontier token complete (success or failure)
*/

// workerPollTimeout bounds how long a worker blocks on Frontier.Get
// before re-checking whether the crawl has drained.
const workerPollTimeout = 2 * time.Second

// OrchestratorResult summarizes one concurrent crawl run.
type OrchestratorResult struct {
	SessionID      string
	PagesCrawled   int
	PagesFailed    int
	Duration       time.Duration
	FrontierErrors int
}

// Orchestrator coordinates a fixed-size worker pool against one shared
// Frontier. It carries no per-worker current host: every worker
// resolves scope against the session's seed host.
type Orchestrator struct {
	cfg          config.Config
	metadataSink metadata.MetadataSink
	robot        robots.Robot
	frontierQ    *frontier.Frontier
	fetcher      fetcher.Fetcher
	rateLimiter  limiter.RateLimiter
	identity     *identity.Provider
	pageParser   *extractor.PageParser
	sessionStore storage.SessionStore
	contentLog   storage.ContentLog

	seedHost  string
	sessionID string
}

// NewOrchestrator builds an Orchestrator from cfg. sessionStore is the
// resumable session/URL ledger; the caller owns its lifecycle (Close
// after Run returns). The content log is opened internally once Run
// knows the session ID its filename is keyed on.
func NewOrchestrator(
	cfg config.Config,
	sessionStore storage.SessionStore,
) *Orchestrator {
	recorder := metadata.NewRecorder("orchestrator")
	cachedRobot := robots.NewCachedRobot(&recorder)
	htmlFetcher := fetcher.NewHtmlFetcher(&recorder)
	htmlFetcher.Init(&http.Client{Timeout: cfg.Timeout()})
	rateLimiter := limiter.NewConcurrentRateLimiter()
	identityProvider := identity.NewProvider(
		&recorder,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		identity.WithCustomUserAgent(cfg.UserAgent()),
		identity.WithRotation(cfg.RotateUserAgents()),
		identity.WithProxies(cfg.ProxyList()),
	)
	pageParser := extractor.NewPageParser(&recorder, cfg.RenderMarkdownText(), renderMarkdownNode)

	return &Orchestrator{
		cfg:          cfg,
		metadataSink: &recorder,
		robot:        &cachedRobot,
		frontierQ:    frontier.NewFrontier(),
		fetcher:      &htmlFetcher,
		rateLimiter:  rateLimiter,
		identity:     identityProvider,
		pageParser:   pageParser,
		sessionStore: sessionStore,
	}
}

// renderMarkdownNode adapts mdconvert's HTML-to-Markdown conversion to
// the renderer signature extractor.PageParser expects.
func renderMarkdownNode(node *html.Node) (string, error) {
	return mdconvert.RenderNode(node)
}

// Run drives the concurrent crawl to completion: seeds the frontier,
// optionally discovers sitemaps, starts cfg.Concurrency() workers, and
// waits for them all to retire because the frontier drained.
func (o *Orchestrator) Run(ctx context.Context) (OrchestratorResult, failure.ClassifiedError) {
	start := time.Now()

	o.frontierQ.Init(o.cfg)
	if o.cfg.RespectRobotsTxt() {
		o.robot.Init(o.cfg.UserAgent())
	}
	o.rateLimiter.SetBaseDelay(o.cfg.BaseDelay())
	o.rateLimiter.SetJitter(o.cfg.Jitter())
	o.rateLimiter.SetRandomSeed(o.cfg.RandomSeed())

	seed := o.cfg.SeedURLs()[0]
	o.seedHost = seed.Host

	session, resumed, sessErr := o.resumeOrCreateSession(seed)
	if sessErr != nil {
		return OrchestratorResult{}, sessErr
	}
	o.sessionID = session.ID

	contentLog, logErr := storage.NewFileContentLog(o.cfg.OutputDir(), session.ID)
	if logErr != nil {
		return OrchestratorResult{}, logErr
	}
	o.contentLog = contentLog
	defer contentLog.Close()

	if resumed {
		if resumeErr := o.reloadPendingURLs(session.ID); resumeErr != nil {
			return OrchestratorResult{}, resumeErr
		}
	} else {
		if admitErr := o.admit(seed, frontier.SourceSeed, 0, ""); admitErr != nil {
			return OrchestratorResult{}, admitErr
		}

		if o.cfg.ParseSitemaps() {
			o.discoverAndSeedSitemaps(seed)
		}
	}

	workerCount := o.cfg.Concurrency()
	if workerCount < 1 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			o.workerLoop(ctx)
		}()
	}
	wg.Wait()

	crawled, failed, _, statsErr := o.sessionStore.Stats(session.ID)
	if statsErr != nil {
		crawled = o.frontierQ.CompletedCount()
		failed = o.frontierQ.ErrorCount()
	}
	finalStatus := storage.SessionCompleted
	if ctx.Err() != nil {
		finalStatus = storage.SessionFailed
	}
	_ = o.sessionStore.UpdateSession(session.ID, finalStatus, crawled, failed)

	return OrchestratorResult{
		SessionID:      session.ID,
		PagesCrawled:   crawled,
		PagesFailed:    failed,
		Duration:       time.Since(start),
		FrontierErrors: o.frontierQ.ErrorCount(),
	}, nil
}

// resumeOrCreateSession looks for an existing, not-yet-completed session
// for seed and reuses it; otherwise it mints a fresh session the way a
// first run always has. The bool result tells Run which path was taken.
func (o *Orchestrator) resumeOrCreateSession(seed url.URL) (storage.Session, bool, failure.ClassifiedError) {
	existing, found, findErr := o.sessionStore.FindSessionBySeed(seed.String())
	if findErr != nil {
		return storage.Session{}, false, findErr
	}
	if found {
		return existing, true, nil
	}

	session, sessErr := o.sessionStore.CreateSession(seed.String())
	if sessErr != nil {
		return storage.Session{}, false, sessErr
	}
	return session, false, nil
}

// reloadPendingURLs repopulates the frontier from a resumed session's
// still-pending URLs, at NORMAL priority and their previously recorded
// depth, rather than re-running seed admission and sitemap discovery.
func (o *Orchestrator) reloadPendingURLs(sessionID string) failure.ClassifiedError {
	pending, err := o.sessionStore.PendingURLs(sessionID)
	if err != nil {
		return err
	}

	for _, record := range pending {
		parsed, parseErr := url.Parse(record.URL)
		if parseErr != nil {
			continue
		}
		o.frontierQ.Add(*parsed, frontier.PriorityNormal, record.Depth)
	}
	return nil
}

// workerLoop is one worker's lifetime: pull, process, repeat, until the
// frontier has drained (queue empty and nothing in flight) or ctx ends.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		token, ok := o.frontierQ.Get(workerPollTimeout)
		if !ok {
			if o.frontierQ.IsEmpty() {
				return
			}
			continue
		}

		o.processToken(ctx, token)
	}
}

// processToken fetches, parses, persists, and discovers follow links for
// one token, then reports it complete to the frontier.
func (o *Orchestrator) processToken(ctx context.Context, token frontier.CrawlToken) {
	target := token.URL()

	if err := o.rateLimiter.Acquire(ctx, target.Host); err != nil {
		o.frontierQ.Complete(target, false)
		_ = o.sessionStore.MarkURLCrawled(o.sessionID, target.String(), storage.URLStatusFailed, 0, "", err.Error())
		return
	}

	fetchParam := fetcher.NewFetchParam(target, o.cfg.UserAgent()).
		WithMaxContentLength(o.cfg.MaxContentLength())
	if o.identity != nil {
		fetchParam = fetchParam.WithHeaders(o.identity.GetHeaders(""))
	}

	fetchResult, fetchErr := o.fetcher.Fetch(ctx, token.Depth(), fetchParam, RetryParam(o.cfg))
	if fetchErr != nil {
		o.frontierQ.Complete(target, false)
		_ = o.sessionStore.MarkURLCrawled(o.sessionID, target.String(), storage.URLStatusFailed, 0, "", fetchErr.Error())
		return
	}

	contentType := fetchResult.Headers()["Content-Type"]
	if !o.contentTypeAllowed(contentType) {
		o.frontierQ.Complete(target, true)
		_ = o.sessionStore.MarkURLCrawled(o.sessionID, target.String(), storage.URLStatusCompleted, fetchResult.Code(), contentType, "")
		return
	}

	parsed, parseErr := o.pageParser.Parse(target, fetchResult.Body())
	if parseErr != nil {
		o.frontierQ.Complete(target, false)
		_ = o.sessionStore.MarkURLCrawled(o.sessionID, target.String(), storage.URLStatusFailed, fetchResult.Code(), contentType, parseErr.Error())
		return
	}

	record := storage.ContentRecord{
		URL:         target.String(),
		CrawledAt:   fetchResult.FetchedAt(),
		Title:       parsed.Title,
		Description: parsed.Description,
		Text:        parsed.Text,
		LinkCount:   len(parsed.Links),
		Depth:       token.Depth(),
	}
	if o.cfg.SaveHTML() {
		record.HTML = string(fetchResult.Body())
	}
	_ = o.contentLog.Append(record)

	_ = o.sessionStore.MarkURLCrawled(o.sessionID, target.String(), storage.URLStatusCompleted, fetchResult.Code(), contentType, "")
	o.frontierQ.Complete(target, true)

	for _, link := range extractor.GetCrawlableLinks(parsed, o.cfg.RespectNofollow(), true) {
		childURL, err := urlutil.Normalize(link, nil)
		if err != nil {
			continue
		}
		_ = o.admit(childURL, frontier.SourceCrawl, token.Depth()+1, target.String())
	}
}

// contentTypeAllowed reports whether contentType matches one of the
// configured allowed content types (prefix match, since servers append
// a charset parameter). An empty allowlist admits everything.
func (o *Orchestrator) contentTypeAllowed(contentType string) bool {
	allowed := o.cfg.AllowedContentTypes()
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if len(contentType) >= len(a) && contentType[:len(a)] == a {
			return true
		}
	}
	return false
}

// admit applies robots policy (when enabled), registers target in the
// session store, and submits it to the frontier. Safe for concurrent
// callers: CachedRobot, ConcurrentRateLimiter, Frontier, and
// FileSessionStore each guard their own state with a mutex.
func (o *Orchestrator) admit(target url.URL, source frontier.SourceContext, depth int, parent string) failure.ClassifiedError {
	if !o.cfg.RespectRobotsTxt() {
		return o.submit(target, source, depth, parent)
	}

	decision, robotsErr := o.robot.Decide(target)
	if robotsErr != nil {
		return robotsErr
	}

	o.rateLimiter.ResetBackoff(target.Host)
	if decision.CrawlDelay != nil && *decision.CrawlDelay > 0 {
		o.rateLimiter.SetCrawlDelay(target.Host, *decision.CrawlDelay)
	}

	if !decision.Allowed {
		return nil
	}

	return o.submit(decision.Url, source, depth, parent)
}

// submit registers target with the session store and, if newly added
// (not a duplicate already known to this session), enqueues it.
func (o *Orchestrator) submit(target url.URL, source frontier.SourceContext, depth int, parent string) failure.ClassifiedError {
	added, err := o.sessionStore.AddURL(o.sessionID, target.String(), depth, parent)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}
	candidate := frontier.NewCrawlAdmissionCandidate(target, source, frontier.NewDiscoveryMetadata(depth, nil))
	o.frontierQ.Submit(candidate)
	return nil
}

// discoverAndSeedSitemaps probes the seed host's robots-conventional
// sitemap paths, expands up to 5 of them (capped at 1000 URLs each),
// and admits the resulting URLs at HIGH priority, depth 1. Sitemap
// discovery is best-effort: any failure here leaves the crawl to fall
// back on in-page link discovery alone.
func (o *Orchestrator) discoverAndSeedSitemaps(seed url.URL) {
	const maxSitemaps = 5
	const maxURLsPerSitemap = 1000

	client := &http.Client{Timeout: 10 * time.Second}
	fetch := func(rawURL string) (sitemap.FetchResult, error) {
		resp, err := client.Get(rawURL)
		if err != nil {
			return sitemap.FetchResult{}, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return sitemap.FetchResult{}, err
		}
		return sitemap.FetchResult{Status: resp.StatusCode, Body: string(body)}, nil
	}

	expander := sitemap.NewExpander(fetch, o.metadataSink, 3)
	base := seed.Scheme + "://" + seed.Host
	sitemapURLs := expander.DiscoverSitemaps(base, nil)
	if len(sitemapURLs) > maxSitemaps {
		sitemapURLs = sitemapURLs[:maxSitemaps]
	}

	for _, sm := range sitemapURLs {
		entries := expander.ProcessSitemap(sm)
		if len(entries) > maxURLsPerSitemap {
			entries = entries[:maxURLsPerSitemap]
		}
		for _, entry := range entries {
			parsed, err := urlutil.Normalize(entry.Loc, nil)
			if err != nil || parsed.Host != o.seedHost {
				continue
			}
			_ = o.submit(parsed, frontier.SourceSeed, 1, "")
		}
	}
}
