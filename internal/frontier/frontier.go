package frontier

import (
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain priority ordering with FIFO tiebreak
- Deduplicate URLs via an approximate seen set plus an exact in-flight set
- Track crawl depth and enforce max depth / max pages at admission
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// queuedItem is a frontier-internal record of one admitted, pending URL.
// CrawlToken is the worker-facing projection handed out by Dequeue/Get.
type queuedItem struct {
	url        url.URL
	depth      int
	priority   Priority
	enqueuedAt time.Time
	retryCount int
}

// Frontier is the priority queue of pending URLs described by the crawl
// specification: four priority buckets (HIGHEST..LOW), each FIFO internally,
// backed by an approximate seen set and an exact in-flight set.
type Frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxDepth int
	maxPages int

	seen     *membershipSet
	buckets  [4]*FIFOQueue[queuedItem]
	inFlight Set[string]

	visitedCount   int
	completedCount int
	errorCount     int
}

// NewFrontier constructs an uninitialized Frontier. Call Init before use.
// Returns a pointer because Frontier embeds a sync.Mutex and a *sync.Cond
// bound to that mutex's address; copying a Frontier after construction
// would detach the condition variable from the mutex it signals.
func NewFrontier() *Frontier {
	f := &Frontier{
		seen:     newMembershipSet(0),
		inFlight: NewSet[string](),
	}
	for i := range f.buckets {
		f.buckets[i] = NewFIFOQueue[queuedItem]()
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// NewCrawlFrontier is an alias for NewFrontier kept for call-site clarity
// in places that construct a frontier specifically to drive a crawl.
func NewCrawlFrontier() *Frontier {
	return NewFrontier()
}

// Init configures depth/page limits and the seen-set capacity from cfg.
// Safe to call once before the frontier is used by any worker.
func (f *Frontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maxDepth = cfg.MaxDepth()
	f.maxPages = cfg.MaxPages()
	f.seen = newMembershipSet(cfg.MaxPages() * bitsPerExpectedURL)
}

// Submit is the sole entry point for already-admitted candidates (robots
// and scope checks are the scheduler's job, not the frontier's). It derives
// priority from the candidate's source and depth from its metadata, then
// delegates to Add. The bool return mirrors Add's "was it accepted".
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) bool {
	return f.Add(
		candidate.TargetURL(),
		priorityForSource(candidate.SourceContext()),
		candidate.DiscoveryMetadata().Depth(),
	)
}

// Add normalizes u, rejects it if already seen or in-flight or beyond the
// configured max depth/pages, otherwise records it seen, enqueues it in its
// priority bucket, and wakes one waiter. Returns whether it was added.
func (f *Frontier) Add(u url.URL, priority Priority, depth int) bool {
	canonical := urlutil.Canonicalize(u)
	key := canonical.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxDepth > 0 && depth > f.maxDepth {
		return false
	}
	if f.maxPages > 0 && f.visitedCount >= f.maxPages {
		return false
	}
	if f.seen.Contains(key) || f.inFlight.Contains(key) {
		return false
	}

	f.seen.Add(key)
	f.visitedCount++
	f.buckets[priority].Enqueue(queuedItem{
		url:        canonical,
		depth:      depth,
		priority:   priority,
		enqueuedAt: time.Now(),
	})
	f.cond.Signal()
	return true
}

// AddRequest bundles the parameters of a single Add call, for AddMany.
type AddRequest struct {
	URL      url.URL
	Priority Priority
	Depth    int
}

// AddMany folds Add over requests, returning the count actually added.
func (f *Frontier) AddMany(requests []AddRequest) int {
	added := 0
	for _, req := range requests {
		if f.Add(req.URL, req.Priority, req.Depth) {
			added++
		}
	}
	return added
}

// popLocked selects the minimum (priority, enqueue time) item across all
// buckets without blocking. Caller must hold f.mu.
func (f *Frontier) popLocked() (queuedItem, bool) {
	for _, bucket := range f.buckets {
		if item, ok := bucket.Dequeue(); ok {
			return item, true
		}
	}
	return queuedItem{}, false
}

// Dequeue is the non-blocking pop used by the single-worker scheduler path:
// it atomically pops the highest-priority pending item and marks it
// in-flight, or reports false if the frontier currently has no work.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.popLocked()
	if !ok {
		return CrawlToken{}, false
	}
	f.inFlight.Add(item.url.String())
	return NewCrawlToken(item.url, item.depth), true
}

// Get blocks until an item is available or timeout elapses, atomically
// popping the highest-priority item and inserting it into in-flight.
func (f *Frontier) Get(timeout time.Duration) (CrawlToken, bool) {
	deadline := time.Now().Add(timeout)

	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if item, ok := f.popLocked(); ok {
			f.inFlight.Add(item.url.String())
			return NewCrawlToken(item.url, item.depth), true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return CrawlToken{}, false
		}

		// sync.Cond has no timed wait; a waiter goroutine signals back once
		// the deadline fires or the condvar itself wakes up, whichever first.
		woken := make(chan struct{})
		go func() {
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			<-timer.C
			f.mu.Lock()
			f.cond.Broadcast()
			f.mu.Unlock()
			close(woken)
		}()
		f.cond.Wait()
		if time.Now().After(deadline) {
			select {
			case <-woken:
			default:
			}
			if item, ok := f.popLocked(); ok {
				f.inFlight.Add(item.url.String())
				return NewCrawlToken(item.url, item.depth), true
			}
			return CrawlToken{}, false
		}
	}
}

// Complete removes u from in-flight and increments the completed or error
// counter depending on success.
func (f *Frontier) Complete(u url.URL, success bool) {
	canonical := urlutil.Canonicalize(u)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight.Remove(canonical.String())
	if success {
		f.completedCount++
	} else {
		f.errorCount++
	}
}

// Retry removes the token from in-flight; if it has already been retried
// maxRetries times it is counted as an error and dropped, otherwise it is
// re-enqueued with retryCount+1 at the next-worse priority.
func (f *Frontier) Retry(token CrawlToken, priority Priority, retryCount int, maxRetries int) bool {
	canonical := urlutil.Canonicalize(token.URL())
	key := canonical.String()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight.Remove(key)

	if retryCount >= maxRetries {
		f.errorCount++
		return false
	}

	f.buckets[priority.Worsen()].Enqueue(queuedItem{
		url:        canonical,
		depth:      token.Depth(),
		priority:   priority.Worsen(),
		enqueuedAt: time.Now(),
		retryCount: retryCount + 1,
	})
	f.cond.Signal()
	return true
}

// VisitedCount returns the exact number of unique URLs ever admitted
// (the seen set's insert counter). It never decreases.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visitedCount
}

// QueueSize returns the total number of items currently pending across all
// priority buckets.
func (f *Frontier) QueueSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	size := 0
	for _, bucket := range f.buckets {
		size += bucket.Size()
	}
	return size
}

// InFlightCount returns the number of URLs dispatched but not yet completed.
func (f *Frontier) InFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight.Size()
}

// CompletedCount returns the number of URLs completed successfully.
func (f *Frontier) CompletedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completedCount
}

// ErrorCount returns the number of URLs that terminated in failure
// (including retries exhausted).
func (f *Frontier) ErrorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorCount
}

// IsEmpty reports whether both the queue and the in-flight set are empty.
func (f *Frontier) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight.Size() > 0 {
		return false
	}
	for _, bucket := range f.buckets {
		if bucket.Size() > 0 {
			return false
		}
	}
	return true
}
