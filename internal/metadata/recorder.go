package metadata

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

// MetadataSink is the single write port every pipeline stage logs through.
// It is observational only: nothing on this interface may be used to
// derive retry, continuation, or abort decisions.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// CrawlFinalizer is the narrower view of MetadataSink that exposes only
// the end-of-crawl summary record. The orchestrator does not use it and
// does not call RecordFinalCrawlStats.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// Recorder is the default MetadataSink: it encodes every event as a single
// logfmt line. A mutex serializes writes since stages may call concurrently
// once the scheduler runs a worker pool.
type Recorder struct {
	mu      sync.Mutex
	enc     *logfmt.Encoder
	crawlID string
}

// NewRecorder builds a Recorder that writes logfmt lines to stdout,
// tagged with crawlID so multiple concurrent crawls can be told apart in
// aggregated logs.
func NewRecorder(crawlID string) Recorder {
	return NewRecorderTo(crawlID, os.Stdout)
}

// NewRecorderTo builds a Recorder writing to an arbitrary writer, for
// tests and for redirecting crawl logs to a file.
func NewRecorderTo(crawlID string, w io.Writer) Recorder {
	return Recorder{
		enc:     logfmt.NewEncoder(w),
		crawlID: crawlID,
	}
}

func (r *Recorder) emit(keyvals ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return
	}
	for i := 0; i+1 < len(keyvals); i += 2 {
		if err := r.enc.EncodeKeyval(keyvals[i], keyvals[i+1]); err != nil {
			return
		}
	}
	_ = r.enc.EndRecord()
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.emit(
		"event", "fetch",
		"crawl_id", r.crawlID,
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"content_type", contentType,
		"retry_count", retryCount,
		"depth", crawlDepth,
	)
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.emit(
		"event", "asset_fetch",
		"crawl_id", r.crawlID,
		"url", fetchURL,
		"status", httpStatus,
		"duration_ms", duration.Milliseconds(),
		"retry_count", retryCount,
	)
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	keyvals := []interface{}{
		"event", "error",
		"crawl_id", r.crawlID,
		"time", observedAt.Format(time.RFC3339Nano),
		"package", packageName,
		"action", action,
		"cause", cause.String(),
		"error", errorString,
	}
	for _, attr := range attrs {
		keyvals = append(keyvals, string(attr.Key), attr.Value)
	}
	r.emit(keyvals...)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	keyvals := []interface{}{
		"event", "artifact",
		"crawl_id", r.crawlID,
		"kind", kind.String(),
		"path", path,
	}
	for _, attr := range attrs {
		keyvals = append(keyvals, string(attr.Key), attr.Value)
	}
	r.emit(keyvals...)
}

func (r *Recorder) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.emit(
		"event", "crawl_complete",
		"crawl_id", r.crawlID,
		"total_pages", totalPages,
		"total_errors", totalErrors,
		"total_assets", totalAssets,
		"duration_ms", duration.Milliseconds(),
	)
}

// NoopSink discards every record. It exists for unit tests that exercise
// pipeline stages without caring about observability output.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)         {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)                 {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)                 {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration)               {}
