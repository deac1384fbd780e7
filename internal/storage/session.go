package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/fileutil"
	"github.com/rohmanhakim/docs-crawler/pkg/hashutil"
)

/*
Session/URL state store

One sessions table (id, seed, start/end, status, counters) and one
per-session URL table keyed uniquely by (session, url) with fields
status/http_status/content_type/depth/parent/crawled_at/error.

Baseline implementation: an in-process map-backed store guarded by a
single mutex (one writer at a time),
snapshotted to db_path as JSON after every mutation. It satisfies
SessionStore the same way a database/sql-backed store would, so
swapping in a real driver later only means a new implementation of
this interface, not a rewrite of callers.
*/

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

type URLStatus string

const (
	URLStatusPending   URLStatus = "pending"
	URLStatusCompleted URLStatus = "completed"
	URLStatusFailed    URLStatus = "failed"
)

type Session struct {
	ID        string
	Seed      string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    SessionStatus
	Crawled   int
	Failed    int
}

type URLRecord struct {
	SessionID   string
	URL         string
	Status      URLStatus
	HTTPStatus  int
	ContentType string
	Depth       int
	Parent      string
	CrawledAt   *time.Time
	Error       string
	Seq         int
}

// SessionStore is the relational half of persistence: create/resume a
// session, add discovered URLs idempotently, mark them terminal, and
// serve the pending set back out in resume order.
type SessionStore interface {
	CreateSession(seed string) (Session, failure.ClassifiedError)
	ResumeSession(id string) (Session, failure.ClassifiedError)
	FindSessionBySeed(seed string) (Session, bool, failure.ClassifiedError)
	UpdateSession(id string, status SessionStatus, crawled int, failed int) failure.ClassifiedError
	AddURL(sessionID string, rawURL string, depth int, parent string) (added bool, err failure.ClassifiedError)
	MarkURLCrawled(sessionID string, rawURL string, status URLStatus, httpStatus int, contentType string, crawlErr string) failure.ClassifiedError
	PendingURLs(sessionID string) ([]URLRecord, failure.ClassifiedError)
	Stats(sessionID string) (crawled int, failed int, pending int, err failure.ClassifiedError)
	Close() failure.ClassifiedError
}

type urlKey struct {
	sessionID string
	url       string
}

// FileSessionStore is the baseline SessionStore: everything lives in
// memory, snapshotted to dbPath as JSON on every mutating call.
type FileSessionStore struct {
	mu       sync.Mutex
	dbPath   string
	sessions map[string]*Session
	urls     map[urlKey]*URLRecord
	nextSeq  int
}

// NewFileSessionStore opens (or creates) the store at dbPath, loading
// any prior snapshot so a rerun against the same path resumes.
func NewFileSessionStore(dbPath string) (*FileSessionStore, failure.ClassifiedError) {
	store := &FileSessionStore{
		dbPath:   dbPath,
		sessions: make(map[string]*Session),
		urls:     make(map[urlKey]*URLRecord),
	}

	if dbPath == "" {
		return store, nil
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := fileutil.EnsureDir(dir); err != nil {
			return nil, &StorageError{
				Message:   err.Error(),
				Retryable: false,
				Cause:     ErrCausePathError,
				Path:      dir,
			}
		}
	}

	raw, err := os.ReadFile(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      dbPath,
		}
	}
	if len(raw) == 0 {
		return store, nil
	}

	var snapshot fileSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, &StorageError{
			Message:   fmt.Sprintf("corrupt session store: %v", err),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      dbPath,
		}
	}

	for i := range snapshot.Sessions {
		s := snapshot.Sessions[i]
		store.sessions[s.ID] = &s
	}
	for i := range snapshot.URLs {
		u := snapshot.URLs[i]
		store.urls[urlKey{sessionID: u.SessionID, url: u.URL}] = &u
		if u.Seq >= store.nextSeq {
			store.nextSeq = u.Seq + 1
		}
	}

	return store, nil
}

type fileSnapshot struct {
	Sessions []Session   `json:"sessions"`
	URLs     []URLRecord `json:"urls"`
}

// persist must be called with mu held.
func (s *FileSessionStore) persist() failure.ClassifiedError {
	if s.dbPath == "" {
		return nil
	}

	snapshot := fileSnapshot{}
	for _, sess := range s.sessions {
		snapshot.Sessions = append(snapshot.Sessions, *sess)
	}
	for _, u := range s.urls {
		snapshot.URLs = append(snapshot.URLs, *u)
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      s.dbPath,
		}
	}

	if err := os.WriteFile(s.dbPath, raw, 0644); err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      s.dbPath,
		}
	}
	return nil
}

func newSessionID(seed string) (string, error) {
	return hashutil.HashBytes([]byte(fmt.Sprintf("%s|%d", seed, time.Now().UnixNano())), hashutil.HashAlgoBLAKE3)
}

func (s *FileSessionStore) CreateSession(seed string) (Session, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := newSessionID(seed)
	if err != nil {
		return Session{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
		}
	}
	// first 16 hex chars is plenty of entropy for a session id
	id = id[:16]

	session := Session{
		ID:        id,
		Seed:      seed,
		StartedAt: time.Now(),
		Status:    SessionRunning,
	}
	s.sessions[id] = &session

	if err := s.persist(); err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *FileSessionStore) ResumeSession(id string) (Session, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, &StorageError{
			Message:   fmt.Sprintf("no such session: %s", id),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return *session, nil
}

// FindSessionBySeed returns the most recently started session for seed
// that has not reached SessionCompleted, so Run can resume a crawl that
// was interrupted mid-way instead of starting it over. A session left
// SessionCompleted by a prior clean run is not a resume candidate.
func (s *FileSessionStore) FindSessionBySeed(seed string) (Session, bool, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Session
	for _, sess := range s.sessions {
		if sess.Seed != seed || sess.Status == SessionCompleted {
			continue
		}
		if best == nil || sess.StartedAt.After(best.StartedAt) {
			best = sess
		}
	}
	if best == nil {
		return Session{}, false, nil
	}
	return *best, true, nil
}

func (s *FileSessionStore) UpdateSession(id string, status SessionStatus, crawled int, failed int) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return &StorageError{
			Message:   fmt.Sprintf("no such session: %s", id),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}

	session.Status = status
	session.Crawled = crawled
	session.Failed = failed
	if status == SessionCompleted || status == SessionFailed {
		now := time.Now()
		session.EndedAt = &now
	}

	return s.persist()
}

// AddURL is idempotent: re-adding a URL already present for this
// session is a no-op, reported via added=false.
func (s *FileSessionStore) AddURL(sessionID string, rawURL string, depth int, parent string) (bool, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := urlKey{sessionID: sessionID, url: rawURL}
	if _, exists := s.urls[key]; exists {
		return false, nil
	}

	s.urls[key] = &URLRecord{
		SessionID: sessionID,
		URL:       rawURL,
		Status:    URLStatusPending,
		Depth:     depth,
		Parent:    parent,
		Seq:       s.nextSeq,
	}
	s.nextSeq++

	if err := s.persist(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileSessionStore) MarkURLCrawled(sessionID string, rawURL string, status URLStatus, httpStatus int, contentType string, crawlErr string) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := urlKey{sessionID: sessionID, url: rawURL}
	record, ok := s.urls[key]
	if !ok {
		return &StorageError{
			Message:   fmt.Sprintf("no such url in session %s: %s", sessionID, rawURL),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}

	now := time.Now()
	record.Status = status
	record.HTTPStatus = httpStatus
	record.ContentType = contentType
	record.Error = crawlErr
	record.CrawledAt = &now

	return s.persist()
}

// PendingURLs returns every pending URL for the session ordered by
// depth ascending, then insertion order, matching the resume-order
// requirement (shallow pages first, fair within a depth).
func (s *FileSessionStore) PendingURLs(sessionID string) ([]URLRecord, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []URLRecord
	for _, u := range s.urls {
		if u.SessionID == sessionID && u.Status == URLStatusPending {
			pending = append(pending, *u)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Depth != pending[j].Depth {
			return pending[i].Depth < pending[j].Depth
		}
		return pending[i].Seq < pending[j].Seq
	})

	return pending, nil
}

func (s *FileSessionStore) Stats(sessionID string) (int, int, int, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var crawled, failed, pending int
	for _, u := range s.urls {
		if u.SessionID != sessionID {
			continue
		}
		switch u.Status {
		case URLStatusCompleted:
			crawled++
		case URLStatusFailed:
			failed++
		case URLStatusPending:
			pending++
		}
	}
	return crawled, failed, pending, nil
}

func (s *FileSessionStore) Close() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}
