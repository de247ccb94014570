package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"gocloud.dev/blob"
)

// Failure is one failed download, kept as an append-only audit entry.
// It is advisory: a later successful run on the same date can still
// mark the date complete.
type Failure struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is the persisted progress state, stored as indented JSON so
// the file stays human-inspectable.
type Record struct {
	CompletedDates  []string       `json:"completed_dates"`
	FailedDownloads []Failure      `json:"failed_downloads"`
	NoDocumentDates []string       `json:"no_document_dates,omitempty"`
	Stats           map[string]int `json:"stats"`
}

// Store is the durable, idempotent record of completed work. It is
// loaded once at startup and flushed after every batch; between
// flushes all state lives in memory.
//
// All mutations go through the scheduler's collector goroutine, but
// the store carries its own mutex so the failure/stat paths, which the
// downloader hits from worker goroutines, are safe too.
type Store struct {
	bucket *blob.Bucket
	object string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	record    Record
	completed map[string]bool
	noDoc     map[string]bool
}

// Open loads the progress record from the bucket. It never fails: a
// missing or corrupt object yields a fresh empty record.
func Open(ctx context.Context, bucket *blob.Bucket, object string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		bucket: bucket,
		object: object,
		logger: logger,
		now:    time.Now,
		record: Record{Stats: make(map[string]int)},
	}

	data, err := bucket.ReadAll(ctx, object)
	if err == nil {
		var rec Record
		if uerr := json.Unmarshal(data, &rec); uerr != nil {
			logger.Warn("progress record corrupt, starting fresh", "object", object, "err", uerr)
		} else {
			s.record = rec
			if s.record.Stats == nil {
				s.record.Stats = make(map[string]int)
			}
		}
	}

	s.completed = make(map[string]bool, len(s.record.CompletedDates))
	for _, key := range s.record.CompletedDates {
		s.completed[key] = true
	}
	s.noDoc = make(map[string]bool, len(s.record.NoDocumentDates))
	for _, key := range s.record.NoDocumentDates {
		s.noDoc[key] = true
	}

	logger.Info("progress loaded",
		"completed", len(s.completed),
		"no_document", len(s.noDoc),
		"failures", len(s.record.FailedDownloads))
	return s
}

// IsCompleted reports whether the date key is already marked complete.
func (s *Store) IsCompleted(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed[key]
}

// MarkCompleted marks a date key complete. Idempotent.
func (s *Store) MarkCompleted(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed[key] {
		return
	}
	s.completed[key] = true
	s.record.CompletedDates = append(s.record.CompletedDates, key)
}

// IsNoDocument reports whether the date key is recorded as having no
// published document.
func (s *Store) IsNoDocument(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noDoc[key]
}

// MarkNoDocument records that the date has no published document, so
// future runs skip resolving it again. Idempotent. Distinct from both
// completion and failure.
func (s *Store) MarkNoDocument(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noDoc[key] {
		return
	}
	s.noDoc[key] = true
	s.record.NoDocumentDates = append(s.record.NoDocumentDates, key)
}

// AddFailure appends a failed download with the current timestamp.
func (s *Store) AddFailure(url, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.FailedDownloads = append(s.record.FailedDownloads, Failure{
		URL:       url,
		Error:     errMsg,
		Timestamp: s.now(),
	})
}

// AddStat increments a named counter by delta.
func (s *Store) AddStat(name string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Stats[name] += delta
}

// Stat returns the current value of a named counter.
func (s *Store) Stat(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Stats[name]
}

// CompletedCount returns the number of completed date keys.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// Failures returns a copy of the failure log.
func (s *Store) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.record.FailedDownloads))
	copy(out, s.record.FailedDownloads)
	return out
}

// Flush persists the record to the bucket. Best effort: on error it
// logs and returns without aborting the run; the state stays in memory
// and the next flush retries. Safe to call repeatedly.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.record, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("marshal progress failed", "err", err)
		return
	}

	if err := s.bucket.WriteAll(ctx, s.object, data, nil); err != nil {
		s.logger.Error("flush progress failed", "object", s.object, "err", err)
		return
	}
	s.logger.Debug("progress flushed", "object", s.object, "bytes", len(data))
}
