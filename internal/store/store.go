// Package store persists reports, findings, images and library entries.
// Sensitive columns are sealed with the field codec immediately before a
// write and opened immediately after a read; callers only see plaintext.
package store

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxImageBytes caps a single PoC upload.
const DefaultMaxImageBytes = 10 << 20

// Store is the encrypted persistence layer. It is safe for concurrent use.
type Store struct {
	db            database.DB
	maxImageBytes int64
	workers       int
	onSkip        func(fieldcrypt.Entity)
	now           func() time.Time

	mu    sync.RWMutex
	codec *fieldcrypt.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithMaxImageBytes overrides the upload size limit.
func WithMaxImageBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxImageBytes = n
		}
	}
}

// WithWorkers bounds how many rows are decrypted concurrently by list operations.
func WithWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSkipObserver is called whenever a bulk operation skips a record.
func WithSkipObserver(fn func(fieldcrypt.Entity)) Option {
	return func(s *Store) { s.onSkip = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store over db using codec for sensitive columns.
func New(db database.DB, codec *fieldcrypt.Codec, opts ...Option) *Store {
	s := &Store{
		db:            db,
		codec:         codec,
		maxImageBytes: DefaultMaxImageBytes,
		workers:       runtime.GOMAXPROCS(0),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Codec returns the codec currently in use.
func (s *Store) Codec() *fieldcrypt.Codec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.codec
}

// Ping checks the underlying database.
func (s *Store) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

// skip logs and counts a record left out of a bulk result.
func (s *Store) skip(failures *[]RecordFailure, mu *sync.Mutex, entity fieldcrypt.Entity, id string, err error) {
	slog.Warn("store: skipping unreadable record", "entity", entity, "id", id, "error", err)
	if s.onSkip != nil {
		s.onSkip(entity)
	}
	mu.Lock()
	*failures = append(*failures, RecordFailure{Entity: entity, ID: id, Error: err.Error()})
	mu.Unlock()
}

// parallel runs fn for 0..n-1 with at most s.workers in flight. fn reports
// per-record problems itself; a returned error aborts the whole run.
func (s *Store) parallel(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// --- validation ---

func normalizeReport(r *models.Report) error {
	r.ProjectName = strings.TrimSpace(r.ProjectName)
	if r.ProjectName == "" {
		return invalidf("projectName is required")
	}
	if strings.TrimSpace(r.Version) == "" {
		r.Version = "1.0"
	}
	switch r.AssessmentType {
	case "":
		r.AssessmentType = models.AssessmentInitial
	case models.AssessmentInitial, models.AssessmentReassessment:
	default:
		return invalidf("unknown assessmentType %q", r.AssessmentType)
	}
	if r.IsReassessment() && (r.ParentAssessmentID == "" || r.ParentAssessment == nil) {
		return invalidf("a reassessment needs parentAssessmentId and parentAssessmentData")
	}
	if r.ProjectStatus == "" {
		r.ProjectStatus = models.ProjectInProgress
	}
	if r.ProjectStatus != models.ProjectCompletedWithException {
		r.FixByDate = ""
	}
	for i := range r.Findings {
		if err := normalizeFinding(&r.Findings[i]); err != nil {
			return err
		}
	}
	return nil
}

func normalizeFinding(f *models.Finding) error {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return invalidf("finding title is required")
	}
	f.Severity = models.MapSeverity(string(f.Severity))
	if !f.Severity.Valid() {
		return invalidf("unknown severity %q", f.Severity)
	}
	switch models.FindingStatus(strings.ToUpper(string(f.Status))) {
	case "", models.StatusOpen:
		f.Status = models.StatusOpen
	case models.StatusClosed:
		f.Status = models.StatusClosed
	default:
		return invalidf("unknown status %q", f.Status)
	}
	return nil
}

// checkEndpoints trims and de-duplicates eps and requires each to appear in
// the report's endpoint list, by full line or by URL.
func checkEndpoints(eps []string, report []models.Endpoint) ([]string, error) {
	allowed := make(map[string]bool, len(report)*2)
	for _, ep := range report {
		allowed[ep.String()] = true
		allowed[ep.URL] = true
	}
	out := make([]string, 0, len(eps))
	seen := make(map[string]bool, len(eps))
	for _, e := range eps {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		if !allowed[e] {
			return nil, invalidf("affected endpoint %q is not listed in the report URLs", e)
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}
