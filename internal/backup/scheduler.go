package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	archivePrefix = "assessmaker-"
	archiveExt    = ".json"
)

// ArchiveName returns the file name of an archive taken at t.
func ArchiveName(t time.Time) string {
	return archivePrefix + t.UTC().Format("20060102T150405Z") + archiveExt
}

// Scheduler runs backups on a cron expression and writes each archive to
// every sink.
type Scheduler struct {
	src   Source
	sinks []Sink
	opts  []Option
	now   func() time.Time
	onRun RunHook
	cron  *cron.Cron

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewScheduler validates expr and prepares the cron runner without starting it.
func NewScheduler(expr string, src Source, sinks []Sink, opts ...Option) (*Scheduler, error) {
	if len(sinks) == 0 {
		return nil, errors.New("backup: no sinks configured")
	}
	o := newOptions(opts)
	s := &Scheduler{
		src:   src,
		sinks: sinks,
		opts:  opts,
		now:   o.now,
		onRun: o.onRun,
		cron:  cron.New(),
	}
	if _, err := s.cron.AddFunc(expr, func() {
		if err := s.Run(context.Background()); err != nil {
			slog.Warn("backup: scheduled run failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("backup: invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("backup: scheduler started", "sinks", len(s.sinks))
}

// Stop halts the runner and waits for a running backup to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run takes one backup now. Every sink is attempted; the errors of the
// ones that failed are joined.
func (s *Scheduler) Run(ctx context.Context) error {
	name := ArchiveName(s.now())
	data, sum, err := Export(ctx, s.src, s.opts...)
	if err == nil {
		var errs []error
		for _, sink := range s.sinks {
			if perr := sink.Put(ctx, name, data); perr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), perr))
				continue
			}
			slog.Info("backup: archive written", "sink", sink.Name(), "name", name,
				"reports", sum.Reports, "skipped", len(sum.Skipped), "bytes", len(data))
		}
		err = errors.Join(errs...)
	}

	s.mu.Lock()
	s.lastRun, s.lastErr = s.now(), err
	s.mu.Unlock()

	if s.onRun != nil {
		s.onRun(ctx, name, sum, err)
	}
	return err
}

// LastRun reports when the most recent backup ran and how it ended.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}
