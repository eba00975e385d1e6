// Package backup exports the whole store as one JSON archive, optionally
// sealed with the field codec, and restores it with continue-on-error
// semantics. The master key is never part of an archive.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/models"
)

const (
	FormatName = "assessmaker-backup"
	Version    = 1

	maxListedFailures = 10
)

var (
	// ErrSealed is returned when an encrypted archive is imported without a key.
	ErrSealed = errors.New("backup: archive is encrypted and no key was provided")
	// ErrInvalidArchive marks data that is not a readable archive.
	ErrInvalidArchive = errors.New("backup: invalid archive")
)

// Archive is the decoded backup document.
type Archive struct {
	Format     string                `json:"format"`
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exportedAt"`
	Reports    []models.Report       `json:"reports"`
	Library    []models.LibraryEntry `json:"library"`
}

// Source is the read side of the store.
type Source interface {
	ExportReports(ctx context.Context) ([]models.Report, []store.RecordFailure, error)
	ListLibrary(ctx context.Context) ([]models.LibraryEntry, error)
}

// Target is the write side of the store.
type Target interface {
	ImportReports(ctx context.Context, reports []models.Report) (store.ImportResult, error)
	ImportLibrary(ctx context.Context, entries []models.LibraryEntry) (store.ImportResult, error)
}

// Sealer seals and unseals archive bytes. *fieldcrypt.Codec implements it.
type Sealer interface {
	EncryptImage(data []byte) ([]byte, error)
	DecryptImage(data []byte) ([]byte, error)
}

type options struct {
	sealer Sealer
	now    func() time.Time
	onRun  RunHook
}

// RunHook is told how each scheduled backup run ended.
type RunHook func(ctx context.Context, archive string, sum ExportSummary, err error)

// Option configures Export and Import.
type Option func(*options)

// WithSealer encrypts exported archives and allows sealed ones to be imported.
func WithSealer(s Sealer) Option {
	return func(o *options) { o.sealer = s }
}

// WithRunHook is called by Scheduler.Run after every run, failed or not.
func WithRunHook(fn RunHook) Option {
	return func(o *options) { o.onRun = fn }
}

// WithClock sets the ExportedAt clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ExportSummary describes what an export contains.
type ExportSummary struct {
	Reports int                   `json:"reports"`
	Library int                   `json:"library"`
	Sealed  bool                  `json:"sealed"`
	Skipped []store.RecordFailure `json:"skipped,omitempty"`
}

// Export serialises every readable report and library entry. Reports that
// cannot be decrypted are left out and listed in the summary.
func Export(ctx context.Context, src Source, opts ...Option) ([]byte, ExportSummary, error) {
	o := newOptions(opts)
	reports, skipped, err := src.ExportReports(ctx)
	if err != nil {
		return nil, ExportSummary{}, fmt.Errorf("backup: reading reports: %w", err)
	}
	library, err := src.ListLibrary(ctx)
	if err != nil {
		return nil, ExportSummary{}, fmt.Errorf("backup: reading library: %w", err)
	}
	if reports == nil {
		reports = []models.Report{}
	}
	if library == nil {
		library = []models.LibraryEntry{}
	}

	data, err := json.Marshal(Archive{
		Format:     FormatName,
		Version:    Version,
		ExportedAt: o.now().UTC(),
		Reports:    reports,
		Library:    library,
	})
	if err != nil {
		return nil, ExportSummary{}, fmt.Errorf("backup: encoding archive: %w", err)
	}
	sum := ExportSummary{Reports: len(reports), Library: len(library), Skipped: skipped}
	if o.sealer != nil {
		if data, err = o.sealer.EncryptImage(data); err != nil {
			return nil, ExportSummary{}, fmt.Errorf("backup: sealing archive: %w", err)
		}
		sum.Sealed = true
	}
	return data, sum, nil
}

// ImportSummary is the combined result of a restore.
type ImportSummary struct {
	Reports store.ImportResult `json:"reports"`
	Library store.ImportResult `json:"library"`
}

// Failures returns every skipped record, reports first.
func (s ImportSummary) Failures() []store.RecordFailure {
	return append(append([]store.RecordFailure(nil), s.Reports.Failures...), s.Library.Failures...)
}

// Message is a one-line summary listing at most ten failures.
func (s ImportSummary) Message() string {
	msg := fmt.Sprintf("imported %d reports and %d library entries", s.Reports.Imported, s.Library.Imported)
	failures := s.Failures()
	if len(failures) == 0 {
		return msg
	}
	parts := make([]string, 0, maxListedFailures)
	for i, f := range failures {
		if i == maxListedFailures {
			break
		}
		parts = append(parts, fmt.Sprintf("%s %s: %s", f.Entity, f.ID, f.Error))
	}
	msg += fmt.Sprintf("; %d failed: %s", len(failures), strings.Join(parts, "; "))
	if extra := len(failures) - maxListedFailures; extra > 0 {
		msg += fmt.Sprintf(" (and %d more)", extra)
	}
	return msg
}

// Decode unseals data when needed and validates the archive header.
func Decode(data []byte, opts ...Option) (*Archive, error) {
	o := newOptions(opts)
	if bytes.HasPrefix(data, []byte(fieldcrypt.Marker)) {
		if o.sealer == nil {
			return nil, ErrSealed
		}
		raw, err := o.sealer.DecryptImage(data)
		if err != nil {
			return nil, fmt.Errorf("backup: unsealing archive: %w", err)
		}
		data = raw
	}
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if a.Format != FormatName {
		return nil, fmt.Errorf("%w: not an %s archive (format %q)", ErrInvalidArchive, FormatName, a.Format)
	}
	if a.Version < 1 || a.Version > Version {
		return nil, fmt.Errorf("%w: unsupported archive version %d", ErrInvalidArchive, a.Version)
	}
	return &a, nil
}

// Import restores an archive. Individual records that fail are skipped and
// reported; only an unreadable archive or a storage outage returns an error.
func Import(ctx context.Context, dst Target, data []byte, opts ...Option) (ImportSummary, error) {
	a, err := Decode(data, opts...)
	if err != nil {
		return ImportSummary{}, err
	}
	var sum ImportSummary
	if sum.Reports, err = dst.ImportReports(ctx, a.Reports); err != nil {
		return sum, fmt.Errorf("backup: importing reports: %w", err)
	}
	if sum.Library, err = dst.ImportLibrary(ctx, a.Library); err != nil {
		return sum, fmt.Errorf("backup: importing library: %w", err)
	}
	slog.Info("backup: restore finished",
		"reports", sum.Reports.Imported, "library", sum.Library.Imported, "failed", len(sum.Failures()))
	return sum, nil
}
