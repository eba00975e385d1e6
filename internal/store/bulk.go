package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/google/uuid"
)

// ImportResult summarises a bulk import. Renamed maps an incoming id to the
// id it was stored under when the original was empty or already taken.
type ImportResult struct {
	Imported int               `json:"imported"`
	Renamed  map[string]string `json:"renamed,omitempty"`
	Failures []RecordFailure   `json:"failures,omitempty"`
}

// ImportReports stores each report in its own transaction, continuing past
// records that fail. Endpoint membership is not checked for imported findings.
func (s *Store) ImportReports(ctx context.Context, reports []models.Report) (ImportResult, error) {
	res := ImportResult{Renamed: map[string]string{}}
	var mu sync.Mutex
	for i := range reports {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r := &reports[i]
		orig := r.ID
		label := firstNonEmpty(orig, fmt.Sprintf("#%d", i))
		if err := normalizeReport(r); err != nil {
			s.skip(&res.Failures, &mu, fieldcrypt.EntityReport, label, err)
			continue
		}
		taken, err := s.reportExists(ctx, orig)
		if err != nil {
			return res, err
		}
		if orig == "" || taken {
			r.ID = uuid.NewString()
			if orig != "" {
				res.Renamed[orig] = r.ID
			}
		}
		for j := range r.Findings {
			r.Findings[j].ID = 0
		}
		err = s.db.WithTx(ctx, func(tx database.DB) error {
			return s.insertReport(ctx, tx, r)
		})
		if err != nil {
			s.skip(&res.Failures, &mu, fieldcrypt.EntityReport, label, err)
			continue
		}
		res.Imported++
	}
	return res, nil
}

func (s *Store) reportExists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var n int64
	if err := s.db.Get(ctx, &n, `SELECT COUNT(*) FROM reports WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("checking report id: %w", err)
	}
	return n > 0, nil
}

// ExportReports returns every report in full, oldest first. Reports that
// cannot be decrypted are skipped and reported.
func (s *Store) ExportReports(ctx context.Context) ([]models.Report, []RecordFailure, error) {
	var ids []struct {
		ID string `db:"id"`
	}
	if err := s.db.Select(ctx, &ids, `SELECT id FROM reports ORDER BY created_at, id`); err != nil {
		return nil, nil, fmt.Errorf("listing report ids: %w", err)
	}
	results := make([]*models.Report, len(ids))
	var (
		mu       sync.Mutex
		failures []RecordFailure
	)
	err := s.parallel(ctx, len(ids), func(ctx context.Context, i int) error {
		r, err := s.GetReport(ctx, ids[i].ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.skip(&failures, &mu, fieldcrypt.EntityReport, ids[i].ID, err)
			return nil
		}
		results[i] = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	out := make([]models.Report, 0, len(ids))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, failures, nil
}

// ImportLibrary stores library entries, continuing past invalid ones.
func (s *Store) ImportLibrary(ctx context.Context, entries []models.LibraryEntry) (ImportResult, error) {
	var res ImportResult
	var mu sync.Mutex
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		e := entries[i]
		label := firstNonEmpty(e.Title, fmt.Sprintf("#%d", i))
		if err := s.CreateLibraryEntry(ctx, &e); err != nil {
			s.skip(&res.Failures, &mu, fieldcrypt.EntityLibrary, label, err)
			continue
		}
		res.Imported++
	}
	return res, nil
}
