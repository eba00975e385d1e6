package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
)

// CreateFinding adds f to reportID. Any PocImages carried by f are stored
// with it. AffectedEndpoints must be listed in the report URLs.
func (s *Store) CreateFinding(ctx context.Context, reportID string, f *models.Finding) error {
	eps, err := s.reportEndpoints(ctx, reportID)
	if err != nil {
		return err
	}
	if err := normalizeFinding(f); err != nil {
		return err
	}
	if f.AffectedEndpoints, err = checkEndpoints(f.AffectedEndpoints, eps); err != nil {
		return err
	}
	f.ID = 0
	return s.db.WithTx(ctx, func(tx database.DB) error {
		if err := s.insertFinding(ctx, tx, reportID, f); err != nil {
			return err
		}
		return s.touchReport(ctx, tx, reportID)
	})
}

func (s *Store) insertFinding(ctx context.Context, tx database.DB, reportID string, f *models.Finding) error {
	now := s.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = now
	}
	f.ID = 0
	row, err := newFindingRow(reportID, f)
	if err != nil {
		return err
	}
	if err := sealRow(s.Codec(), &row); err != nil {
		return &RecordError{Entity: fieldcrypt.EntityFinding, ID: f.Title, Err: err}
	}
	id, err := tx.Insert(ctx, findingTable, row)
	if err != nil {
		return err
	}
	f.ID = id
	f.ReportID = reportID
	for i := range f.PocImages {
		if err := s.insertImage(ctx, tx, id, &f.PocImages[i]); err != nil {
			return err
		}
	}
	return nil
}

// reportEndpoints returns the parsed URL list of a report, failing with
// ErrNotFound when it does not exist.
func (s *Store) reportEndpoints(ctx context.Context, reportID string) ([]models.Endpoint, error) {
	var row struct {
		URLs string `db:"urls"`
	}
	err := s.db.Get(ctx, &row, `SELECT urls FROM reports WHERE id = ?`, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	urls, err := s.Codec().Decrypt(row.URLs)
	if err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityReport, ID: reportID, Err: err}
	}
	r := models.Report{URLs: urls}
	return r.Endpoints(), nil
}

func (s *Store) touchReport(ctx context.Context, tx database.DB, reportID string) error {
	return tx.Exec(ctx, `UPDATE reports SET updated_at = ? WHERE id = ?`, formatTime(s.now()), reportID)
}

// GetFinding returns one finding with its images.
func (s *Store) GetFinding(ctx context.Context, id int64) (*models.Finding, error) {
	var row findingRow
	err := s.db.Get(ctx, &row, `SELECT * FROM findings WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := openRow(s.Codec(), &row); err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(id), Err: err}
	}
	f, err := row.model()
	if err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(id), Err: err}
	}
	if f.PocImages, err = s.ListImages(ctx, id, true); err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFindings returns the findings of a report in insertion order. Findings
// that fail to decrypt are skipped and reported.
func (s *Store) ListFindings(ctx context.Context, reportID string) ([]models.Finding, []RecordFailure, error) {
	if _, err := s.reportEndpoints(ctx, reportID); err != nil {
		var rerr *RecordError
		if !errors.As(err, &rerr) {
			return nil, nil, err
		}
	}
	var rows []findingRow
	if err := s.db.Select(ctx, &rows, `SELECT * FROM findings WHERE report_id = ? ORDER BY id`, reportID); err != nil {
		return nil, nil, fmt.Errorf("listing findings: %w", err)
	}

	codec := s.Codec()
	out := make([]models.Finding, 0, len(rows))
	var failures []RecordFailure
	var mu sync.Mutex
	for i := range rows {
		id := fmt.Sprint(rows[i].ID)
		if err := openRow(codec, &rows[i]); err != nil {
			s.skip(&failures, &mu, fieldcrypt.EntityFinding, id, err)
			continue
		}
		f, err := rows[i].model()
		if err != nil {
			s.skip(&failures, &mu, fieldcrypt.EntityFinding, id, err)
			continue
		}
		imgs, err := s.ListImages(ctx, f.ID, true)
		if err != nil {
			s.skip(&failures, &mu, fieldcrypt.EntityFinding, id, err)
			continue
		}
		f.PocImages = imgs
		out = append(out, f)
	}
	return out, failures, nil
}

// UpdateFinding applies a field-level patch and returns the stored result.
func (s *Store) UpdateFinding(ctx context.Context, id int64, p models.FindingPatch) (*models.Finding, error) {
	cur, err := s.GetFinding(ctx, id)
	if err != nil {
		return nil, err
	}
	applyFindingPatch(cur, p)
	if err := normalizeFinding(cur); err != nil {
		return nil, err
	}
	if p.AffectedEndpoints != nil {
		eps, err := s.reportEndpoints(ctx, cur.ReportID)
		if err != nil {
			return nil, err
		}
		if cur.AffectedEndpoints, err = checkEndpoints(cur.AffectedEndpoints, eps); err != nil {
			return nil, err
		}
	}
	cur.UpdatedAt = s.now()

	row, err := newFindingRow(cur.ReportID, cur)
	if err != nil {
		return nil, err
	}
	if err := sealRow(s.Codec(), &row); err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(id), Err: err}
	}
	err = s.db.WithTx(ctx, func(tx database.DB) error {
		if err := tx.Update(ctx, findingTable, row, "id = ?", id); err != nil {
			return err
		}
		return s.touchReport(ctx, tx, cur.ReportID)
	})
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func applyFindingPatch(f *models.Finding, p models.FindingPatch) {
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Severity != nil {
		f.Severity = *p.Severity
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Impact != nil {
		f.Impact = *p.Impact
	}
	if p.Mitigation != nil {
		f.Mitigation = *p.Mitigation
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.AffectedEndpoints != nil {
		f.AffectedEndpoints = append([]string(nil), (*p.AffectedEndpoints)...)
	}
}

// DeleteFinding removes a finding and its images.
func (s *Store) DeleteFinding(ctx context.Context, id int64) error {
	return s.db.WithTx(ctx, func(tx database.DB) error {
		if err := tx.Exec(ctx, `DELETE FROM images WHERE finding_id = ?`, id); err != nil {
			return fmt.Errorf("deleting images: %w", err)
		}
		n, err := tx.ExecAffected(ctx, `DELETE FROM findings WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting finding: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("finding %d: %w", id, ErrNotFound)
		}
		return nil
	})
}
