package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/assessmaker/models"
)

// CreateLibraryEntry stores a reusable finding template. Library entries
// hold generic advice only and are not encrypted.
func (s *Store) CreateLibraryEntry(ctx context.Context, e *models.LibraryEntry) error {
	if err := normalizeLibraryEntry(e); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	id, err := s.db.Insert(ctx, libraryTable, newLibraryRow(e))
	if err != nil {
		return fmt.Errorf("inserting library entry: %w", err)
	}
	e.ID = id
	return nil
}

func normalizeLibraryEntry(e *models.LibraryEntry) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return invalidf("library entry title is required")
	}
	e.Severity = models.MapSeverity(string(e.Severity))
	if !e.Severity.Valid() {
		return invalidf("unknown severity %q", e.Severity)
	}
	e.ID = 0
	return nil
}

func newLibraryRow(e *models.LibraryEntry) libraryRow {
	return libraryRow{
		ID:          e.ID,
		Title:       e.Title,
		Category:    e.Category,
		Severity:    string(e.Severity),
		Description: e.Description,
		Impact:      e.Impact,
		Mitigation:  e.Mitigation,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

// ListLibrary returns all library entries ordered by title.
func (s *Store) ListLibrary(ctx context.Context) ([]models.LibraryEntry, error) {
	var rows []libraryRow
	if err := s.db.Select(ctx, &rows, `SELECT * FROM findings_library ORDER BY title, id`); err != nil {
		return nil, fmt.Errorf("listing library: %w", err)
	}
	out := make([]models.LibraryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// GetLibraryEntry returns one library entry.
func (s *Store) GetLibraryEntry(ctx context.Context, id int64) (*models.LibraryEntry, error) {
	var row libraryRow
	err := s.db.Get(ctx, &row, `SELECT * FROM findings_library WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e := row.model()
	return &e, nil
}

// DeleteLibraryEntry removes one library entry.
func (s *Store) DeleteLibraryEntry(ctx context.Context, id int64) error {
	n, err := s.db.ExecAffected(ctx, `DELETE FROM findings_library WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting library entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("library entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// InstantiateLibraryEntry copies a library entry into reportID as a new OPEN
// finding with no affected endpoints.
func (s *Store) InstantiateLibraryEntry(ctx context.Context, entryID int64, reportID string) (*models.Finding, error) {
	e, err := s.GetLibraryEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	f := &models.Finding{
		Title:       e.Title,
		Category:    e.Category,
		Severity:    e.Severity,
		Description: e.Description,
		Impact:      e.Impact,
		Mitigation:  e.Mitigation,
		Status:      models.StatusOpen,
	}
	if err := s.CreateFinding(ctx, reportID, f); err != nil {
		return nil, err
	}
	return f, nil
}
