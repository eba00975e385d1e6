package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ReportFilter narrows ListReports. Only plaintext columns can be filtered.
type ReportFilter struct {
	AssessmentType models.AssessmentType
	ProjectStatus  string
	ParentID       string
	Limit          int
	Offset         int
}

// CreateReport validates r, assigns an id when empty, and stores it together
// with any findings and images it carries. Ids and timestamps are written back into r.
func (s *Store) CreateReport(ctx context.Context, r *models.Report) error {
	if err := normalizeReport(r); err != nil {
		return err
	}
	eps := r.Endpoints()
	for i := range r.Findings {
		cleaned, err := checkEndpoints(r.Findings[i].AffectedEndpoints, eps)
		if err != nil {
			return err
		}
		r.Findings[i].AffectedEndpoints = cleaned
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.db.WithTx(ctx, func(tx database.DB) error {
		return s.insertReport(ctx, tx, r)
	})
}

func (s *Store) insertReport(ctx context.Context, tx database.DB, r *models.Report) error {
	now := s.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	row, err := newReportRow(r)
	if err != nil {
		return err
	}
	if err := sealRow(s.Codec(), &row); err != nil {
		return &RecordError{Entity: fieldcrypt.EntityReport, ID: r.ID, Err: err}
	}
	if _, err := tx.Insert(ctx, reportTable, row); err != nil {
		return err
	}
	for i := range r.Findings {
		if err := s.insertFinding(ctx, tx, r.ID, &r.Findings[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetReport returns the full report with findings and image bytes. Any
// decryption failure fails the whole call with a *RecordError.
func (s *Store) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row, err := s.reportRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := openRow(s.Codec(), &row); err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityReport, ID: id, Err: err}
	}
	r, err := row.model()
	if err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityReport, ID: id, Err: err}
	}
	if r.Findings, err = s.loadFindings(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) reportRow(ctx context.Context, db database.DB, id string) (reportRow, error) {
	var row reportRow
	err := db.Get(ctx, &row, `SELECT * FROM reports WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return row, err
}

// loadFindings returns a report's findings in insertion order with their
// images in upload order.
func (s *Store) loadFindings(ctx context.Context, reportID string) ([]models.Finding, error) {
	var rows []findingRow
	if err := s.db.Select(ctx, &rows, `SELECT * FROM findings WHERE report_id = ? ORDER BY id`, reportID); err != nil {
		return nil, fmt.Errorf("loading findings: %w", err)
	}
	var imgs []imageRow
	if err := s.db.Select(ctx, &imgs,
		`SELECT i.* FROM images i JOIN findings f ON f.id = i.finding_id WHERE f.report_id = ? ORDER BY i.id`,
		reportID); err != nil {
		return nil, fmt.Errorf("loading images: %w", err)
	}

	codec := s.Codec()
	byFinding := make(map[int64][]models.Image, len(rows))
	for i := range imgs {
		if err := openRow(codec, &imgs[i]); err != nil {
			return nil, &RecordError{Entity: fieldcrypt.EntityImage, ID: fmt.Sprint(imgs[i].ID), Err: err}
		}
		byFinding[imgs[i].FindingID] = append(byFinding[imgs[i].FindingID], imgs[i].model())
	}

	out := make([]models.Finding, 0, len(rows))
	for i := range rows {
		if err := openRow(codec, &rows[i]); err != nil {
			return nil, &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(rows[i].ID), Err: err}
		}
		f, err := rows[i].model()
		if err != nil {
			return nil, &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(rows[i].ID), Err: err}
		}
		if imgs := byFinding[f.ID]; imgs != nil {
			f.PocImages = imgs
		}
		out = append(out, f)
	}
	return out, nil
}

// ListReports returns light summaries, newest first. Rows that fail to
// decrypt are skipped, logged, and reported in the failures slice.
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]models.ReportSummary, []RecordFailure, error) {
	q := sq.Select(
		"id", "project_name", "version", "assessment_type", "start_date", "end_date",
		"assessor_name", "project_status", "parent_assessment_id", "created_at", "updated_at",
	).
		Column("(SELECT COUNT(*) FROM findings f WHERE f.report_id = reports.id) AS findings_count").
		Column("(SELECT COUNT(*) FROM findings f WHERE f.report_id = reports.id AND f.status = ?) AS open_findings_count", string(models.StatusOpen)).
		From(reportTable).
		OrderBy("updated_at DESC", "id")
	if filter.AssessmentType != "" {
		q = q.Where(sq.Eq{"assessment_type": string(filter.AssessmentType)})
	}
	if filter.ProjectStatus != "" {
		q = q.Where(sq.Eq{"project_status": filter.ProjectStatus})
	}
	if filter.ParentID != "" {
		q = q.Where(sq.Eq{"parent_assessment_id": filter.ParentID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit)).Offset(uint64(max(filter.Offset, 0)))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("building report list query: %w", err)
	}

	var rows []summaryRow
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		return nil, nil, fmt.Errorf("listing reports: %w", err)
	}

	codec := s.Codec()
	results := make([]*models.ReportSummary, len(rows))
	var (
		mu       sync.Mutex
		failures []RecordFailure
	)
	err = s.parallel(ctx, len(rows), func(_ context.Context, i int) error {
		if err := openRow(codec, &rows[i]); err != nil {
			s.skip(&failures, &mu, fieldcrypt.EntityReport, rows[i].ID, err)
			return nil
		}
		m := rows[i].model()
		results[i] = &m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	out := make([]models.ReportSummary, 0, len(rows))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, failures, nil
}

// UpdateReport applies a field-level patch and returns the stored result.
func (s *Store) UpdateReport(ctx context.Context, id string, p models.ReportPatch) (*models.Report, error) {
	cur, err := s.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	applyReportPatch(cur, p)
	findings := cur.Findings
	cur.Findings = nil
	if err := normalizeReport(cur); err != nil {
		return nil, err
	}
	cur.UpdatedAt = s.now()

	row, err := newReportRow(cur)
	if err != nil {
		return nil, err
	}
	if err := sealRow(s.Codec(), &row); err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityReport, ID: id, Err: err}
	}
	if err := s.db.Update(ctx, reportTable, row, "id = ?", id); err != nil {
		return nil, err
	}
	cur.Findings = findings
	return cur, nil
}

func applyReportPatch(r *models.Report, p models.ReportPatch) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&r.ProjectName, p.ProjectName)
	set(&r.Version, p.Version)
	set(&r.StartDate, p.StartDate)
	set(&r.EndDate, p.EndDate)
	set(&r.AssessorName, p.AssessorName)
	set(&r.Platform, p.Platform)
	set(&r.URLs, p.URLs)
	set(&r.Credentials, p.Credentials)
	set(&r.TicketNumber, p.TicketNumber)
	set(&r.BuildVersions, p.BuildVersions)
	set(&r.ProjectStatus, p.ProjectStatus)
	set(&r.FixByDate, p.FixByDate)
	set(&r.RequestedBy, p.RequestedBy)
	set(&r.ExecutiveSummary, p.ExecutiveSummary)
	set(&r.Scope, p.Scope)
	set(&r.Methodology, p.Methodology)
	set(&r.Conclusion, p.Conclusion)
	if p.Logo != nil {
		r.Logo = *p.Logo
	}
}

// DeleteReport removes a report with its findings and their images.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(tx database.DB) error {
		if err := tx.Exec(ctx,
			`DELETE FROM images WHERE finding_id IN (SELECT id FROM findings WHERE report_id = ?)`, id); err != nil {
			return fmt.Errorf("deleting images: %w", err)
		}
		if err := tx.Exec(ctx, `DELETE FROM findings WHERE report_id = ?`, id); err != nil {
			return fmt.Errorf("deleting findings: %w", err)
		}
		n, err := tx.ExecAffected(ctx, `DELETE FROM reports WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting report: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// CreateReassessment creates the follow-up of parentID: the version is
// bumped, findings and their images are copied with status reset to OPEN,
// and a frozen snapshot of the parent is attached.
func (s *Store) CreateReassessment(ctx context.Context, parentID string, in models.ReassessmentInput) (*models.Report, error) {
	parent, err := s.GetReport(ctx, parentID)
	if err != nil {
		return nil, err
	}

	child := &models.Report{
		ID:                 uuid.NewString(),
		ProjectName:        parent.ProjectName,
		Version:            models.NextVersion(parent.Version),
		AssessmentType:     models.AssessmentReassessment,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		AssessorName:       firstNonEmpty(in.AssessorName, parent.AssessorName),
		Platform:           parent.Platform,
		URLs:               parent.URLs,
		Credentials:        parent.Credentials,
		TicketNumber:       firstNonEmpty(in.TicketNumber, parent.TicketNumber),
		BuildVersions:      parent.BuildVersions,
		ProjectStatus:      models.ProjectInProgress,
		RequestedBy:        firstNonEmpty(in.RequestedBy, parent.RequestedBy),
		ExecutiveSummary:   parent.ExecutiveSummary,
		Scope:              parent.Scope,
		Methodology:        parent.Methodology,
		Logo:               parent.Logo,
		ParentAssessmentID: parent.ID,
		ParentAssessment:   parent.Snapshot(),
		Findings:           make([]models.Finding, 0, len(parent.Findings)),
	}
	for _, f := range parent.Findings {
		c := f
		c.ID = 0
		c.ReportID = ""
		c.Status = models.StatusOpen
		c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
		c.AffectedEndpoints = append([]string(nil), f.AffectedEndpoints...)
		c.PocImages = make([]models.Image, len(f.PocImages))
		for j, img := range f.PocImages {
			img.ID, img.FindingID = 0, 0
			img.CreatedAt = time.Time{}
			img.Data = append([]byte(nil), img.Data...)
			c.PocImages[j] = img
		}
		child.Findings = append(child.Findings, c)
	}

	if err := normalizeReport(child); err != nil {
		return nil, err
	}
	if err := s.db.WithTx(ctx, func(tx database.DB) error {
		return s.insertReport(ctx, tx, child)
	}); err != nil {
		return nil, err
	}
	return child, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
