package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
)

// RotationResult counts the rows re-encrypted by RotateKey.
type RotationResult struct {
	Reports  int `json:"reports"`
	Findings int `json:"findings"`
	Images   int `json:"images"`
}

// RotateKey re-encrypts every sealed column with next inside one
// transaction. Any failure rolls everything back and the current codec stays
// in use; on success next replaces it.
func (s *Store) RotateKey(ctx context.Context, next *fieldcrypt.Codec) (RotationResult, error) {
	if next == nil {
		return RotationResult{}, invalidf("rotation needs a codec")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.codec

	var res RotationResult
	err := s.db.WithTx(ctx, func(tx database.DB) error {
		var reports []reportRow
		if err := tx.Select(ctx, &reports, `SELECT * FROM reports`); err != nil {
			return err
		}
		for i := range reports {
			if err := reseal(cur, next, &reports[i]); err != nil {
				return &RecordError{Entity: fieldcrypt.EntityReport, ID: reports[i].ID, Err: err}
			}
			if err := tx.Update(ctx, reportTable, reports[i], "id = ?", reports[i].ID); err != nil {
				return err
			}
			res.Reports++
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var findings []findingRow
		if err := tx.Select(ctx, &findings, `SELECT * FROM findings`); err != nil {
			return err
		}
		for i := range findings {
			if err := reseal(cur, next, &findings[i]); err != nil {
				return &RecordError{Entity: fieldcrypt.EntityFinding, ID: fmt.Sprint(findings[i].ID), Err: err}
			}
			if err := tx.Update(ctx, findingTable, findings[i], "id = ?", findings[i].ID); err != nil {
				return err
			}
			res.Findings++
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var images []imageRow
		if err := tx.Select(ctx, &images, `SELECT * FROM images`); err != nil {
			return err
		}
		for i := range images {
			if err := reseal(cur, next, &images[i]); err != nil {
				return &RecordError{Entity: fieldcrypt.EntityImage, ID: fmt.Sprint(images[i].ID), Err: err}
			}
			if err := tx.Update(ctx, imageTable, images[i], "id = ?", images[i].ID); err != nil {
				return err
			}
			res.Images++
		}
		return ctx.Err()
	})
	if err != nil {
		return RotationResult{}, fmt.Errorf("key rotation rolled back: %w", err)
	}
	s.codec = next
	slog.Info("store: master key rotated", "reports", res.Reports, "findings", res.Findings, "images", res.Images)
	return res, nil
}

func reseal(cur, next *fieldcrypt.Codec, row any) error {
	if err := openRow(cur, row); err != nil {
		return err
	}
	return sealRow(next, row)
}
