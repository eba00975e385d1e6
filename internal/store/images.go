package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/google/uuid"
)

// AddImage decodes an uploaded PoC image and attaches it to findingID.
func (s *Store) AddImage(ctx context.Context, findingID int64, up models.ImageUpload) (*models.Image, error) {
	data, declared, err := decodeUpload(up.Data)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, invalidf("image %q is empty", up.Name)
	}
	if int64(len(data)) > s.maxImageBytes {
		return nil, invalidf("image %q is %d bytes, limit is %d", up.Name, len(data), s.maxImageBytes)
	}
	mimeType := firstNonEmpty(up.MimeType, declared)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, invalidf("image %q has type %s, only images are accepted", up.Name, mimeType)
	}

	var exists struct {
		ReportID string `db:"report_id"`
	}
	err = s.db.Get(ctx, &exists, `SELECT report_id FROM findings WHERE id = ?`, findingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding %d: %w", findingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	img := &models.Image{
		OriginalName: firstNonEmpty(filepath.Base(up.Name), "image"),
		MimeType:     mimeType,
		Data:         data,
	}
	err = s.db.WithTx(ctx, func(tx database.DB) error {
		if err := s.insertImage(ctx, tx, findingID, img); err != nil {
			return err
		}
		return s.touchReport(ctx, tx, exists.ReportID)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// decodeUpload accepts plain base64 or a data URL and returns the bytes with
// the media type the data URL declared, if any.
func decodeUpload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	var declared string
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		meta, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", invalidf("image data URL must be base64 encoded")
		}
		declared = strings.TrimSuffix(meta, ";base64")
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", invalidf("image data is not valid base64")
	}
	return data, declared, nil
}

func (s *Store) insertImage(ctx context.Context, tx database.DB, findingID int64, img *models.Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = s.now()
	}
	if img.MimeType == "" && len(img.Data) > 0 {
		img.MimeType = http.DetectContentType(img.Data)
	}
	if img.Filename == "" {
		img.Filename = uuid.NewString() + imageExt(img.MimeType, img.OriginalName)
	}
	if img.OriginalName == "" {
		img.OriginalName = img.Filename
	}
	if img.Data == nil {
		img.Data = []byte{}
	}
	img.ID = 0
	row := newImageRow(findingID, img)
	if err := sealRow(s.Codec(), &row); err != nil {
		return &RecordError{Entity: fieldcrypt.EntityImage, ID: img.Filename, Err: err}
	}
	id, err := tx.Insert(ctx, imageTable, row)
	if err != nil {
		return err
	}
	img.ID = id
	img.FindingID = findingID
	img.FileSize = int64(len(img.Data))
	return nil
}

// imageExt picks a file extension from the original name, falling back to
// the media type.
func imageExt(mimeType, original string) string {
	if ext := filepath.Ext(original); ext != "" {
		return strings.ToLower(ext)
	}
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".img"
}

// GetImage returns one image including its bytes.
func (s *Store) GetImage(ctx context.Context, id int64) (*models.Image, error) {
	var row imageRow
	err := s.db.Get(ctx, &row, `SELECT * FROM images WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := openRow(s.Codec(), &row); err != nil {
		return nil, &RecordError{Entity: fieldcrypt.EntityImage, ID: fmt.Sprint(id), Err: err}
	}
	img := row.model()
	return &img, nil
}

// ListImages returns a finding's images in upload order. Without withData
// only metadata is read.
func (s *Store) ListImages(ctx context.Context, findingID int64, withData bool) ([]models.Image, error) {
	cols := imageMetaColumns
	if withData {
		cols = "*"
	}
	var rows []imageRow
	if err := s.db.Select(ctx, &rows,
		`SELECT `+cols+` FROM images WHERE finding_id = ? ORDER BY id`, findingID); err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}
	codec := s.Codec()
	out := make([]models.Image, 0, len(rows))
	for i := range rows {
		if err := openRow(codec, &rows[i]); err != nil {
			return nil, &RecordError{Entity: fieldcrypt.EntityImage, ID: fmt.Sprint(rows[i].ID), Err: err}
		}
		out = append(out, rows[i].model())
	}
	return out, nil
}

// DeleteImage removes one image.
func (s *Store) DeleteImage(ctx context.Context, id int64) error {
	n, err := s.db.ExecAffected(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("image %d: %w", id, ErrNotFound)
	}
	return nil
}
