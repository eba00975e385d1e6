package export

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/models"
)

// File is one export ready to be written or served.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	// Warnings are the non-fatal problems of the rendered documents.
	Warnings []error
}

// Content types of the export formats.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeZIP  = "application/zip"
)

// Observer is told about every finished render.
type Observer func(format string, elapsed time.Duration, d *render.Document, err error)

type options struct {
	now      func() time.Time
	observer Observer
}

// Option configures an export.
type Option func(*options)

// WithClock sets the clock used for dated file names.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver registers fn for render timings.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Export renders r in format: "pdf", "docx" or "zip".
func Export(ctx context.Context, format string, r *models.Report, s render.Settings, opts ...Option) (*File, error) {
	if strings.EqualFold(format, "zip") {
		return Bundle(ctx, r, s, opts...)
	}
	rd, err := render.ForFormat(format)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	d, err := render.Build(ctx, r, s)
	if err != nil {
		return nil, err
	}
	data, err := o.render(ctx, rd, d)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:        Filename(r.ProjectName, DocumentKind, o.now(), rd.Extension()),
		ContentType: contentType(rd.Format()),
		Data:        data,
		Warnings:    d.Warnings,
	}, nil
}

func (o options) render(ctx context.Context, rd render.Renderer, d *render.Document) ([]byte, error) {
	start := time.Now()
	data, err := rd.Render(ctx, d)
	if o.observer != nil {
		o.observer(rd.Format(), time.Since(start), d, err)
	}
	if err != nil {
		return nil, fmt.Errorf("export: render %s: %w", rd.Format(), err)
	}
	return data, nil
}

func contentType(format string) string {
	if format == "pdf" {
		return ContentTypePDF
	}
	return ContentTypeDOCX
}

// Bundle renders the PDF and the DOCX concurrently and zips them with the
// raw PoC images:
//
//	<Folder>/<Folder>_assessment.pdf
//	<Folder>/<Folder>_assessment.docx
//	<Folder>/findingsImages/finding_<n>_<Title>_<k>.<ext>
//
// Finding numbers follow the rendered severity order.
func Bundle(ctx context.Context, r *models.Report, s render.Settings, opts ...Option) (*File, error) {
	o := newOptions(opts)
	d, err := render.Build(ctx, r, s)
	if err != nil {
		return nil, err
	}

	renderers := []render.Renderer{&render.PDFRenderer{}, &render.DOCXRenderer{}}
	outputs := make([][]byte, len(renderers))
	g, gctx := errgroup.WithContext(ctx)
	for i, rd := range renderers {
		i, rd := i, rd
		g.Go(func() error {
			data, err := o.render(gctx, rd, d)
			outputs[i] = data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	folder := Folder(r.ProjectName)
	kind, zipKind := "assessment", "Assessment"
	if r.IsReassessment() {
		kind, zipKind = "reassessment", "Reassessment"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := d.Created
	if modified.IsZero() {
		modified = o.now()
	}
	add := func(name string, data []byte) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	for i, rd := range renderers {
		if err := add(fmt.Sprintf("%s/%s_%s%s", folder, folder, kind, rd.Extension()), outputs[i]); err != nil {
			return nil, fmt.Errorf("export: zip: %w", err)
		}
	}
	for n, f := range d.Findings {
		for k, img := range f.PocImages {
			if len(img.Data) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%s/findingsImages/finding_%d_%s_%d%s",
				folder, n+1, Folder(f.Title), k+1, imageExt(img.Filename, img.OriginalName, img.MimeType))
			if err := add(name, img.Data); err != nil {
				return nil, fmt.Errorf("export: zip: %w", err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: zip: %w", err)
	}

	return &File{
		Name:        folder + "_" + zipKind + ".zip",
		ContentType: ContentTypeZIP,
		Data:        buf.Bytes(),
		Warnings:    d.Warnings,
	}, nil
}
