package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/assessmaker/models"
)

// Renderer translates a Document into one file format.
type Renderer interface {
	Format() string
	Extension() string
	Render(ctx context.Context, d *Document) ([]byte, error)
}

// ForFormat returns the renderer for "pdf" or "docx".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "pdf":
		return &PDFRenderer{}, nil
	case "docx", "word":
		return &DOCXRenderer{}, nil
	default:
		return nil, fmt.Errorf("render: unsupported format %q", format)
	}
}

// Render builds r and renders it with rd.
func Render(ctx context.Context, rd Renderer, r *models.Report, s Settings) ([]byte, *Document, error) {
	d, err := Build(ctx, r, s)
	if err != nil {
		return nil, nil, err
	}
	out, err := rd.Render(ctx, d)
	if err != nil {
		return nil, d, err
	}
	return out, d, nil
}
