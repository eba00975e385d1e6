package render

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// A4 portrait layout in millimetres.
const (
	pdfMarginX      = 20.0
	pdfMarginTop    = 25.0
	pdfMarginBottom = 20.0
	pdfPageW        = 210.0
	pdfPageH        = 297.0
	pdfContentW     = pdfPageW - 2*pdfMarginX
	pdfLine         = 5.0
	pdfFont         = "Helvetica"
)

// PDFRenderer writes a Document with fpdf using the core Helvetica font.
type PDFRenderer struct {
	// Uncompressed leaves page streams readable, for inspection and tests.
	Uncompressed bool
}

func (*PDFRenderer) Format() string    { return "pdf" }
func (*PDFRenderer) Extension() string { return ".pdf" }

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	doc *Document
}

// Render lays the blocks out on A4 pages.
func (r *PDFRenderer) Render(ctx context.Context, d *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(!r.Uncompressed)
	pdf.SetCreationDate(d.Created)
	pdf.SetModificationDate(d.Created)
	pdf.SetTitle(d.Title, true)
	pdf.SetAuthor(d.Author, true)
	pdf.SetSubject(d.Subject, true)
	pdf.SetCreator("assessmaker", false)
	pdf.SetMargins(pdfMarginX, pdfMarginTop, pdfMarginX)
	pdf.SetAutoPageBreak(true, pdfMarginBottom)
	pdf.AliasNbPages("")

	w := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor(""), doc: d}
	pdf.SetHeaderFuncMode(w.header, true)
	pdf.SetFooterFunc(w.footer)
	pdf.AddPage()

	for _, b := range d.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.block(b)
		if pdf.Err() {
			return nil, &DocumentBuildError{Fatal: true, Item: "pdf", Err: pdf.Error()}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &DocumentBuildError{Fatal: true, Item: "pdf", Err: err}
	}
	return buf.Bytes(), nil
}

func (w *pdfWriter) header() {
	if w.pdf.PageNo() == 1 {
		return
	}
	w.pdf.SetY(10)
	w.pdf.SetFont(pdfFont, "B", 10)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.CellFormat(pdfContentW-HeaderLogoWidthMM, 8, w.tr(ReportTitle), "", 0, "L", false, 0, "")
	if w.doc.Logo != nil {
		if name, ok := w.register(*w.doc.Logo); ok {
			lw, _ := fitMM(*w.doc.Logo, HeaderLogoWidthMM)
			w.pdf.ImageOptions(name, pdfPageW-pdfMarginX-lw, 8, lw, 0, false, imageOptions(*w.doc.Logo), 0, "")
		}
	}
}

func (w *pdfWriter) footer() {
	w.pdf.SetY(-15)
	w.pdf.SetFont(pdfFont, "", 9)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.CellFormat(0, 10, fmt.Sprintf("%d of {nb}", w.pdf.PageNo()), "", 0, "C", false, 0, "")
}

func (w *pdfWriter) block(b Block) {
	switch b := b.(type) {
	case Heading:
		w.heading(b)
	case Paragraph:
		w.paragraph(b)
	case Field:
		w.field(b)
	case KeyValueTable:
		w.keyValue(b)
	case FindingsTable:
		w.findingsTable(b)
	case MatrixBlock:
		w.matrix(b.Matrix)
	case ImageBlock:
		w.image(b)
	case Placeholder:
		w.pdf.SetFont(pdfFont, "I", 10)
		w.pdf.SetTextColor(0x80, 0x80, 0x80)
		w.pdf.MultiCell(0, pdfLine, w.tr(b.Text), "", "L", false)
		w.pdf.Ln(2)
	case PageBreak:
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) heading(h Heading) {
	size, style, before, after := 12.0, "B", 4.0, 2.0
	switch h.Level {
	case LevelTitle:
		size, before, after = 22, 20, 8
	case LevelSection:
		size, before = 14, 6
	case LevelCover:
		size, before, after = 12, 0, 6
	}
	align := "L"
	if h.Align == AlignCenter {
		align = "C"
	}
	w.pdf.Ln(before)
	w.pdf.SetFont(pdfFont, style, size)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.MultiCell(0, size*0.5, w.tr(h.Text), "", align, false)
	w.pdf.Ln(after)
}

func (w *pdfWriter) paragraph(p Paragraph) {
	for _, run := range p.Runs {
		style := ""
		if run.Bold {
			style = "B"
		}
		w.pdf.SetFont(pdfFont, style, 10)
		if run.Color != nil {
			w.pdf.SetTextColor(int(run.Color.R), int(run.Color.G), int(run.Color.B))
		} else {
			w.pdf.SetTextColor(0, 0, 0)
		}
		w.pdf.Write(pdfLine, w.tr(run.Text))
	}
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.Ln(pdfLine + 2)
}

func (w *pdfWriter) field(f Field) {
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetFont(pdfFont, "B", 10)
	w.pdf.Write(pdfLine, w.tr(f.Label+": "))
	w.pdf.SetFont(pdfFont, "", 10)
	if len(f.Lines) == 1 {
		w.pdf.Write(pdfLine, w.tr(f.Lines[0]))
		w.pdf.Ln(pdfLine + 1)
		return
	}
	w.pdf.Ln(pdfLine)
	for _, line := range f.Lines {
		w.pdf.SetX(pdfMarginX + 4)
		w.pdf.Write(pdfLine, w.tr(line))
		w.pdf.Ln(pdfLine)
	}
	w.pdf.Ln(1)
}

// ensure starts a new page when h millimetres do not fit.
func (w *pdfWriter) ensure(h float64) {
	if w.pdf.GetY()+h > pdfPageH-pdfMarginBottom {
		w.pdf.AddPage()
	}
}

func (w *pdfWriter) keyValue(t KeyValueTable) {
	const labelW = 45.0
	valueW := pdfContentW - labelW
	w.pdf.Ln(2)
	w.pdf.SetTextColor(0, 0, 0)
	for _, row := range t.Rows {
		w.pdf.SetFont(pdfFont, "", 10)
		lines := w.pdf.SplitText(w.tr(row[1]), valueW-2)
		h := float64(max(len(lines), 1)) * pdfLine
		w.ensure(h)
		x, y := w.pdf.GetXY()
		w.pdf.SetFont(pdfFont, "B", 10)
		w.pdf.CellFormat(labelW, h, w.tr(row[0]), "1", 0, "LM", false, 0, "")
		w.pdf.SetFont(pdfFont, "", 10)
		w.pdf.SetXY(x+labelW, y)
		w.pdf.MultiCell(valueW, pdfLine, strings.Join(lines, "\n"), "1", "L", false)
		w.pdf.SetXY(x, y+h)
	}
	w.pdf.Ln(4)
}

func (w *pdfWriter) findingsTable(t FindingsTable) {
	widths := [4]float64{12, pdfContentW - 12 - 32 - 24, 32, 24}
	w.pdf.Ln(2)
	w.pdf.SetFont(pdfFont, "B", 10)
	w.pdf.SetFillColor(int(t.Fill.R), int(t.Fill.G), int(t.Fill.B))
	w.pdf.SetTextColor(0, 0, 0)
	for i, h := range t.Header {
		w.pdf.CellFormat(widths[i], 7, w.tr(h), "1", 0, "C", true, 0, "")
	}
	w.pdf.Ln(7)

	w.pdf.SetFont(pdfFont, "", 10)
	for _, row := range t.Rows {
		title := w.pdf.SplitText(w.tr(row.Cells[1]), widths[1]-2)
		h := float64(max(len(title), 1)) * 6
		w.ensure(h)
		w.pdf.SetFillColor(int(row.Fill.R), int(row.Fill.G), int(row.Fill.B))
		w.pdf.SetTextColor(int(row.Text.R), int(row.Text.G), int(row.Text.B))
		x, y := w.pdf.GetXY()
		w.pdf.CellFormat(widths[0], h, row.Cells[0], "1", 0, "CM", true, 0, "")
		w.pdf.MultiCell(widths[1], 6, strings.Join(title, "\n"), "1", "L", true)
		w.pdf.SetXY(x+widths[0]+widths[1], y)
		w.pdf.CellFormat(widths[2], h, w.tr(row.Cells[2]), "1", 0, "CM", true, 0, "")
		w.pdf.CellFormat(widths[3], h, w.tr(row.Cells[3]), "1", 0, "CM", true, 0, "")
		w.pdf.SetXY(x, y+h)
	}
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.Ln(4)
}

func (w *pdfWriter) matrix(m Matrix) {
	const cellW, half = 40.0, 7.0
	w.ensure(4 * half)
	left := pdfMarginX + (pdfContentW-3*cellW)/2
	for _, row := range m {
		for pass := 0; pass < 2; pass++ {
			w.pdf.SetX(left)
			for _, c := range row {
				w.pdf.SetFillColor(int(c.Fill.R), int(c.Fill.G), int(c.Fill.B))
				w.pdf.SetTextColor(int(c.Text.R), int(c.Text.G), int(c.Text.B))
				if pass == 0 {
					w.pdf.SetFont(pdfFont, "B", 12)
					w.pdf.CellFormat(cellW, half, fmt.Sprint(c.Count), "LTR", 0, "C", true, 0, "")
				} else {
					w.pdf.SetFont(pdfFont, "", 10)
					w.pdf.CellFormat(cellW, half, w.tr(c.Label), "LBR", 0, "C", true, 0, "")
				}
			}
			w.pdf.Ln(half)
		}
	}
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.Ln(4)
}

func imageOptions(p Picture) fpdf.ImageOptions {
	t := "PNG"
	if p.Format == "jpeg" {
		t = "JPG"
	}
	return fpdf.ImageOptions{ImageType: t}
}

// register adds p to the image table once. On failure the fpdf error is
// cleared so the document can continue without it.
func (w *pdfWriter) register(p Picture) (string, bool) {
	name := fmt.Sprintf("%x", sha1.Sum(p.Data))
	w.pdf.RegisterImageOptionsReader(name, imageOptions(p), bytes.NewReader(p.Data))
	if w.pdf.Err() {
		w.pdf.ClearError()
		return "", false
	}
	return name, true
}

func (w *pdfWriter) image(b ImageBlock) {
	name, ok := w.register(b.Picture)
	if !ok {
		w.block(Placeholder{Text: fmt.Sprintf("[Image: %s] - Failed to load", b.Picture.Name)})
		return
	}
	iw, ih := fitMM(b.Picture, b.MaxWidthMM)
	w.ensure(ih + 2)
	x := pdfMarginX
	if b.Center {
		x = (pdfPageW - iw) / 2
	}
	y := w.pdf.GetY() + 1
	w.pdf.ImageOptions(name, x, y, iw, ih, false, imageOptions(b.Picture), 0, "")
	w.pdf.SetY(y + ih + 3)
}
