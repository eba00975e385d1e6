package render

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// OOXML geometry: twentieths of a point for layout, EMU for drawings.
const (
	docxPageW    = 11906
	docxPageH    = 16838
	docxMargin   = 1440
	docxContentW = docxPageW - 2*docxMargin
	emuPerPx     = 9525
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	relImage  = nsR + "/image"
	relStyles = nsR + "/styles"
	relHeader = nsR + "/header"
	relFooter = nsR + "/footer"
)

// DOCXRenderer writes a Document as a WordprocessingML package.
type DOCXRenderer struct{}

func (*DOCXRenderer) Format() string    { return "docx" }
func (*DOCXRenderer) Extension() string { return ".docx" }

type docxMedia struct {
	rid  string
	path string
	data []byte
}

type docxWriter struct {
	body     strings.Builder
	media    []docxMedia
	byData   map[string]docxMedia
	drawings int
}

// Render produces the .docx bytes.
func (r *DOCXRenderer) Render(ctx context.Context, d *Document) ([]byte, error) {
	w := &docxWriter{byData: map[string]docxMedia{}}
	for _, b := range d.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.block(b)
	}

	header := w.headerXML(d)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"docProps/core.xml", []byte(coreXML(d))},
		{"word/document.xml", []byte(w.documentXML())},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/header1.xml", []byte(header.xml)},
		{"word/footer1.xml", []byte(footerXML)},
		{"word/_rels/document.xml.rels", []byte(w.documentRels())},
		{"word/_rels/header1.xml.rels", []byte(relsXML(header.media))},
	}

	modified := d.Created
	if modified.IsZero() || modified.Year() < 1980 {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) error {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		_, err = f.Write(data)
		return err
	}
	for _, p := range parts {
		if err := add(p.name, p.data); err != nil {
			return nil, &DocumentBuildError{Fatal: true, Item: "docx", Err: err}
		}
	}
	for _, m := range append(w.media, header.media...) {
		if err := add("word/"+m.path, m.data); err != nil {
			return nil, &DocumentBuildError{Fatal: true, Item: "docx", Err: err}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, &DocumentBuildError{Fatal: true, Item: "docx", Err: err}
	}
	return buf.Bytes(), nil
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

type runStyle struct {
	bold, italic bool
	color        *RGB
	size         int // half-points, 0 = style default
}

// run writes text as one run; newlines become line breaks.
func run(b *strings.Builder, text string, st runStyle) {
	b.WriteString("<w:r>")
	if st.bold || st.italic || st.color != nil || st.size > 0 {
		b.WriteString("<w:rPr>")
		if st.bold {
			b.WriteString("<w:b/>")
		}
		if st.italic {
			b.WriteString("<w:i/>")
		}
		if st.color != nil {
			fmt.Fprintf(b, `<w:color w:val="%s"/>`, st.color.Hex())
		}
		if st.size > 0 {
			fmt.Fprintf(b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, st.size, st.size)
		}
		b.WriteString("</w:rPr>")
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		fmt.Fprintf(b, `<w:t xml:space="preserve">%s</w:t>`, esc(line))
	}
	b.WriteString("</w:r>")
}

type paraStyle struct {
	style  string
	center bool
	indent int
	after  int
}

func openPara(b *strings.Builder, ps paraStyle) {
	b.WriteString("<w:p><w:pPr>")
	if ps.style != "" {
		fmt.Fprintf(b, `<w:pStyle w:val="%s"/>`, ps.style)
	}
	if ps.after > 0 {
		fmt.Fprintf(b, `<w:spacing w:after="%d"/>`, ps.after)
	}
	if ps.indent > 0 {
		fmt.Fprintf(b, `<w:ind w:left="%d"/>`, ps.indent)
	}
	if ps.center {
		b.WriteString(`<w:jc w:val="center"/>`)
	}
	b.WriteString("</w:pPr>")
}

func (w *docxWriter) block(b Block) {
	out := &w.body
	switch b := b.(type) {
	case Heading:
		ps := paraStyle{center: b.Align == AlignCenter}
		st := runStyle{}
		switch b.Level {
		case LevelTitle:
			ps.style = "Title"
		case LevelSection:
			ps.style = "Heading1"
		case LevelSub:
			ps.style = "Heading2"
		case LevelFinding:
			ps.style = "Heading3"
		default:
			st = runStyle{bold: true, size: 24}
		}
		openPara(out, ps)
		run(out, b.Text, st)
		out.WriteString("</w:p>")
	case Paragraph:
		openPara(out, paraStyle{center: b.Align == AlignCenter})
		for _, r := range b.Runs {
			run(out, r.Text, runStyle{bold: r.Bold, color: r.Color})
		}
		out.WriteString("</w:p>")
	case Field:
		if len(b.Lines) == 1 {
			openPara(out, paraStyle{after: 60})
			run(out, b.Label+": ", runStyle{bold: true})
			run(out, b.Lines[0], runStyle{})
			out.WriteString("</w:p>")
			return
		}
		openPara(out, paraStyle{after: 40})
		run(out, b.Label+": ", runStyle{bold: true})
		out.WriteString("</w:p>")
		for _, line := range b.Lines {
			openPara(out, paraStyle{indent: 360, after: 20})
			run(out, line, runStyle{})
			out.WriteString("</w:p>")
		}
	case KeyValueTable:
		cols := []int{2600, docxContentW - 2600}
		w.openTable(cols, false)
		for _, row := range b.Rows {
			out.WriteString("<w:tr>")
			w.cell(cols[0], nil, row[0], runStyle{bold: true}, false)
			w.cell(cols[1], nil, row[1], runStyle{}, false)
			out.WriteString("</w:tr>")
		}
		w.closeTable()
	case FindingsTable:
		cols := []int{700, docxContentW - 700 - 1800 - 1400, 1800, 1400}
		w.openTable(cols, false)
		out.WriteString("<w:tr><w:trPr><w:tblHeader/></w:trPr>")
		for i, h := range b.Header {
			fill := b.Fill
			w.cell(cols[i], &fill, h, runStyle{bold: true}, true)
		}
		out.WriteString("</w:tr>")
		for _, row := range b.Rows {
			out.WriteString("<w:tr>")
			for i, c := range row.Cells {
				fill, text := row.Fill, row.Text
				w.cell(cols[i], &fill, c, runStyle{color: &text}, i != 1)
			}
			out.WriteString("</w:tr>")
		}
		w.closeTable()
	case MatrixBlock:
		cols := []int{2200, 2200, 2200}
		w.openTable(cols, true)
		for _, row := range b.Matrix {
			out.WriteString("<w:tr>")
			for i, c := range row {
				fill, text := c.Fill, c.Text
				w.cell(cols[i], &fill, fmt.Sprintf("%d\n%s", c.Count, c.Label), runStyle{bold: true, color: &text}, true)
			}
			out.WriteString("</w:tr>")
		}
		w.closeTable()
	case ImageBlock:
		m := w.addMedia(b.Picture)
		wPx, hPx := fitPx(b.Picture, b.MaxWidthPx)
		openPara(out, paraStyle{center: b.Center})
		w.drawing(out, m.rid, b.Picture.Name, wPx, hPx)
		out.WriteString("</w:p>")
	case Placeholder:
		grey := ColorNone
		openPara(out, paraStyle{})
		run(out, b.Text, runStyle{italic: true, color: &grey})
		out.WriteString("</w:p>")
	case PageBreak:
		out.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
	}
}

func (w *docxWriter) openTable(cols []int, center bool) {
	out := &w.body
	total := 0
	for _, c := range cols {
		total += c
	}
	fmt.Fprintf(out, `<w:tbl><w:tblPr><w:tblW w:w="%d" w:type="dxa"/>`, total)
	if center {
		out.WriteString(`<w:jc w:val="center"/>`)
	}
	out.WriteString("<w:tblBorders>")
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(out, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="000000"/>`, side)
	}
	out.WriteString(`</w:tblBorders><w:tblLayout w:type="fixed"/></w:tblPr><w:tblGrid>`)
	for _, c := range cols {
		fmt.Fprintf(out, `<w:gridCol w:w="%d"/>`, c)
	}
	out.WriteString("</w:tblGrid>")
}

// closeTable ends the table and adds the spacer paragraph Word needs
// between adjacent tables.
func (w *docxWriter) closeTable() {
	w.body.WriteString(`</w:tbl><w:p><w:pPr><w:spacing w:after="120"/></w:pPr></w:p>`)
}

func (w *docxWriter) cell(width int, fill *RGB, text string, st runStyle, center bool) {
	out := &w.body
	fmt.Fprintf(out, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/>`, width)
	if fill != nil {
		fmt.Fprintf(out, `<w:shd w:val="clear" w:color="auto" w:fill="%s"/>`, fill.Hex())
	}
	out.WriteString("</w:tcPr>")
	openPara(out, paraStyle{center: center})
	run(out, text, st)
	out.WriteString("</w:p></w:tc>")
}

func (w *docxWriter) addMedia(p Picture) docxMedia {
	key := string(p.Data)
	if m, ok := w.byData[key]; ok {
		return m
	}
	ext := "png"
	if p.Format == "jpeg" {
		ext = "jpeg"
	}
	n := len(w.media) + 1
	m := docxMedia{rid: fmt.Sprintf("rIdImg%d", n), path: fmt.Sprintf("media/image%d.%s", n, ext), data: p.Data}
	w.media = append(w.media, m)
	w.byData[key] = m
	return m
}

func (w *docxWriter) drawing(out *strings.Builder, rid, name string, wPx, hPx int) {
	w.drawings++
	cx, cy := wPx*emuPerPx, hPx*emuPerPx
	fmt.Fprintf(out, `<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d" descr="%s"/>`+
		`<wp:cNvGraphicFramePr><a:graphicFrameLocks xmlns:a="%s" noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
		`<a:graphic xmlns:a="%s"><a:graphicData uri="%s"><pic:pic xmlns:pic="%s">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, w.drawings, w.drawings, esc(name), nsA, nsA, nsPic, nsPic, w.drawings, esc(name), rid, cx, cy)
}

func (w *docxWriter) documentXML() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<w:document xmlns:w="%s" xmlns:r="%s" xmlns:wp="%s"><w:body>`, nsW, nsR, nsWP)
	b.WriteString(w.body.String())
	fmt.Fprintf(&b, `<w:sectPr><w:headerReference w:type="default" r:id="rIdHeader"/>`+
		`<w:footerReference w:type="default" r:id="rIdFooter"/><w:footerReference w:type="first" r:id="rIdFooter"/>`+
		`<w:pgSz w:w="%d" w:h="%d"/>`+
		`<w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="708" w:footer="708" w:gutter="0"/>`+
		`<w:titlePg/></w:sectPr>`,
		docxPageW, docxPageH, docxMargin, docxMargin, docxMargin, docxMargin)
	b.WriteString("</w:body></w:document>")
	return b.String()
}

func (w *docxWriter) documentRels() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsRel)
	fmt.Fprintf(&b, `<Relationship Id="rIdStyles" Type="%s" Target="styles.xml"/>`, relStyles)
	fmt.Fprintf(&b, `<Relationship Id="rIdHeader" Type="%s" Target="header1.xml"/>`, relHeader)
	fmt.Fprintf(&b, `<Relationship Id="rIdFooter" Type="%s" Target="footer1.xml"/>`, relFooter)
	for _, m := range w.media {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, m.rid, relImage, m.path)
	}
	b.WriteString("</Relationships>")
	return b.String()
}

func relsXML(media []docxMedia) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<Relationships xmlns="%s">`, nsRel)
	for _, m := range media {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, m.rid, relImage, m.path)
	}
	b.WriteString("</Relationships>")
	return b.String()
}

type docxHeader struct {
	xml   string
	media []docxMedia
}

// headerXML is the running header shown from page two on (titlePg keeps
// the cover clean): the title left, the small logo right.
func (w *docxWriter) headerXML(d *Document) docxHeader {
	var h docxHeader
	var b strings.Builder
	b.WriteString(xml.Header)
	fmt.Fprintf(&b, `<w:hdr xmlns:w="%s" xmlns:r="%s" xmlns:wp="%s"><w:p><w:pPr><w:tabs><w:tab w:val="right" w:pos="%d"/></w:tabs></w:pPr>`,
		nsW, nsR, nsWP, docxContentW)
	run(&b, ReportTitle, runStyle{bold: true})
	if d.Logo != nil {
		ext := "png"
		if d.Logo.Format == "jpeg" {
			ext = "jpeg"
		}
		m := docxMedia{rid: "rIdLogo", path: "media/header_logo." + ext, data: d.Logo.Data}
		h.media = append(h.media, m)
		b.WriteString("<w:r><w:tab/></w:r>")
		wPx, hPx := fitPx(*d.Logo, HeaderLogoWidthPx)
		w.drawing(&b, m.rid, "logo", wPx, hPx)
	}
	b.WriteString("</w:p></w:hdr>")
	h.xml = b.String()
	return h
}

func coreXML(d *Document) string {
	ts := d.Created.UTC().Format("2006-01-02T15:04:05Z")
	return xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + esc(d.Title) + `</dc:title><dc:subject>` + esc(d.Subject) + `</dc:subject>` +
		`<dc:creator>` + esc(d.Author) + `</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + ts + `</dcterms:modified></cp:coreProperties>`
}

const contentTypesXML = xml.Header + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Default Extension="png" ContentType="image/png"/>` +
	`<Default Extension="jpeg" ContentType="image/jpeg"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/header1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.header+xml"/>` +
	`<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const rootRelsXML = xml.Header + `<Relationships xmlns="` + nsRel + `">` +
	`<Relationship Id="rId1" Type="` + nsR + `/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const footerXML = xml.Header + `<w:ftr xmlns:w="` + nsW + `" xmlns:r="` + nsR + `"><w:p><w:pPr><w:jc w:val="center"/></w:pPr>` +
	`<w:fldSimple w:instr=" PAGE "><w:r><w:t>1</w:t></w:r></w:fldSimple>` +
	`<w:r><w:t xml:space="preserve"> of </w:t></w:r>` +
	`<w:fldSimple w:instr=" NUMPAGES "><w:r><w:t>1</w:t></w:r></w:fldSimple></w:p></w:ftr>`

const stylesXML = xml.Header + `<w:styles xmlns:w="` + nsW + `">` +
	`<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/>` +
	`<w:sz w:val="20"/><w:szCs w:val="20"/></w:rPr></w:rPrDefault>` +
	`<w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="259" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>` +
	`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
	`<w:pPr><w:spacing w:before="1200" w:after="360"/></w:pPr><w:rPr><w:b/><w:sz w:val="44"/><w:szCs w:val="44"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="360" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="28"/><w:szCs w:val="28"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="1"/></w:pPr><w:rPr><w:b/><w:sz w:val="24"/><w:szCs w:val="24"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/>` +
	`<w:pPr><w:keepNext/><w:spacing w:before="240" w:after="80"/><w:outlineLvl w:val="2"/></w:pPr><w:rPr><w:b/><w:sz w:val="24"/><w:szCs w:val="24"/></w:rPr></w:style>` +
	`</w:styles>`
