// Package export turns a report into the files a user takes away: the PDF,
// the DOCX, and the ZIP bundle holding both plus the raw PoC images.
package export

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DocumentKind is the middle part of PDF and DOCX file names.
const DocumentKind = "Penetration Test Report"

// Filename returns "<project> - <kind>_<YYYY-MM-DD><ext>". ext includes the dot.
func Filename(projectName, kind string, date time.Time, ext string) string {
	name := clean(projectName, " ")
	if name == "" {
		name = "Report"
	}
	return name + " - " + kind + "_" + date.Format("2006-01-02") + ext
}

// Folder is the bundle directory name: the project name with whitespace
// runs replaced by underscores.
func Folder(projectName string) string {
	f := clean(projectName, "_")
	if f == "" {
		return "Report"
	}
	return f
}

// clean applies NFC, drops characters that are unsafe in file names and
// joins the remaining words with sep.
func clean(s, sep string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '<', '>', ':', '"', '|', '?', '*':
			return -1
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), sep)
	return strings.Trim(s, ".")
}

// imageExt picks the bundle extension for a stored PoC image.
func imageExt(filename, originalName, mimeType string) string {
	for _, n := range []string{filename, originalName} {
		if ext := strings.ToLower(filepath.Ext(n)); ext != "" && len(ext) <= 5 {
			return ext
		}
	}
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	return ".png"
}
