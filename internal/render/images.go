package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var errNoImageData = errors.New("no image data")

// decodePicture validates data as an image. JPEG is embedded unchanged;
// every other format is re-encoded as 8-bit NRGBA PNG so both writers only
// ever see two formats.
func decodePicture(name string, data []byte) (Picture, error) {
	if len(data) == 0 {
		return Picture{}, errNoImageData
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Picture{}, fmt.Errorf("decoding image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Picture{}, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if format == "jpeg" {
		// A full decode catches truncated scans DecodeConfig cannot see.
		if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
			return Picture{}, fmt.Errorf("decoding jpeg: %w", err)
		}
		return Picture{Name: name, Format: "jpeg", Data: data, Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Picture{}, fmt.Errorf("decoding %s: %w", format, err)
	}
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, nrgba); err != nil {
		return Picture{}, fmt.Errorf("encoding png: %w", err)
	}
	return Picture{Name: name, Format: "png", Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// pxToMM converts at 96 dpi.
func pxToMM(px int) float64 { return float64(px) * 25.4 / 96 }

// fitMM returns the display size in millimetres for p no wider than maxW.
func fitMM(p Picture, maxW float64) (w, h float64) {
	w = pxToMM(p.Width)
	if w > maxW {
		w = maxW
	}
	return w, w * float64(p.Height) / float64(p.Width)
}

// fitPx returns the display size in pixels for p no wider than maxW.
func fitPx(p Picture, maxW int) (w, h int) {
	w = p.Width
	if w > maxW {
		w = maxW
	}
	h = int(float64(w)*float64(p.Height)/float64(p.Width) + 0.5)
	if h < 1 {
		h = 1
	}
	return w, h
}
