package extract

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	// Decoders for the accepted upload formats.
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

const (
	contrastFactor = 2.0
	// Narrow scans are upscaled before preprocessing; OCR engines read
	// small glyphs poorly.
	minPreprocessWidth = 1000
)

// prepareImage decodes path, flattens it onto an opaque RGB canvas and
// writes the result as PNG inside dir. With preprocess set the output is a
// contrast-stretched grayscale image instead.
func prepareImage(path, dir string, preprocess bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var out image.Image = flattenRGB(src)
	if preprocess {
		out = enhance(out)
	}

	target, err := os.CreateTemp(dir, "prepared-*.png")
	if err != nil {
		return "", fmt.Errorf("create prepared image: %w", err)
	}
	defer target.Close()
	if err := png.Encode(target, out); err != nil {
		return "", fmt.Errorf("encode prepared image: %w", err)
	}
	return filepath.Clean(target.Name()), nil
}

// flattenRGB composites src over white. The result is fully opaque, so the
// PNG encoder stores it as 8-bit RGB without an alpha channel.
func flattenRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func enhance(src image.Image) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > 0 && w < minPreprocessWidth {
		scale := (minPreprocessWidth + w - 1) / w
		scaled := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)
		src = scaled
		b = scaled.Bounds()
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)

	var sum int
	for _, p := range gray.Pix {
		sum += int(p)
	}
	if len(gray.Pix) == 0 {
		return gray
	}
	mean := float64(sum) / float64(len(gray.Pix))
	for i, p := range gray.Pix {
		v := mean + (float64(p)-mean)*contrastFactor
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		gray.Pix[i] = uint8(v + 0.5)
	}
	return gray
}
