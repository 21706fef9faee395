package ingest

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// normalizeImage decodes any supported image, scales it to fit inside
// MaxImageDim x MaxImageDim, flattens transparency onto white and encodes
// it as JPEG. The result never exceeds MaxImageBytes.
func (in *Ingestor) normalizeImage(name string, data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fileErr(name, ErrExtractionFailed, "decode image: %v", err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > int64(in.limits.MaxImagePixels) {
		return nil, fileErr(name, ErrFileTooLarge, "image is %dx%d, limit %d pixels", cfg.Width, cfg.Height, in.limits.MaxImagePixels)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fileErr(name, ErrExtractionFailed, "decode image: %v", err)
	}

	sb := src.Bounds()
	w, h := fitWithin(sb.Dx(), sb.Dy(), in.limits.MaxImageDim)
	if w == 0 || h == 0 {
		return nil, fileErr(name, ErrExtractionFailed, "image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: in.limits.JPEGQuality}); err != nil {
		return nil, fileErr(name, ErrExtractionFailed, "encode jpeg: %v", err)
	}
	if buf.Len() > in.limits.MaxImageBytes {
		return nil, fileErr(name, ErrFileTooLarge, "encoded image is %d bytes, limit %d", buf.Len(), in.limits.MaxImageBytes)
	}
	return buf.Bytes(), nil
}

// fitWithin scales (w, h) down to fit a limit x limit box, keeping aspect ratio.
// Images already inside the box are left alone.
func fitWithin(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	if w <= limit && h <= limit {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
