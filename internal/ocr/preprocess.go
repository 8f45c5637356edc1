package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Register decoders for rasterizer output other than PNG.
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultMaxEdge bounds the longest image side handed to the engine.
const DefaultMaxEdge = 4000

// Preprocess converts a page image to grayscale and downscales it so its
// longest edge is at most maxEdge. The result is PNG encoded.
func Preprocess(data []byte, maxEdge int) ([]byte, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if longest := max(w, h); longest > maxEdge {
		w = w * maxEdge / longest
		h = h * maxEdge / longest
	}
	w, h = max(w, 1), max(h, 1)

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
