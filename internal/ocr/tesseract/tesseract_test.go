package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mattjoyce/folio/internal/ocr"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

// renderText draws text in the basic bitmap face and scales it up so the
// glyphs are large enough to recognize.
func renderText(t *testing.T, text string) []byte {
	t.Helper()
	small := image.NewRGBA(image.Rect(0, 0, 120, 24))
	draw.Draw(small, small.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: small, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(6, 17)}
	d.DrawString(text)

	big := image.NewRGBA(image.Rect(0, 0, 480, 96))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, big))
	return buf.Bytes()
}

func TestRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	e := New("eng")
	assert.Equal(t, "tesseract", e.Name())

	text, err := e.Recognize(context.Background(), ocr.Request{Image: renderText(t, "HELLO PDF"), DPI: 300})
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(text), "HELLO")
}

func TestRecognizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New()
	e.newClient = func() *gosseract.Client {
		t.Fatal("client created after cancel")
		return nil
	}
	_, err := e.Recognize(ctx, ocr.Request{Image: []byte{1}})
	assert.ErrorIs(t, err, context.Canceled)
}
