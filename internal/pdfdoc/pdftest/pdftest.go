// Package pdftest builds small, valid PDF documents for tests. Each page's
// MediaBox width identifies it so page order can be checked after
// collect and merge.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Encode returns a PDF with one page per entry of widths.
func Encode(widths []float64) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, len(widths)+2)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(widths))
	for i := range widths {
		kids[i] = strconv.Itoa(i+3) + " 0 R"
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))

	for _, w := range widths {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s 200] /Resources << >> >>",
			strconv.FormatFloat(w, 'f', -1, 64)))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// Widths numbers pages first, first+1, ... so they stay distinguishable
// across documents.
func Widths(first, pages int) []float64 {
	out := make([]float64, pages)
	for i := range out {
		out[i] = float64(first + i)
	}
	return out
}

// Write stores a document with the given page widths at path.
func Write(path string, widths []float64) error {
	return os.WriteFile(path, Encode(widths), 0o644)
}

// PageWidths reads back the MediaBox width of every page of path.
func PageWidths(path string) ([]float64, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(dims))
	for i, d := range dims {
		out[i] = d.Width
	}
	return out, nil
}
