package workspace

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/folio/internal/apperr"
)

const selectionNameLimit = 10

// ValidateFilename rejects empty names, path separators and parent-directory
// segments.
func ValidateFilename(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return apperr.New(apperr.InvalidFilename, "filename is empty").WithField("filename", name)
	case trimmed == "." || trimmed == "..":
		return apperr.New(apperr.InvalidFilename, "filename %q is invalid", name).WithField("filename", name)
	case strings.ContainsAny(trimmed, "/\\\x00"):
		return apperr.New(apperr.InvalidFilename, "filename %q must not contain path separators", name).WithField("filename", name)
	case filepath.Clean(trimmed) != trimmed:
		return apperr.New(apperr.InvalidFilename, "filename %q is invalid", name).WithField("filename", name)
	}
	return nil
}

// IsPDFName reports whether name has a .pdf extension, in any case.
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Stem returns name without its extension.
func Stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func OCRFullName(source string) string { return Stem(source) + ".ocr.txt" }

func OCRPageName(source string, page int) string {
	return fmt.Sprintf("%s_p%04d.ocr.txt", Stem(source), page)
}

func MarkdownFullName(source string) string { return Stem(source) + ".md" }

func MarkdownPageName(source string, page int) string {
	return fmt.Sprintf("%s_p%04d.md", Stem(source), page)
}

// SplitPageName names a single extracted page by its original page number.
func SplitPageName(source string, page int) string {
	return fmt.Sprintf("%s_p%04d.pdf", Stem(source), page)
}

// SplitRangeName names a combined output built from a contiguous range.
func SplitRangeName(source string, first, last int) string {
	return fmt.Sprintf("%s_pages_%04d-%04d.pdf", Stem(source), first, last)
}

// SplitSelectionName names a combined output built from an explicit page
// list. Past ten pages the name lists the first ten, the remainder count and
// a digest of the whole list, so distinct selections get distinct names.
func SplitSelectionName(source string, pages []int) string {
	var b strings.Builder
	b.WriteString(Stem(source))
	b.WriteString("_pages_sel")
	for i, p := range pages {
		if i == selectionNameLimit {
			fmt.Fprintf(&b, "_plus%d_%s", len(pages)-selectionNameLimit, selectionDigest(pages))
			break
		}
		fmt.Fprintf(&b, "_%04d", p)
	}
	b.WriteString(".pdf")
	return b.String()
}

func selectionDigest(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	sum := blake3.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:4])
}

// MergeName validates a caller-chosen merge output name, defaulting to
// merged.pdf and appending the extension when missing.
func MergeName(outName string) (string, error) {
	name := strings.TrimSpace(outName)
	if name == "" {
		return "merged.pdf", nil
	}
	if err := ValidateFilename(name); err != nil {
		if e, ok := apperr.As(err); ok {
			e.Field = "out_name"
		}
		return "", err
	}
	if !IsPDFName(name) {
		name += ".pdf"
	}
	return name, nil
}
