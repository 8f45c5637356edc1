package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/folio/internal/apperr"
)

// Kind identifies what produced an artifact.
type Kind string

const (
	KindOCRFull      Kind = "ocr-full"
	KindOCRPage      Kind = "ocr-page"
	KindMarkdownFull Kind = "markdown-full"
	KindMarkdownPage Kind = "markdown-page"
	KindSplit        Kind = "split"
	KindMerge        Kind = "merge"
)

// Output subdirectories, in download search order.
const (
	DirOCR      = "ocr"
	DirMarkdown = "markdown"
	DirSplit    = "split"
	DirMerge    = "merge"
)

// SearchOrder is the fixed order used when resolving an artifact by name.
var SearchOrder = []string{DirOCR, DirMarkdown, DirSplit, DirMerge}

// Dir returns the output subdirectory for k.
func (k Kind) Dir() string {
	switch k {
	case KindOCRFull, KindOCRPage:
		return DirOCR
	case KindMarkdownFull, KindMarkdownPage:
		return DirMarkdown
	case KindSplit:
		return DirSplit
	case KindMerge:
		return DirMerge
	}
	return ""
}

// ParseKind parses a kind name; the empty string is allowed and means "any".
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(strings.ToLower(s)))
	switch k {
	case "", KindOCRFull, KindOCRPage, KindMarkdownFull, KindMarkdownPage, KindSplit, KindMerge:
		return k, nil
	}
	return "", apperr.New(apperr.InvalidConfig, "unknown artifact kind %q", s).WithField("kind", s)
}

// Artifact is a produced output file inside a workspace.
type Artifact struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	// Source is the originating input file; empty for merges.
	Source string `json:"source,omitempty"`
	// Sources lists merge inputs in order.
	Sources []string `json:"sources,omitempty"`
	// PageIndex is 1-based and set only for per-page artifacts.
	PageIndex int       `json:"page_index,omitempty"`
	PageRange string    `json:"page_range,omitempty"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// RelPath is the artifact location relative to the output root.
func (a Artifact) RelPath() string {
	return a.Kind.Dir() + "/" + a.Name
}

// Mode distinguishes how a workspace's input root was provided.
type Mode string

const (
	ModeUpload Mode = "upload"
	ModeLocal  Mode = "local"
)

func (m Mode) String() string { return string(m) }

func kindDirError(k Kind) error {
	return fmt.Errorf("artifact kind %q has no output directory", k)
}
