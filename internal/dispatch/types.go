package dispatch

import (
	"strings"
	"time"

	"github.com/mattjoyce/folio/internal/apperr"
	"github.com/mattjoyce/folio/internal/workspace"
)

// Op names an operation kind.
type Op string

const (
	OpOCR      Op = "ocr"
	OpMarkdown Op = "markdown"
	OpSplit    Op = "split"
	OpMerge    Op = "merge"
)

// OutputMode selects one artifact per document or one per page.
type OutputMode string

const (
	OutputFull  OutputMode = "full"
	OutputPages OutputMode = "pages"
)

// ParseOutputMode accepts "full" or "pages"; empty means full.
func ParseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return OutputFull, nil
	case OutputFull, OutputPages:
		return m, nil
	}
	return "", apperr.New(apperr.InvalidConfig, "output must be %q or %q", OutputFull, OutputPages).WithField("output", s)
}

type OCRParams struct {
	Filename   string     `json:"filename"`
	Output     OutputMode `json:"output"`
	Preprocess *bool      `json:"preprocess,omitempty"`
}

type MarkdownParams struct {
	Filename string     `json:"filename"`
	Output   OutputMode `json:"output"`
	ForceOCR bool       `json:"force_ocr"`
}

// SplitParams selects pages by an inclusive "a-b" range or an explicit
// list. With neither, every page is split into its own file.
type SplitParams struct {
	Filename  string `json:"filename"`
	PageRange string `json:"page_range,omitempty"`
	Pages     []int  `json:"pages,omitempty"`
	Combined  bool   `json:"combined"`
}

type MergeParams struct {
	Filenames []string `json:"filenames"`
	OutName   string   `json:"out_name,omitempty"`
}

// ArtifactRef identifies a produced artifact.
type ArtifactRef struct {
	Kind workspace.Kind `json:"kind"`
	Name string         `json:"name"`
}

// PageStatus reports per-page OCR outcome.
type PageStatus struct {
	Page  int    `json:"page"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Result is what a completed operation returns.
type Result struct {
	Op        Op            `json:"op"`
	Artifacts []ArtifactRef `json:"artifacts"`
	Pages     []PageStatus  `json:"pages,omitempty"`
	Duration  time.Duration `json:"-"`
}

func refOf(a workspace.Artifact) ArtifactRef {
	return ArtifactRef{Kind: a.Kind, Name: a.Name}
}

// Target is a session's workspace held for the length of an operation.
// *session.Handle satisfies it.
type Target interface {
	ID() string
	Workspace() *workspace.Workspace
}
