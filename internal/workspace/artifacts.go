package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/folio/internal/apperr"
)

// Store is the in-memory artifact ledger for one workspace. It is updated in
// the same call that renames a finished file into place, so listing never
// races a directory scan.
type Store struct {
	mu    sync.RWMutex
	items map[string]Artifact // keyed by RelPath
}

// NewStore returns an empty ledger.
func NewStore() *Store {
	return &Store{items: make(map[string]Artifact)}
}

// Register records a, replacing any artifact already at the same path.
func (s *Store) Register(a Artifact) {
	s.mu.Lock()
	s.items[a.RelPath()] = a
	s.mu.Unlock()
}

// registerAll records every artifact under one lock so readers see all or
// none of them.
func (s *Store) registerAll(as []Artifact) {
	s.mu.Lock()
	for _, a := range as {
		s.items[a.RelPath()] = a
	}
	s.mu.Unlock()
}

func (s *Store) remove(relPath string) {
	s.mu.Lock()
	delete(s.items, relPath)
	s.mu.Unlock()
}

// List returns artifacts of kind (all kinds when empty), ordered by output
// directory search order then name.
func (s *Store) List(kind Kind) []Artifact {
	s.mu.RLock()
	out := make([]Artifact, 0, len(s.items))
	for _, a := range s.items {
		if kind != "" && a.Kind != kind {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		di, dj := dirRank(out[i].Kind.Dir()), dirRank(out[j].Kind.Dir())
		if di != dj {
			return di < dj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get finds an artifact by file name, checking output directories in
// SearchOrder and returning the first match.
func (s *Store) Get(name string) (Artifact, error) {
	base := filepath.Base(strings.TrimSpace(name))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, dir := range SearchOrder {
		if a, ok := s.items[dir+"/"+base]; ok {
			return a, nil
		}
	}
	return Artifact{}, apperr.New(apperr.ArtifactNotFound, "artifact %q not found", base).WithField("name", base)
}

// Len reports how many artifacts are registered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) reset() {
	s.mu.Lock()
	s.items = make(map[string]Artifact)
	s.mu.Unlock()
}

func dirRank(dir string) int {
	for i, d := range SearchOrder {
		if d == dir {
			return i
		}
	}
	return len(SearchOrder)
}

var (
	ocrPagePattern      = regexp.MustCompile(`^(.+)_p(\d{4})\.ocr\.txt$`)
	markdownPagePattern = regexp.MustCompile(`^(.+)_p(\d{4})\.md$`)
	splitPagePattern    = regexp.MustCompile(`^(.+)_p(\d{4})\.pdf$`)
	splitRangePattern   = regexp.MustCompile(`^(.+)_pages_(\d{4})-(\d{4})\.pdf$`)
)

// rescan rebuilds the ledger from files already present under outputRoot.
func (s *Store) rescan(outputRoot string) error {
	s.reset()
	for _, dir := range SearchOrder {
		entries, err := os.ReadDir(filepath.Join(outputRoot, dir))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read output directory %q: %w", dir, err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			a, ok := inferArtifact(dir, entry.Name())
			if !ok {
				continue
			}
			path := filepath.Join(outputRoot, dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat artifact %q: %w", entry.Name(), err)
			}
			size, sum, err := hashFile(path)
			if err != nil {
				return err
			}
			a.Size = size
			a.Checksum = sum
			a.CreatedAt = info.ModTime().UTC()
			s.Register(a)
		}
	}
	return nil
}

func inferArtifact(dir, name string) (Artifact, bool) {
	a := Artifact{Name: name}
	switch dir {
	case DirOCR:
		if !strings.HasSuffix(name, ".ocr.txt") {
			return a, false
		}
		a.Kind = KindOCRFull
		a.Source = strings.TrimSuffix(name, ".ocr.txt") + ".pdf"
		if m := ocrPagePattern.FindStringSubmatch(name); m != nil {
			a.Kind = KindOCRPage
			a.Source = m[1] + ".pdf"
			a.PageIndex = atoiPadded(m[2])
		}
	case DirMarkdown:
		if !strings.HasSuffix(name, ".md") {
			return a, false
		}
		a.Kind = KindMarkdownFull
		a.Source = strings.TrimSuffix(name, ".md") + ".pdf"
		if m := markdownPagePattern.FindStringSubmatch(name); m != nil {
			a.Kind = KindMarkdownPage
			a.Source = m[1] + ".pdf"
			a.PageIndex = atoiPadded(m[2])
		}
	case DirSplit:
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return a, false
		}
		a.Kind = KindSplit
		if m := splitPagePattern.FindStringSubmatch(name); m != nil {
			a.Source = m[1] + ".pdf"
			a.PageIndex = atoiPadded(m[2])
		} else if m := splitRangePattern.FindStringSubmatch(name); m != nil {
			a.Source = m[1] + ".pdf"
			a.PageRange = fmt.Sprintf("%d-%d", atoiPadded(m[2]), atoiPadded(m[3]))
		}
	case DirMerge:
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			return a, false
		}
		a.Kind = KindMerge
	default:
		return a, false
	}
	return a, true
}

func atoiPadded(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
