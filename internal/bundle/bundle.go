// Package bundle serves workspace artifacts for download, either one file
// by name or every artifact zipped as outputs.zip.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/mattjoyce/folio/internal/workspace"
)

// ArchiveName is the filename of the all-artifacts download.
const ArchiveName = "outputs.zip"

// Payload is an open download. Close releases it and removes any temporary
// archive.
type Payload struct {
	Filename    string
	ContentType string
	Size        int64
	ModTime     time.Time
	// Checksum is the artifact's BLAKE3 digest; empty for archives.
	Checksum string
	Entries  int

	file *os.File
	temp bool
}

// Reader exposes the payload body for ranged serving.
func (p *Payload) Reader() io.ReadSeeker { return p.file }

func (p *Payload) Close() error {
	err := p.file.Close()
	if p.temp {
		if rmErr := os.Remove(p.file.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return err
}

// Bundle returns the artifact called name, searching kind directories in
// the fixed order, or a zip of every artifact when name is empty.
func Bundle(ws *workspace.Workspace, name string) (*Payload, error) {
	if strings.TrimSpace(name) == "" {
		return archive(ws)
	}
	a, err := ws.Artifacts().Get(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(ws.ArtifactPath(a))
	if err != nil {
		return nil, fmt.Errorf("open artifact %q: %w", a.Name, err)
	}
	return &Payload{
		Filename:    a.Name,
		ContentType: ContentType(a.Name),
		Size:        a.Size,
		ModTime:     a.CreatedAt,
		Checksum:    a.Checksum,
		Entries:     1,
		file:        f,
	}, nil
}

func archive(ws *workspace.Workspace) (*Payload, error) {
	scratch, err := ws.ScratchDir()
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(scratch, "outputs-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	fail := func(err error) (*Payload, error) {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}

	artifacts := ws.Artifacts().List("")
	zw := zip.NewWriter(f)
	for _, a := range artifacts {
		if err := addEntry(zw, ws.ArtifactPath(a), a); err != nil {
			return fail(err)
		}
	}
	if err := zw.Close(); err != nil {
		return fail(fmt.Errorf("finish archive: %w", err))
	}

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fail(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}
	return &Payload{
		Filename:    ArchiveName,
		ContentType: "application/zip",
		Size:        size,
		ModTime:     time.Now().UTC(),
		Entries:     len(artifacts),
		file:        f,
		temp:        true,
	}, nil
}

func addEntry(zw *zip.Writer, src string, a workspace.Artifact) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact %q: %w", a.Name, err)
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     a.RelPath(),
		Method:   zip.Deflate,
		Modified: a.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("add %q to archive: %w", a.RelPath(), err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write %q to archive: %w", a.RelPath(), err)
	}
	return nil
}

// ContentType picks a media type from an artifact name.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
