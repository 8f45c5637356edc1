package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := New(FileNotFound, "file %q not found", "a.pdf").WithField("filename", "a.pdf")
	wrapped := fmt.Errorf("ocr: %w", err)

	assert.True(t, errors.Is(wrapped, ErrFileNotFound))
	assert.False(t, errors.Is(wrapped, ErrArtifactNotFound))
	assert.Equal(t, FileNotFound, KindOf(wrapped))
	assert.Equal(t, `file "a.pdf" not found`, err.Error())

	e, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "filename", e.Field)
	assert.Equal(t, "a.pdf", e.Value)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("tesseract exploded")
	err := Wrap(EngineFailure, cause, "markdown conversion of %q failed", "doc.pdf")

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrEngineFailure))
	assert.Contains(t, err.Error(), "tesseract exploded")
	assert.Equal(t, `markdown conversion of "doc.pdf" failed`, err.Public())
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
