// Package apperr defines the failure kinds surfaced by sessions, workspaces and
// operations. Every error handed back to a caller carries a Kind plus the
// offending field and value, never an absolute path.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	InvalidConfig          Kind = "InvalidConfig"
	SessionNotFound        Kind = "SessionNotFound"
	SessionExpired         Kind = "SessionExpired"
	DirectoryNotAccessible Kind = "DirectoryNotAccessible"
	UnsupportedFileType    Kind = "UnsupportedFileType"
	InvalidFilename        Kind = "InvalidFilename"
	FileNotFound           Kind = "FileNotFound"
	PageOutOfRange         Kind = "PageOutOfRange"
	InvalidRange           Kind = "InvalidRange"
	PageSplitUnsupported   Kind = "PageSplitUnsupported"
	TooFewFiles            Kind = "TooFewFiles"
	ArtifactNotFound       Kind = "ArtifactNotFound"
	OperationTimeout       Kind = "OperationTimeout"
	EngineFailure          Kind = "EngineFailure"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidConfig          = &Error{Kind: InvalidConfig}
	ErrSessionNotFound        = &Error{Kind: SessionNotFound}
	ErrSessionExpired         = &Error{Kind: SessionExpired}
	ErrDirectoryNotAccessible = &Error{Kind: DirectoryNotAccessible}
	ErrUnsupportedFileType    = &Error{Kind: UnsupportedFileType}
	ErrInvalidFilename        = &Error{Kind: InvalidFilename}
	ErrFileNotFound           = &Error{Kind: FileNotFound}
	ErrPageOutOfRange         = &Error{Kind: PageOutOfRange}
	ErrInvalidRange           = &Error{Kind: InvalidRange}
	ErrPageSplitUnsupported   = &Error{Kind: PageSplitUnsupported}
	ErrTooFewFiles            = &Error{Kind: TooFewFiles}
	ErrArtifactNotFound       = &Error{Kind: ArtifactNotFound}
	ErrOperationTimeout       = &Error{Kind: OperationTimeout}
	ErrEngineFailure          = &Error{Kind: EngineFailure}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending parameter (filename, page, page_range, ...).
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so sentinels match any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithField attaches the offending parameter.
func (e *Error) WithField(field string, value any) *Error {
	e.Field = field
	e.Value = fmt.Sprint(value)
	return e
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Public returns the message safe for clients. The wrapped cause is dropped
// for engine failures because it may contain host paths.
func (e *Error) Public() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}
