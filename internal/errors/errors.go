// Package errors defines the failure taxonomy shared by the build pipeline.
//
// Per-file kinds (UnsupportedLanguage, FetchFailure, ParseTimeout) are
// recovered at the file boundary and only logged. RefNotFound and
// InvalidRepository are fatal and surface to the caller.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is the category of a pipeline failure.
type Kind int

const (
	KindUnsupportedLanguage Kind = iota
	KindFetchFailure
	KindParseTimeout
	KindRefNotFound
	KindInvalidRepository
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedLanguage:
		return "unsupported_language"
	case KindFetchFailure:
		return "fetch_failure"
	case KindParseTimeout:
		return "parse_timeout"
	case KindRefNotFound:
		return "ref_not_found"
	case KindInvalidRepository:
		return "invalid_repository"
	default:
		return "unknown"
	}
}

// Error is a categorized pipeline error.
type Error struct {
	Kind    Kind
	Path    string // file path or repository url, when known
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsFatal reports whether the error must abort the whole build.
func (e *Error) IsFatal() bool {
	return e.Kind == KindRefNotFound || e.Kind == KindInvalidRepository
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnsupportedLanguage = &Error{Kind: KindUnsupportedLanguage}
	ErrFetchFailure        = &Error{Kind: KindFetchFailure}
	ErrParseTimeout        = &Error{Kind: KindParseTimeout}
	ErrRefNotFound         = &Error{Kind: KindRefNotFound}
	ErrInvalidRepository   = &Error{Kind: KindInvalidRepository}
)

func UnsupportedLanguage(path string) *Error {
	return &Error{Kind: KindUnsupportedLanguage, Path: path, Message: "unsupported language"}
}

func FetchFailure(path string, cause error) *Error {
	return &Error{Kind: KindFetchFailure, Path: path, Message: "content unavailable", Cause: cause}
}

func ParseTimeout(path string, cause error) *Error {
	return &Error{Kind: KindParseTimeout, Path: path, Message: "processing budget exceeded", Cause: cause}
}

func InvalidRepository(url, message string, cause error) *Error {
	return &Error{Kind: KindInvalidRepository, Path: url, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err carries a fatal kind anywhere in its chain.
func IsFatal(err error) bool {
	return stderrors.Is(err, ErrRefNotFound) || stderrors.Is(err, ErrInvalidRepository)
}
