package pipeline

import (
	"context"
	"errors"

	"soapscribe/internal/generation"
	"soapscribe/internal/transcript"
)

var (
	// ErrMissingFile is returned when a request carries no attachment.
	ErrMissingFile = errors.New("no file uploaded")
	// ErrUnexpected marks failures outside the known taxonomy, including recovered panics.
	ErrUnexpected = errors.New("unexpected failure")
)

// Kind classifies a pipeline failure for the transport boundary.
type Kind string

const (
	KindNone                Kind = ""
	KindMissingFile         Kind = "missing_file"
	KindUnsupportedFileKind Kind = "unsupported_file_kind"
	KindGenerationService   Kind = "generation_service_error"
	KindUnexpected          Kind = "unexpected_failure"
)

// Classify maps err onto the error taxonomy. Cancellation of the caller is unexpected from
// the pipeline's point of view, even when it surfaces through a generation call.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case isCancellation(err):
		return KindUnexpected
	case errors.Is(err, ErrMissingFile):
		return KindMissingFile
	case errors.Is(err, transcript.ErrUnsupportedFileKind):
		return KindUnsupportedFileKind
	case errors.Is(err, generation.ErrGenerationService):
		return KindGenerationService
	default:
		return KindUnexpected
	}
}

// IsClientError reports whether the failure was caused by the request itself.
func (k Kind) IsClientError() bool {
	return k == KindMissingFile || k == KindUnsupportedFileKind
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
