package capture

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for the triggering collaborator.
type ErrorKind int

const (
	// KindValidation: the window degenerated after clamping; the trigger
	// is rejected before any decode work.
	KindValidation ErrorKind = iota + 1
	// KindDecode: the source audio is unreadable or unsupported.
	KindDecode
	// KindRange: the requested window lies outside the source bounds.
	KindRange
	// KindEngine: the transcription engine was not ready or failed.
	KindEngine
	// KindStorage: the capture record could not be persisted.
	KindStorage
	// KindExportSync: the export document could not be written. Non-fatal:
	// the capture record already exists and the document is regenerable.
	KindExportSync
	// KindBusy: a run for the same source was already in flight.
	KindBusy
	// KindCanceled: the run was cancelled cooperatively before persisting.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDecode:
		return "decode"
	case KindRange:
		return "range"
	case KindEngine:
		return "engine"
	case KindStorage:
		return "storage"
	case KindExportSync:
		return "export-sync"
	case KindBusy:
		return "busy"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture: %s", e.Kind)
	}
	return fmt.Sprintf("capture: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from an error chain, or 0 when the error
// carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func kindErr(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func kindErrf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
