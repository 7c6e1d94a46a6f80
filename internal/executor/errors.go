package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an executor failure. The walker branches on kinds, never
// on HTTP status codes.
type Kind string

const (
	// KindTransport is an HTTP failure unrelated to the protocol contract
	// (connection refused, timeouts). Fatal for the run.
	KindTransport Kind = "transport"

	// Protocol kinds, mapped from the reserved status codes. The first three
	// are fatal; the rest flag the step as failed and the run continues.
	KindPathNotFound   Kind = "path_not_found"       // 463
	KindLoadError      Kind = "load_error"           // 464
	KindNoCodeLoaded   Kind = "no_code_loaded"       // 465
	KindModelNotFound  Kind = "model_not_found"      // 460
	KindStepNotFound   Kind = "step_not_found"       // 461
	KindInvalidHandler Kind = "invalid_step_handler" // 462
	KindUnhandled      Kind = "unhandled"
)

// Error is a typed executor failure.
type Error struct {
	Kind       Kind
	StatusCode int // 0 for transport failures
	Message    string
	Trace      string
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("executor: %s (status code %d %s)", msg, e.StatusCode, statusText(e.StatusCode))
	}
	return "executor: " + msg
}

// Fatal reports whether the failure aborts the run instead of flagging the
// current step.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindTransport, KindPathNotFound, KindLoadError, KindNoCodeLoaded:
		return true
	}
	return false
}

// IsExecutorError reports whether err carries an executor failure.
func IsExecutorError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func kindForStatus(code int) Kind {
	switch code {
	case 460:
		return KindModelNotFound
	case 461:
		return KindStepNotFound
	case 462:
		return KindInvalidHandler
	case 463:
		return KindPathNotFound
	case 464:
		return KindLoadError
	case 465:
		return KindNoCodeLoaded
	default:
		return KindUnhandled
	}
}

func statusText(code int) string {
	switch code {
	case 404:
		return "Not Found"
	case 460:
		return "Model Not Found"
	case 461:
		return "Step Not Found"
	case 462:
		return "Invalid Step Handler"
	case 463:
		return "Path Not Found"
	case 464:
		return "Load Error"
	case 465:
		return "Test Code Not Loaded"
	default:
		return "Unknown Error"
	}
}
