package protocol

import "fmt"

const (
	// Rejected before the worker was touched.
	ErrValidation = "E_VALIDATION"

	// The script itself failed; the worker keeps serving.
	ErrScript = "E_SCRIPT"

	// Rate/size/capability rejection; the worker keeps serving.
	ErrLimiter = "E_LIMITER"

	// Worker lifecycle. Timeout and crash both trigger a restart but are
	// surfaced distinctly.
	ErrTimeout = "E_TIMEOUT"
	ErrCrash   = "E_CRASH"
	ErrRestart = "E_RESTART"

	// Persistence failed after a successful evaluation.
	ErrStore = "E_STORE"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrValidation: {},
	ErrScript:     {},
	ErrLimiter:    {},
	ErrTimeout:    {},
	ErrCrash:      {},
	ErrRestart:    {},
	ErrStore:      {},
	ErrInternal:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is the typed error crossing the service boundary. Code is one of the
// E_* constants; Message is already sanitized for display.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the protocol code from err, or E_INTERNAL for anything else.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*Error); ok {
		return pe.Code
	}
	return ErrInternal
}
