package pipeerr

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Error is a classified pipeline failure. Fatal errors abort the batch
// transaction; non-fatal ones end up in the anomaly log.
type Error struct {
	Severity Severity
	Code     string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("pipeline error (%s)", e.Severity)
}

func (e *Error) Unwrap() error { return e.Err }

func New(severity Severity, code string, err error) *Error {
	return &Error{Severity: severity, Code: code, Err: err}
}

func Warning(code string, err error) *Error {
	return New(SeverityWarning, code, err)
}

func Fatal(code string, err error) *Error {
	return New(SeverityError, code, err)
}
