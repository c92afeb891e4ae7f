package services

import "fmt"

// ErrorKind classifies a service failure so the HTTP layer can map it to a
// status code without string matching.
type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindUnauthenticated      ErrorKind = "unauthenticated"
	KindForbidden            ErrorKind = "forbidden"
	KindNotFound             ErrorKind = "not_found"
	KindConflict             ErrorKind = "conflict"
	KindStateViolation       ErrorKind = "state_violation"
	KindOtpExpired           ErrorKind = "otp_expired"
	KindOtpInvalid           ErrorKind = "otp_invalid"
	KindMilestoneTooSoon     ErrorKind = "milestone_too_soon"
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindLedgerFailure        ErrorKind = "ledger_failure"
)

// Error is a classified service failure. MilestoneTooSoon errors additionally
// carry the gate context so callers can tell the courier how long to wait.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	RequiredMinutes int `json:"required_minutes,omitempty"`
	ActualMinutes   int `json:"actual_minutes,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func ErrValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidationFailed, Message: fmt.Sprintf(format, args...)}
}

func ErrUnauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func ErrForbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func ErrNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func ErrConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func ErrStateViolation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindStateViolation, Message: fmt.Sprintf(format, args...)}
}

func ErrOtpExpired(msg string) *Error {
	return &Error{Kind: KindOtpExpired, Message: msg}
}

func ErrOtpInvalid(format string, args ...interface{}) *Error {
	return &Error{Kind: KindOtpInvalid, Message: fmt.Sprintf(format, args...)}
}

func ErrMilestoneTooSoon(required, actual int) *Error {
	return &Error{
		Kind:            KindMilestoneTooSoon,
		Message:         fmt.Sprintf("milestone gate not met: %d of %d minutes elapsed", actual, required),
		RequiredMinutes: required,
		ActualMinutes:   actual,
	}
}

func ErrConfigurationMissing(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfigurationMissing, Message: fmt.Sprintf(format, args...)}
}

func ErrLedgerFailure(format string, args ...interface{}) *Error {
	return &Error{Kind: KindLedgerFailure, Message: fmt.Sprintf(format, args...)}
}

// AsServiceError unwraps err into a classified *Error when it is one.
func AsServiceError(err error) (*Error, bool) {
	se, ok := err.(*Error)
	return se, ok
}
