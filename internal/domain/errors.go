package domain

import (
	"errors"
	"fmt"
)

type ErrorType int

const (
	ErrorTypeValidation ErrorType = iota
	ErrorTypeAuthentication
	ErrorTypeAuthorization
	ErrorTypeNotFound
	ErrorTypeConflict
	ErrorTypeRateLimit
	ErrorTypeExternalService
	ErrorTypeCircuitOpen
	ErrorTypeInvalidState
	ErrorTypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeAuthentication:
		return "authentication"
	case ErrorTypeAuthorization:
		return "authorization"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeExternalService:
		return "external_service"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeInvalidState:
		return "invalid_state"
	case ErrorTypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the single tagged error variant used across the engine. Callers
// dispatch on Type, never on concrete Go types.
type Error struct {
	Type    ErrorType
	Message string
	Details map[string]interface{}
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

var (
	ErrAlreadyStarted  = errors.New("already started")
	ErrAlreadyShutdown = errors.New("already shutdown")
	ErrNotStarted      = errors.New("not started")
	ErrQueueClosed     = errors.New("queue is closed")
	ErrDuplicateJob    = errors.New("duplicate job id")
)

func NewValidationError(message string, details map[string]interface{}) Error {
	return Error{Type: ErrorTypeValidation, Message: message, Details: details}
}

func NewNotFoundError(resource, id string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewConflictError(resource, message string) Error {
	return Error{
		Type:    ErrorTypeConflict,
		Message: message,
		Details: map[string]interface{}{"resource": resource},
	}
}

func NewInvalidStateError(message string, details map[string]interface{}) Error {
	return Error{Type: ErrorTypeInvalidState, Message: message, Details: details}
}

func NewCircuitOpenError(dependency string) Error {
	return Error{
		Type:    ErrorTypeCircuitOpen,
		Message: "circuit breaker is open for " + dependency,
		Details: map[string]interface{}{"dependency": dependency},
	}
}

func NewExternalServiceError(service string, err error) Error {
	return Error{
		Type:    ErrorTypeExternalService,
		Message: fmt.Sprintf("%s call failed", service),
		Details: map[string]interface{}{"service": service, "error": err.Error()},
	}
}

func NewInternalError(message string, err error) Error {
	details := map[string]interface{}{}
	if err != nil {
		details["error"] = err.Error()
	}
	return Error{Type: ErrorTypeInternal, Message: message, Details: details}
}

func typeOf(err error) (ErrorType, bool) {
	var e Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeNotFound
}

func IsValidation(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeValidation
}

func IsConflict(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeConflict
}

func IsInvalidState(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeInvalidState
}

func IsCircuitOpen(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeCircuitOpen
}

func IsExternalService(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeExternalService
}

func IsDuplicateJob(err error) bool {
	return errors.Is(err, ErrDuplicateJob)
}
