package common

import "errors"

// AppError pairs an error with the HTTP status and code sent to the client.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ErrorMapping binds a sentinel error to the response it produces.
type ErrorMapping struct {
	Target  error
	Status  int
	Code    string
	Message string
	// Details derives response details from the matched error. Optional.
	Details func(err error) any
}

// Classify resolves err to an AppError. An AppError already in the chain wins,
// then the first mapping whose Target matches. It returns nil when nothing applies.
func Classify(err error, mappings ...ErrorMapping) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, m := range mappings {
		if m.Target == nil || !errors.Is(err, m.Target) {
			continue
		}
		out := NewAppError(m.Code, m.Message, m.Status, err)
		if m.Details != nil {
			out.Details = m.Details(err)
		}
		return out
	}
	return nil
}
