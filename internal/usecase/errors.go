package usecase

import (
	"errors"
	"fmt"

	"pipedrive-agent/internal/crm"
)

type ErrorCode string

const (
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorInputValidation ErrorCode = "INPUT_VALIDATION_ERROR"
	ErrorAudio           ErrorCode = "AUDIO_ERROR"
	ErrorUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// orgNotesError marks a failure inside the organization-notes lookup.
type orgNotesError struct {
	err error
}

func (e *orgNotesError) Error() string {
	return "get organization notes: " + e.err.Error()
}

func (e *orgNotesError) Unwrap() error {
	return e.err
}

// describe renders err as chat text. CRM and command errors already carry
// user-facing wording.
func describe(err error) string {
	var notesErr *orgNotesError
	if errors.As(err, &notesErr) {
		return "Failed to get organization notes: " + describe(notesErr.err)
	}
	var apiErr *crm.APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var cmdErr *crm.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Error()
	}
	return err.Error()
}
