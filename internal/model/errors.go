package model

import (
	"errors"

	"github.com/rotisserie/eris"
)

// FailureReason is the typed cause carried by a failed or indeterminate attempt.
type FailureReason string

const (
	ReasonFetchFailed                   FailureReason = "FetchFailed"
	ReasonNoCandidateFound              FailureReason = "NoCandidateFound"
	ReasonRequiredFieldUnresolved       FailureReason = "RequiredFieldUnresolved"
	ReasonCaptchaUnsolved               FailureReason = "CaptchaUnsolved"
	ReasonSubmissionStrategiesExhausted FailureReason = "SubmissionStrategiesExhausted"
	ReasonVerificationIndeterminate     FailureReason = "VerificationIndeterminate"
	ReasonTimeout                       FailureReason = "timeout"
	ReasonCancelled                     FailureReason = "cancelled"
)

// AttemptError ties an error chain to a FailureReason.
type AttemptError struct {
	Reason FailureReason
	Err    error
}

func (e *AttemptError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// NewAttemptError wraps err with a failure reason.
func NewAttemptError(reason FailureReason, err error) *AttemptError {
	return &AttemptError{Reason: reason, Err: err}
}

// Failf builds an AttemptError from a formatted message.
func Failf(reason FailureReason, format string, args ...any) *AttemptError {
	return &AttemptError{Reason: reason, Err: eris.Errorf(format, args...)}
}

// ReasonOf extracts the failure reason from an error chain.
func ReasonOf(err error) (FailureReason, bool) {
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}
