package estimator

import (
	"context"
	"errors"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// ReasonError attaches a failure-taxonomy reason to an underlying error so
// the worker records exactly one taxon per failure.
type ReasonError struct {
	Reason config.FailureReason
	Err    error
}

func (e *ReasonError) Error() string {
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *ReasonError) Unwrap() error {
	return e.Err
}

// NewReasonError wraps err with a failure reason.
func NewReasonError(reason config.FailureReason, err error) *ReasonError {
	return &ReasonError{Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from an error chain.
// Deadline errors map to timeout; anything unclassified is a processing error.
func ReasonOf(err error) config.FailureReason {
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return config.FailureTimeout
	}
	return config.FailureProcessingError
}
