package services

import (
	"errors"
	"fmt"
)

// Store-level sentinel errors.
var (
	ErrPlanNotFound     = errors.New("plan not found")
	ErrPlanConflict     = errors.New("plan state changed concurrently")
	ErrTokenNotFound    = errors.New("token not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrActivePlanExists = errors.New("an active plan already exists for this token")
)

// ExecutionErrorKind is the closed set of failure classes the orchestrator
// can produce. The HTTP mapping happens once, at the API boundary.
type ExecutionErrorKind string

const (
	KindNotFound              ExecutionErrorKind = "plan_not_found"
	KindAlreadyExecuted       ExecutionErrorKind = "already_executed"
	KindInactivePlan          ExecutionErrorKind = "inactive_plan"
	KindInsufficientAllowance ExecutionErrorKind = "insufficient_allowance"
	KindChainReadFailed       ExecutionErrorKind = "chain_read_failed"
	KindQuoteUnavailable      ExecutionErrorKind = "quote_unavailable"
	KindSwapExecutionFailed   ExecutionErrorKind = "swap_execution_failed"
	KindRecordingFailed       ExecutionErrorKind = "recording_failed"
)

// ExecutionError is a classified orchestrator failure. Message is safe to
// return to callers; Err holds the internal cause and is only logged.
// Details carries curated diagnostic fields (for RecordingFailed it includes
// the transaction hash and parsed amounts needed for manual reconciliation).
type ExecutionError struct {
	Kind    ExecutionErrorKind
	Message string
	Details map[string]string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func newExecutionError(kind ExecutionErrorKind, message string, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message, Err: err}
}
