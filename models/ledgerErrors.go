package models

import (
	"errors"
	"fmt"
)

// ErrPaymentNotFound is returned when a referenced payment does not exist.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrWorkNotFound is returned when a referenced performed work does not exist.
var ErrWorkNotFound = errors.New("performed work not found")

// InsufficientBalanceError reports an attempt to draw more from a balance pool
// than it holds. Pool is one of bonus, deposit, advance.
type InsufficientBalanceError struct {
	Pool      string
	Requested int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %d, available %d", e.Pool, e.Requested, e.Available)
}

// AmountOutOfRangeError reports a line amount outside (0, MaxPaymentAmount].
type AmountOutOfRangeError struct {
	Amount int64
}

func (e *AmountOutOfRangeError) Error() string {
	return fmt.Sprintf("amount %d out of range (must be positive and at most %d)", e.Amount, MaxPaymentAmount)
}

// StoreConflictError reports an idempotency key collision or a concurrent
// modification detected by the store.
type StoreConflictError struct {
	Key    string
	Reason string
}

func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("store conflict on key %q: %s", e.Key, e.Reason)
}

// CommittedLine describes a payment line that was persisted before a later
// line in the same submission failed.
type CommittedLine struct {
	LineID    string `json:"line_id"`
	Method    string `json:"method"`
	Amount    int64  `json:"amount"`
	PaymentID string `json:"payment_id"`
}

// PartialSubmissionError is returned when some lines of a submission committed
// before a later line failed. Committed lines are not reversed; the caller is
// expected to show which lines succeeded and retry with a fresh submission key.
type PartialSubmissionError struct {
	Committed []CommittedLine
	Cause     error
}

func (e *PartialSubmissionError) Error() string {
	return fmt.Sprintf("submission failed after %d line(s) committed: %v", len(e.Committed), e.Cause)
}

func (e *PartialSubmissionError) Unwrap() error {
	return e.Cause
}
