package series

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a series key has no observations in the store
	ErrNotFound = errors.New("series not found")

	// ErrInsufficientHistory is returned when a series or an aligned matrix has fewer
	// observations than a stated floor
	ErrInsufficientHistory = errors.New("insufficient history")
)

// NotFoundError names the key that has zero observations
type NotFoundError struct {
	Key Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no observations for %s, %s", e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientHistoryError carries the actual and required observation counts along with
// what came up short, e.g. a series, a design matrix or a single feature.
type InsufficientHistoryError struct {
	Key      Key
	Subject  string
	Actual   int
	Required int
}

func (e *InsufficientHistoryError) Error() string {
	subject := e.Subject
	if subject == "" {
		subject = "series"
	}
	return fmt.Sprintf("%s for %s has %d observations but %d are required (short by %d), %s",
		subject, e.Key, e.Actual, e.Required, e.Required-e.Actual, ErrInsufficientHistory)
}

func (e *InsufficientHistoryError) Unwrap() error {
	return ErrInsufficientHistory
}
