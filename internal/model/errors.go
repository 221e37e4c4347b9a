package model

import (
	"errors"
)

var (
	// ErrSubmission marks a failed job start request. It never changes the UI state.
	ErrSubmission = errors.New("job submission failed")
	// ErrPollTransport marks a failed status check, which ends the poll cycle.
	ErrPollTransport = errors.New("job status check failed")

	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrEmptyJobHandle   = errors.New("empty job handle")
)
