package playground

import (
	"github.com/cockroachdb/errors"
)

// Status is the lifecycle state of a Playground.
type Status string

const (
	// StatusPending means Initiate has not been called.
	StatusPending Status = "pending"

	// StatusLoading means the module is being fetched, compiled and
	// bootstrapped.
	StatusLoading Status = "loading"

	// StatusSuccess means evaluations are accepted.
	StatusSuccess Status = "success"

	// StatusError means the load failed; see LoadErr.
	StatusError Status = "error"
)

func (s Status) String() string {
	return string(s)
}

var (
	// ErrNotReady is returned by Evaluate outside StatusSuccess.
	ErrNotReady = errors.New("interpreter not ready")

	// ErrInvalidTransition is returned by Initiate from a state that does
	// not allow it.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrLoadFailure marks the error kept by LoadErr.
	ErrLoadFailure = errors.New("interpreter load failed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("playground closed")
)
