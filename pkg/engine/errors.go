package engine

import "errors"

var (
	// ErrTimeout is wrapped by every TimeoutError.
	ErrTimeout = errors.New("evaluation timed out")
	// ErrSuperseded is returned when a newer evaluation started meanwhile.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)
