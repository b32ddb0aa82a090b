package engine

import "errors"

var (
	// ErrTimeout indicates the run exceeded the configured deadline.
	ErrTimeout = errors.New("script execution timed out")

	// ErrNotText indicates captured output was not valid UTF-8.
	ErrNotText = errors.New("script output is not valid UTF-8")
)
