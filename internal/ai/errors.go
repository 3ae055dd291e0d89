package ai

import "errors"

var (
	// ErrThrottled is returned when the provider keeps throttling after all retries.
	ErrThrottled = errors.New("ai provider throttled")
	// ErrParse is returned for output that is not a valid evaluation. Never retried.
	ErrParse = errors.New("ai provider returned unparsable evaluation")
	// ErrGeneration covers the remaining provider failures.
	ErrGeneration = errors.New("ai generation failed")
)
