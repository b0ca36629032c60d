package jobs

import "errors"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrRetryLimit        = errors.New("job reached its retry limit")
	ErrEngineClosed      = errors.New("queue engine closed")
)
