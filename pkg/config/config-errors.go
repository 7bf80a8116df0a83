package config

import "github.com/pkg/errors"

var (
	ErrTargetEmpty     = errors.New("target function is empty")
	ErrBadInterval     = errors.New("wrong interval format")
	ErrBadWorkers      = errors.New("worker number must be positive")
	ErrBadTimelineUnit = errors.New("timeline unit must be positive")
	ErrBadHistory      = errors.New("history mode must be 0, 1 or 2")
)
