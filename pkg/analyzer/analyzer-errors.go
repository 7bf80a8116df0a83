package analyzer

import "github.com/pkg/errors"

var (
	ErrFilterNil   = errors.New("action filter is nil")
	ErrTargetEmpty = errors.New("target function is empty")
)
