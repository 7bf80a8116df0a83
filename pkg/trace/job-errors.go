package trace

import (
	"github.com/pkg/errors"
)

var (
	ErrSourcePathEmpty = errors.New("trace source path is empty")
	ErrSourceRange     = errors.New("invalid trace source range")
	ErrFilterNil       = errors.New("action filter is nil")
	ErrUnknownFormat   = errors.New("unknown trace format")
	ErrNoSources       = errors.New("no trace sources")
)
