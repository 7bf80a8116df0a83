package action

import (
	"github.com/pkg/errors"
)

var (
	ErrUnknownKind   = errors.New("unknown action type")
	ErrMalformedLine = errors.New("malformed trace line")
)
