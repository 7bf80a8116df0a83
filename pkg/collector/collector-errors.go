package collector

import "github.com/pkg/errors"

var (
	ErrTargetEmpty    = errors.New("target function is empty")
	ErrDuration       = errors.New("trace duration must be greater than 0")
	ErrNoScope        = errors.New("use cpu, pid or tid to set what to trace")
	ErrSymbolNotFound = errors.New("target symbol not found in binary")
	ErrNoScriptOutput = errors.New("no perf script output found")
	ErrIntelPT        = errors.New("intel pt is not supported by this system")
)
