package options

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

const LogLevelInfo = "info"

// CommonOptions are shared by every command.
type CommonOptions struct {
	Ctx    context.Context
	Logger log.Logger

	LogLevel   string
	ConfigPath string
}

type Option func(o *CommonOptions)

func NewCommonOptions(opts ...Option) *CommonOptions {
	o := &CommonOptions{
		Ctx:      context.Background(),
		Logger:   log.Nop(),
		LogLevel: LogLevelInfo,
	}
	for _, f := range opts {
		f(o)
	}

	return o
}

func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) {
		o.Ctx = ctx
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *CommonOptions) {
		o.Logger = logger
	}
}

// SetLogLevel applies the log level parsed from the command line.
func (o *CommonOptions) SetLogLevel() error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", o.LogLevel)
	}
	o.Logger = o.Logger.Level(level)

	return nil
}
