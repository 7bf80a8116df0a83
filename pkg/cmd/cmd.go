package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/cmd/analyze"
	"github.com/maxgio92/funclat/pkg/cmd/convert"
	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/cmd/record"
	"github.com/maxgio92/funclat/pkg/cmd/wait"
)

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: "Function latency profiler built on Intel PT branch traces",
		Long: fmt.Sprintf(`
%s measures the latency of a function from Intel PT branch traces, without instrumenting it.
It reports the latency distribution of the function by caller, the time spent in each of the
functions it calls and, optionally, the time spent scheduled out.
`, settings.CmdName),
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", options.LogLevelInfo, "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path of a YAML configuration file, overridden by flags")

	cmd.AddCommand(record.NewCommand(opts))
	cmd.AddCommand(analyze.NewCommand(opts))
	cmd.AddCommand(convert.NewCommand(opts))
	cmd.AddCommand(wait.NewCommand(opts))

	return cmd
}

// Execute runs the root command until it completes or the process is
// interrupted.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		logger.Debug().Msg("terminating...")
	}()

	opts := options.NewCommonOptions(
		options.WithContext(ctx),
		options.WithLogger(logger),
	)

	err := NewCommand(opts).Execute()
	cancel()
	if err != nil {
		os.Exit(1)
	}
}
