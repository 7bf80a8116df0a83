package wait

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/healthcheck"
)

const CmdName = "wait"

type Options struct {
	socketPath string
	timeout    time.Duration

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:   CmdName,
		Short: fmt.Sprintf("Wait for %s record to start recording", settings.CmdName),
		Long: fmt.Sprintf(`
%s blocks until a %s record run with --ready-socket has started recording,
so that the workload to measure can be started right after.
`, CmdName, settings.CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.socketPath, "socket-path", "s", settings.ReadySocket, fmt.Sprintf("Path to the %s socket file", settings.CmdName))
	cmd.Flags().DurationVar(&o.timeout, "timeout", time.Second*120, "Timeout")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	if err := o.SetLogLevel(); err != nil {
		return err
	}
	logger := o.Logger.With().Str("component", "wait").Logger()
	logger.Info().Str("socket", o.socketPath).Msg("waiting for the recording to start")

	return healthcheck.WaitReady(o.Ctx, o.socketPath, o.timeout, logger)
}
