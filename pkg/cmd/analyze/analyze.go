package analyze

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/cmd/common"
	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/config"
)

const CmdName = "analyze"

type Options struct {
	config *config.Config

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{
		config:        config.Default(),
		CommonOptions: opts,
	}
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [flags] TRACE...", CmdName),
		Short: "Measure the latency of a function in decoded branch traces",
		Long: fmt.Sprintf(`
%s reconstructs the calls of a function from perf script branch traces, in text or compact format,
and reports their latency distribution by caller and the latency of the functions they call.
Several trace files are chunks of one trace, like the output of %s record with --parallel-script.
`, CmdName, settings.CmdName),
		Args:              cobra.MinimumNArgs(1),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	common.AddAnalysisFlags(cmd.Flags(), o.config)

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, args []string) error {
	if err := o.SetLogLevel(); err != nil {
		return err
	}
	if err := common.LoadConfig(cmd, o.CommonOptions, o.config); err != nil {
		return err
	}

	return common.Analyze(o.CommonOptions, o.config, args, cmd.OutOrStdout())
}
