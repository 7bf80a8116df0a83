package convert

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxgio92/funclat/pkg/cmd/options"
	"github.com/maxgio92/funclat/pkg/trace"
)

const CmdName = "convert"

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s SOURCE DESTINATION", CmdName),
		Short: "Convert a text branch trace to the compact format",
		Long: fmt.Sprintf(`
%s rewrites a perf script text trace in the compact binary format, which decodes faster.
Files ending with %s are read or written snappy-compressed.
`, CmdName, trace.SnappySuffix),
		Args:              cobra.ExactArgs(2),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	return cmd
}

func (o *Options) Run(_ *cobra.Command, args []string) error {
	if err := o.SetLogLevel(); err != nil {
		return err
	}
	_, err := trace.Convert(o.Ctx, args[0], args[1], o.Logger)

	return err
}
