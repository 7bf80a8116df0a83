package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/maxgio92/funclat/pkg/config"
)

// ConfigKey returns the key of the configuration file bound to a flag.
func ConfigKey(flag string) string {
	return strings.ReplaceAll(flag, "-", "_")
}

// WriteConfigReference writes a markdown table of the analysis options:
// their configuration file key, flag and default.
func WriteConfigReference(w io.Writer) error {
	fs := pflag.NewFlagSet("analysis", pflag.ContinueOnError)
	AddAnalysisFlags(fs, config.Default())

	var err error
	printf := func(format string, a ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, a...)
		}
	}
	printf("| Key | Flag | Default | Description |\n")
	printf("|---|---|---|---|\n")
	fs.VisitAll(func(f *pflag.Flag) {
		flag := "`--" + f.Name + "`"
		if f.Shorthand != "" {
			flag = fmt.Sprintf("`-%s`, %s", f.Shorthand, flag)
		}
		def := f.DefValue
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def = strings.Join(sv.GetSlice(), ",")
		}
		if def != "" {
			def = "`" + def + "`"
		}
		printf("| `%s` | %s | %s | %s |\n", ConfigKey(f.Name), flag, def, f.Usage)
	})

	return err
}
