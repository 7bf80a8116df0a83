//go:build docs

package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/maxgio92/funclat/internal/settings"
	"github.com/maxgio92/funclat/pkg/cmd"
	"github.com/maxgio92/funclat/pkg/cmd/common"
	"github.com/maxgio92/funclat/pkg/cmd/options"
)

const (
	docsDir      = "docs"
	readmeTpl    = "README.md.tpl"
	readmeOutput = "README.md"
)

// readme holds the sections rendered into README.md.tpl.
type readme struct {
	Commands        string
	CLIReference    string
	ConfigReference string
}

func linkHandler(filename string) string {
	if filename == settings.CmdName+".md" {
		return readmeOutput
	}
	return path.Join(docsDir, filename)
}

// commandIndex lists the subcommands with a link to their page.
func commandIndex(root *cobra.Command) string {
	var sb strings.Builder
	for _, c := range root.Commands() {
		if !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand() {
			continue
		}
		name := strings.ReplaceAll(c.CommandPath(), " ", "_") + ".md"
		fmt.Fprintf(&sb, "- [`%s`](%s): %s\n", c.CommandPath(), linkHandler(name), c.Short)
	}
	return sb.String()
}

func run() error {
	root := cmd.NewCommand(
		options.NewCommonOptions(
			options.WithLogger(log.New(os.Stderr).Level(log.InfoLevel)),
		),
	)
	if err := doc.GenMarkdownTreeCustom(root, docsDir, func(string) string { return "" }, linkHandler); err != nil {
		return errors.Wrap(err, "failed to generate CLI docs")
	}

	rootDoc, err := os.ReadFile(path.Join(docsDir, settings.CmdName+".md"))
	if err != nil {
		return errors.Wrap(err, "failed to read root command doc")
	}
	var config bytes.Buffer
	if err := common.WriteConfigReference(&config); err != nil {
		return err
	}

	tpl, err := template.ParseFiles(readmeTpl)
	if err != nil {
		return errors.Wrap(err, "failed to parse README template")
	}
	out, err := os.Create(readmeOutput)
	if err != nil {
		return err
	}
	defer out.Close()

	return tpl.Execute(out, readme{
		Commands:        commandIndex(root),
		CLIReference:    string(rootDoc),
		ConfigReference: config.String(),
	})
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
