// jsrt runs JavaScript with node style child processes.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/buildkite/jsrt/clicommand"
	"github.com/buildkite/jsrt/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .Commands}}{{.Name}}{{with .ShortName}}, {{.}}{{end}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} <command> --help" for more information about a command.

`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cli.AppHelpTemplate = appHelpTemplate

	app := cli.NewApp()
	app.Name = "jsrt"
	app.Usage = "Runs JavaScript that can spawn and supervise child processes"
	app.Version = version.FullVersion()
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Commands = clicommand.JSRTCommands
	app.CommandNotFound = func(c *cli.Context, command string) {
		fmt.Fprintf(c.App.ErrWriter, "%s: '%s' is not a %s command. See '%s --help'.\n", c.App.Name, command, c.App.Name, c.App.Name) //nolint:errcheck // nothing else to do
		os.Exit(1)
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintf(app.ErrWriter, "jsrt: %v\n", err) //nolint:errcheck // nothing else to do
		return clicommand.ExitCode(err)
	}
	return 0
}
