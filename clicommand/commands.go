package clicommand

import "github.com/urfave/cli"

// JSRTCommands are the top level commands of the jsrt binary.
var JSRTCommands = []cli.Command{
	RunCommand,
	EvalCommand,
	ExecCommand,
}
