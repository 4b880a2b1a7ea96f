package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/buildkite/jsrt/process"
	"github.com/buildkite/jsrt/signalwatcher"
	"github.com/buildkite/shellwords"
	"github.com/urfave/cli"
)

const execDescription = `Usage:

    jsrt exec [options] <command> [args...]

Description:

Runs a program the same way child_process.spawn does, without any
JavaScript. A single argument is split into words like a shell would, so a
whole command line can be passed in quotes. With --shell it is handed to the
system shell instead.

Output is passed through as it arrives, optionally with a prefix on every
line. jsrt exits with the program's exit code.

Example:

    $ jsrt exec -- ls -la
    $ jsrt exec --prefix "[build] " "make test"
    $ jsrt exec --shell 'echo $HOME | tr a-z A-Z'`

type ExecConfig struct {
	GlobalConfig

	Command []string      `cli:"arg:*" label:"command" validate:"required"`
	Shell   bool          `cli:"shell"`
	Dir     string        `cli:"dir" normalize:"filepath"`
	Prefix  string        `cli:"prefix"`
	Timeout time.Duration `cli:"timeout"`
}

var ExecCommand = cli.Command{
	Name:        "exec",
	Usage:       "Runs a program and passes on its output and exit code",
	Description: execDescription,
	Flags: append([]cli.Flag{
		cli.BoolFlag{
			Name:   "shell",
			Usage:  "Run the command line through the system shell",
			EnvVar: "JSRT_EXEC_SHELL",
		},
		cli.StringFlag{
			Name:   "dir",
			Usage:  "The working directory to run the command in",
			EnvVar: "JSRT_EXEC_DIR",
		},
		cli.StringFlag{
			Name:   "prefix",
			Usage:  "Text to put at the start of every line of output",
			EnvVar: "JSRT_EXEC_PREFIX",
		},
		TimeoutFlag,
	}, globalFlags()...),
	Action: newCommand(execCommand),
}

func execCommand(ctx context.Context, cc commandConfig[ExecConfig]) error {
	cfg, l := cc.config, cc.logger

	name, args, err := commandLine(cfg.Command, cfg.Shell)
	if err != nil {
		return err
	}

	opts := process.Options{
		Dir:   cfg.Dir,
		Stdio: process.DefaultStdio(),
	}
	if cfg.Shell {
		opts.Shell = process.DefaultShell()
	}

	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go signalwatcher.Watch(ctx, func(sig signalwatcher.Signal) {
		l.Notice("Received signal `%s`, terminating %s", sig, name)
		stop()
	})

	var stdout, stderr io.Writer = cc.cliContext.App.Writer, cc.cliContext.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	if cfg.Prefix != "" {
		prefix := func() string { return cfg.Prefix }
		stdout = process.NewPrefixer(stdout, prefix)
		stderr = process.NewPrefixer(stderr, prefix)
	}

	cmd := process.NewCommand(name, args, opts)
	l.Debug("Running %s", process.FormatCommand(name, args))

	res, err := process.Run(ctx, l, cmd, stdout, stderr)
	if err != nil {
		return err
	}
	l.Info("%s %s", process.FormatCommand(name, args), res.ExitOutcome)

	switch {
	case res.Signal != 0:
		return NewExitError(1, fmt.Errorf("%s was terminated by %s", name, res.SignalName()))
	case res.Code != 0:
		return NewExitError(res.Code, fmt.Errorf("%s exited with status %d", name, res.Code))
	}
	return nil
}

// commandLine works out the program and arguments to run. A lone argument
// is split with shell rules unless it's going to a shell anyway.
func commandLine(command []string, shell bool) (string, []string, error) {
	if len(command) == 0 {
		return "", nil, fmt.Errorf("no command given")
	}
	if shell {
		return strings.Join(command, " "), nil, nil
	}
	if len(command) > 1 {
		return command[0], command[1:], nil
	}

	words, err := shellwords.Split(command[0])
	if err != nil {
		return "", nil, fmt.Errorf("splitting command %q: %w", command[0], err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("no command given")
	}
	return words[0], words[1:], nil
}
