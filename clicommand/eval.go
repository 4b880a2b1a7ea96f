package clicommand

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/buildkite/jsrt/internal/stdin"
	"github.com/buildkite/jsrt/js"
	"github.com/urfave/cli"
)

const evalDescription = `Usage:

    jsrt eval [options] [script]

Description:

Evaluates JavaScript and prints what it exported as YAML. The value is
whatever the script assigned to module.exports, or otherwise the value of its
last statement. Asynchronous work, such as child processes, finishes before
the value is read.

If no script is given, it's read from STDIN.

Example:

    $ jsrt eval pipeline.js
    $ echo 'module.exports = { steps: [] }' | jsrt eval`

type EvalConfig struct {
	GlobalConfig

	Script  string        `cli:"arg:0" label:"script" validate:"file-exists" normalize:"filepath"`
	Timeout time.Duration `cli:"timeout"`
}

var EvalCommand = cli.Command{
	Name:        "eval",
	Usage:       "Evaluates JavaScript and prints the result as YAML",
	Description: evalDescription,
	Flags: append([]cli.Flag{
		TimeoutFlag,
	}, globalFlags()...),
	Action: newCommand(evalScript),
}

func evalScript(ctx context.Context, cc commandConfig[EvalConfig]) error {
	cfg, l := cc.config, cc.logger

	// Find the script either from the first argument or STDIN
	var (
		input    []byte
		filename string
		err      error
	)
	switch {
	case cfg.Script != "":
		l.Info("Reading script from %q", cfg.Script)
		filename = filepath.Base(cfg.Script)
		input, err = os.ReadFile(cfg.Script)
		if err != nil {
			return fmt.Errorf("reading script: %w", err)
		}

	case stdin.IsReadable():
		l.Info("Reading script from STDIN")
		filename = "(stdin)"
		input, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading from STDIN: %w", err)
		}

	default:
		return errors.New("no script given, pass a file or pipe one to STDIN")
	}

	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	out, err := js.EvalJS(ctx, l, filename, input)
	if err != nil {
		return err
	}

	_, err = cc.cliContext.App.Writer.Write(out)
	return err
}
