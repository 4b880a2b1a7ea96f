package clicommand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buildkite/jsrt/js"
	"github.com/buildkite/jsrt/metrics"
	"github.com/buildkite/jsrt/signalwatcher"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

const runDescription = `Usage:

    jsrt run [options] <script>

Description:

Runs a JavaScript file, along with any child processes, timers and callbacks
it starts, until there is nothing left to do.

The script can require("child_process") to spawn programs or run them with
execFile. Children that are still running when the script is interrupted are
terminated.

Example:

    $ jsrt run build.js
    $ jsrt run --timeout 10m --metrics-listen localhost:9090 build.js`

type RunConfig struct {
	GlobalConfig

	Script        string        `cli:"arg:0" label:"script" validate:"required,file-exists" normalize:"filepath"`
	Timeout       time.Duration `cli:"timeout"`
	MetricsListen string        `cli:"metrics-listen"`
}

var TimeoutFlag = cli.DurationFlag{
	Name:   "timeout",
	Usage:  "Interrupt the script if it is still running after this long, for example ′30s′ or ′10m′",
	EnvVar: "JSRT_TIMEOUT",
}

var RunCommand = cli.Command{
	Name:        "run",
	Usage:       "Runs a JavaScript file",
	Description: runDescription,
	Flags: append([]cli.Flag{
		TimeoutFlag,
		MetricsListenFlag,
	}, globalFlags()...),
	Action: newCommand(runScript),
}

func runScript(ctx context.Context, cc commandConfig[RunConfig]) error {
	cfg, l := cc.config, cc.logger

	src, err := os.ReadFile(cfg.Script)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	ctx, cancel := withTimeout(ctx, cfg.Timeout)
	defer cancel()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go signalwatcher.Watch(ctx, func(sig signalwatcher.Signal) {
		l.Notice("Received signal `%s`, stopping", sig)
		stop()
	})

	g, gctx := errgroup.WithContext(ctx)

	scriptCtx, scriptDone := context.WithCancel(gctx)
	defer scriptDone()

	if cfg.MetricsListen != "" {
		g.Go(func() error {
			// Keep serving until the script is done
			return metrics.Serve(scriptCtx, l, cfg.MetricsListen)
		})
	}

	g.Go(func() error {
		defer scriptDone()

		rt, err := js.New(l)
		if err != nil {
			return err
		}
		return rt.Run(gctx, filepath.Base(cfg.Script), src)
	})

	return g.Wait()
}

// withTimeout is context.WithTimeout, except that zero means no timeout.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
