package clicommand

import (
	"context"
	"fmt"

	"github.com/buildkite/jsrt/cliconfig"
	"github.com/buildkite/jsrt/logger"
	"github.com/urfave/cli"
)

type configType interface {
	RunConfig | EvalConfig | ExecConfig
}

type commandConfig[T configType] struct {
	cliContext   *cli.Context
	config       T
	logger       logger.Logger
	configLoader cliconfig.Loader
}

// newCommand loads T from the flags, environment and config file, builds the
// logger, and hands both to f.
func newCommand[T configType](f func(ctx context.Context, cc commandConfig[T]) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		cfg := new(T)

		// The configuration will be loaded into this struct
		loader := cliconfig.Loader{
			CLI:                    c,
			Config:                 cfg,
			DefaultConfigFilePaths: DefaultConfigFilePaths(),
		}

		if err := loader.Load(); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		l, err := CreateLogger(cfg)
		if err != nil {
			return err
		}

		if loader.File != nil {
			l.Debug("Using config file %s", loader.File.Path)
		}

		return f(context.Background(), commandConfig[T]{
			cliContext:   c,
			config:       *cfg,
			logger:       l,
			configLoader: loader,
		})
	}
}
