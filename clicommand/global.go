package clicommand

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/buildkite/jsrt/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for ′--log-level debug′. Takes precedence over ′--log-level′",
	EnvVar: "JSRT_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level for jsrt. Possible values are: debug, info, notice, warn, error, fatal",
	EnvVar: "JSRT_LOG_LEVEL",
}

var LogFormatFlag = cli.StringFlag{
	Name:   "log-format",
	Value:  "text",
	Usage:  "The format to use for the logger output. Possible values are: text, json",
	EnvVar: "JSRT_LOG_FORMAT",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "JSRT_NO_COLOR",
}

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Value:  "",
	Usage:  "Path to a configuration file",
	EnvVar: "JSRT_CONFIG",
}

var MetricsListenFlag = cli.StringFlag{
	Name:   "metrics-listen",
	Value:  "",
	Usage:  "Serve Prometheus metrics and a health check on this address, for example ′localhost:9090′",
	EnvVar: "JSRT_METRICS_LISTEN",
}

// GlobalConfig holds the flags every command accepts. Command configs embed
// it.
type GlobalConfig struct {
	Config    string `cli:"config"`
	Debug     bool   `cli:"debug"`
	LogLevel  string `cli:"log-level"`
	LogFormat string `cli:"log-format"`
	NoColor   bool   `cli:"no-color"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		DebugFlag,
		LogLevelFlag,
		LogFormatFlag,
		NoColorFlag,
	}
}

// CreateLogger builds the logger described by the global flags in cfg.
// Fields that cfg lacks keep their defaults.
func CreateLogger(cfg any) (logger.Logger, error) {
	var printer logger.Printer

	format, _ := reflections.GetField(cfg, "LogFormat")
	switch format {
	case nil, "", "text":
		p := logger.NewTextPrinter(os.Stderr)

		noColor, err := reflections.GetField(cfg, "NoColor")
		if noColor == true && err == nil {
			p.Colors = false
		}
		printer = p

	case "json":
		printer = logger.NewJSONPrinter(os.Stderr)

	default:
		return nil, fmt.Errorf("invalid log format %q, expected one of: text, json", format)
	}

	l := logger.NewConsoleLogger(printer, os.Exit)

	if level, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if s, ok := level.(string); ok && s != "" {
			lvl, err := logger.LevelFromString(s)
			if err != nil {
				return nil, err
			}
			l.SetLevel(lvl)
		}
	}

	// --debug wins over --log-level
	debug, err := reflections.GetField(cfg, "Debug")
	if debug == true && err == nil {
		l.SetLevel(logger.DEBUG)
	}

	return l, nil
}

// DefaultConfigFilePaths lists the places a config file is looked for when
// --config isn't given, first match wins.
func DefaultConfigFilePaths() (paths []string) {
	if runtime.GOOS == "windows" {
		paths = []string{
			"C:\\jsrt\\jsrt.cfg",
			"$USERPROFILE\\AppData\\Local\\jsrt\\jsrt.cfg",
		}
	} else {
		paths = []string{
			"$HOME/.jsrt/jsrt.cfg",
			"/usr/local/etc/jsrt/jsrt.cfg",
			"/etc/jsrt/jsrt.cfg",
		}
	}

	// A jsrt.cfg next to the binary comes first
	pathToBinary, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err == nil {
		paths = append([]string{filepath.Join(pathToBinary, "jsrt.cfg")}, paths...)
	}

	return paths
}
