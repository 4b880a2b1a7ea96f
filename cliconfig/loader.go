// Package cliconfig loads command configuration structs from urfave/cli
// flags, environment variables and an optional config file.
//
// Fields opt in with struct tags:
//
//	cli:"name"           the flag (or config file key) to read
//	cli:"arg:0"          a positional argument; cli:"arg:*" takes them all
//	env:"NAME"           fallback for positional arguments
//	normalize:"filepath" expand ~ and make the path absolute
//	validate:"required,file-exists"
//	label:"script"       name used in validation errors
package cliconfig

import (
	"cmp"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/jsrt/internal/osutil"
	"github.com/buildkite/jsrt/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// The logger used
	Logger logger.Logger

	// Paths to try, in order, when --config isn't given
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Matches "arg:index" (specific non-flag arg) or "arg:*" (all non-flag args).
var argCLINameRE = regexp.MustCompile(`^arg:(\d+|\*)$`)

// Load fills in Config. Values from the command line or environment win
// over values from the config file.
func (l *Loader) Load() error {
	if err := l.findFile(); err != nil {
		return err
	}

	if l.File != nil {
		if err := l.File.Load(); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
		if l.Logger != nil {
			l.Logger.Debug("Loaded config file %s", l.File.Path)
		}
	}

	fields, err := reflections.FieldsDeep(l.Config)
	if err != nil {
		return fmt.Errorf("listing config fields: %w", err)
	}

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName != "" {
			if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
				return fmt.Errorf("setting config field %s: %w", fieldName, err)
			}
		}

		if normalization, _ := reflections.GetFieldTag(l.Config, fieldName, "normalize"); normalization != "" {
			if err := l.normalizeField(fieldName, normalization); err != nil {
				return fmt.Errorf("normalizing config field %s: %w", fieldName, err)
			}
		}

		if rules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate"); rules != "" {
			label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
			if label == "" {
				label = cmp.Or(cliName, fieldName)
			}
			if err := l.validateField(fieldName, label, rules); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *Loader) findFile() error {
	if path := l.CLI.String("config"); path != "" {
		file := File{Path: path}

		// It was asked for by name, so it has to be there
		if !file.Exists() {
			absolutePath, _ := file.AbsolutePath()
			return fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
		l.File = &file
		return nil
	}

	for _, path := range l.DefaultConfigFilePaths {
		file := File{Path: path}
		if file.Exists() {
			l.File = &file
			return nil
		}
	}
	return nil
}

func (l *Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}
	fieldType, err := reflections.GetFieldType(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the type of struct field %q: %w", fieldName, err)
	}

	var value any

	if m := argCLINameRE.FindStringSubmatch(cliName); m != nil {
		value = l.argValue(fieldName, m[1])
	} else {
		if l.File != nil {
			if raw, ok := l.File.Config[cliName]; ok {
				if value, err = convertFileValue(fieldKind, fieldType, raw); err != nil {
					return err
				}
			}
		}

		// The command line and environment win over the file
		if value == nil || l.cliValueIsSet(cliName) {
			if value, err = l.flagValue(fieldKind, fieldType, cliName); err != nil {
				return err
			}
		}
	}

	if value == nil {
		return nil
	}
	if err := reflections.SetField(l.Config, fieldName, value); err != nil {
		return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
	}
	return nil
}

func (l *Loader) argValue(fieldName, index string) any {
	args := l.CLI.Args()
	if index == "*" {
		return []string(args)
	}

	if i, err := strconv.Atoi(index); err == nil && len(args) > i {
		return args[i]
	}

	// Positional args can fall back to an environment variable
	if envName, _ := reflections.GetFieldTag(l.Config, fieldName, "env"); envName != "" {
		if v, ok := os.LookupEnv(envName); ok {
			return v
		}
	}
	return nil
}

func convertFileValue(kind reflect.Kind, typ, raw string) (any, error) {
	switch kind {
	case reflect.String:
		return raw, nil
	case reflect.Slice:
		return strings.Split(raw, ","), nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int:
		return strconv.Atoi(raw)
	case reflect.Int64:
		if typ == "time.Duration" {
			return time.ParseDuration(raw)
		}
		return strconv.ParseInt(raw, 10, 64)
	}
	return nil, fmt.Errorf("unable to convert string to type %s", kind)
}

func (l *Loader) flagValue(kind reflect.Kind, typ, cliName string) (any, error) {
	switch kind {
	case reflect.String:
		return l.CLI.String(cliName), nil
	case reflect.Slice:
		return l.CLI.StringSlice(cliName), nil
	case reflect.Bool:
		return l.CLI.Bool(cliName), nil
	case reflect.Int:
		return l.CLI.Int(cliName), nil
	case reflect.Int64:
		if typ == "time.Duration" {
			return l.CLI.Duration(cliName), nil
		}
		return l.CLI.Int64(cliName), nil
	}
	return nil, fmt.Errorf("unable to handle type: %s", kind)
}

func (l *Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.CLI.Command.Name)
	return fmt.Errorf(format+suffix, v...)
}

// cliValueIsSet reports whether the flag was given on the command line or
// through its environment variable. cli.Context.IsSet only knows about the
// former.
func (l *Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) {
		return true
	}

	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName {
			continue
		}
		if envVarStr, ok := envVar.(string); ok && envVarStr != "" {
			for _, e := range strings.Split(envVarStr, ",") {
				if os.Getenv(strings.TrimSpace(e)) != "" {
					return true
				}
			}
		}
	}
	return false
}

func (l *Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String:
		return v.Len() == 0
	}
	return v.IsZero()
}

func (l *Loader) validateField(fieldName, label, rules string) error {
	for rule := range strings.SplitSeq(rules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)
			if path, ok := value.(string); ok && path != "" {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("couldn't find %s located at %s: %w", label, path, err)
				}
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}
	return nil
}

func (l *Loader) normalizeField(fieldName, normalization string) error {
	if normalization != "filepath" {
		return fmt.Errorf("unknown normalization %q", normalization)
	}

	value, _ := reflections.GetField(l.Config, fieldName)
	path, ok := value.(string)
	if !ok {
		return fmt.Errorf("filepath normalization only works on string fields")
	}

	normalized, err := osutil.NormalizeFilePath(path)
	if err != nil {
		return err
	}
	return reflections.SetField(l.Config, fieldName, normalized)
}
