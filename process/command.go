package process

import (
	"runtime"
	"strings"

	"github.com/buildkite/jsrt/env"
)

// Options configure how a command is spawned.
type Options struct {
	// Shell, when set, runs the command line through this shell.
	Shell string

	// Dir is the working directory of the child.
	Dir string

	// UID and GID set the child's credentials on unix.
	UID *int
	GID *int

	// Env replaces the inherited environment when it isn't nil. Variables
	// missing from it are unset in the child.
	Env map[string]string

	Stdio Stdio

	// WindowsVerbatimArguments passes the argument list to the child
	// without any quoting or escaping.
	WindowsVerbatimArguments bool
}

// Command describes a child process that is ready to be started.
type Command struct {
	// Name is the program to run, as given or found on PATH at start.
	Name string
	Args []string

	// Env is the complete child environment. Nil inherits ours.
	Env []string
	Dir string

	UID *int
	GID *int

	Stdio Stdio

	WindowsVerbatimArguments bool
}

// DefaultShell is the shell used when a caller asks for a shell without
// naming one.
func DefaultShell() string {
	return defaultShell(runtime.GOOS)
}

func defaultShell(goos string) string {
	if goos == "windows" {
		return "cmd.exe"
	}
	return "/bin/sh"
}

// NewCommand builds the Command for running name with args under opts.
func NewCommand(name string, args []string, opts Options) Command {
	return newCommand(runtime.GOOS, name, args, opts)
}

func newCommand(goos, name string, args []string, opts Options) Command {
	cmd := Command{
		Name:                     name,
		Args:                     args,
		Dir:                      opts.Dir,
		UID:                      opts.UID,
		GID:                      opts.GID,
		Stdio:                    opts.Stdio,
		WindowsVerbatimArguments: opts.WindowsVerbatimArguments,
	}

	if opts.Shell != "" {
		var verbatim bool
		cmd.Name = opts.Shell
		cmd.Args, verbatim = shellArgs(goos, opts.Shell, name, args)
		cmd.WindowsVerbatimArguments = cmd.WindowsVerbatimArguments || verbatim
	}

	if opts.Env != nil {
		cmd.Env = env.FromMap(opts.Env).ToSlice()
	}

	return cmd
}

// shellArgs joins name and args into a single command line, each part
// followed by a space, and wraps it for the shell. cmd.exe on windows gets
// the line quoted behind /d /s /c and needs verbatim arguments so the quotes
// survive.
func shellArgs(goos, shell, name string, args []string) ([]string, bool) {
	var line strings.Builder
	line.WriteString(name)
	line.WriteString(" ")
	for _, arg := range args {
		line.WriteString(arg)
		line.WriteString(" ")
	}

	if goos == "windows" && isCmdShell(shell) {
		return []string{"/d", "/s", "/c", `"` + line.String() + `"`}, true
	}

	return []string{"-c", line.String()}, false
}

func isCmdShell(shell string) bool {
	s := strings.ToLower(shell)
	return strings.HasSuffix(s, "cmd") || strings.HasSuffix(s, "cmd.exe")
}

// String formats the command for human reading.
func (c Command) String() string {
	return FormatCommand(c.Name, c.Args)
}

// lookupEnv reads a variable from the environment the child will see.
func (c Command) lookupEnv(key string) string {
	if c.Env == nil {
		v, _ := env.FromOS().Get(key)
		return v
	}
	v, _ := env.FromSlice(c.Env).Get(key)
	return v
}
