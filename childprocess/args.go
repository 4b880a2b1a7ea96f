package childprocess

import (
	"github.com/buildkite/jsrt/process"
	"github.com/dop251/goja"
)

// invocation is what spawn and execFile were asked to run.
type invocation struct {
	command  string
	args     []string
	opts     process.Options
	callback goja.Callable
}

// parseArgs reads (command, args?, options?) and, when buffered, the
// trailing callback of execFile. Problems come back as a
// *process.ArgumentError before anything has been started.
func parseArgs(call goja.FunctionCall, buffered bool) (invocation, error) {
	var inv invocation

	command, ok := call.Argument(0).Export().(string)
	if !ok {
		return inv, &process.ArgumentError{Msg: `The "command" argument must be of type string`}
	}
	inv.command = command

	optsArg := call.Argument(2)
	switch v := call.Argument(1); {
	case goja.IsUndefined(v) || goja.IsNull(v):

	case isFunction(v):
		optsArg = goja.Undefined()

	case isArray(v):
		for _, item := range v.Export().([]any) {
			s, ok := item.(string)
			if !ok {
				return inv, &process.ArgumentError{Msg: "argument is not a string"}
			}
			inv.args = append(inv.args, s)
		}

	case isObject(v):
		// spawn(command, options)
		optsArg = v

	default:
		if _, isString := v.Export().(string); isString {
			return inv, &process.ArgumentError{Msg: `The "args" argument must be of type object`}
		}
	}

	opts, err := parseOptions(optsArg)
	if err != nil {
		return inv, err
	}
	inv.opts = opts

	if buffered {
		// Output is always collected, so every stream is a pipe
		inv.opts.Stdio = process.DefaultStdio()

		cb := call.Argument(3)
		if !isFunction(cb) && len(call.Arguments) > 0 {
			cb = call.Arguments[len(call.Arguments)-1]
		}
		fn, ok := goja.AssertFunction(cb)
		if !ok {
			return inv, &process.ArgumentError{Msg: "Callback parameter is not a function"}
		}
		inv.callback = fn
	}

	return inv, nil
}

func parseOptions(v goja.Value) (process.Options, error) {
	opts := process.Options{Stdio: process.DefaultStdio()}

	if !isObject(v) || isFunction(v) || isArray(v) {
		return opts, nil
	}
	obj := v.(*goja.Object)

	switch shell := obj.Get("shell"); exported(shell).(type) {
	case bool:
		if shell.ToBoolean() {
			opts.Shell = process.DefaultShell()
		}
	case string:
		opts.Shell = shell.String()
	}

	if cwd, ok := exported(obj.Get("cwd")).(string); ok {
		opts.Dir = cwd
	}

	opts.UID = intOption(obj.Get("uid"))
	opts.GID = intOption(obj.Get("gid"))

	if envValue := obj.Get("env"); isObject(envValue) {
		envObj := envValue.(*goja.Object)
		opts.Env = make(map[string]string)
		for _, key := range envObj.Keys() {
			value := envObj.Get(key)
			if goja.IsUndefined(value) {
				continue
			}
			opts.Env[key] = value.String()
		}
	}

	stdio, err := process.ResolveStdio(exported(obj.Get("stdio")))
	if err != nil {
		return opts, err
	}
	opts.Stdio = stdio

	if verbatim := obj.Get("windowsVerbatimArguments"); verbatim != nil {
		opts.WindowsVerbatimArguments = verbatim.ToBoolean()
	}

	return opts, nil
}

func intOption(v goja.Value) *int {
	switch n := exported(v).(type) {
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	}
	return nil
}

// exported is v.Export() that tolerates missing properties.
func exported(v goja.Value) any {
	if v == nil {
		return nil
	}
	return v.Export()
}

func isObject(v goja.Value) bool {
	_, ok := v.(*goja.Object)
	return ok
}

func isArray(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	return ok && obj.ClassName() == "Array"
}

func isFunction(v goja.Value) bool {
	_, ok := goja.AssertFunction(v)
	return ok
}
