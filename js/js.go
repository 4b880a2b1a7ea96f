// Package js runs scripts in an embedded JavaScript runtime with node style
// require(), console, process, timers and child_process.
package js

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/jsrt/childprocess"
	"github.com/buildkite/jsrt/internal/eventloop"
	"github.com/buildkite/jsrt/logger"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/process"
	"github.com/dop251/goja_nodejs/require"
	"gopkg.in/yaml.v3"
)

const (
	// nameModule is the name of the top-level object injected into the VM
	nameModule = "module"

	// nameExports is the key/name of the object expected to be assigned within
	// the top-level module, e.g. `module.exports = { hello: "world" }`
	nameExports = "exports"

	// How long children get to exit once a run has finished or been
	// cancelled
	shutdownTimeout = 10 * time.Second
)

// Runtime is a JavaScript runtime and the event loop that drives it. A
// Runtime runs a single script.
type Runtime struct {
	vm       *goja.Runtime
	loop     *eventloop.Loop
	children *childprocess.Module
	module   *goja.Object
	logger   logger.Logger

	result goja.Value
}

// New returns a runtime ready to run a script.
func New(l logger.Logger) (*Runtime, error) {
	vm := goja.New()

	loop := eventloop.New(vm)
	r := &Runtime{
		vm:       vm,
		loop:     loop,
		children: childprocess.New(l, loop),
		logger:   l,
	}

	// Add support for require() CommonJS modules, loaded from the host
	// filesystem.
	registry := require.NewRegistry()

	// Add basic utilities
	registry.Enable(vm) // require(); must be enabled before console, process
	console.Enable(vm)  // console.log()
	process.Enable(vm)  // process.env

	registry.RegisterNativeModule(childprocess.ModuleName, r.children.Require)
	registry.RegisterNativeModule("node:"+childprocess.ModuleName, r.children.Require)

	// provide assignable module.exports for the result
	r.module = vm.NewObject()
	if err := vm.Set(nameModule, r.module); err != nil {
		return nil, err
	}

	return r, nil
}

// Children returns the child_process module, for shutting down children
// from outside the loop.
func (r *Runtime) Children() *childprocess.Module {
	return r.children
}

// Run runs the script and then the event loop until nothing is left for it
// to do. The name is used in stack traces. Cancelling ctx interrupts the
// script. Children still running when Run returns are terminated.
func (r *Runtime) Run(ctx context.Context, name string, src []byte) error {
	r.logger.Debug("[JS] Running %s", name)

	err := r.loop.Run(ctx, func(vm *goja.Runtime) error {
		value, err := vm.RunScript(name, string(src))
		r.result = value
		return err
	})

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := r.children.Shutdown(shutdownCtx); serr != nil {
		r.logger.Warn("[JS] %v", serr)
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("Uncaught %s", exception.String())
	}
	return err
}

// Exports returns the value the script assigned to module.exports, or the
// script's completion value if it didn't assign one. It is nil if there is
// neither.
func (r *Runtime) Exports() any {
	// Get the module.exports value assigned by the script
	value := r.module.Get(nameExports)
	if value == nil || goja.IsUndefined(value) {
		// if module.exports wasn't assigned, try the return value of the script
		value = r.result
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	return value.Export()
}

// EvalJS runs JavaScript code (loaded from file or stdin etc), including any
// asynchronous work it starts, and returns a YAML serialization of the
// exported value. The name arg is the name of the file/stream/source of the
// JavaScript code, used for stack/error messages.
func EvalJS(ctx context.Context, l logger.Logger, name string, input []byte) ([]byte, error) {
	r, err := New(l)
	if err != nil {
		return nil, err
	}

	if err := r.Run(ctx, name, input); err != nil {
		return nil, err
	}

	result := r.Exports()
	if result == nil {
		return nil, errors.New("Script neither assigned module.exports nor returned a value")
	}

	// Rather than returning the any from goja.Value.Export(), we'll
	// serialize it to YAML here.
	out, err := yaml.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("Serializing JavaScript result to YAML: %w", err)
	}
	return out, nil
}
