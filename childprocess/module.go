// Package childprocess is the child_process module available to scripts.
// It spawns host processes with spawn and execFile and reports on them
// through node style events and streams.
package childprocess

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/buildkite/jsrt/internal/eventloop"
	"github.com/buildkite/jsrt/logger"
	"github.com/dop251/goja"
	"golang.org/x/sync/errgroup"
)

// ModuleName is the name scripts require the module by.
const ModuleName = "child_process"

// Module spawns children on behalf of the scripts running on one loop, and
// keeps track of them until they close.
type Module struct {
	loop   *eventloop.Loop
	logger logger.Logger

	mu       sync.Mutex
	children map[string]*ChildProcess
}

// New returns a Module that runs script callbacks on loop.
func New(l logger.Logger, loop *eventloop.Loop) *Module {
	return &Module{
		loop:     loop,
		logger:   l,
		children: make(map[string]*ChildProcess),
	}
}

// Require populates module.exports. It has the shape of a
// require.ModuleLoader.
func (m *Module) Require(vm *goja.Runtime, module *goja.Object) {
	exports := vm.NewObject()
	exports.Set("spawn", m.jsSpawn)       //nolint:errcheck // plain objects accept any key
	exports.Set("execFile", m.jsExecFile) //nolint:errcheck // plain objects accept any key
	module.Set("exports", exports)        //nolint:errcheck // plain objects accept any key
}

// Live returns the number of children that haven't closed yet.
func (m *Module) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.children)
}

// Shutdown terminates every child that is still running and waits for them
// to be reaped, or for ctx to be done.
func (m *Module) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	children := slices.Collect(maps.Values(m.children))
	m.mu.Unlock()

	if len(children) > 0 {
		m.logger.Info("Terminating %d child process(es)", len(children))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, cp := range children {
		g.Go(func() error {
			cp.terminate()

			select {
			case <-cp.exited:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("waiting for child process %s to exit: %w", cp.id, ctx.Err())
			}
		})
	}
	return g.Wait()
}

func (m *Module) track(cp *ChildProcess) {
	m.mu.Lock()
	m.children[cp.id] = cp
	m.mu.Unlock()
}

func (m *Module) untrack(cp *ChildProcess) {
	m.mu.Lock()
	delete(m.children, cp.id)
	m.mu.Unlock()
}

func (m *Module) jsSpawn(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	a, err := parseArgs(call, false)
	if err != nil {
		panic(vm.NewTypeError(err.Error()))
	}

	cp := m.newChildProcess(vm, a, nil)
	m.start(cp)
	return cp.Object()
}

// newError returns a script Error with msg as its message.
func newError(vm *goja.Runtime, msg string) *goja.Object {
	obj, err := vm.New(vm.Get("Error"), vm.ToValue(msg))
	if err != nil {
		panic(err)
	}
	return obj
}
