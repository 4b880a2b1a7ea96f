// Package events implements a node style EventEmitter for objects exposed to
// a goja runtime.
package events

import (
	"slices"

	"github.com/dop251/goja"
)

type listener struct {
	value goja.Value
	fn    goja.Callable
	once  bool
}

// Emitter keeps the listeners registered on a single script object. It must
// only be used from the goroutine that owns the runtime.
type Emitter struct {
	vm   *goja.Runtime
	this *goja.Object

	listeners map[string][]*listener

	// OnNewListener, when set, is called after a listener has been added.
	OnNewListener func(name string)
}

// New returns an Emitter bound to this and defines the listener methods
// (on, once, off, emit and friends) on it.
func New(vm *goja.Runtime, this *goja.Object) *Emitter {
	e := &Emitter{
		vm:        vm,
		this:      this,
		listeners: make(map[string][]*listener),
	}

	methods := map[string]func(goja.FunctionCall) goja.Value{
		"on":                 e.jsOn(false),
		"addListener":        e.jsOn(false),
		"once":               e.jsOn(true),
		"off":                e.jsOff,
		"removeListener":     e.jsOff,
		"removeAllListeners": e.jsRemoveAll,
		"emit":               e.jsEmit,
		"listenerCount":      e.jsListenerCount,
	}
	for name, fn := range methods {
		this.Set(name, fn) //nolint:errcheck // plain objects accept any key
	}

	return e
}

// Object returns the script object the emitter is bound to.
func (e *Emitter) Object() *goja.Object {
	return e.this
}

// On registers fn for the event name.
func (e *Emitter) On(name string, fn goja.Value) {
	e.add(name, fn, false)
}

// ListenerCount returns the number of listeners for name.
func (e *Emitter) ListenerCount(name string) int {
	return len(e.listeners[name])
}

// Emit calls every listener registered for name, in registration order,
// with args. Listeners added with once are removed before any listener
// runs. It reports whether there were listeners, and stops at the first
// listener that throws.
func (e *Emitter) Emit(name string, args ...goja.Value) (bool, error) {
	current := slices.Clone(e.listeners[name])
	if len(current) == 0 {
		return false, nil
	}

	for _, l := range current {
		if l.once {
			e.remove(name, l.value)
		}
	}

	for _, l := range current {
		if _, err := l.fn(e.this, args...); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (e *Emitter) add(name string, value goja.Value, once bool) {
	fn, ok := goja.AssertFunction(value)
	if !ok {
		panic(e.vm.NewTypeError("The \"listener\" argument must be of type function"))
	}

	e.listeners[name] = append(e.listeners[name], &listener{
		value: value,
		fn:    fn,
		once:  once,
	})

	if e.OnNewListener != nil {
		e.OnNewListener(name)
	}
}

// remove drops the most recently added listener matching value.
func (e *Emitter) remove(name string, value goja.Value) {
	ls := e.listeners[name]
	for i := len(ls) - 1; i >= 0; i-- {
		if ls[i].value.SameAs(value) {
			ls = slices.Delete(slices.Clone(ls), i, i+1)
			break
		}
	}

	if len(ls) == 0 {
		delete(e.listeners, name)
		return
	}
	e.listeners[name] = ls
}

func (e *Emitter) jsOn(once bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		e.add(call.Argument(0).String(), call.Argument(1), once)
		return e.this
	}
}

func (e *Emitter) jsOff(call goja.FunctionCall) goja.Value {
	e.remove(call.Argument(0).String(), call.Argument(1))
	return e.this
}

func (e *Emitter) jsRemoveAll(call goja.FunctionCall) goja.Value {
	if name := call.Argument(0); goja.IsUndefined(name) {
		clear(e.listeners)
	} else {
		delete(e.listeners, name.String())
	}
	return e.this
}

func (e *Emitter) jsEmit(call goja.FunctionCall) goja.Value {
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = call.Arguments[1:]
	}

	ok, err := e.Emit(call.Argument(0).String(), args...)
	if err != nil {
		// Rethrow into the calling script
		panic(err)
	}
	return e.vm.ToValue(ok)
}

func (e *Emitter) jsListenerCount(call goja.FunctionCall) goja.Value {
	return e.vm.ToValue(e.ListenerCount(call.Argument(0).String()))
}
