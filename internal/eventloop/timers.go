package eventloop

import (
	"time"

	"github.com/dop251/goja"
)

// timer is the handle handed to script by setTimeout and friends. It is
// only touched on the loop goroutine.
type timer struct {
	cancel  func() bool
	cleared bool
}

func (t *timer) clear() {
	if t == nil || t.cleared {
		return
	}
	t.cleared = true
	if t.cancel != nil {
		t.cancel()
	}
}

func (l *Loop) installTimers() {
	l.vm.Set("setTimeout", l.setTimeout)     //nolint:errcheck // only fails for invalid names
	l.vm.Set("setInterval", l.setInterval)   //nolint:errcheck // only fails for invalid names
	l.vm.Set("setImmediate", l.setImmediate) //nolint:errcheck // only fails for invalid names
	l.vm.Set("clearTimeout", clearTimer)     //nolint:errcheck // only fails for invalid names
	l.vm.Set("clearInterval", clearTimer)    //nolint:errcheck // only fails for invalid names
	l.vm.Set("clearImmediate", clearTimer)   //nolint:errcheck // only fails for invalid names
}

func timerArgs(vm *goja.Runtime, call goja.FunctionCall, rest int) (goja.Callable, time.Duration, []goja.Value) {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(vm.NewTypeError("The \"callback\" argument must be of type function"))
	}

	var delay time.Duration
	if rest > 1 {
		if ms := call.Argument(1).ToFloat(); ms > 0 {
			delay = time.Duration(ms * float64(time.Millisecond))
		}
	}

	var args []goja.Value
	if len(call.Arguments) > rest {
		args = call.Arguments[rest:]
	}
	return fn, delay, args
}

func (l *Loop) setTimeout(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	fn, delay, args := timerArgs(vm, call, 2)

	t := &timer{}
	t.cancel = l.AfterFunc(delay, func(vm *goja.Runtime) error {
		t.cleared = true
		_, err := fn(goja.Undefined(), args...)
		return err
	})
	return vm.ToValue(t)
}

func (l *Loop) setInterval(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	fn, delay, args := timerArgs(vm, call, 2)
	if delay <= 0 {
		delay = time.Millisecond
	}

	t := &timer{}
	var tick Job
	tick = func(vm *goja.Runtime) error {
		if _, err := fn(goja.Undefined(), args...); err != nil {
			return err
		}
		if !t.cleared {
			t.cancel = l.AfterFunc(delay, tick)
		}
		return nil
	}
	t.cancel = l.AfterFunc(delay, tick)
	return vm.ToValue(t)
}

func (l *Loop) setImmediate(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	fn, _, args := timerArgs(vm, call, 1)

	// Immediates skip the timer wheel so they run in the order they were set.
	t := &timer{}
	t.cancel = func() bool {
		l.Unref()
		return true
	}
	l.Ref()
	l.Schedule(func(vm *goja.Runtime) error {
		if t.cleared {
			return nil
		}
		t.cleared = true
		l.Unref()
		_, err := fn(goja.Undefined(), args...)
		return err
	})
	return vm.ToValue(t)
}

func clearTimer(call goja.FunctionCall) goja.Value {
	if t, ok := call.Argument(0).Export().(*timer); ok {
		t.clear()
	}
	return goja.Undefined()
}
