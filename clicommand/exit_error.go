package clicommand

import (
	"errors"
	"strconv"
)

// ExitError tells main.go to exit with a particular code rather than 1.
// jsrt exec uses it to pass on the child's exit code.
type ExitError struct {
	code  int
	inner error
}

func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

func (e *ExitError) Code() int {
	return e.code
}

func (e *ExitError) Error() string {
	if e.inner == nil {
		return "exit status " + strconv.Itoa(e.code)
	}
	return e.inner.Error()
}

func (e *ExitError) Unwrap() error {
	return e.inner
}

func (e *ExitError) Is(target error) bool {
	terr, ok := target.(*ExitError)
	return ok && e.code == terr.code && errors.Is(e.inner, terr.inner)
}

// ExitCode returns the code the process should exit with after err was
// returned from a command. Errors other than ExitError mean 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr := new(ExitError); errors.As(err, &exitErr) {
		return exitErr.Code()
	}
	return 1
}
