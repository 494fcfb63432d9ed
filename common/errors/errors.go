// Package errors attaches process exit codes to errors returned by binaries.
package errors

// ExitCodeError is an error that carries the exit code a binary should terminate with.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, exitCode ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{exitCode, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return 0
	}
	return e.code
}

// Cause lets github.com/pkg/errors see through the exit code.
func (e *ExitCodeError) Cause() error {
	return e.error
}

type causer interface {
	Cause() error
}

// ExitCodeOf returns the exit code of the outermost ExitCodeError in err's
// chain of causes, GenericFailureExitCode if there is none, and 0 for a nil error.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return 0
	}
	for e := err; e != nil; {
		if ece, ok := e.(*ExitCodeError); ok {
			return ece.GetExitCode()
		}
		c, ok := e.(causer)
		if !ok {
			break
		}
		e = c.Cause()
	}
	return GenericFailureExitCode
}
