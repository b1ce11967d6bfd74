// Package errors wraps github.com/pkg/errors so every error that leaves a
// package carries exactly one stack trace.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Er wraps e with a formatted message and a stack trace.
//
// If e already carries a stack, that stack is kept and nothing new is recorded.
// Er returns nil when e is nil.
func Er(e error, str string, options ...interface{}) error {
	if e == nil {
		return nil
	}
	return &errWithStack{
		message: fmt.Sprintf(str, options...) + ": " + e.Error(),
		err:     E(e),
	}
}

// E attaches a stack trace to err unless it already has one.
func E(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(StackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}

// Is wraps errors.Is.
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Errorf returns an error with formatted message and stack trace.
// Use %w to keep the wrapped error reachable for Is and As.
func Errorf(format string, args ...interface{}) error {
	return E(fmt.Errorf(format, args...))
}

// New returns a new error with the given message and stack trace.
func New(s string) error {
	return errors.New(s)
}

func Wrap(err error, s string, options ...interface{}) error {
	return Er(err, s, options...)
}

// Cause returns the innermost error of a chain built with pkg/errors.
func Cause(err error) error {
	return errors.Cause(err)
}
