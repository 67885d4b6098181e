// Package xerrors records where errors were created and wrapped so the
// logger can point at them. New and WithStack capture a stack; Wrap
// records the single frame that added context.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the stack captured where the error entered the program.
type stacked struct {
	err error
	pcs []uintptr
}

func (e *stacked) Error() string       { return e.err.Error() }
func (e *stacked) Unwrap() error       { return e.err }
func (e *stacked) StackPCs() []uintptr { return e.pcs }

// annotated prefixes a message and remembers the wrapping call site.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (e *annotated) Error() string { return e.msg + ": " + e.err.Error() }
func (e *annotated) Unwrap() error { return e.err }
func (e *annotated) PC() uintptr   { return e.pc }

// callers returns the stack above the exported function that called it.
func callers() []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// runtime.Callers, callers, exported func
	return pcs[:runtime.Callers(3, pcs)]
}

func caller() uintptr {
	var pc [1]uintptr
	if runtime.Callers(3, pc[:]) == 0 {
		return 0
	}
	return pc[0]
}

func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: callers()}
}

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: callers()}
}

// WithStack attaches the caller's stack to err.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: callers()}
}

// EnsureTrace attaches a stack unless one is already somewhere in the chain.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var st interface{ StackPCs() []uintptr }
	if errors.As(err, &st) && len(st.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: callers()}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: caller()}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: caller()}
}
