package core

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrArenaExhausted   = errors.New("arena capacity exhausted")
	ErrInvalidAlignment = errors.New("alignment is not a power of two")
	ErrCapacityExceeded = errors.New("fixed capacity exceeded")
	ErrAlreadyTracked   = errors.New("resource already tracked")
	ErrInvalidHandle    = errors.New("invalid or stale handle")
	ErrDeviceLost       = errors.New("gpu device lost")
	ErrFrameSlotBusy    = errors.New("frame slot still in use by the gpu")
	ErrShaderCompile    = errors.New("shader compilation failed")
	ErrMissingBytecode  = errors.New("precompiled shader bytecode missing")
	ErrConfigVersion    = errors.New("config version mismatch")
	ErrUnsupported      = errors.New("not supported by this backend")
	ErrNotFound         = errors.New("not found")
	ErrUnknown          = errors.New("unknown")
)

// AssertionError is the panic value raised by Assert and Panicf. It wraps one
// of the sentinel errors above so callers recovering from it can use errors.Is.
type AssertionError struct {
	Err error
	Msg string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Msg)
}

func (e *AssertionError) Unwrap() error {
	return e.Err
}

// Assert panics with an AssertionError wrapping err when cond is false.
func Assert(cond bool, err error, format string, args ...interface{}) {
	if !cond {
		Panicf(err, format, args...)
	}
}

// Panicf logs the failure and panics with an AssertionError wrapping err.
func Panicf(err error, format string, args ...interface{}) {
	ae := &AssertionError{Err: err, Msg: fmt.Sprintf(format, args...)}
	LogError("%s", ae)
	panic(ae)
}
