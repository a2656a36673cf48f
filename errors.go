package cann

import (
	"errors"
	"fmt"
)

// ErrorCodes classifies the errors returned by the runtime
type ErrorCodes int

// error code values returned by the runtime
const (
	Success ErrorCodes = iota
	ErrCodeNotInitialized
	ErrCodeAlreadyInitialized
	ErrCodeContextFinalized
	ErrCodeInvalidDevice
	ErrCodeUninitialized
	ErrCodeShapeMismatch
	ErrCodeDtypeMismatch
	ErrCodeMaskShapeMismatch
	ErrCodeInvalidROI
	ErrCodeDeviceOperationFailed
	ErrCodeOutOfMemory
	ErrCodeUnsupported
)

// String returns a readable description of the error code
func (e ErrorCodes) String() string {
	switch e {
	case Success:
		return "execution successful"
	case ErrCodeNotInitialized:
		return "context is not initialized"
	case ErrCodeAlreadyInitialized:
		return "context is already initialized"
	case ErrCodeContextFinalized:
		return "context has been finalized"
	case ErrCodeInvalidDevice:
		return "device id is invalid"
	case ErrCodeUninitialized:
		return "array has no device memory"
	case ErrCodeShapeMismatch:
		return "shape mismatch"
	case ErrCodeDtypeMismatch:
		return "dtype mismatch"
	case ErrCodeMaskShapeMismatch:
		return "mask shape mismatch"
	case ErrCodeInvalidROI:
		return "region of interest exceeds input bounds"
	case ErrCodeDeviceOperationFailed:
		return "device operation failed"
	case ErrCodeOutOfMemory:
		return "device memory allocation failed"
	case ErrCodeUnsupported:
		return "operation parameter is not supported"
	default:
		return fmt.Sprintf("unknown error code %d", e)
	}
}

// Error is the error type returned by the runtime.  Errors compare equal
// with errors.Is when their codes match, so callers test against the
// sentinel values below regardless of the message detail.
type Error struct {
	Code ErrorCodes
	// Op is the name of the call that failed
	Op string
	// Msg is optional detail about the failure
	Msg string
	// Err is the underlying cause if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {

	s := e.Code.String()

	if e.Op != "" {
		s = e.Op + ": " + s
	}

	if e.Msg != "" {
		s += ", " + e.Msg
	}

	if e.Err != nil {
		s += ": " + e.Err.Error()
	}

	return s
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same error code.  An OutOfMemory
// error is also a DeviceOperationFailed error.
func (e *Error) Is(target error) bool {

	t, ok := target.(*Error)

	if !ok {
		return false
	}

	if e.Code == t.Code {
		return true
	}

	return e.Code == ErrCodeOutOfMemory && t.Code == ErrCodeDeviceOperationFailed
}

// sentinel errors for use with errors.Is
var (
	ErrNotInitialized        = &Error{Code: ErrCodeNotInitialized}
	ErrAlreadyInitialized    = &Error{Code: ErrCodeAlreadyInitialized}
	ErrContextFinalized      = &Error{Code: ErrCodeContextFinalized}
	ErrInvalidDevice         = &Error{Code: ErrCodeInvalidDevice}
	ErrUninitialized         = &Error{Code: ErrCodeUninitialized}
	ErrShapeMismatch         = &Error{Code: ErrCodeShapeMismatch}
	ErrDtypeMismatch         = &Error{Code: ErrCodeDtypeMismatch}
	ErrMaskShapeMismatch     = &Error{Code: ErrCodeMaskShapeMismatch}
	ErrInvalidROI            = &Error{Code: ErrCodeInvalidROI}
	ErrDeviceOperationFailed = &Error{Code: ErrCodeDeviceOperationFailed}
	ErrOutOfMemory           = &Error{Code: ErrCodeOutOfMemory}
	ErrUnsupported           = &Error{Code: ErrCodeUnsupported}
)

// newError creates an Error for the named call with a formatted message
func newError(code ErrorCodes, op string, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// OpError records an asynchronous operation that failed on a stream.  It is
// returned by the next synchronizing call on that stream.
type OpError struct {
	// Stream is the id of the stream the operation was issued on
	Stream string
	// Seq is the position of the operation in the stream's enqueue order,
	// starting at 1
	Seq uint64
	// Op is the operation name
	Op string
	// Err is the failure reported by the kernel
	Err error
}

// Error implements the error interface
func (e *OpError) Error() string {
	return fmt.Sprintf("stream %s op #%d %s: %v", e.Stream, e.Seq, e.Op, e.Err)
}

// Unwrap returns the kernel failure
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is makes every OpError match ErrDeviceOperationFailed
func (e *OpError) Is(target error) bool {
	return target == ErrDeviceOperationFailed
}

// IsDeviceError reports whether err was raised by the device while
// executing an operation rather than by argument validation
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceOperationFailed)
}
