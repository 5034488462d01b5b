package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded FTL error.
type Error struct {
	Code    string // Error code, see codes.go
	Message string // Primary error message
	Detail  string // Optional detailed error message
	Hint    string // Optional hint message
	Op      string // Operation that failed (read, write, erase, ...)
	Logical int    // Logical page involved, -1 if not applicable
	Block   int    // Physical block involved, -1 if not applicable
	Page    int    // Physical page involved, -1 if not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s (code %s) DETAIL: %s", msg, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (code %s)", msg, e.Code)
}

// Is matches errors by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new Error with the given code and message
func New(code string, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Logical: -1,
		Block:   -1,
		Page:    -1,
	}
}

// Newf creates a new Error with a formatted message
func Newf(code string, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetail adds detail to the error
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithDetailf adds formatted detail to the error
func (e *Error) WithDetailf(format string, args ...interface{}) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint adds a hint to the error
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithOp sets the failing operation
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithLogical sets the logical page
func (e *Error) WithLogical(logical int) *Error {
	e.Logical = logical
	return e
}

// WithLocation sets the physical block and page
func (e *Error) WithLocation(block, page int) *Error {
	e.Block = block
	e.Page = page
	return e
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInvalidAddress = New(InvalidAddress, "invalid address")
	ErrUnmapped       = New(Unmapped, "no valid mapping")
	ErrStalePage      = New(StalePage, "page not valid")
	ErrDeviceFull     = New(DeviceFull, "no block available")
	ErrBlockFull      = New(BlockFull, "no free page in block")
	ErrInvalidConfig  = New(InvalidConfig, "invalid configuration")
	ErrInvalidImage   = New(InvalidImage, "invalid device image")
)

// IsError checks if an error is, or wraps, an FTL Error with a specific code
func IsError(err error, code string) bool {
	var fErr *Error
	return stderrors.As(err, &fErr) && fErr.Code == code
}

// GetError attempts to extract an FTL Error from any error. Errors that carry
// no FTL Error are reported as internal errors.
func GetError(err error) *Error {
	if err == nil {
		return nil
	}
	var fErr *Error
	if stderrors.As(err, &fErr) {
		return fErr
	}
	return InternalErrorf("%v", err)
}
