package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Error carries one of the kinds above together with a message that is safe
// to show to the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Invalidf(format string, args ...any) error   { return newError(ErrInvalidArgument, format, args...) }
func Forbiddenf(format string, args ...any) error { return newError(ErrForbidden, format, args...) }
func NotFoundf(format string, args ...any) error  { return newError(ErrNotFound, format, args...) }
func TooLargef(format string, args ...any) error {
	return newError(ErrPayloadTooLarge, format, args...)
}
