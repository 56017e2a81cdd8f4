// Package channel defines domain-specific errors
package channel

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	ErrInvalidChannelName = errors.New("invalid channel name")
	ErrDuplicateChannel   = errors.New("duplicate channel")
	ErrUnknownChannel     = errors.New("write to undeclared channel")
	ErrUnknownReducer     = errors.New("unknown reducer type")
)
