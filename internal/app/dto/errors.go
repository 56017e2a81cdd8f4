package dto

import "errors"

// Execution errors
var (
	ErrMissingGraphID     = errors.New("graph ID is required")
	ErrMissingThreadID    = errors.New("thread ID is required")
	ErrInvalidConfig      = errors.New("invalid execution configuration")
	ErrInvalidInput       = errors.New("invalid input provided")
	ErrExecutionFailed    = errors.New("graph execution failed")
	ErrExecutionTimeout   = errors.New("graph execution timeout")
	ErrExecutionCancelled = errors.New("graph execution cancelled")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrRecursionLimit     = errors.New("recursion limit reached before the end node")
	ErrUnknownBranch      = errors.New("router returned an outcome with no edge")
	ErrNoHandler          = errors.New("no handler registered for node")
)

// Thread and run errors
var (
	ErrThreadNotFound  = errors.New("thread not found")
	ErrThreadBusy      = errors.New("thread already has an active run")
	ErrRunNotFound     = errors.New("run not found")
	ErrUnknownStrategy = errors.New("unknown multitask strategy")
)
