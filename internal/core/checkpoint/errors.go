package checkpoint

import "errors"

var (
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// Returned by Checkpoint.Validate.
	ErrInvalidCheckpointID = errors.New("checkpoint has no ID")
	ErrInvalidGraphID      = errors.New("checkpoint has no graph ID")
	ErrInvalidThreadID     = errors.New("checkpoint has no thread ID")
	ErrInvalidStep         = errors.New("checkpoint step is negative")
	ErrNilState            = errors.New("checkpoint state is nil")

	// Returned by Filter.Validate.
	ErrInvalidLimit     = errors.New("filter limit is negative")
	ErrInvalidOffset    = errors.New("filter offset is negative")
	ErrInvalidTimeRange = errors.New("filter since is after before")
)
