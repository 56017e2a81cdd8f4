package agentgraph

import "errors"

var (
	// ErrNoCheckpointer is returned by thread operations on a graph compiled
	// without a checkpointer.
	ErrNoCheckpointer = errors.New("graph has no checkpointer")
	// ErrDuplicateRouter is returned when a node gets conditional edges twice.
	ErrDuplicateRouter = errors.New("node already has conditional edges")
	// ErrNilFunc is returned for a nil node or router function.
	ErrNilFunc = errors.New("function cannot be nil")
	// ErrMissingChannel is returned when a run would start without a value
	// for a required state field. It is wrapped in dto.ErrInvalidInput.
	ErrMissingChannel = errors.New("required state field has no value")
)
