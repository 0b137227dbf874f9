package quest

import "errors"

var (
	// ErrInvalidDefinition wraps every construction-time rejection of a trigger,
	// requirement, action or part.
	ErrInvalidDefinition = errors.New("invalid quest definition")
	// ErrUnknownQuest is returned when a quest id has no descriptor.
	ErrUnknownQuest = errors.New("unknown quest")
)
