package core

import (
	"errors"
)

var (
	// ErrOutOfMemory is returned by the resource manager when an allocation
	// would exceed the configured GPU memory budget. Frame setup reacts by
	// skipping the frame, not by crashing.
	ErrOutOfMemory = errors.New("gpu memory budget exceeded")
	// ErrResolutionUnknown is returned when a relative-size transient is
	// requested before the output resolution for the frame is known.
	ErrResolutionUnknown = errors.New("output resolution not set")
)
