package player

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrNothingToShuffle = errors.New("need at least 2 upcoming tracks to shuffle")
	ErrNothingToStop    = errors.New("nothing to stop")
)

// ConnectionTimeoutError means the voice transport never reported ready.
// The session is left disconnected so the caller can retry.
type ConnectionTimeoutError struct {
	After time.Duration
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("voice connection was not ready after %s", e.After)
}

type InvalidModeError struct {
	Value string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid loop mode %q, use off, track or queue", e.Value)
}
