package player

import "context"

type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnReady
	ConnDisconnected
	ConnDestroyed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnReady:
		return "ready"
	case ConnDisconnected:
		return "disconnected"
	case ConnDestroyed:
		return "destroyed"
	}
	return "unknown"
}

type EngineState int

const (
	EngineIdle EngineState = iota
	EngineBuffering
	EnginePlaying
	EnginePaused
)

func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EngineBuffering:
		return "buffering"
	case EnginePlaying:
		return "playing"
	case EnginePaused:
		return "paused"
	}
	return "unknown"
}

// Connection is the voice transport joined to one channel.
type Connection interface {
	ChannelID() string
	State() ConnState
	// WaitFor returns nil as soon as the connection is in any of states,
	// including immediately when it already is.
	WaitFor(ctx context.Context, states ...ConnState) error
	// OnStateChange registers the single transition listener.
	OnStateChange(fn func(ConnState))
	// Destroy is idempotent and ends in ConnDestroyed.
	Destroy()
}

// Engine plays one Playable at a time over a Connection. It reports exactly
// one of idle or error per played resource: idle when the resource ends or is
// stopped, error when reading or sending it fails.
type Engine interface {
	State() EngineState
	Play(p Playable)
	Pause() bool
	Resume() bool
	Stop(force bool) bool
	OnIdle(fn func())
	OnError(fn func(error))
}

// Connector creates a Connection and its Engine together.
type Connector interface {
	Join(ctx context.Context, guildID, channelID string) (Connection, Engine, error)
}
