package player

import (
	"io"
	"strings"
)

// QueueItem is one playable entry. Reference is either a direct link or a
// yt-dlp search marker such as "ytsearch1:Artist - Title".
type QueueItem struct {
	Reference string
	Title     string
}

func (q QueueItem) Label() string {
	if strings.TrimSpace(q.Title) != "" {
		return q.Title
	}
	return q.Reference
}

type LoopMode string

const (
	LoopOff   LoopMode = "off"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

func (m LoopMode) Valid() bool {
	switch m {
	case LoopOff, LoopTrack, LoopQueue:
		return true
	}
	return false
}

// ParseLoopMode accepts exactly "off", "track" or "queue".
func ParseLoopMode(raw string) (LoopMode, error) {
	m := LoopMode(strings.TrimSpace(raw))
	if !m.Valid() {
		return LoopOff, &InvalidModeError{Value: raw}
	}
	return m, nil
}

// Cancellable is a handle to the external decode process backing a track.
// Terminate is fire-and-forget: the process may still be running when it
// returns, and the end of its output stream is the real completion signal.
// Calling it more than once is allowed.
type Cancellable interface {
	Terminate()
}

// Playable is what a ResourceBuilder hands to the Engine.
type Playable struct {
	Item     QueueItem
	Process  Cancellable
	Resource io.ReadCloser
}

// ResourceBuilder never fails synchronously; spawn or stream errors surface
// when the engine reads Resource.
type ResourceBuilder interface {
	Build(item QueueItem) Playable
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	GuildID   string
	ChannelID string
	Connected bool
	Engine    EngineState
	Current   *QueueItem
	Queue     []QueueItem
	Loop      LoopMode
}
