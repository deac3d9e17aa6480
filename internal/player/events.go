package player

import (
	"slices"
	"sync"
)

type EventKind uint8

const (
	EventIdle EventKind = iota + 1
	EventError
	EventDisconnected
	EventRecoveryFailed
	EventDestroyed
)

func (k EventKind) String() string {
	switch k {
	case EventIdle:
		return "engine-idle"
	case EventError:
		return "engine-error"
	case EventDisconnected:
		return "conn-disconnected"
	case EventRecoveryFailed:
		return "conn-recovery-failed"
	case EventDestroyed:
		return "conn-destroyed"
	}
	return "unknown"
}

// Event is fed to a Session from its engine and connection listeners. gen
// ties the event to the transport that produced it so events from a replaced
// connection are dropped.
type Event struct {
	Kind EventKind
	Err  error
	gen  uint64
}

type Transition string

const (
	TransitionStart      Transition = "idle->playing"
	TransitionNatural    Transition = "playing->idle(natural)"
	TransitionForced     Transition = "playing->idle(forced)"
	TransitionFailed     Transition = "playing->idle(error)"
	TransitionDrained    Transition = "playing->torn-down(queue empty)"
	TransitionRecovering Transition = "connected->disconnected"
	TransitionTornDown   Transition = "disconnected->torn-down"
)

// State is the part of a Session that Reduce owns.
type State struct {
	Queue    []QueueItem
	Current  *QueueItem
	Loop     LoopMode
	Skipping bool
}

// Effects are the side effects the caller must apply after Reduce, in field
// order.
type Effects struct {
	CancelProcess bool
	DropTransport bool
	PlayNext      bool
	Transition    Transition
}

// Reduce applies one lifecycle event to st. It never mutates the queue backing
// array of its input.
func Reduce(st State, ev Event) (State, Effects) {
	switch ev.Kind {
	case EventIdle:
		finished := st.Current
		wasSkipping := st.Skipping
		st.Skipping = false
		tr := TransitionNatural
		if wasSkipping {
			tr = TransitionForced
		}
		if finished != nil {
			again := *finished
			switch {
			case st.Loop == LoopTrack && !wasSkipping:
				// skip never re-loops the same track
				st.Queue = slices.Insert(slices.Clone(st.Queue), 0, again)
			case st.Loop == LoopQueue:
				st.Queue = append(slices.Clone(st.Queue), again)
			}
		}
		st.Current = nil
		return st, Effects{CancelProcess: true, PlayNext: true, Transition: tr}

	case EventError:
		st.Current = nil
		st.Skipping = false
		return st, Effects{CancelProcess: true, PlayNext: true, Transition: TransitionFailed}

	case EventRecoveryFailed, EventDestroyed:
		return State{Loop: st.Loop}, Effects{CancelProcess: true, DropTransport: true, Transition: TransitionTornDown}
	}
	return st, Effects{}
}

// mailbox is an unbounded FIFO of events. Listeners push from any goroutine
// without blocking, so an engine may report idle synchronously from inside
// Stop while the session lock is held.
type mailbox struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) push(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.events
	m.events = nil
	return out
}
