package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

const (
	DefaultReadyTimeout   = 20 * time.Second
	DefaultRecoveryWindow = 5 * time.Second
)

// Deps are the collaborators shared by every Session of a Registry.
type Deps struct {
	Connector Connector
	Builder   ResourceBuilder

	// OnTrackStart runs on its own goroutine each time a track is handed to
	// the engine.
	OnTrackStart func(guildID string, item QueueItem)

	ReadyTimeout   time.Duration
	RecoveryWindow time.Duration
	Rand           *rand.Rand
}

func (d *Deps) readyTimeout() time.Duration {
	if d.ReadyTimeout > 0 {
		return d.ReadyTimeout
	}
	return DefaultReadyTimeout
}

func (d *Deps) recoveryWindow() time.Duration {
	if d.RecoveryWindow > 0 {
		return d.RecoveryWindow
	}
	return DefaultRecoveryWindow
}

// Session is the playback state of one guild. All state lives behind mu;
// lifecycle events from the engine and connection are queued in inbox and
// applied one at a time by run.
type Session struct {
	guildID string
	deps    *Deps
	log     *slog.Logger

	connectMu sync.Mutex

	mu        sync.Mutex
	conn      Connection
	engine    Engine
	channelID string
	gen       uint64
	process   Cancellable
	state     State
	rng       *rand.Rand

	inbox *mailbox
}

func NewSession(guildID string, deps *Deps) *Session {
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Session{
		guildID: guildID,
		deps:    deps,
		log:     slog.With("component", "player", "guildID", guildID),
		state:   State{Loop: LoopOff},
		rng:     rng,
		inbox:   newMailbox(),
	}
}

func (s *Session) GuildID() string { return s.guildID }

// Connect joins channelID unless the session already holds a connecting or
// ready transport, in which case it returns nil without doing anything.
func (s *Session) Connect(ctx context.Context, channelID string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.conn != nil {
		switch s.conn.State() {
		case ConnConnecting, ConnReady:
			s.mu.Unlock()
			return nil
		}
		// stale transport from an earlier disconnect
		s.teardownLocked()
	}
	s.mu.Unlock()

	conn, engine, err := s.deps.Connector.Join(ctx, s.guildID, channelID)
	if err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	timeout := s.deps.readyTimeout()
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.WaitFor(wctx, ConnReady); err != nil {
		engine.Stop(true)
		conn.Destroy()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("voice connection not ready", "channelID", channelID, "timeout", timeout)
		return &ConnectionTimeoutError{After: timeout}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.conn = conn
	s.engine = engine
	s.channelID = channelID
	s.bindLocked(s.gen, conn, engine)
	s.log.Info("voice connected", "channelID", channelID)
	return nil
}

// bindLocked wires the lifecycle listeners once per transport.
func (s *Session) bindLocked(gen uint64, conn Connection, engine Engine) {
	engine.OnIdle(func() {
		s.inbox.push(Event{Kind: EventIdle, gen: gen})
	})
	engine.OnError(func(err error) {
		s.inbox.push(Event{Kind: EventError, Err: err, gen: gen})
	})
	conn.OnStateChange(func(st ConnState) {
		switch st {
		case ConnDisconnected:
			s.inbox.push(Event{Kind: EventDisconnected, gen: gen})
		case ConnDestroyed:
			s.inbox.push(Event{Kind: EventDestroyed, gen: gen})
		case ConnReady:
			s.log.Debug("voice connection ready", "gen", gen)
		}
	})
}

// Enqueue appends items and returns the new queue length. It never starts
// playback.
func (s *Session) Enqueue(items ...QueueItem) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Queue = append(s.state.Queue, items...)
	return len(s.state.Queue)
}

// PlayNext dequeues the head and plays it, or tears the session down when the
// queue is empty. Callers must only use it while the engine is idle.
func (s *Session) PlayNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playNextLocked()
}

// StartIfIdle calls PlayNext when connected and nothing is bound to the
// engine. It reports whether playback was started.
func (s *Session) StartIfIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.engine == nil || s.state.Current != nil {
		return false
	}
	if len(s.state.Queue) == 0 {
		return false
	}
	s.playNextLocked()
	return s.state.Current != nil
}

func (s *Session) playNextLocked() {
	if s.conn == nil || s.engine == nil {
		return
	}
	if len(s.state.Queue) == 0 {
		s.log.Info("queue drained", "transition", TransitionDrained)
		s.teardownLocked()
		return
	}

	next := s.state.Queue[0]
	s.state.Queue = slices.Delete(slices.Clone(s.state.Queue), 0, 1)

	p := s.deps.Builder.Build(next)
	s.process = p.Process
	s.state.Current = &next
	s.engine.Play(p)
	s.log.Info("playing", "title", next.Label(), "reference", next.Reference, "transition", TransitionStart, "upcoming", len(s.state.Queue))

	if fn := s.deps.OnTrackStart; fn != nil {
		go fn(s.guildID, next)
	}
}

func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.engine == nil || s.state.Current == nil {
		return ErrNothingPlaying
	}
	s.state.Skipping = true
	if s.process != nil {
		s.process.Terminate()
	}
	s.engine.Stop(true)
	return nil
}

// Pause reports the engine's own answer; false means it refused.
func (s *Session) Pause() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.engine == nil {
		return false, ErrNothingPlaying
	}
	return s.engine.Pause(), nil
}

func (s *Session) Resume() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.engine == nil {
		return false, ErrNothingPlaying
	}
	return s.engine.Resume(), nil
}

// SetLoopMode takes effect on the next completion.
func (s *Session) SetLoopMode(raw string) (LoopMode, error) {
	mode, err := ParseLoopMode(raw)
	if err != nil {
		return s.LoopMode(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loop = mode
	return mode, nil
}

func (s *Session) LoopMode() LoopMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Loop
}

// ShuffleUpcoming permutes the queue in place and returns its length. The
// current track is never part of the queue.
func (s *Session) ShuffleUpcoming() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.state.Queue)
	if n < 2 {
		return n, ErrNothingToShuffle
	}
	q := s.state.Queue
	s.rng.Shuffle(n, func(i, j int) { q[i], q[j] = q[j], q[i] })
	return n, nil
}

// Stop clears everything except the loop mode and leaves the channel.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil && s.state.Current == nil && len(s.state.Queue) == 0 {
		return ErrNothingToStop
	}
	s.log.Info("stopped")
	s.teardownLocked()
	return nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		Connected: s.conn != nil,
		Queue:     slices.Clone(s.state.Queue),
		Loop:      s.state.Loop,
	}
	if s.engine != nil {
		snap.Engine = s.engine.State()
	}
	if s.state.Current != nil {
		cur := *s.state.Current
		snap.Current = &cur
	}
	return snap
}

// ChannelID is the voice channel of the live connection, or "".
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ""
	}
	return s.channelID
}

// teardownLocked destroys the transport and resets to the idle shape.
func (s *Session) teardownLocked() {
	conn, engine := s.conn, s.engine
	s.resetLocked()
	if engine != nil {
		engine.Stop(true)
	}
	if conn != nil {
		conn.Destroy()
	}
}

// resetLocked forgets the transport without touching it. Events still queued
// from it are dropped because gen moves on.
func (s *Session) resetLocked() {
	if s.process != nil {
		s.process.Terminate()
		s.process = nil
	}
	s.conn = nil
	s.engine = nil
	s.channelID = ""
	s.gen++
	s.state = State{Loop: s.state.Loop}
}

func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.inbox.notify:
			s.pump()
		}
	}
}

// pump applies every queued event in arrival order.
func (s *Session) pump() {
	for _, ev := range s.inbox.drain() {
		s.handle(ev)
	}
}

func (s *Session) handle(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.gen != s.gen {
		s.log.Debug("dropping stale event", "event", ev.Kind, "gen", ev.gen)
		return
	}

	if ev.Kind == EventDisconnected {
		s.log.Warn("voice disconnected, waiting for recovery", "transition", TransitionRecovering, "window", s.deps.recoveryWindow())
		go s.awaitRecovery(ev.gen, s.conn)
		return
	}
	if ev.Kind == EventError {
		s.log.Error("playback error", "err", ev.Err, "title", s.currentLabelLocked())
	}

	var fx Effects
	s.state, fx = Reduce(s.state, ev)
	if fx.Transition != "" {
		s.log.Debug("transition", "event", ev.Kind, "transition", fx.Transition, "loop", s.state.Loop)
	}

	if fx.CancelProcess && s.process != nil {
		s.process.Terminate()
		s.process = nil
	}
	if fx.DropTransport {
		conn, engine := s.conn, s.engine
		s.conn = nil
		s.engine = nil
		s.channelID = ""
		s.gen++
		if engine != nil {
			engine.Stop(true)
		}
		if conn != nil {
			conn.Destroy()
		}
	}
	if fx.PlayNext {
		s.playNextLocked()
	}
}

func (s *Session) awaitRecovery(gen uint64, conn Connection) {
	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.recoveryWindow())
	defer cancel()
	err := conn.WaitFor(ctx, ConnConnecting, ConnReady)
	if err == nil {
		s.log.Info("voice connection recovered")
		return
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		s.log.Debug("recovery wait ended", "err", err)
	}
	s.inbox.push(Event{Kind: EventRecoveryFailed, gen: gen})
}

func (s *Session) currentLabelLocked() string {
	if s.state.Current == nil {
		return ""
	}
	return s.state.Current.Label()
}
