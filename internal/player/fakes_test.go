package player

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

type fakeConn struct {
	mu        sync.Mutex
	channelID string
	state     ConnState
	listener  func(ConnState)
	destroyed int
	// waitFor overrides WaitFor when set
	waitFor func(ctx context.Context, states ...ConnState) error
}

func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) WaitFor(ctx context.Context, states ...ConnState) error {
	if c.waitFor != nil {
		return c.waitFor(ctx, states...)
	}
	tick := time.NewTicker(time.Millisecond)
	defer tick.Stop()
	for {
		if slices.Contains(states, c.State()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (c *fakeConn) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

func (c *fakeConn) set(st ConnState) {
	c.mu.Lock()
	c.state = st
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (c *fakeConn) Destroy() {
	c.mu.Lock()
	c.destroyed++
	c.mu.Unlock()
	c.set(ConnDestroyed)
}

type fakeEngine struct {
	mu      sync.Mutex
	state   EngineState
	played  []Playable
	stops   int
	onIdle  func()
	onError func(error)
}

func (e *fakeEngine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) Play(p Playable) {
	e.mu.Lock()
	e.state = EnginePlaying
	e.played = append(e.played, p)
	e.mu.Unlock()
}

func (e *fakeEngine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EnginePlaying {
		return false
	}
	e.state = EnginePaused
	return true
}

func (e *fakeEngine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != EnginePaused {
		return false
	}
	e.state = EnginePlaying
	return true
}

// Stop reports idle synchronously, like an engine whose stop unwinds inline.
func (e *fakeEngine) Stop(bool) bool {
	e.mu.Lock()
	e.stops++
	wasActive := e.state != EngineIdle
	e.state = EngineIdle
	fn := e.onIdle
	e.mu.Unlock()
	if wasActive && fn != nil {
		fn()
	}
	return wasActive
}

func (e *fakeEngine) OnIdle(fn func())       { e.onIdle = fn }
func (e *fakeEngine) OnError(fn func(error)) { e.onError = fn }

// finish ends the current resource naturally.
func (e *fakeEngine) finish() {
	e.mu.Lock()
	e.state = EngineIdle
	fn := e.onIdle
	e.mu.Unlock()
	fn()
}

func (e *fakeEngine) fail(err error) {
	e.mu.Lock()
	e.state = EngineIdle
	fn := e.onError
	e.mu.Unlock()
	fn(err)
}

func (e *fakeEngine) playedTitles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.played))
	for i, p := range e.played {
		out[i] = p.Item.Title
	}
	return out
}

type fakeProcess struct {
	mu         sync.Mutex
	terminated int
}

func (p *fakeProcess) Terminate() {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()
}

func (p *fakeProcess) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

type fakeBuilder struct {
	mu    sync.Mutex
	procs []*fakeProcess
}

func (b *fakeBuilder) Build(item QueueItem) Playable {
	p := &fakeProcess{}
	b.mu.Lock()
	b.procs = append(b.procs, p)
	b.mu.Unlock()
	return Playable{Item: item, Process: p, Resource: io.NopCloser(strings.NewReader(item.Title))}
}

func (b *fakeBuilder) last() *fakeProcess {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.procs) == 0 {
		return nil
	}
	return b.procs[len(b.procs)-1]
}

type fakeConnector struct {
	mu      sync.Mutex
	joins   int
	conns   []*fakeConn
	engines []*fakeEngine
	err     error
	// initial is the state each new connection starts in
	initial ConnState
}

func (f *fakeConnector) Join(_ context.Context, _ string, channelID string) (Connection, Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.err != nil {
		return nil, nil, f.err
	}
	c := &fakeConn{channelID: channelID, state: f.initial}
	e := &fakeEngine{}
	f.conns = append(f.conns, c)
	f.engines = append(f.engines, e)
	return c, e, nil
}

func (f *fakeConnector) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *fakeConnector) lastEngine() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[len(f.engines)-1]
}

var errBoom = errors.New("boom")
