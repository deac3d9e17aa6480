package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/stream"
)

const (
	frameDuration  = 20 * time.Millisecond
	readyPollEvery = 100 * time.Millisecond
)

type packetReader interface {
	ReadPacket() ([]byte, error)
	Close()
}

func openOpus(r io.Reader) (packetReader, error) {
	rd, err := stream.NewOpusReader(r)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// Engine sends one resource at a time as 20ms opus frames.
type Engine struct {
	link  link
	log   *slog.Logger
	open  func(io.Reader) (packetReader, error)
	frame time.Duration

	mu      sync.Mutex
	state   player.EngineState
	cur     *playback
	onIdle  func()
	onError func(error)
}

type playback struct {
	p      player.Playable
	ctx    context.Context
	cancel context.CancelFunc

	// guarded by Engine.mu
	paused bool
	resume chan struct{}

	reported atomic.Bool
}

func NewEngine(l link, guildID string) *Engine {
	return &Engine{
		link:  l,
		log:   slog.With("component", "voice", "guildID", guildID),
		open:  openOpus,
		frame: frameDuration,
	}
}

func (e *Engine) OnIdle(fn func()) {
	e.mu.Lock()
	e.onIdle = fn
	e.mu.Unlock()
}

func (e *Engine) OnError(fn func(error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

func (e *Engine) State() player.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Play replaces whatever is playing. The replaced resource reports nothing.
func (e *Engine) Play(p player.Playable) {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{p: p, ctx: ctx, cancel: cancel}

	e.mu.Lock()
	if old := e.cur; old != nil {
		old.reported.Store(true)
		old.cancel()
		closeResource(old)
	}
	e.cur = pb
	e.state = player.EngineBuffering
	e.mu.Unlock()

	go e.run(pb)
}

func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	pb := e.cur
	if pb == nil || pb.paused {
		return false
	}
	pb.paused = true
	pb.resume = make(chan struct{})
	e.state = player.EnginePaused
	return true
}

func (e *Engine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	pb := e.cur
	if pb == nil || !pb.paused {
		return false
	}
	pb.paused = false
	close(pb.resume)
	e.state = player.EnginePlaying
	return true
}

// Stop ends the current resource and reports idle before returning. force
// also stops a paused resource.
func (e *Engine) Stop(force bool) bool {
	e.mu.Lock()
	pb := e.cur
	if pb == nil || (pb.paused && !force) {
		e.mu.Unlock()
		return false
	}
	e.cur = nil
	e.state = player.EngineIdle
	e.mu.Unlock()

	pb.cancel()
	closeResource(pb)
	e.report(pb, nil)
	return true
}

func (e *Engine) run(pb *playback) {
	err := e.stream(pb)
	closeResource(pb)

	e.mu.Lock()
	if e.cur == pb {
		e.cur = nil
		e.state = player.EngineIdle
	}
	e.mu.Unlock()

	if pb.ctx.Err() != nil {
		// stopped or replaced; a read error from the closed resource is expected
		err = nil
	}
	e.report(pb, err)
}

func (e *Engine) stream(pb *playback) error {
	rd, err := e.open(pb.p.Resource)
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer rd.Close()

	lim := rate.NewLimiter(rate.Every(e.frame), 1)
	speaking := false
	defer func() {
		if speaking {
			_ = e.link.Speaking(false)
		}
	}()

	for {
		if err := e.waitPlayable(pb); err != nil {
			return nil
		}

		pkt, err := rd.ReadPacket()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}

		if !speaking {
			speaking = true
			_ = e.link.Speaking(true)
			e.mu.Lock()
			if e.cur == pb && !pb.paused {
				e.state = player.EnginePlaying
			}
			e.mu.Unlock()
			e.log.Debug("first frame", "title", pb.p.Item.Label())
		}

		if err := lim.Wait(pb.ctx); err != nil {
			return nil
		}
		select {
		case e.link.Opus() <- pkt:
		case <-pb.ctx.Done():
			return nil
		}
	}
}

// waitPlayable blocks while paused or while the link is reconnecting.
func (e *Engine) waitPlayable(pb *playback) error {
	for {
		e.mu.Lock()
		paused, resume := pb.paused, pb.resume
		e.mu.Unlock()

		if paused {
			select {
			case <-pb.ctx.Done():
				return pb.ctx.Err()
			case <-resume:
			}
			continue
		}
		if e.link.Ready() {
			return pb.ctx.Err()
		}
		select {
		case <-pb.ctx.Done():
			return pb.ctx.Err()
		case <-time.After(readyPollEvery):
		}
	}
}

// report emits idle or error at most once per playback.
func (e *Engine) report(pb *playback, err error) {
	if !pb.reported.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	onIdle, onError := e.onIdle, e.onError
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("playback failed", "title", pb.p.Item.Label(), "err", err)
		if onError != nil {
			onError(err)
		}
		return
	}
	if onIdle != nil {
		onIdle()
	}
}

func closeResource(pb *playback) {
	if pb.p.Resource != nil {
		_ = pb.p.Resource.Close()
	}
}
