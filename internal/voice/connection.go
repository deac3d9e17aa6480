package voice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/suisei/internal/player"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	disconnectTimeout   = 3 * time.Second
)

var ErrDestroyed = errors.New("voice connection destroyed")

// Connection tracks a voice link's readiness and reports transitions.
// discordgo has no state callbacks, so a watcher polls the link.
type Connection struct {
	link      link
	channelID string
	log       *slog.Logger

	mu       sync.Mutex
	state    player.ConnState
	changed  chan struct{}
	listener func(player.ConnState)

	stop    chan struct{}
	destroy sync.Once
	gone    chan struct{}
}

func newConnection(l link, guildID, channelID string, poll time.Duration) *Connection {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	c := &Connection{
		link:      l,
		channelID: channelID,
		log:       slog.With("component", "voice", "guildID", guildID, "channelID", channelID),
		state:     player.ConnConnecting,
		changed:   make(chan struct{}),
		stop:      make(chan struct{}),
		gone:      make(chan struct{}),
	}
	go c.watch(poll)
	return c
}

func (c *Connection) ChannelID() string { return c.channelID }

func (c *Connection) State() player.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) OnStateChange(fn func(player.ConnState)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

func (c *Connection) WaitFor(ctx context.Context, states ...player.ConnState) error {
	for {
		c.mu.Lock()
		st, ch := c.state, c.changed
		c.mu.Unlock()

		if slices.Contains(states, st) {
			return nil
		}
		if st == player.ConnDestroyed {
			return ErrDestroyed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Destroy marks the connection destroyed at once and leaves the channel in
// the background.
func (c *Connection) Destroy() {
	c.destroy.Do(func() {
		close(c.stop)
		c.set(player.ConnDestroyed)
		go func() {
			defer close(c.gone)
			ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			defer cancel()
			if err := c.link.Disconnect(ctx); err != nil {
				c.log.Warn("voice disconnect failed", "err", err)
			}
		}()
	})
}

func (c *Connection) set(st player.ConnState) {
	c.mu.Lock()
	if c.state == st || c.state == player.ConnDestroyed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = st
	changed := c.changed
	c.changed = make(chan struct{})
	fn := c.listener
	c.mu.Unlock()

	c.log.Debug("voice state", "from", prev, "to", st)
	if fn != nil {
		fn(st)
	}
	// waiters wake after the listener has seen the transition
	close(changed)
}

func (c *Connection) watch(poll time.Duration) {
	t := time.NewTicker(poll)
	defer t.Stop()
	c.observe()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.observe()
		}
	}
}

func (c *Connection) observe() {
	if c.link.Ready() {
		c.set(player.ConnReady)
		return
	}
	if c.State() == player.ConnReady {
		c.set(player.ConnDisconnected)
	}
}

// Connector joins voice channels through a discordgo session.
type Connector struct {
	s    *discordgo.Session
	poll time.Duration
}

func NewConnector(s *discordgo.Session) *Connector {
	return &Connector{s: s, poll: defaultPollInterval}
}

// Join deafens the bot and returns the connection with an engine bound to it.
func (c *Connector) Join(ctx context.Context, guildID, channelID string) (player.Connection, player.Engine, error) {
	vc, err := c.s.ChannelVoiceJoin(ctx, guildID, channelID, false, true)
	if err != nil {
		return nil, nil, err
	}
	l := newDiscordLink(vc)
	return newConnection(l, guildID, channelID, c.poll), NewEngine(l, guildID), nil
}
