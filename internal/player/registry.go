package player

import (
	"context"
	"sync"
)

// Registry owns one Session per guild, created on first use.
type Registry struct {
	ctx  context.Context
	deps *Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(ctx context.Context, deps Deps) *Registry {
	return &Registry{
		ctx:      ctx,
		deps:     &deps,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[guildID]; ok {
		return s
	}
	s := NewSession(guildID, r.deps)
	r.sessions[guildID] = s
	go s.run(r.ctx)
	return s
}

// Peek returns the session for guildID without creating one.
func (r *Registry) Peek(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Shutdown stops every session that still holds a transport.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()
	for _, s := range all {
		_ = s.Stop()
	}
}
