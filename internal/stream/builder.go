package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sonroyaalmerol/suisei/internal/player"
)

type BuilderOptions struct {
	PrefetchBytes  int64
	PrefetchWindow time.Duration
	SpoolLimit     int
}

// Builder turns queue items into playable resources backed by a spawned
// decode process and a prefetching spool.
type Builder struct {
	ctx     context.Context
	spawner Spawner
	opts    BuilderOptions
}

func NewBuilder(ctx context.Context, spawner Spawner, opts BuilderOptions) *Builder {
	return &Builder{ctx: ctx, spawner: spawner, opts: opts}
}

// Build never fails. A spawn error is delivered to the engine as the first
// read from the resource.
func (b *Builder) Build(item player.QueueItem) player.Playable {
	log := slog.With("component", "stream", "trace", uuid.NewString(), "reference", item.Reference)
	spool := NewSpool(b.opts.SpoolLimit)

	proc, out, err := b.spawner.Spawn(b.ctx, item.Reference)
	if err != nil {
		log.Error("spawn decode process", "err", err)
		spool.CloseWithError(fmt.Errorf("spawn decode process: %w", err))
		return player.Playable{Item: item, Process: noopProcess{}, Resource: spool}
	}

	NewPrefetcher(out, spool, b.opts.PrefetchBytes, b.opts.PrefetchWindow, log).Start()
	log.Debug("resource built", "title", item.Label())
	return player.Playable{Item: item, Process: proc, Resource: spool}
}
