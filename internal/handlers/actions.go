package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/repository"
	"github.com/sonroyaalmerol/suisei/internal/resolver"
	"github.com/sonroyaalmerol/suisei/internal/ui"
	"github.com/sonroyaalmerol/suisei/internal/utils"
)

// response is what a command sends back, independent of how it is delivered.
type response struct {
	content   string
	embed     *discordgo.MessageEmbed
	ephemeral bool
}

func say(format string, args ...any) response {
	return response{content: fmt.Sprintf(format, args...)}
}

func whisper(format string, args ...any) response {
	return response{content: fmt.Sprintf(format, args...), ephemeral: true}
}

const (
	msgNothingPlaying = "❌ Nothing is playing."
	msgQueueEmpty     = "📭 Queue is empty."
)

// play resolves query, joins channelID when needed, queues the result and
// starts playback if nothing is bound to the engine.
func (h *CommandHandler) play(ctx context.Context, guildID, channelID, textChannelID, query string) response {
	query = strings.TrimSpace(query)
	if query == "" {
		return whisper("❌ Please provide a Spotify or YouTube link.")
	}
	if channelID == "" {
		return whisper("❌ You must join a voice channel first!")
	}

	res, err := h.res.Resolve(ctx, query)
	if err != nil {
		slog.Info("resolve failed", "guildID", guildID, "query", query, "err", err)
		var rerr *resolver.ResolutionError
		if errors.As(err, &rerr) {
			return say("⚠️ Could not queue that: %s", utils.EscapeMd(rerr.Error()))
		}
		return say("⚠️ Error: Could not play/enqueue.")
	}

	sess := h.reg.Get(guildID)
	if err := sess.Connect(ctx, channelID); err != nil {
		slog.Warn("voice connect failed", "guildID", guildID, "channelID", channelID, "err", err)
		var terr *player.ConnectionTimeoutError
		if errors.As(err, &terr) {
			return say("⚠️ Could not connect to the voice channel within %s.", terr.After)
		}
		return say("⚠️ Could not connect to the voice channel.")
	}
	if textChannelID != "" {
		h.announceIn.Store(guildID, textChannelID)
	}

	total := sess.Enqueue(res.Items...)
	started := sess.StartIfIdle()
	slog.Info("queued", "guildID", guildID, "kind", res.Kind, "added", len(res.Items), "queue", total, "started", started)

	switch res.Kind {
	case resolver.KindPlaylist:
		return say("📜 Queued **%d** tracks from the YouTube playlist.", len(res.Items))
	case resolver.KindCollection:
		kind := "album"
		if strings.Contains(res.Source, "playlist") {
			kind = "playlist"
		}
		return say("🎧 Queued **%d** tracks from the Spotify %s (matched on YouTube).", len(res.Items), kind)
	}
	return say("✅ Queued: **%s**", utils.EscapeMd(res.Items[0].Label()))
}

func (h *CommandHandler) skip(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgNothingPlaying)
	}
	if err := sess.Skip(); err != nil {
		return whisper(msgNothingPlaying)
	}
	return say("⏭️ Skipped.")
}

func (h *CommandHandler) pause(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgNothingPlaying)
	}
	ok, err := sess.Pause()
	switch {
	case err != nil:
		return whisper(msgNothingPlaying)
	case !ok:
		return whisper("⚠️ Already paused or cannot pause.")
	}
	return say("⏸️ Paused.")
}

func (h *CommandHandler) resume(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgNothingPlaying)
	}
	ok, err := sess.Resume()
	switch {
	case err != nil:
		return whisper(msgNothingPlaying)
	case !ok:
		return whisper("⚠️ Already playing or cannot resume.")
	}
	return say("▶️ Resumed.")
}

func (h *CommandHandler) stop(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil || errors.Is(sess.Stop(), player.ErrNothingToStop) {
		return whisper("ℹ️ Nothing to stop.")
	}
	return say("🛑 Stopped and cleared the queue.")
}

func (h *CommandHandler) loop(guildID, mode string) response {
	got, err := h.reg.Get(guildID).SetLoopMode(mode)
	if err != nil {
		return whisper("❌ Invalid mode. Use: off, track, or queue.")
	}
	return say("🔁 Loop mode set to **%s**.", got)
}

func (h *CommandHandler) shuffle(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgQueueEmpty)
	}
	n, err := sess.ShuffleUpcoming()
	if err != nil {
		return whisper("ℹ️ Need at least 2 tracks in the upcoming queue to shuffle.")
	}
	return say("🔀 Shuffled **%d** upcoming tracks.", n)
}

func (h *CommandHandler) queue(ctx context.Context, guildID string, page int) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgQueueEmpty)
	}
	pageSize := repository.DefaultSettings(guildID).QueuePageSize
	if set, err := h.repo.GetSettings(ctx, guildID); err == nil {
		pageSize = set.QueuePageSize
	} else {
		slog.Warn("get settings failed", "guildID", guildID, "err", err)
	}
	embed, err := ui.BuildQueueEmbed(sess.Snapshot(), page, pageSize)
	if errors.Is(err, ui.ErrQueueEmpty) {
		return whisper(msgQueueEmpty)
	}
	if err != nil {
		return whisper("%s", err.Error())
	}
	return response{embed: embed}
}

func (h *CommandHandler) nowPlaying(guildID string) response {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return whisper(msgNothingPlaying)
	}
	snap := sess.Snapshot()
	if snap.Current == nil {
		return whisper(msgNothingPlaying)
	}
	return response{embed: ui.BuildPlayingEmbed(*snap.Current, snap)}
}

// leaveIfAlone stops the guild's session when its channel has no listeners
// and the guild wants that.
func (h *CommandHandler) leaveIfAlone(ctx context.Context, guildID string, listeners func(channelID string) int) bool {
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return false
	}
	ch := sess.ChannelID()
	if ch == "" {
		return false
	}
	set, err := h.repo.GetSettings(ctx, guildID)
	if err != nil || !set.LeaveIfNoListeners {
		return false
	}
	if listeners(ch) > 0 {
		return false
	}
	slog.Info("leaving empty channel", "guildID", guildID, "channelID", ch)
	_ = sess.Stop()
	return true
}
