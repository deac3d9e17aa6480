package voice

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// link is the part of a discordgo voice connection the engine and watcher use.
type link interface {
	Ready() bool
	Speaking(on bool) error
	Opus() chan<- []byte
	Disconnect(ctx context.Context) error
}

type discordLink struct {
	vc *discordgo.VoiceConnection
}

func newDiscordLink(vc *discordgo.VoiceConnection) *discordLink {
	// Kill() panics on nil channels
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}
	return &discordLink{vc: vc}
}

func (l *discordLink) Ready() bool {
	l.vc.RLock()
	defer l.vc.RUnlock()
	return l.vc.Ready
}

func (l *discordLink) Speaking(on bool) error { return l.vc.Speaking(on) }

func (l *discordLink) Opus() chan<- []byte { return l.vc.OpusSend }

func (l *discordLink) Disconnect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "component", "voice", "panic", r, "guildID", l.vc.GuildID)
		}
	}()
	_ = l.vc.Speaking(false)
	// let pending sends drain
	time.Sleep(150 * time.Millisecond)
	return l.vc.Disconnect(ctx)
}
