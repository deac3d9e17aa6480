package handlers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/suisei/internal/autocomplete"
	"github.com/sonroyaalmerol/suisei/internal/config"
	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/repository"
	"github.com/sonroyaalmerol/suisei/internal/resolver"
	"github.com/sonroyaalmerol/suisei/internal/spotify"
	"github.com/sonroyaalmerol/suisei/internal/stream"
	"github.com/sonroyaalmerol/suisei/internal/voice"
)

const spoolLimit = 32 << 20

type Bot struct {
	cfg  *config.Config
	repo *repository.Repo
}

func NewBot(cfg *config.Config, repo *repository.Repo) *Bot {
	return &Bot{cfg: cfg, repo: repo}
}

// wire builds the playback stack on top of an opened-or-not discord session.
func (b *Bot) wire(ctx context.Context, dg *discordgo.Session) (*CommandHandler, *player.Registry) {
	builder := stream.NewBuilder(ctx, &stream.YtdlpSpawner{LimitRate: b.cfg.LimitRate, Retries: "3"}, stream.BuilderOptions{
		PrefetchBytes:  b.cfg.PrefetchBytes,
		PrefetchWindow: b.cfg.PrefetchWindow,
		SpoolLimit:     spoolLimit,
	})

	var (
		catalog  resolver.Catalog
		searcher autocomplete.CatalogSearcher
	)
	if b.cfg.HasSpotify() {
		sp := spotify.NewClientCredentials(ctx, b.cfg.SpotifyClientID, b.cfg.SpotifyClientSecret)
		catalog, searcher = sp, sp
	} else {
		slog.Warn("spotify credentials not set, album and playlist links are disabled")
	}
	res := resolver.New(resolver.PlaylistExtractorFunc(stream.ExtractPlaylist), catalog, spotify.NewOEmbed("", nil), b.cfg.EnqueueLimit)
	sug := autocomplete.New(autocomplete.DefaultSuggestURL, nil, searcher)

	var cmd *CommandHandler
	reg := player.NewRegistry(ctx, player.Deps{
		Connector: voice.NewConnector(dg),
		Builder:   builder,
		OnTrackStart: func(guildID string, item player.QueueItem) {
			cmd.Announce(dg, guildID, item)
		},
	})
	cmd = NewCommandHandler(ctx, b.cfg, b.repo, reg, res, sug)
	return cmd, reg
}

func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	cmd, reg := b.wire(ctx, dg)
	defer reg.Shutdown()

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("connected", "user", s.State.User.Username, "guilds", len(r.Guilds))
		b.setPresence(s)
		appID := s.State.User.ID

		if b.cfg.RegisterCommandsOnBot {
			if err := cmd.RegisterCommands(s, appID, ""); err != nil {
				slog.Error("register global commands", "err", err)
			} else {
				slog.Info("registered global application commands")
			}
			return
		}

		var wg sync.WaitGroup
		for _, g := range s.State.Guilds {
			wg.Add(1)
			go func(guildID string) {
				defer wg.Done()
				if err := cmd.RegisterCommands(s, appID, guildID); err != nil {
					slog.Error("register guild commands", "guild", guildID, "err", err)
				}
			}(g.ID)
		}
		wg.Wait()

		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", []*discordgo.ApplicationCommand{}); err != nil {
			slog.Error("clear global commands", "err", err)
		} else {
			slog.Info("cleared global application commands")
		}
		slog.Info("registered commands on all guilds")
	})

	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if b.cfg.RegisterCommandsOnBot {
			return
		}
		if err := cmd.RegisterCommands(s, s.State.User.ID, g.ID); err != nil {
			slog.Error("register guild commands on join", "guild", g.ID, "err", err)
		} else {
			slog.Info("registered commands on new guild", "guild", g.ID)
		}
	})

	dg.AddHandler(cmd.HandleInteraction)

	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		cmd.leaveIfAlone(ctx, vs.GuildID, func(channelID string) int {
			return getNonBotSize(s, vs.GuildID, channelID)
		})
	})

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func (b *Bot) setPresence(s *discordgo.Session) {
	err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: b.cfg.BotStatus,
		Activities: []*discordgo.Activity{
			{Name: b.cfg.BotActivity, Type: discordgo.ActivityTypeListening},
		},
	})
	if err != nil {
		slog.Warn("update presence", "err", err)
	}
}

func getNonBotSize(s *discordgo.Session, guildID, channelID string) int {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		return 0
	}
	n := 0
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			m, _ := s.State.Member(guildID, vs.UserID)
			if m != nil && m.User != nil && !m.User.Bot {
				n++
			}
		}
	}
	return n
}
