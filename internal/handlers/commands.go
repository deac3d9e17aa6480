package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"

	"github.com/sonroyaalmerol/suisei/internal/config"
	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/repository"
	"github.com/sonroyaalmerol/suisei/internal/resolver"
	"github.com/sonroyaalmerol/suisei/internal/ui"
	"github.com/sonroyaalmerol/suisei/internal/utils"
)

const playTimeout = 90 * time.Second

type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolver.Result, error)
}

type Suggester interface {
	Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice
}

type CommandHandler struct {
	ctx  context.Context
	cfg  *config.Config
	repo *repository.Repo
	favs *repository.FavoritesService
	reg  *player.Registry
	res  Resolver
	sug  Suggester

	// guildID -> text channel of the last /play, for now-playing announcements
	announceIn sync.Map
}

func NewCommandHandler(
	ctx context.Context,
	cfg *config.Config,
	repo *repository.Repo,
	reg *player.Registry,
	res Resolver,
	sug Suggester,
) *CommandHandler {
	return &CommandHandler{
		ctx:  ctx,
		cfg:  cfg,
		repo: repo,
		favs: repository.NewFavoritesService(repo),
		reg:  reg,
		res:  res,
		sug:  sug,
	}
}

func boolOpt(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Name: name, Description: desc, Type: discordgo.ApplicationCommandOptionBoolean, Required: true}
}

func commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a YouTube or Spotify link, playlist, album or search",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "link or search text", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
			},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "stop", Description: "Stop, clear the queue and leave"},
		{Name: "now-playing", Description: "Show the current track"},
		{Name: "shuffle", Description: "Shuffle the upcoming queue"},
		{
			Name:        "queue",
			Description: "Show the current queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "page", Description: "page of queue to show [default: 1]", Type: discordgo.ApplicationCommandOptionInteger},
			},
		},
		{
			Name:        "loop",
			Description: "Set loop mode",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "mode", Description: "off, track or queue", Type: discordgo.ApplicationCommandOptionString, Required: true,
					Choices: lo.Map([]player.LoopMode{player.LoopOff, player.LoopTrack, player.LoopQueue}, func(m player.LoopMode, _ int) *discordgo.ApplicationCommandOptionChoice {
						return &discordgo.ApplicationCommandOptionChoice{Name: string(m), Value: string(m)}
					}),
				},
			},
		},
		{
			Name:        "favorites",
			Description: "Manage favorites",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "use", Description: "play a favorite",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "favorite name", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "list favorites"},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "create", Description: "create favorite",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "name", Type: discordgo.ApplicationCommandOptionString, Required: true},
						{Name: "query", Description: "link or search text", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "remove", Description: "remove favorite",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "name", Type: discordgo.ApplicationCommandOptionString, Required: true, Autocomplete: true},
					},
				},
			},
		},
		{
			Name:        "config",
			Description: "Configure bot settings",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "get", Description: "show settings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-announce-now-playing", Description: "announce each track as it starts", Options: []*discordgo.ApplicationCommandOption{
					boolOpt("value", "true/false"),
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-leave-if-no-listeners", Description: "leave when no listeners", Options: []*discordgo.ApplicationCommandOption{
					boolOpt("value", "true/false"),
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-queue-add-response-hidden", Description: "ephemeral queue add responses", Options: []*discordgo.ApplicationCommandOption{
					boolOpt("value", "true/false"),
				}},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "set-queue-page-size", Description: "queue page size", Options: []*discordgo.ApplicationCommandOption{
					{Name: "page_size", Description: "1-30", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
				}},
			},
		},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string, guildID string) error {
	start := time.Now()
	slog.Info("registering application commands", "appID", appID, "guildID", guildID)

	cmds := commands()
	for _, c := range cmds {
		if _, err := s.ApplicationCommandCreate(appID, guildID, c); err != nil {
			slog.Error("failed to create application command", "guildID", guildID, "command", c.Name, "err", err)
			return err
		}
		slog.Debug("registered command", "guildID", guildID, "command", c.Name)
	}

	slog.Info("finished registering commands", "guildID", guildID, "count", len(cmds), "took", time.Since(start))
	return nil
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		slog.Debug("interaction: application command", "guildID", i.GuildID, "userID", userIDOf(i), "command", i.ApplicationCommandData().Name)
		h.handleChatCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		h.handleAutocomplete(s, i)
	default:
		slog.Debug("interaction: ignored type", "type", i.Type, "guildID", i.GuildID)
	}
}

func (h *CommandHandler) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	opts := data.Options
	if data.Name == "favorites" && len(opts) > 0 {
		opts = opts[0].Options
	}
	var focused string
	for _, opt := range opts {
		if opt.Focused {
			focused = opt.StringValue()
			break
		}
	}

	ctx, cancel := context.WithTimeout(h.ctx, 2500*time.Millisecond)
	defer cancel()

	choices := []*discordgo.ApplicationCommandOptionChoice{}
	switch data.Name {
	case "play":
		if strings.TrimSpace(focused) != "" && h.sug != nil {
			choices = h.sug.Choices(ctx, focused, 10)
		}
	case "favorites":
		names, err := h.favs.Suggest(ctx, i.GuildID, focused)
		if err != nil {
			slog.Warn("favorite suggestions failed", "guildID", i.GuildID, "err", err)
		}
		choices = lo.Map(names, func(n string, _ int) *discordgo.ApplicationCommandOptionChoice {
			return &discordgo.ApplicationCommandOptionChoice{Name: n, Value: n}
		})
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}); err != nil {
		slog.Debug("autocomplete respond failed", "guildID", i.GuildID, "err", err)
	}
}

func (h *CommandHandler) handleChatCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	gid := i.GuildID
	switch data.Name {
	case "play":
		h.cmdPlay(s, i, optString(data.Options, "query"))
	case "skip":
		h.send(s, i, h.skip(gid))
	case "pause":
		h.send(s, i, h.pause(gid))
	case "resume":
		h.send(s, i, h.resume(gid))
	case "stop":
		h.send(s, i, h.stop(gid))
	case "now-playing":
		h.send(s, i, h.nowPlaying(gid))
	case "shuffle":
		h.send(s, i, h.shuffle(gid))
	case "queue":
		page := int(optInt(data.Options, "page", 1))
		h.send(s, i, h.queue(h.ctx, gid, page))
	case "loop":
		h.send(s, i, h.loop(gid, optString(data.Options, "mode")))
	case "favorites":
		h.cmdFavorites(s, i)
	case "config":
		h.send(s, i, h.configure(h.ctx, gid, data.Options[0]))
	default:
		slog.Debug("unknown command", "name", data.Name, "guildID", gid, "userID", userIDOf(i))
		return
	}
	slog.Info("cmd "+data.Name, "guildID", gid, "userID", userIDOf(i))
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate, query string) {
	chID, ok := userInVoice(s, i.GuildID, userIDOf(i))
	if !ok {
		h.send(s, i, whisper("❌ You must join a voice channel first!"))
		return
	}

	ephemeral := false
	if set, err := h.repo.GetSettings(h.ctx, i.GuildID); err == nil {
		ephemeral = set.QueueAddEphemeral
	}
	h.deferReply(s, i, ephemeral)

	ctx, cancel := context.WithTimeout(h.ctx, playTimeout)
	defer cancel()
	resp := h.play(ctx, i.GuildID, chID, i.ChannelID, query)
	h.editReply(s, i, resp)
}

func (h *CommandHandler) cmdFavorites(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := i.ApplicationCommandData().Options[0]
	name := optString(sub.Options, "name")

	switch sub.Name {
	case "use":
		f, err := h.favs.Use(h.ctx, i.GuildID, name)
		if err != nil {
			h.send(s, i, whisper("no favorite with that name exists"))
			return
		}
		h.cmdPlay(s, i, f.Query)
	default:
		h.send(s, i, h.favorites(h.ctx, i.GuildID, userIDOf(i), canManage(i), sub))
	}
}

func (h *CommandHandler) favorites(ctx context.Context, guildID, userID string, admin bool, sub *discordgo.ApplicationCommandInteractionDataOption) response {
	name := optString(sub.Options, "name")
	switch sub.Name {
	case "create":
		err := h.favs.Create(ctx, guildID, userID, name, optString(sub.Options, "query"))
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return whisper("a favorite with that name already exists")
		case errors.Is(err, repository.ErrInvalidFavorite):
			return whisper("name and query can't be empty")
		case err != nil:
			slog.Warn("favorite create failed", "guildID", guildID, "name", name, "err", err)
			return whisper("failed to create favorite")
		}
		return say("👍 favorite created")
	case "remove":
		err := h.favs.Remove(ctx, guildID, userID, name, admin)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return whisper("no favorite with that name exists")
		case errors.Is(err, repository.ErrNotOwner):
			return whisper("you can only remove your own favorites")
		case err != nil:
			slog.Warn("favorite remove failed", "guildID", guildID, "name", name, "err", err)
			return whisper("failed to remove favorite")
		}
		return say("👍 favorite removed")
	case "list":
		items, err := h.favs.List(ctx, guildID)
		if err != nil {
			slog.Warn("favorite list failed", "guildID", guildID, "err", err)
		}
		if len(items) == 0 {
			return say("there aren't any favorites yet")
		}
		lines := lo.Map(items, func(f repository.Favorite, _ int) string {
			return fmt.Sprintf("• %s: %s (<@%s>)", utils.EscapeMd(f.Name), utils.EscapeMd(f.Query), f.Author)
		})
		return whisper("%s", strings.Join(lines, "\n"))
	}
	return whisper("unknown subcommand")
}

func (h *CommandHandler) configure(ctx context.Context, guildID string, sub *discordgo.ApplicationCommandInteractionDataOption) response {
	set, err := h.repo.GetSettings(ctx, guildID)
	if err != nil {
		slog.Error("get settings failed", "guildID", guildID, "err", err)
		return whisper("failed to fetch config")
	}
	if sub.Name == "get" {
		return say("Config\n- Queue page size: %d\n- Announce now playing: %t\n- Leave if no listeners: %t\n- Add to queue responses hidden: %t",
			set.QueuePageSize, set.AnnounceNowPlaying, set.LeaveIfNoListeners, set.QueueAddEphemeral)
	}

	var key string
	switch sub.Name {
	case "set-announce-now-playing":
		key, set.AnnounceNowPlaying = "announce", optBool(sub.Options, "value")
	case "set-leave-if-no-listeners":
		key, set.LeaveIfNoListeners = "leave setting", optBool(sub.Options, "value")
	case "set-queue-add-response-hidden":
		key, set.QueueAddEphemeral = "queue add notification setting", optBool(sub.Options, "value")
	case "set-queue-page-size":
		key, set.QueuePageSize = "queue page size", int(optInt(sub.Options, "page_size", 0))
	default:
		return whisper("unknown subcommand")
	}
	if err := h.repo.SaveSettings(ctx, set); err != nil {
		slog.Warn("save settings failed", "guildID", guildID, "setting", sub.Name, "err", err)
		return whisper("%s", err.Error())
	}
	slog.Info("config updated", "guildID", guildID, "setting", sub.Name)
	return say("👍 %s updated", key)
}

// Announce posts the now-playing embed in the text channel of the guild's
// last /play, when the guild has announcements on.
func (h *CommandHandler) Announce(s *discordgo.Session, guildID string, item player.QueueItem) {
	v, ok := h.announceIn.Load(guildID)
	if !ok {
		return
	}
	set, err := h.repo.GetSettings(h.ctx, guildID)
	if err != nil || !set.AnnounceNowPlaying {
		return
	}
	sess := h.reg.Peek(guildID)
	if sess == nil {
		return
	}
	if _, err := s.ChannelMessageSendEmbed(v.(string), ui.BuildPlayingEmbed(item, sess.Snapshot())); err != nil {
		slog.Debug("announce failed", "guildID", guildID, "err", err)
	}
}

func (h *CommandHandler) send(s *discordgo.Session, i *discordgo.InteractionCreate, r response) {
	data := &discordgo.InteractionResponseData{Content: r.content}
	if r.embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{r.embed}
	}
	if r.ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	}); err != nil {
		slog.Warn("defer reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, r response) {
	edit := &discordgo.WebhookEdit{Content: &r.content}
	if r.embed != nil {
		edit.Embeds = &[]*discordgo.MessageEmbed{r.embed}
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit); err != nil {
		slog.Warn("edit reply failed", "guildID", i.GuildID, "userID", userIDOf(i), "err", err)
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (channelID string, ok bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

func canManage(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageServer != 0
}

func optString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			return o.StringValue()
		}
	}
	return ""
}

func optInt(opts []*discordgo.ApplicationCommandInteractionDataOption, name string, def int64) int64 {
	for _, o := range opts {
		if o.Name == name {
			return o.IntValue()
		}
	}
	return def
}

func optBool(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) bool {
	for _, o := range opts {
		if o.Name == name {
			return o.BoolValue()
		}
	}
	return false
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i == nil || i.Member == nil || i.Member.User == nil {
		return ""
	}
	return i.Member.User.ID
}
