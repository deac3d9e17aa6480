package config

import "time"

type Config struct {
	DiscordToken          string
	SpotifyClientID       string
	SpotifyClientSecret   string
	DataDir               string
	BotStatus             string // online/dnd/idle
	BotActivity           string
	RegisterCommandsOnBot bool
	Debug                 bool

	// EnqueueLimit caps how many tracks one collection link may add.
	EnqueueLimit   int
	PrefetchBytes  int64
	PrefetchWindow time.Duration
	// LimitRate is passed to yt-dlp verbatim, e.g. "1.5M".
	LimitRate string
}
