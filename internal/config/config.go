package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getbool(key string, def bool) bool {
	v, err := strconv.ParseBool(getenv(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}

func getint(key string, def int64) (int64, error) {
	raw := getenv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrConfig(fmt.Sprintf("%s must be a positive integer, got %q", key, raw))
	}
	return v, nil
}

// LoadConfig reads an optional .env file from the working directory and
// then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		DiscordToken:          getenv("DISCORD_TOKEN", ""),
		SpotifyClientID:       getenv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret:   getenv("SPOTIFY_CLIENT_SECRET", ""),
		DataDir:               getenv("DATA_DIR", "./data"),
		BotStatus:             getenv("BOT_STATUS", "online"),
		BotActivity:           getenv("BOT_ACTIVITY", "music"),
		RegisterCommandsOnBot: getbool("REGISTER_COMMANDS_ON_BOT", false),
		Debug:                 getbool("DEBUG", false),
		LimitRate:             getenv("YTDLP_LIMIT_RATE", "1.5M"),
	}
	if cfg.DiscordToken == "" {
		return nil, ErrConfig("DISCORD_TOKEN required")
	}

	limit, err := getint("ENQUEUE_LIMIT", 25)
	if err != nil {
		return nil, err
	}
	cfg.EnqueueLimit = int(limit)

	if cfg.PrefetchBytes, err = getint("PREFETCH_BYTES", 2<<20); err != nil {
		return nil, err
	}
	ms, err := getint("PREFETCH_MS", 1200)
	if err != nil {
		return nil, err
	}
	cfg.PrefetchWindow = time.Duration(ms) * time.Millisecond

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// HasSpotify reports whether catalog links can be resolved.
func (c *Config) HasSpotify() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
