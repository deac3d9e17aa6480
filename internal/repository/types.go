package repository

import (
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	db *sql.DB
}

// Settings are per-guild preferences. Missing rows read as DefaultSettings.
type Settings struct {
	GuildID            string
	QueuePageSize      int
	AnnounceNowPlaying bool
	QueueAddEphemeral  bool
	LeaveIfNoListeners bool
}

func DefaultSettings(guild string) Settings {
	return Settings{
		GuildID:            guild,
		QueuePageSize:      10,
		AnnounceNowPlaying: true,
		LeaveIfNoListeners: true,
	}
}

type Favorite struct {
	ID      int64
	GuildID string
	Author  string
	Name    string
	Query   string
}
