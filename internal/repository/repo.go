package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var ErrDuplicate = errors.New("already exists")

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// GetSettings returns the stored settings, or the defaults when the guild has
// never changed anything.
func (r *Repo) GetSettings(ctx context.Context, guild string) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT guild_id, queue_page_size, announce_now_playing, queue_add_ephemeral, leave_if_no_listeners
	FROM settings WHERE guild_id = ?`, guild)

	var s Settings
	var announce, ephemeral, leave int
	if err := row.Scan(&s.GuildID, &s.QueuePageSize, &announce, &ephemeral, &leave); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			def := DefaultSettings(guild)
			return &def, nil
		}
		return nil, err
	}
	s.AnnounceNowPlaying = announce != 0
	s.QueueAddEphemeral = ephemeral != 0
	s.LeaveIfNoListeners = leave != 0
	return &s, nil
}

func (r *Repo) SaveSettings(ctx context.Context, s *Settings) error {
	if s.QueuePageSize < 1 || s.QueuePageSize > 30 {
		return fmt.Errorf("queue page size must be between 1 and 30, got %d", s.QueuePageSize)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings(guild_id, queue_page_size, announce_now_playing, queue_add_ephemeral, leave_if_no_listeners)
		VALUES (?,?,?,?,?)
		ON CONFLICT(guild_id) DO UPDATE SET
		  queue_page_size=excluded.queue_page_size,
		  announce_now_playing=excluded.announce_now_playing,
		  queue_add_ephemeral=excluded.queue_add_ephemeral,
		  leave_if_no_listeners=excluded.leave_if_no_listeners`,
		s.GuildID, s.QueuePageSize, boolToInt(s.AnnounceNowPlaying),
		boolToInt(s.QueueAddEphemeral), boolToInt(s.LeaveIfNoListeners),
	)
	return err
}

func (r *Repo) AddFavorite(ctx context.Context, f *Favorite) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites(guild_id, author_id, name, query) VALUES (?,?,?,?)`,
		f.GuildID, f.Author, f.Name, f.Query,
	)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("favorite %q: %w", f.Name, ErrDuplicate)
		}
		return err
	}
	f.ID, _ = res.LastInsertId()
	return nil
}

func (r *Repo) RemoveFavorite(ctx context.Context, guild, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE guild_id=? AND name=?`, guild, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) FindFavorite(ctx context.Context, guild, name string) (*Favorite, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? AND name=?`, guild, name)
	var f Favorite
	if err := row.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("favorite %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

func (r *Repo) ListFavorites(ctx context.Context, guild string) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, guild_id, author_id, name, query FROM favorites WHERE guild_id=? ORDER BY name ASC`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.GuildID, &f.Author, &f.Name, &f.Query); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FavoriteNames returns up to limit names starting with prefix, for autocomplete.
func (r *Repo) FavoriteNames(ctx context.Context, guild, prefix string, limit int) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM favorites WHERE guild_id=? AND name LIKE ? ESCAPE '\' ORDER BY name ASC LIMIT ?`,
		guild, escaped+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
