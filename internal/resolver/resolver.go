package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/spotify"
	"github.com/sonroyaalmerol/suisei/internal/stream"
)

const (
	DefaultLimit = 25

	// SearchMarker makes yt-dlp pick the first search hit for the text after it.
	SearchMarker = "ytsearch1:"
)

var (
	reVideoID    = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&]|$)`)
	reVideoHost  = regexp.MustCompile(`(?i)^(https?://)?(www\.|m\.|music\.)?(youtube\.com|youtu\.be)/`)
	reListMarker = regexp.MustCompile(`[?&]list=`)
	reCollection = regexp.MustCompile(`(?i)open\.spotify\.com/(?:intl-[a-z-]+/)?(playlist|album)/([A-Za-z0-9]+)(?:\?|$)`)
	reTrack      = regexp.MustCompile(`(?i)open\.spotify\.com/(?:intl-[a-z-]+/)?track/`)
)

// Kind tells which branch produced a Result.
type Kind string

const (
	KindVideo      Kind = "video"
	KindPlaylist   Kind = "playlist"
	KindCollection Kind = "collection"
	KindTrack      Kind = "track"
	KindSearch     Kind = "search"
	KindFallback   Kind = "fallback"
)

// ResolutionError means nothing playable could be derived from the input.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PlaylistExtractor lists the entries of a video playlist.
type PlaylistExtractor interface {
	ExtractPlaylist(ctx context.Context, link string, limit int) ([]stream.PlaylistEntry, error)
}

// PlaylistExtractorFunc adapts a plain function such as stream.ExtractPlaylist.
type PlaylistExtractorFunc func(ctx context.Context, link string, limit int) ([]stream.PlaylistEntry, error)

func (f PlaylistExtractorFunc) ExtractPlaylist(ctx context.Context, link string, limit int) ([]stream.PlaylistEntry, error) {
	return f(ctx, link, limit)
}

// Catalog expands albums and playlists. Implemented by *spotify.Client.
type Catalog interface {
	CollectionTracks(ctx context.Context, kind spotify.Kind, id string, limit int) ([]spotify.Track, error)
}

// TrackMeta turns a single track link into a search query. Implemented by
// *spotify.OEmbed.
type TrackMeta interface {
	TrackQuery(ctx context.Context, link string) (string, error)
}

type Result struct {
	Kind  Kind
	Items []player.QueueItem
	// Source is the input after normalization.
	Source string
}

type Resolver struct {
	Playlists PlaylistExtractor
	// Catalog is nil when no catalog credentials are configured.
	Catalog   Catalog
	TrackMeta TrackMeta
	Limit     int

	log *slog.Logger
}

func New(playlists PlaylistExtractor, catalog Catalog, meta TrackMeta, limit int) *Resolver {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Resolver{
		Playlists: playlists,
		Catalog:   catalog,
		TrackMeta: meta,
		Limit:     limit,
		log:       slog.With("component", "resolver"),
	}
}

// Normalize rewrites a YouTube link carrying an 11 character video id to the
// canonical watch URL. Other input is returned trimmed.
func Normalize(raw string) string {
	target := strings.TrimSpace(raw)
	if !reVideoHost.MatchString(target) {
		return target
	}
	if m := reVideoID.FindStringSubmatch(target); m != nil {
		return "https://www.youtube.com/watch?v=" + m[1]
	}
	return target
}

// Resolve classifies raw and returns at most Limit queue items in order.
// The first matching rule wins.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{}, &ResolutionError{Reason: "empty input"}
	}

	res := Result{Source: raw}
	log := r.logger().With("input", raw)

	switch {
	// list= is checked on the raw input: normalizing would strip it
	case reListMarker.MatchString(raw):
		items, err := r.playlist(ctx, raw)
		if err != nil {
			return Result{}, err
		}
		res.Kind = KindPlaylist
		res.Items = items

	case reVideoHost.MatchString(raw) && reVideoID.MatchString(raw):
		target := Normalize(raw)
		res.Kind = KindVideo
		res.Source = target
		res.Items = []player.QueueItem{{Reference: target, Title: target}}

	case isCollection(raw):
		items, err := r.collection(ctx, raw)
		if err != nil {
			return Result{}, err
		}
		res.Kind = KindCollection
		res.Items = items

	case isTrack(raw):
		item, err := r.track(ctx, raw)
		if err != nil {
			return Result{}, err
		}
		res.Kind = KindTrack
		res.Items = []player.QueueItem{item}

	case !looksLikeLink(raw):
		res.Kind = KindSearch
		res.Items = []player.QueueItem{{Reference: SearchMarker + raw, Title: raw}}

	default:
		res.Kind = KindFallback
		res.Items = []player.QueueItem{{Reference: raw, Title: raw}}
	}

	log.Debug("resolved", "kind", res.Kind, "items", len(res.Items))
	return res, nil
}

func (r *Resolver) playlist(ctx context.Context, link string) ([]player.QueueItem, error) {
	if r.Playlists == nil {
		return nil, &ResolutionError{Reason: "playlist extraction is not available"}
	}
	entries, err := r.Playlists.ExtractPlaylist(ctx, link, r.limit())
	if err != nil {
		return nil, &ResolutionError{Reason: "could not read playlist", Err: err}
	}
	items := make([]player.QueueItem, 0, min(len(entries), r.limit()))
	for _, e := range entries {
		if len(items) >= r.limit() {
			break
		}
		if e.Link == "" {
			continue
		}
		items = append(items, player.QueueItem{Reference: e.Link, Title: e.Title})
	}
	if len(items) == 0 {
		return nil, &ResolutionError{Reason: "no tracks found"}
	}
	return items, nil
}

func (r *Resolver) collection(ctx context.Context, link string) ([]player.QueueItem, error) {
	if r.Catalog == nil {
		return nil, &ResolutionError{Reason: "spotify credentials are not configured"}
	}
	kind, id, err := collectionID(link)
	if err != nil {
		return nil, &ResolutionError{Reason: "invalid spotify link", Err: err}
	}
	tracks, err := r.Catalog.CollectionTracks(ctx, kind, id, r.limit())
	if err != nil {
		return nil, &ResolutionError{Reason: "cannot expand spotify " + string(kind), Err: err}
	}
	items := make([]player.QueueItem, 0, min(len(tracks), r.limit()))
	for _, t := range tracks {
		if len(items) >= r.limit() {
			break
		}
		q := t.Query()
		items = append(items, player.QueueItem{Reference: SearchMarker + q, Title: q})
	}
	if len(items) == 0 {
		return nil, &ResolutionError{Reason: "no tracks found"}
	}
	return items, nil
}

func (r *Resolver) track(ctx context.Context, link string) (player.QueueItem, error) {
	if r.TrackMeta == nil {
		return player.QueueItem{}, &ResolutionError{Reason: "track lookup is not available"}
	}
	if strings.HasPrefix(link, "spotify:") {
		_, id, err := spotify.ParseID(link)
		if err != nil {
			return player.QueueItem{}, &ResolutionError{Reason: "invalid spotify link", Err: err}
		}
		link = "https://open.spotify.com/track/" + string(id)
	}
	q, err := r.TrackMeta.TrackQuery(ctx, link)
	if err != nil {
		if errors.Is(err, spotify.ErrNoTitle) {
			return player.QueueItem{}, &ResolutionError{Reason: "no tracks found", Err: err}
		}
		return player.QueueItem{}, &ResolutionError{Reason: "cannot read spotify track", Err: err}
	}
	return player.QueueItem{Reference: SearchMarker + q, Title: q}, nil
}

func (r *Resolver) limit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultLimit
}

func (r *Resolver) logger() *slog.Logger {
	if r.log != nil {
		return r.log
	}
	return slog.With("component", "resolver")
}

func isCollection(s string) bool {
	if reCollection.MatchString(s) {
		return true
	}
	return strings.HasPrefix(s, "spotify:album:") || strings.HasPrefix(s, "spotify:playlist:")
}

func isTrack(s string) bool {
	return reTrack.MatchString(s) || strings.HasPrefix(s, "spotify:track:")
}

func collectionID(s string) (spotify.Kind, string, error) {
	if m := reCollection.FindStringSubmatch(s); m != nil {
		return spotify.Kind(strings.ToLower(m[1])), m[2], nil
	}
	kind, id, err := spotify.ParseID(s)
	if err != nil {
		return "", "", err
	}
	if kind != spotify.KindAlbum && kind != spotify.KindPlaylist {
		return "", "", fmt.Errorf("%w: %s", spotify.ErrUnsupported, kind)
	}
	return kind, string(id), nil
}

// looksLikeLink reports whether s should be handed to the streaming layer
// as is rather than searched for.
func looksLikeLink(s string) bool {
	if strings.Contains(s, "://") || strings.HasPrefix(s, "spotify:") || strings.HasPrefix(s, "ytsearch") {
		return true
	}
	return !strings.ContainsAny(s, " \t") && strings.Contains(s, ".") && strings.Contains(s, "/")
}
