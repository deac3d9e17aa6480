package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Track is one catalog entry reduced to what a search query needs.
type Track struct {
	Name   string
	Artist string
}

// Query is the "<artist> - <name>" form used for searching and display.
func (t Track) Query() string {
	return t.Artist + " - " + t.Name
}

type Kind string

const (
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindTrack    Kind = "track"
)

var ErrUnsupported = errors.New("unsupported spotify link")

type Client struct {
	raw *spotify.Client
}

type Option func(*options)

type options struct {
	tokenURL string
	baseURL  string
	http     *http.Client
}

// WithEndpoints points the client at a different token and API host.
func WithEndpoints(tokenURL, apiBaseURL string) Option {
	return func(o *options) {
		o.tokenURL = tokenURL
		o.baseURL = apiBaseURL
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.http = c }
}

// NewClientCredentials builds an app-only client. Tokens are fetched lazily
// on the first request and refreshed when they expire.
func NewClientCredentials(ctx context.Context, clientID, clientSecret string, opts ...Option) *Client {
	o := options{tokenURL: spotifyauth.TokenURL}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     o.tokenURL,
	}
	if o.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.http)
	}
	copts := []spotify.ClientOption{spotify.WithRetry(true)}
	if o.baseURL != "" {
		copts = append(copts, spotify.WithBaseURL(o.baseURL))
	}
	return &Client{raw: spotify.New(cfg.Client(ctx), copts...)}
}

// ParseID splits a catalog link or URI into its kind and id.
func ParseID(raw string) (Kind, spotify.ID, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 || parts[2] == "" {
			return "", "", fmt.Errorf("invalid spotify URI %q", raw)
		}
		return checkKind(parts[1], parts[2])
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host != "open.spotify.com" && u.Host != "www.open.spotify.com" {
		return "", "", fmt.Errorf("not a spotify URL: %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// localized links look like /intl-de/track/<id>
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path %q", u.Path)
	}
	return checkKind(parts[0], parts[1])
}

func checkKind(kind, id string) (Kind, spotify.ID, error) {
	switch k := Kind(strings.ToLower(kind)); k {
	case KindAlbum, KindPlaylist, KindTrack:
		return k, spotify.ID(id), nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

// CollectionTracks pages through an album or playlist and returns up to limit
// usable tracks. Tracks with no name or artist and local files are skipped
// and do not count toward limit.
func (c *Client) CollectionTracks(ctx context.Context, kind Kind, id string, limit int) ([]Track, error) {
	switch kind {
	case KindAlbum:
		return c.albumTracks(ctx, spotify.ID(id), limit)
	case KindPlaylist:
		return c.playlistTracks(ctx, spotify.ID(id), limit)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

func full(out []Track, limit int) bool {
	return limit > 0 && len(out) >= limit
}

func (c *Client) albumTracks(ctx context.Context, id spotify.ID, limit int) ([]Track, error) {
	page, err := c.raw.GetAlbumTracks(ctx, id, spotify.Limit(50))
	if err != nil {
		return nil, fmt.Errorf("album tracks: %w", err)
	}
	var out []Track
	for {
		for _, t := range page.Tracks {
			if full(out, limit) {
				return out, nil
			}
			if t.Name == "" || len(t.Artists) == 0 {
				continue
			}
			out = append(out, Track{Name: t.Name, Artist: t.Artists[0].Name})
		}
		if full(out, limit) || page.Next == "" {
			return out, nil
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return out, nil
			}
			return out, fmt.Errorf("album tracks next page: %w", err)
		}
	}
}

func (c *Client) playlistTracks(ctx context.Context, id spotify.ID, limit int) ([]Track, error) {
	page, err := c.raw.GetPlaylistItems(ctx, id, spotify.Limit(100))
	if err != nil {
		return nil, fmt.Errorf("playlist items: %w", err)
	}
	var out []Track
	for {
		for _, it := range page.Items {
			if full(out, limit) {
				return out, nil
			}
			t := it.Track.Track
			if t == nil || it.IsLocal {
				continue
			}
			if t.Name == "" || len(t.Artists) == 0 {
				continue
			}
			out = append(out, Track{Name: t.Name, Artist: t.Artists[0].Name})
		}
		if full(out, limit) || page.Next == "" {
			return out, nil
		}
		if err := c.raw.NextPage(ctx, page); err != nil {
			if errors.Is(err, spotify.ErrNoMorePages) {
				return out, nil
			}
			return out, fmt.Errorf("playlist items next page: %w", err)
		}
	}
}

func (c *Client) SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]spotify.SimpleAlbum, []spotify.FullTrack, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.raw.Search(ctx, query, spotify.SearchTypeAlbum|spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, nil, err
	}
	var albums []spotify.SimpleAlbum
	var tracks []spotify.FullTrack
	if res.Albums != nil {
		albums = res.Albums.Albums
	}
	if res.Tracks != nil {
		tracks = res.Tracks.Tracks
	}
	if len(albums) > limit {
		albums = albums[:limit]
	}
	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return albums, tracks, nil
}
