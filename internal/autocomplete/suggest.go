package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"github.com/zmb3/spotify/v2"

	"github.com/sonroyaalmerol/suisei/internal/utils"
)

const (
	DefaultSuggestURL = "https://suggestqueries.google.com/complete/search"

	// discord rejects choices with longer names or values
	maxChoiceLen = 100
)

// CatalogSearcher is implemented by *spotify.Client from the internal package.
type CatalogSearcher interface {
	SearchAlbumsAndTracks(ctx context.Context, query string, limit int) ([]spotify.SimpleAlbum, []spotify.FullTrack, error)
}

type Suggester struct {
	endpoint string
	http     *http.Client
	catalog  CatalogSearcher
}

// New returns a Suggester. catalog may be nil when no credentials exist.
func New(endpoint string, hc *http.Client, catalog CatalogSearcher) *Suggester {
	if endpoint == "" {
		endpoint = DefaultSuggestURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}
	return &Suggester{endpoint: endpoint, http: hc, catalog: catalog}
}

func (s *Suggester) YouTube(ctx context.Context, query string) ([]string, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client", "firefox")
	q.Set("ds", "yt")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suggest: status %d", resp.StatusCode)
	}

	// ["query", ["suggestion", ...]]
	var parsed []any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed) < 2 {
		return nil, nil
	}
	arr, ok := parsed[1].([]any)
	if !ok {
		return nil, nil
	}
	return lo.FilterMap(arr, func(v any, _ int) (string, bool) {
		str, ok := v.(string)
		return str, ok && str != ""
	}), nil
}

// Choices mixes search suggestions with catalog albums and tracks, catalog
// results taking at most half of limit.
func (s *Suggester) Choices(ctx context.Context, query string, limit int) []*discordgo.ApplicationCommandOptionChoice {
	if limit <= 0 {
		limit = 10
	}

	yt, err := s.YouTube(ctx, query)
	if err != nil {
		slog.Debug("youtube suggestions failed", "component", "resolver", "err", err)
	}
	out := lo.Map(yt, func(v string, _ int) *discordgo.ApplicationCommandOptionChoice {
		return choice("YouTube: "+v, v)
	})
	out = lo.Slice(out, 0, limit)

	if s.catalog == nil {
		return out
	}
	albums, tracks, err := s.catalog.SearchAlbumsAndTracks(ctx, query, limit/2)
	if err != nil {
		slog.Debug("catalog suggestions failed", "component", "resolver", "err", err)
		return out
	}
	var extra []*discordgo.ApplicationCommandOptionChoice
	for _, a := range albums {
		artist := lo.FirstOrEmpty(a.Artists).Name
		extra = append(extra, choice(label("💿", a.Name, artist), "spotify:album:"+a.ID.String()))
	}
	for _, t := range tracks {
		artist := lo.FirstOrEmpty(t.Artists).Name
		extra = append(extra, choice(label("🎵", t.Name, artist), "spotify:track:"+t.ID.String()))
	}
	// make room
	keep := max(limit-len(extra), 0)
	out = append(lo.Slice(out, 0, keep), extra...)
	return lo.Slice(out, 0, limit)
}

func label(icon, name, artist string) string {
	l := fmt.Sprintf("Spotify: %s %s", icon, name)
	if artist != "" {
		l += " - " + artist
	}
	return l
}

func choice(name, value string) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{
		Name:  utils.Truncate(name, maxChoiceLen),
		Value: utils.Truncate(value, maxChoiceLen),
	}
}
