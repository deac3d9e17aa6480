package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sonroyaalmerol/suisei/internal/cache"
	"github.com/sonroyaalmerol/suisei/internal/utils"
)

const DefaultOEmbedURL = "https://open.spotify.com/oembed"

var ErrNoTitle = errors.New("spotify oEmbed returned no title")

// separators between track and artist in oEmbed titles, e.g. "Song · Artist"
var reTitleSep = regexp.MustCompile(`\s*[—·]\s*`)

// OEmbed reads public track metadata without credentials. Titles are cached
// by source link.
type OEmbed struct {
	endpoint string
	http     *http.Client
	cache    *cache.FIFO[string, string]
}

func NewOEmbed(endpoint string, hc *http.Client) *OEmbed {
	if endpoint == "" {
		endpoint = DefaultOEmbedURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &OEmbed{endpoint: endpoint, http: hc, cache: cache.NewFIFO[string, string](100)}
}

// NormalizeTitle replaces em-dash and middle-dot separators with " - ".
func NormalizeTitle(title string) string {
	return strings.TrimSpace(reTitleSep.ReplaceAllString(title, " - "))
}

// TrackQuery returns a normalized "<title> - <artist>" string for a track link.
func (o *OEmbed) TrackQuery(ctx context.Context, link string) (string, error) {
	if q, ok := o.cache.Get(link); ok {
		return q, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.endpoint+"?url="+url.QueryEscape(link), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", utils.RandomUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("oembed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return "", fmt.Errorf("oembed HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var meta struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", fmt.Errorf("decode oembed: %w", err)
	}
	q := NormalizeTitle(meta.Title)
	if q == "" {
		return "", ErrNoTitle
	}
	o.cache.Set(link, q)
	return q, nil
}
