package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

type PlaylistEntry struct {
	Link  string
	Title string
}

// ExtractPlaylist lists up to limit entries of a playlist without resolving
// each one.
func ExtractPlaylist(ctx context.Context, url string, limit int) ([]PlaylistEntry, error) {
	if limit <= 0 {
		limit = 25
	}
	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(url)s\t%(id)s\t%(title)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--yes-playlist", url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp playlist fetch failed for %s: %w", url, err)
	}

	entries := parsePlaylistOutput(res.Stdout, limit)
	slog.Debug("playlist extracted", "component", "stream", "url", url, "entries", len(entries))
	return entries, nil
}

func parsePlaylistOutput(stdout string, limit int) []PlaylistEntry {
	out := make([]PlaylistEntry, 0, limit)
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if len(out) >= limit {
			break
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			continue
		}
		link := entryLink(parts[0], parts[1])
		if link == "" {
			continue
		}
		title := strings.TrimSpace(parts[2])
		if title == "" || title == "NA" {
			title = link
		}
		out = append(out, PlaylistEntry{Link: link, Title: title})
	}
	return out
}

func entryLink(url, id string) string {
	url = strings.TrimSpace(url)
	id = strings.TrimSpace(id)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if id != "" && id != "NA" {
		return "https://www.youtube.com/watch?v=" + id
	}
	return ""
}
