package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/utils"
)

// AudioFormat prefers opus in webm so the engine can pass packets through
// without transcoding.
const AudioFormat = "bestaudio[acodec=opus]/bestaudio[ext=webm]/bestaudio/best"

var installOnce sync.Once

// Install fetches a yt-dlp binary when none is available. It runs once per
// process.
func Install(ctx context.Context) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})
}

// Spawner starts a decode process for a reference and returns its handle and
// stdout.
type Spawner interface {
	Spawn(ctx context.Context, reference string) (player.Cancellable, io.ReadCloser, error)
}

// YtdlpSpawner streams the selected audio format to stdout.
type YtdlpSpawner struct {
	// LimitRate is passed as --limit-rate when set, e.g. "1.5M".
	LimitRate string
	Retries   string
}

func (y *YtdlpSpawner) args(reference string) []string {
	retries := y.Retries
	if retries == "" {
		retries = "3"
	}
	args := []string{
		"--add-header", "User-Agent: " + utils.RandomUserAgent(),
		"--add-header", "Accept-Language: en-US,en;q=0.9",
		"--retries", retries,
		"--fragment-retries", retries,
		"--http-chunk-size", "10M",
		"--force-ipv4",
	}
	if y.LimitRate != "" {
		args = append(args, "--limit-rate", y.LimitRate)
	}
	return append(args, reference)
}

func (y *YtdlpSpawner) Spawn(ctx context.Context, reference string) (player.Cancellable, io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := ytdlp.New().
		Format(AudioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, y.args(reference)...)

	log := slog.With("component", "yt-dlp", "reference", reference)
	p, out, err := startProcess(ctx, cancel, cmd, log)
	if err != nil {
		return nil, nil, err
	}
	return p, out, nil
}
