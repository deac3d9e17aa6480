package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sonroyaalmerol/suisei/internal/player"
)

type fakeHandle struct{ terminated atomic.Int32 }

func (f *fakeHandle) Terminate() { f.terminated.Add(1) }

type fakeSpawner struct {
	data   []byte
	err    error
	handle *fakeHandle
	refs   []string
}

func (f *fakeSpawner) Spawn(_ context.Context, ref string) (player.Cancellable, io.ReadCloser, error) {
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return nil, nil, f.err
	}
	f.handle = &fakeHandle{}
	return f.handle, io.NopCloser(bytes.NewReader(f.data)), nil
}

func TestBuilderStreamsProcessOutput(t *testing.T) {
	data := bytes.Repeat([]byte("opus"), 1000)
	sp := &fakeSpawner{data: data}
	b := NewBuilder(context.Background(), sp, BuilderOptions{PrefetchBytes: 1024, PrefetchWindow: time.Second})

	item := player.QueueItem{Reference: "ytsearch1:Artist - Song", Title: "Artist - Song"}
	p := b.Build(item)
	defer p.Resource.Close()

	if p.Item != item {
		t.Fatalf("Item = %+v", p.Item)
	}
	if p.Process != sp.handle {
		t.Fatalf("Process is not the spawned handle")
	}
	got, err := io.ReadAll(p.Resource)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("resource returned %d bytes, want %d", len(got), len(data))
	}
	if len(sp.refs) != 1 || sp.refs[0] != item.Reference {
		t.Fatalf("spawned %v", sp.refs)
	}
}

func TestBuilderSpawnFailureSurfacesOnRead(t *testing.T) {
	boom := errors.New("executable not found")
	b := NewBuilder(context.Background(), &fakeSpawner{err: boom}, BuilderOptions{})

	p := b.Build(player.QueueItem{Reference: "https://example.com/x"})
	if p.Process == nil || p.Resource == nil {
		t.Fatalf("Build returned an incomplete playable: %+v", p)
	}
	p.Process.Terminate()

	_, err := p.Resource.Read(make([]byte, 8))
	if !errors.Is(err, boom) {
		t.Fatalf("Read err = %v", err)
	}
	if !strings.Contains(err.Error(), "spawn decode process") {
		t.Fatalf("error not wrapped: %v", err)
	}
}

func TestYtdlpSpawnerArgs(t *testing.T) {
	y := &YtdlpSpawner{LimitRate: "2M"}
	args := y.args("https://www.youtube.com/watch?v=abcdefghijk")

	joined := strings.Join(args, " ")
	for _, want := range []string{"--retries 3", "--fragment-retries 3", "--http-chunk-size 10M", "--force-ipv4", "--limit-rate 2M"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "https://www.youtube.com/watch?v=abcdefghijk" {
		t.Fatalf("reference must be last, got %v", args)
	}

	y = &YtdlpSpawner{}
	if strings.Contains(strings.Join(y.args("x"), " "), "--limit-rate") {
		t.Fatalf("limit rate set without a value")
	}
}
