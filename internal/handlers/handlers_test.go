package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/sonroyaalmerol/suisei/internal/player"
	"github.com/sonroyaalmerol/suisei/internal/repository"
	"github.com/sonroyaalmerol/suisei/internal/resolver"
)

type fakeConn struct {
	channelID string
	mu        sync.Mutex
	state     player.ConnState
}

func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) State() player.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) WaitFor(ctx context.Context, states ...player.ConnState) error {
	if slices.Contains(states, c.State()) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConn) OnStateChange(func(player.ConnState)) {}

func (c *fakeConn) Destroy() {
	c.mu.Lock()
	c.state = player.ConnDestroyed
	c.mu.Unlock()
}

type fakeEngine struct {
	mu     sync.Mutex
	state  player.EngineState
	played []player.QueueItem
}

func (e *fakeEngine) State() player.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) Play(p player.Playable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = player.EnginePlaying
	e.played = append(e.played, p.Item)
}

func (e *fakeEngine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != player.EnginePlaying {
		return false
	}
	e.state = player.EnginePaused
	return true
}

func (e *fakeEngine) Resume() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != player.EnginePaused {
		return false
	}
	e.state = player.EnginePlaying
	return true
}

func (e *fakeEngine) Stop(bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.state != player.EngineIdle
	e.state = player.EngineIdle
	return was
}

func (e *fakeEngine) OnIdle(func())       {}
func (e *fakeEngine) OnError(func(error)) {}

type fakeConnector struct {
	mu      sync.Mutex
	joins   int
	err     error
	ready   bool
	engines []*fakeEngine
}

func (f *fakeConnector) Join(_ context.Context, _, channelID string) (player.Connection, player.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.err != nil {
		return nil, nil, f.err
	}
	st := player.ConnConnecting
	if f.ready {
		st = player.ConnReady
	}
	e := &fakeEngine{}
	f.engines = append(f.engines, e)
	return &fakeConn{channelID: channelID, state: st}, e, nil
}

type nopBuilder struct{}

func (nopBuilder) Build(item player.QueueItem) player.Playable {
	return player.Playable{Item: item, Resource: io.NopCloser(strings.NewReader(""))}
}

type fakeResolver struct {
	res resolver.Result
	err error
}

func (f *fakeResolver) Resolve(context.Context, string) (resolver.Result, error) {
	return f.res, f.err
}

func items(n int) []player.QueueItem {
	out := make([]player.QueueItem, n)
	for i := range out {
		out[i] = player.QueueItem{Reference: fmt.Sprintf("ytsearch1:song %d", i+1), Title: fmt.Sprintf("song %d", i+1)}
	}
	return out
}

func newTestHandler(t *testing.T, conn *fakeConnector, res *fakeResolver) *CommandHandler {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := player.NewRegistry(ctx, player.Deps{
		Connector:    conn,
		Builder:      nopBuilder{},
		ReadyTimeout: 50 * time.Millisecond,
	})
	return NewCommandHandler(ctx, nil, repository.NewRepo(db), reg, res, nil)
}

func TestPlayQueuesAndStarts(t *testing.T) {
	conn := &fakeConnector{ready: true}
	res := &fakeResolver{res: resolver.Result{Kind: resolver.KindVideo, Items: items(1)}}
	h := newTestHandler(t, conn, res)

	r := h.play(context.Background(), "g1", "vc1", "tc1", "https://youtu.be/abcdefghijk")
	if r.content != "✅ Queued: **song 1**" || r.ephemeral {
		t.Fatalf("response = %+v", r)
	}
	snap := h.reg.Peek("g1").Snapshot()
	if snap.Current == nil || snap.Current.Title != "song 1" || snap.ChannelID != "vc1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if got, _ := h.announceIn.Load("g1"); got != "tc1" {
		t.Fatalf("announce channel = %v", got)
	}

	res.res = resolver.Result{Kind: resolver.KindPlaylist, Items: items(3)}
	r = h.play(context.Background(), "g1", "vc1", "tc1", "https://www.youtube.com/playlist?list=PL1")
	if r.content != "📜 Queued **3** tracks from the YouTube playlist." {
		t.Fatalf("playlist response = %q", r.content)
	}
	if conn.joins != 1 {
		t.Fatalf("joins = %d, want 1", conn.joins)
	}
	if n := len(h.reg.Peek("g1").Snapshot().Queue); n != 3 {
		t.Fatalf("queue len = %d", n)
	}
}

func TestPlayCollectionWording(t *testing.T) {
	res := &fakeResolver{res: resolver.Result{Kind: resolver.KindCollection, Items: items(2), Source: "https://open.spotify.com/playlist/x"}}
	h := newTestHandler(t, &fakeConnector{ready: true}, res)

	r := h.play(context.Background(), "g1", "vc1", "", "https://open.spotify.com/playlist/x")
	if r.content != "🎧 Queued **2** tracks from the Spotify playlist (matched on YouTube)." {
		t.Fatalf("response = %q", r.content)
	}
	if _, ok := h.announceIn.Load("g1"); ok {
		t.Fatal("announce channel stored without a text channel")
	}
}

func TestPlayResolveFailureDoesNotJoin(t *testing.T) {
	conn := &fakeConnector{ready: true}
	res := &fakeResolver{err: &resolver.ResolutionError{Reason: "no tracks found"}}
	h := newTestHandler(t, conn, res)

	r := h.play(context.Background(), "g1", "vc1", "tc1", "https://www.youtube.com/playlist?list=PL1")
	if !strings.Contains(r.content, "no tracks found") {
		t.Fatalf("response = %q", r.content)
	}
	if conn.joins != 0 || h.reg.Peek("g1") != nil {
		t.Fatalf("joined on resolve failure: joins=%d", conn.joins)
	}

	res.err = errors.New("boom")
	if r := h.play(context.Background(), "g1", "vc1", "", "x"); r.content != "⚠️ Error: Could not play/enqueue." {
		t.Fatalf("generic error response = %q", r.content)
	}
}

func TestPlayInputChecks(t *testing.T) {
	h := newTestHandler(t, &fakeConnector{ready: true}, &fakeResolver{})
	if r := h.play(context.Background(), "g1", "vc1", "", "   "); !r.ephemeral {
		t.Fatalf("empty query response = %+v", r)
	}
	if r := h.play(context.Background(), "g1", "", "", "song"); !strings.Contains(r.content, "voice channel") {
		t.Fatalf("no channel response = %+v", r)
	}
}

func TestPlayConnectFailures(t *testing.T) {
	res := &fakeResolver{res: resolver.Result{Kind: resolver.KindVideo, Items: items(1)}}

	h := newTestHandler(t, &fakeConnector{ready: false}, res)
	r := h.play(context.Background(), "g1", "vc1", "", "song")
	if !strings.Contains(r.content, "within 50ms") {
		t.Fatalf("timeout response = %q", r.content)
	}

	h = newTestHandler(t, &fakeConnector{err: errors.New("no perms")}, res)
	r = h.play(context.Background(), "g1", "vc1", "", "song")
	if r.content != "⚠️ Could not connect to the voice channel." {
		t.Fatalf("join error response = %q", r.content)
	}
	if len(h.reg.Peek("g1").Snapshot().Queue) != 0 {
		t.Fatal("items queued after failed connect")
	}
}

func TestControlsWithoutSession(t *testing.T) {
	h := newTestHandler(t, &fakeConnector{ready: true}, &fakeResolver{})
	for name, r := range map[string]response{
		"skip":   h.skip("g1"),
		"pause":  h.pause("g1"),
		"resume": h.resume("g1"),
		"now":    h.nowPlaying("g1"),
	} {
		if r.content != msgNothingPlaying || !r.ephemeral {
			t.Errorf("%s = %+v", name, r)
		}
	}
	if r := h.stop("g1"); r.content != "ℹ️ Nothing to stop." {
		t.Errorf("stop = %q", r.content)
	}
	if r := h.shuffle("g1"); r.content != msgQueueEmpty {
		t.Errorf("shuffle = %q", r.content)
	}
	if r := h.queue(context.Background(), "g1", 1); r.content != msgQueueEmpty {
		t.Errorf("queue = %q", r.content)
	}
}

func TestControlsDuringPlayback(t *testing.T) {
	conn := &fakeConnector{ready: true}
	h := newTestHandler(t, conn, &fakeResolver{res: resolver.Result{Kind: resolver.KindPlaylist, Items: items(4)}})
	h.play(context.Background(), "g1", "vc1", "", "list")

	if r := h.pause("g1"); r.content != "⏸️ Paused." {
		t.Fatalf("pause = %q", r.content)
	}
	if r := h.pause("g1"); r.content != "⚠️ Already paused or cannot pause." {
		t.Fatalf("second pause = %q", r.content)
	}
	if r := h.resume("g1"); r.content != "▶️ Resumed." {
		t.Fatalf("resume = %q", r.content)
	}
	if r := h.shuffle("g1"); r.content != "🔀 Shuffled **3** upcoming tracks." {
		t.Fatalf("shuffle = %q", r.content)
	}
	if r := h.loop("g1", "queue"); r.content != "🔁 Loop mode set to **queue**." {
		t.Fatalf("loop = %q", r.content)
	}
	if r := h.loop("g1", "forever"); !r.ephemeral {
		t.Fatalf("bad loop = %+v", r)
	}
	if r := h.queue(context.Background(), "g1", 1); r.embed == nil || r.embed.Fields[0].Value != "3 songs" {
		t.Fatalf("queue = %+v", r)
	}
	if r := h.queue(context.Background(), "g1", 9); r.content == "" || !r.ephemeral {
		t.Fatalf("queue page 9 = %+v", r)
	}
	if r := h.nowPlaying("g1"); r.embed == nil || !strings.Contains(r.embed.Description, "song 1") {
		t.Fatalf("now playing = %+v", r)
	}
	if r := h.skip("g1"); r.content != "⏭️ Skipped." {
		t.Fatalf("skip = %q", r.content)
	}
	if r := h.stop("g1"); r.content != "🛑 Stopped and cleared the queue." {
		t.Fatalf("stop = %q", r.content)
	}
	snap := h.reg.Peek("g1").Snapshot()
	if snap.Connected || snap.Current != nil || len(snap.Queue) != 0 || snap.Loop != player.LoopQueue {
		t.Fatalf("after stop = %+v", snap)
	}
}

func TestLeaveIfAlone(t *testing.T) {
	h := newTestHandler(t, &fakeConnector{ready: true}, &fakeResolver{res: resolver.Result{Kind: resolver.KindVideo, Items: items(1)}})
	ctx := context.Background()
	none := func(string) int { return 0 }

	if h.leaveIfAlone(ctx, "g1", none) {
		t.Fatal("left without a session")
	}
	h.play(ctx, "g1", "vc1", "", "song")

	var asked string
	if h.leaveIfAlone(ctx, "g1", func(ch string) int { asked = ch; return 1 }) {
		t.Fatal("left with a listener present")
	}
	if asked != "vc1" {
		t.Fatalf("counted channel %q", asked)
	}

	set := repository.DefaultSettings("g1")
	set.LeaveIfNoListeners = false
	if err := h.repo.SaveSettings(ctx, &set); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if h.leaveIfAlone(ctx, "g1", none) {
		t.Fatal("left with the setting off")
	}

	set.LeaveIfNoListeners = true
	if err := h.repo.SaveSettings(ctx, &set); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if !h.leaveIfAlone(ctx, "g1", none) {
		t.Fatal("stayed in an empty channel")
	}
	if h.reg.Peek("g1").ChannelID() != "" {
		t.Fatal("still connected")
	}
}

func strOpt(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionString, Value: v}
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

func TestFavoritesFlow(t *testing.T) {
	h := newTestHandler(t, &fakeConnector{ready: true}, &fakeResolver{})
	ctx := context.Background()

	if r := h.favorites(ctx, "g1", "u1", false, sub("create", strOpt("name", "chill"), strOpt("query", "lofi"))); r.content != "👍 favorite created" {
		t.Fatalf("create = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u2", false, sub("create", strOpt("name", "chill"), strOpt("query", "x"))); !strings.Contains(r.content, "already exists") {
		t.Fatalf("duplicate = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u1", false, sub("create", strOpt("name", " "), strOpt("query", "x"))); !r.ephemeral {
		t.Fatalf("blank name = %+v", r)
	}
	if r := h.favorites(ctx, "g1", "u1", false, sub("list")); !strings.Contains(r.content, "chill: lofi (<@u1>)") {
		t.Fatalf("list = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u2", false, sub("remove", strOpt("name", "chill"))); !strings.Contains(r.content, "your own") {
		t.Fatalf("foreign remove = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u2", true, sub("remove", strOpt("name", "chill"))); r.content != "👍 favorite removed" {
		t.Fatalf("admin remove = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u1", false, sub("remove", strOpt("name", "chill"))); !strings.Contains(r.content, "no favorite") {
		t.Fatalf("missing remove = %q", r.content)
	}
	if r := h.favorites(ctx, "g1", "u1", false, sub("list")); r.content != "there aren't any favorites yet" {
		t.Fatalf("empty list = %q", r.content)
	}
}

func TestConfigCommand(t *testing.T) {
	h := newTestHandler(t, &fakeConnector{ready: true}, &fakeResolver{})
	ctx := context.Background()

	size := func(v float64) *discordgo.ApplicationCommandInteractionDataOption {
		return sub("set-queue-page-size", &discordgo.ApplicationCommandInteractionDataOption{Name: "page_size", Type: discordgo.ApplicationCommandOptionInteger, Value: v})
	}
	if r := h.configure(ctx, "g1", size(50)); !r.ephemeral {
		t.Fatalf("page size 50 = %+v", r)
	}
	if r := h.configure(ctx, "g1", size(5)); r.content != "👍 queue page size updated" {
		t.Fatalf("page size 5 = %q", r.content)
	}
	hide := sub("set-queue-add-response-hidden", &discordgo.ApplicationCommandInteractionDataOption{Name: "value", Type: discordgo.ApplicationCommandOptionBoolean, Value: true})
	if r := h.configure(ctx, "g1", hide); r.content != "👍 queue add notification setting updated" {
		t.Fatalf("hide = %q", r.content)
	}

	r := h.configure(ctx, "g1", sub("get"))
	for _, want := range []string{"Queue page size: 5", "Add to queue responses hidden: true", "Announce now playing: true"} {
		if !strings.Contains(r.content, want) {
			t.Errorf("config get missing %q:\n%s", want, r.content)
		}
	}
}

func TestCommandDefinitions(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands() {
		if seen[c.Name] {
			t.Fatalf("duplicate command %q", c.Name)
		}
		seen[c.Name] = true
		if c.Description == "" {
			t.Errorf("%s has no description", c.Name)
		}
	}
	for _, want := range []string{"play", "skip", "pause", "resume", "stop", "queue", "loop", "shuffle", "now-playing", "favorites", "config"} {
		if !seen[want] {
			t.Errorf("missing command %q", want)
		}
	}
}
