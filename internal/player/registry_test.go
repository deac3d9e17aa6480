package player

import (
	"context"
	"slices"
	"testing"
	"time"
)

func TestRegistryGetAndPeek(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRegistry(ctx, Deps{Connector: &fakeConnector{initial: ConnReady}, Builder: &fakeBuilder{}})

	if r.Peek("g1") != nil {
		t.Fatalf("Peek created a session")
	}
	a := r.Get("g1")
	if r.Get("g1") != a || r.Peek("g1") != a {
		t.Fatalf("Get returned a different session")
	}
	if r.Get("g2") == a {
		t.Fatalf("guilds share a session")
	}
	if a.GuildID() != "g1" {
		t.Fatalf("GuildID = %q", a.GuildID())
	}
}

func TestRegistryRunsEventLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conns := &fakeConnector{initial: ConnReady}
	r := NewRegistry(ctx, Deps{Connector: conns, Builder: &fakeBuilder{}})

	s := r.Get("g1")
	if err := s.Connect(ctx, "vc"); err != nil {
		t.Fatal(err)
	}
	eng := conns.lastEngine()
	s.Enqueue(items("a", "b")...)
	s.StartIfIdle()
	eng.finish()

	deadline := time.Now().Add(2 * time.Second)
	for !slices.Equal(eng.playedTitles(), []string{"a", "b"}) {
		if time.Now().After(deadline) {
			t.Fatalf("played = %v", eng.playedTitles())
		}
		time.Sleep(2 * time.Millisecond)
	}

	r.Shutdown()
	if s.Snapshot().Connected {
		t.Fatalf("Shutdown left the session connected")
	}
}
