package player

import (
	"slices"
	"testing"
)

func items(titles ...string) []QueueItem {
	out := make([]QueueItem, len(titles))
	for i, t := range titles {
		out[i] = QueueItem{Reference: "ref:" + t, Title: t}
	}
	return out
}

func titles(q []QueueItem) []string {
	out := make([]string, len(q))
	for i, it := range q {
		out[i] = it.Title
	}
	return out
}

func TestReduceIdleLoopPolicy(t *testing.T) {
	t1 := QueueItem{Reference: "ref:t1", Title: "t1"}

	tests := []struct {
		name     string
		loop     LoopMode
		skipping bool
		queue    []string
		want     []string
		wantTr   Transition
	}{
		{"off natural", LoopOff, false, []string{"t2"}, []string{"t2"}, TransitionNatural},
		{"off skip", LoopOff, true, []string{"t2"}, []string{"t2"}, TransitionForced},
		{"track natural requeues at front", LoopTrack, false, []string{"t2", "t3"}, []string{"t1", "t2", "t3"}, TransitionNatural},
		{"track skip does not requeue", LoopTrack, true, []string{"t2"}, []string{"t2"}, TransitionForced},
		{"track skip empty queue", LoopTrack, true, nil, []string{}, TransitionForced},
		{"queue natural appends", LoopQueue, false, []string{"t2"}, []string{"t2", "t1"}, TransitionNatural},
		{"queue skip appends", LoopQueue, true, []string{"t2"}, []string{"t2", "t1"}, TransitionForced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := t1
			st := State{Queue: items(tt.queue...), Current: &cur, Loop: tt.loop, Skipping: tt.skipping}
			got, fx := Reduce(st, Event{Kind: EventIdle})

			if g := titles(got.Queue); !slices.Equal(g, tt.want) {
				t.Fatalf("queue = %v, want %v", g, tt.want)
			}
			if got.Current != nil {
				t.Fatalf("current should be cleared, got %+v", got.Current)
			}
			if got.Skipping {
				t.Fatalf("skipping flag should be reset")
			}
			if got.Loop != tt.loop {
				t.Fatalf("loop changed to %s", got.Loop)
			}
			if !fx.CancelProcess || !fx.PlayNext || fx.DropTransport {
				t.Fatalf("unexpected effects %+v", fx)
			}
			if fx.Transition != tt.wantTr {
				t.Fatalf("transition = %q, want %q", fx.Transition, tt.wantTr)
			}
		})
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	q := make([]QueueItem, 2, 8)
	copy(q, items("a", "b"))
	cur := QueueItem{Title: "cur"}
	st := State{Queue: q, Current: &cur, Loop: LoopTrack}

	_, _ = Reduce(st, Event{Kind: EventIdle})
	if !slices.Equal(titles(q), []string{"a", "b"}) {
		t.Fatalf("input queue mutated: %v", titles(q))
	}
	if got := titles(q[:3]); got[2] != "" {
		t.Fatalf("spare capacity written: %v", got)
	}
}

func TestReduceErrorAdvancesWithoutLoop(t *testing.T) {
	cur := QueueItem{Title: "broken"}
	st := State{Queue: items("next"), Current: &cur, Loop: LoopQueue, Skipping: true}
	got, fx := Reduce(st, Event{Kind: EventError})
	if !slices.Equal(titles(got.Queue), []string{"next"}) {
		t.Fatalf("queue = %v", titles(got.Queue))
	}
	if got.Current != nil || got.Skipping {
		t.Fatalf("state not cleared: %+v", got)
	}
	if !fx.PlayNext || !fx.CancelProcess || fx.Transition != TransitionFailed {
		t.Fatalf("effects = %+v", fx)
	}
}

func TestReduceTeardownKeepsLoop(t *testing.T) {
	for _, kind := range []EventKind{EventDestroyed, EventRecoveryFailed} {
		cur := QueueItem{Title: "x"}
		st := State{Queue: items("a", "b"), Current: &cur, Loop: LoopQueue, Skipping: true}
		got, fx := Reduce(st, Event{Kind: kind})
		if len(got.Queue) != 0 || got.Current != nil || got.Skipping {
			t.Fatalf("%s: state not reset: %+v", kind, got)
		}
		if got.Loop != LoopQueue {
			t.Fatalf("%s: loop = %s", kind, got.Loop)
		}
		if !fx.DropTransport || !fx.CancelProcess || fx.PlayNext {
			t.Fatalf("%s: effects = %+v", kind, fx)
		}
	}
}

func TestReduceIgnoresUnknownEvent(t *testing.T) {
	st := State{Queue: items("a"), Loop: LoopTrack}
	got, fx := Reduce(st, Event{Kind: EventDisconnected})
	if fx != (Effects{}) {
		t.Fatalf("effects = %+v", fx)
	}
	if !slices.Equal(titles(got.Queue), []string{"a"}) {
		t.Fatalf("queue = %v", titles(got.Queue))
	}
}

func TestParseLoopMode(t *testing.T) {
	for _, ok := range []string{"off", "track", "queue", " queue "} {
		if _, err := ParseLoopMode(ok); err != nil {
			t.Errorf("ParseLoopMode(%q) error: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "all", "TRACK", "song"} {
		if _, err := ParseLoopMode(bad); err == nil {
			t.Errorf("ParseLoopMode(%q) expected error", bad)
		}
	}
}
