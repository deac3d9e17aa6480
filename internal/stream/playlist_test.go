package stream

import "testing"

func TestParsePlaylistOutput(t *testing.T) {
	out := "https://www.youtube.com/watch?v=aaaaaaaaaaa\taaaaaaaaaaa\tFirst\n" +
		"NA\tbbbbbbbbbbb\tSecond\n" +
		"garbage line\n" +
		"NA\tNA\tNo id\n" +
		"https://www.youtube.com/watch?v=ccccccccccc\tccccccccccc\tNA\n"

	got := parsePlaylistOutput(out, 25)
	want := []PlaylistEntry{
		{Link: "https://www.youtube.com/watch?v=aaaaaaaaaaa", Title: "First"},
		{Link: "https://www.youtube.com/watch?v=bbbbbbbbbbb", Title: "Second"},
		{Link: "https://www.youtube.com/watch?v=ccccccccccc", Title: "https://www.youtube.com/watch?v=ccccccccccc"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParsePlaylistOutputCap(t *testing.T) {
	out := ""
	for range 30 {
		out += "https://example.com/v\tid\tt\n"
	}
	if got := parsePlaylistOutput(out, 25); len(got) != 25 {
		t.Fatalf("len = %d, want 25", len(got))
	}
}
