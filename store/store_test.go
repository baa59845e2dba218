// File: store/store_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package store

import (
	"path/filepath"
	"testing"

	"github.com/momentics/gatecord/gateway"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// TestInsertReplay — inserted events come back in message-ID order with all
// fields intact.
func TestInsertReplay(t *testing.T) {
	a := openTestArchive(t)

	events := []gateway.Event{
		{MessageID: "200", ChannelID: "c1", GuildID: "g1", AuthorID: "u2", Content: "second", MentionsMe: true},
		{MessageID: "100", ChannelID: "c1", GuildID: "g1", AuthorID: "u1", Content: "first"},
		{MessageID: "300", ChannelID: "c2", AuthorID: "u1", Content: "third", IsMe: true},
	}
	for i := range events {
		if err := a.Insert(&events[i]); err != nil {
			t.Fatalf("Insert %s: %v", events[i].MessageID, err)
		}
	}

	var got []gateway.Event
	err := a.Replay(func(ev *gateway.Event) error {
		got = append(got, *ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("replayed %d events, want 3", len(got))
	}
	for i, want := range []string{"100", "200", "300"} {
		if got[i].MessageID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].MessageID, want)
		}
	}
	if got[1] != events[0] {
		t.Errorf("round trip: got %+v, want %+v", got[1], events[0])
	}
	if !got[2].IsMe || got[2].MentionsMe {
		t.Errorf("flags: got IsMe=%v MentionsMe=%v", got[2].IsMe, got[2].MentionsMe)
	}
}

// Replaying the same message ID is a no-op, matching the backfill path where
// live traffic and history overlap.
func TestInsertDuplicateIgnored(t *testing.T) {
	a := openTestArchive(t)

	ev := gateway.Event{MessageID: "1", ChannelID: "c", AuthorID: "u", Content: "original"}
	if err := a.Insert(&ev); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	dup := ev
	dup.Content = "changed"
	if err := a.Insert(&dup); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	n := 0
	a.Replay(func(got *gateway.Event) error {
		n++
		if got.Content != "original" {
			t.Errorf("content: got %q, want original", got.Content)
		}
		return nil
	})
	if n != 1 {
		t.Errorf("replayed %d rows, want 1", n)
	}
}

// Ids of different lengths still replay in numeric order, not
// lexicographic ("9" before "100").
func TestReplayNumericOrder(t *testing.T) {
	a := openTestArchive(t)

	for _, id := range []string{"100", "9", "25"} {
		ev := gateway.Event{MessageID: id, ChannelID: "c", AuthorID: "u", Content: "x"}
		if err := a.Insert(&ev); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	var order []string
	if err := a.Replay(func(ev *gateway.Event) error {
		order = append(order, ev.MessageID)
		return nil
	}); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	want := []string{"9", "25", "100"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: got %v, want %v", order, want)
		}
	}
}

func TestReplayEmpty(t *testing.T) {
	a := openTestArchive(t)
	err := a.Replay(func(*gateway.Event) error {
		t.Error("callback invoked on empty archive")
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
}
