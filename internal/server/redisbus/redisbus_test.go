package redisbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"chessmatch/internal/server/core"
)

func newTestPublisher(t *testing.T) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	p, err := Dial(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Hour)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p, mr
}

func event(kind, id string, version uint64) core.Event {
	ev := core.Event{Type: kind, SessionID: id, Version: version, At: time.Now().UTC()}
	if kind != core.EventSessionRemoved {
		ev.State = &core.SessionState{SessionID: id, Version: version, Status: core.StatusActive, Turn: core.ColorBlack}
	}
	return ev
}

func TestDeliverStoresSnapshotWithTTL(t *testing.T) {
	p, mr := newTestPublisher(t)
	ctx := context.Background()

	if err := p.Deliver(ctx, event(core.EventMoveMade, "ABC123", 3)); err != nil {
		t.Fatal(err)
	}

	st, err := p.Snapshot(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if st == nil || st.Version != 3 || st.Turn != core.ColorBlack {
		t.Fatalf("snapshot = %+v", st)
	}
	if ttl := mr.TTL(SnapshotKey("ABC123")); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := p.Deliver(ctx, event(core.EventSessionRemoved, "ABC123", 3)); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(SnapshotKey("ABC123")) {
		t.Fatal("snapshot survived removal")
	}
	if st, err := p.Snapshot(ctx, "ABC123"); err != nil || st != nil {
		t.Fatalf("snapshot after removal = %+v, %v", st, err)
	}
}

func TestFollowReceivesPublishedEvents(t *testing.T) {
	p, _ := newTestPublisher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := p.Follow(ctx, "XYZ789")
	if err != nil {
		t.Fatal(err)
	}

	want := []string{core.EventPlayerJoined, core.EventMoveMade, core.EventGameOver}
	for i, kind := range want {
		if err := p.Deliver(ctx, event(kind, "XYZ789", uint64(i+1))); err != nil {
			t.Fatal(err)
		}
	}
	// other sessions stay on their own channel
	if err := p.Deliver(ctx, event(core.EventMoveMade, "OTHER1", 1)); err != nil {
		t.Fatal(err)
	}

	for i, kind := range want {
		select {
		case ev := <-events:
			if ev.Type != kind || ev.Version != uint64(i+1) {
				t.Fatalf("event %d = %s v%d, want %s", i, ev.Type, ev.Version, kind)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestDialRejectsBadURL(t *testing.T) {
	if _, err := Dial("", 0); err == nil {
		t.Fatal("empty url accepted")
	}
	if _, err := Dial("not-a-url://", 0); err == nil {
		t.Fatal("bad scheme accepted")
	}
}
