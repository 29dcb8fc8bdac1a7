package cache

import (
	"testing"
	"time"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAddAndHasMessage(t *testing.T) {
	c := New()

	if c.HasMessage("1") {
		t.Fatal("empty cache reported a hit")
	}
	c.AddMessage("1", base)
	if !c.HasMessage("1") {
		t.Error("added id not found")
	}
	if c.HasMessage("2") {
		t.Error("unknown id reported as delivered")
	}
}

func TestIdsOutliveWallClock(t *testing.T) {
	c := New()

	// Nothing but Prune removes an id, however old the message is.
	c.AddMessage("1", base.Add(-1000*time.Hour))
	if !c.HasMessage("1") {
		t.Error("old id forgotten without a prune")
	}
}

func TestPrune(t *testing.T) {
	c := New()

	c.AddMessage("old", base.Add(-time.Minute))
	c.AddMessage("edge", base)
	c.AddMessage("new", base.Add(time.Minute))

	if n := c.Prune(base); n != 1 {
		t.Fatalf("Prune() = %d, want 1", n)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if c.HasMessage("old") {
		t.Error("id created before the cutoff survived")
	}
	if !c.HasMessage("edge") {
		t.Error("id created exactly at the cutoff was removed")
	}
	if !c.HasMessage("new") {
		t.Error("fresh id removed by prune")
	}
}

func TestStats(t *testing.T) {
	c := New()

	c.AddMessage("1", base)
	c.AddMessage("2", base.Add(-time.Hour))
	c.HasMessage("1")
	c.HasMessage("1")
	c.Prune(base)

	stats := c.Stats()
	if stats["delivered_ids"] != 1 {
		t.Errorf("delivered_ids = %v, want 1", stats["delivered_ids"])
	}
	if stats["duplicates_seen"] != 2 {
		t.Errorf("duplicates_seen = %v, want 2", stats["duplicates_seen"])
	}
	if stats["pruned"] != 1 {
		t.Errorf("pruned = %v, want 1", stats["pruned"])
	}
}
