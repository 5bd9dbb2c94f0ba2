package discovery

import "testing"

func TestDedupLRU_SeenOrAdd(t *testing.T) {
	d := newDedupLRU(2)

	if d.SeenOrAdd("a") {
		t.Fatalf("expected a to be new")
	}
	if !d.SeenOrAdd("a") {
		t.Fatalf("expected a to be seen on second insert")
	}
}

func TestDedupLRU_EvictsOldestBeyondCapacity(t *testing.T) {
	d := newDedupLRU(2)

	d.SeenOrAdd("a")
	d.SeenOrAdd("b")
	d.SeenOrAdd("c") // evicts "a"

	if !d.SeenOrAdd("b") {
		t.Fatalf("expected b to still be tracked")
	}
	if d.SeenOrAdd("a") {
		t.Fatalf("expected a to have been evicted and treated as new")
	}
}

func TestDedupLRU_RecencyResetsOnAccess(t *testing.T) {
	d := newDedupLRU(2)

	d.SeenOrAdd("a")
	d.SeenOrAdd("b")
	d.SeenOrAdd("a") // touches a, making b the oldest
	d.SeenOrAdd("c") // should evict b, not a

	if !d.SeenOrAdd("a") {
		t.Fatalf("expected a to still be tracked after being touched")
	}
	if d.SeenOrAdd("b") {
		t.Fatalf("expected b to have been evicted")
	}
}
