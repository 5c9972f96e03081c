// ABOUTME: Tests for the peer registry
package registry

import (
	"net"
	"testing"
)

func newHandle(t *testing.T) ControlHandle {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server
}

func TestAdmitAssignsDistinctNonzeroIDs(t *testing.T) {
	r := New()
	seen := make(map[SessionId]bool)

	for i := 0; i < 10; i++ {
		id := r.Admit(newHandle(t))
		if id == 0 {
			t.Fatalf("admission %d: got id 0", i)
		}
		if seen[id] {
			t.Fatalf("admission %d: duplicate id %d", i, id)
		}
		seen[id] = true
	}
}

func TestAdmitDuplicateHandleReturnsZero(t *testing.T) {
	r := New()
	h := newHandle(t)

	id := r.Admit(h)
	if id == 0 {
		t.Fatalf("first admission: got 0")
	}

	if dup := r.Admit(h); dup != 0 {
		t.Errorf("duplicate admission: got %d, want 0", dup)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryConsistencyAfterAdmitsAndRemoves(t *testing.T) {
	r := New()
	handles := make([]ControlHandle, 5)
	for i := range handles {
		handles[i] = newHandle(t)
		if id := r.Admit(handles[i]); id == 0 {
			t.Fatalf("admission %d failed", i)
		}
	}

	r.Remove(handles[0])
	r.Remove(handles[1])

	if got := r.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	for _, rec := range r.Snapshot() {
		if rec.ID == 0 {
			t.Errorf("record has zero id: %+v", rec)
		}
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New()
	h := newHandle(t)
	r.Admit(h)

	r.Remove(h)
	r.Remove(h) // should not panic or fault

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestBindUDPUnknownIDDropsSilently(t *testing.T) {
	r := New()
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 9000}

	r.BindUDP(SessionId(999), addr) // should not panic

	if dests := r.SnapshotDestinations(); len(dests) != 0 {
		t.Errorf("got %d destinations, want 0", len(dests))
	}
}

func TestBindUDPOverwritesOnRepeatedHello(t *testing.T) {
	r := New()
	h := newHandle(t)
	id := r.Admit(h)

	first := &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 9000}
	second := &net.UDPAddr{IP: net.ParseIP("192.168.1.5"), Port: 9001}

	r.BindUDP(id, first)
	r.BindUDP(id, second)

	dests := r.SnapshotDestinations()
	if len(dests) != 1 {
		t.Fatalf("got %d destinations, want 1", len(dests))
	}
	if dests[0].Addr.Port != 9001 {
		t.Errorf("got port %d, want 9001 (latest hello should win)", dests[0].Addr.Port)
	}
}

func TestSnapshotDestinationsExcludesUnbound(t *testing.T) {
	r := New()
	bound := newHandle(t)
	unbound := newHandle(t)

	boundID := r.Admit(bound)
	r.Admit(unbound)
	r.BindUDP(boundID, &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 9000})

	dests := r.SnapshotDestinations()
	if len(dests) != 1 {
		t.Fatalf("got %d destinations, want 1", len(dests))
	}
	if dests[0].ID != boundID {
		t.Errorf("got id %d, want %d", dests[0].ID, boundID)
	}
}

func TestTouchUpdatesLastTick(t *testing.T) {
	r := New()
	h := newHandle(t)
	r.Admit(h)

	before, _ := r.Lookup(h)
	r.Touch(h)
	after, _ := r.Lookup(h)

	if !after.LastTick.After(before.LastTick) && after.LastTick != before.LastTick {
		t.Errorf("LastTick did not advance: before=%v after=%v", before.LastTick, after.LastTick)
	}
}

func TestTouchAbsentHandleIsNoop(t *testing.T) {
	r := New()
	r.Touch(newHandle(t)) // never admitted; must not panic
}

func TestClearRemovesAllRecords(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		r.Admit(newHandle(t))
	}
	r.Clear()
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0 after Clear", r.Count())
	}
}
