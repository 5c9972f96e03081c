// ABOUTME: Peer registry mapping control-channel handles to session records
// ABOUTME: Single source of truth for who receives audio fan-out
package registry

import (
	"log"
	"net"
	"sync"
	"time"
)

// SessionId is a nonzero, monotonically assigned session identifier.
// Zero means "not assigned" and is never handed out.
type SessionId uint32

// ControlHandle identifies a control-channel connection. It is compared by
// identity (the net.Conn value), never by content.
type ControlHandle net.Conn

// PeerRecord is one admitted session.
type PeerRecord struct {
	ID       SessionId
	TCP      ControlHandle
	UDP      *net.UDPAddr // nil until a hello datagram binds it
	LastTick time.Time
}

// Destination is a fan-out target: a bound session id and UDP address.
type Destination struct {
	ID   SessionId
	Addr *net.UDPAddr
}

// Registry is the peer table. Per spec it is mutated only from the single
// reactor goroutine, apart from the Clear that engine.Server.Stop calls
// once the reactor has exited; the mutex below is defense in depth, not a
// substitute for that discipline (AddClient/RemoveClient in the teacher's
// audio engine take the same belt-and-suspenders approach).
type Registry struct {
	mu      sync.Mutex
	byHandle map[ControlHandle]*PeerRecord
	byID     map[SessionId]*PeerRecord
	nextID   uint32
}

// New creates an empty registry with its own id counter, scoped to one
// controller instance rather than a process-wide global.
func New() *Registry {
	return &Registry{
		byHandle: make(map[ControlHandle]*PeerRecord),
		byID:     make(map[SessionId]*PeerRecord),
	}
}

// Admit creates a record for handle and returns its assigned id, or 0 if
// handle is already admitted (duplicate admission is a protocol error; the
// caller replies with id=0 and closes).
func (r *Registry) Admit(handle ControlHandle) SessionId {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHandle[handle]; exists {
		return 0
	}

	id := r.allocateID()
	rec := &PeerRecord{
		ID:       id,
		TCP:      handle,
		LastTick: time.Now(),
	}
	r.byHandle[handle] = rec
	r.byID[id] = rec
	return id
}

// allocateID returns the next nonzero id, skipping zero on wraparound.
// Callers hold r.mu.
func (r *Registry) allocateID() SessionId {
	r.nextID++
	if r.nextID == 0 {
		r.nextID = 1
	}
	return SessionId(r.nextID)
}

// BindUDP records the source endpoint of a hello datagram for id. It drops
// silently (with a logged warning) if id does not correspond to an
// admitted session — the hello may have raced ahead of StartPlay.
func (r *Registry) BindUDP(id SessionId, addr *net.UDPAddr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		log.Printf("registry: hello for unknown session id %d, dropping", id)
		return
	}
	rec.UDP = addr
}

// Touch refreshes last_tick for handle. It is a no-op if handle is absent.
func (r *Registry) Touch(handle ControlHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byHandle[handle]; ok {
		rec.LastTick = time.Now()
	}
}

// Lookup returns the record for handle, if any.
func (r *Registry) Lookup(handle ControlHandle) (PeerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byHandle[handle]
	if !ok {
		return PeerRecord{}, false
	}
	return *rec, true
}

// Remove deletes the record for handle. Double-remove is idempotent: a
// miss is logged as a warning, never a fault.
func (r *Registry) Remove(handle ControlHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byHandle[handle]
	if !ok {
		log.Printf("registry: remove of unknown handle, ignoring")
		return
	}
	delete(r.byHandle, handle)
	delete(r.byID, rec.ID)
}

// SnapshotDestinations returns the fan-out target list: every admitted
// session that has bound a UDP address. Order is unspecified.
func (r *Registry) SnapshotDestinations() []Destination {
	r.mu.Lock()
	defer r.mu.Unlock()

	dests := make([]Destination, 0, len(r.byHandle))
	for _, rec := range r.byHandle {
		if rec.UDP != nil {
			dests = append(dests, Destination{ID: rec.ID, Addr: rec.UDP})
		}
	}
	return dests
}

// Snapshot returns a copy of every record, bound or not — used by the
// read-only status view.
func (r *Registry) Snapshot() []PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := make([]PeerRecord, 0, len(r.byHandle))
	for _, rec := range r.byHandle {
		recs = append(recs, *rec)
	}
	return recs
}

// Count returns the number of admitted records.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHandle)
}

// Clear removes every record, e.g. on server stop. It does not reset the
// id counter, matching spec's "ids are distinct... without intervening
// process restart" — a fresh Registry is what resets the counter.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHandle = make(map[ControlHandle]*PeerRecord)
	r.byID = make(map[SessionId]*PeerRecord)
}
