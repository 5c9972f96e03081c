// ABOUTME: Per-peer liveness monitor
// ABOUTME: Closes sessions that stop heartbeating within HeartbeatTimeout
package session

import (
	"log"
	"sync"
	"time"

	"github.com/loopstream/loopstream-go/internal/reactor"
	"github.com/loopstream/loopstream-go/internal/registry"
)

const (
	// LivenessInterval is how often the monitor wakes to check a peer.
	LivenessInterval = 3 * time.Second
	// HeartbeatTimeout is the reference's default: a session that hasn't
	// touched last_tick within this window is considered dead.
	HeartbeatTimeout = 15 * time.Second
)

// Liveness watches one admitted session and closes it if heartbeats stop
// arriving. Spawned by Session.admit on the Fresh -> Playing transition.
type Liveness struct {
	session  *Session
	registry *registry.Registry
	reactor  *reactor.Reactor
	handle   registry.ControlHandle
	interval time.Duration
	timeout  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLiveness creates a monitor for sess, using the default interval and
// timeout documented in spec.md §4.5.
func NewLiveness(sess *Session, reg *registry.Registry, reactor *reactor.Reactor) *Liveness {
	return &Liveness{
		session:  sess,
		registry: reg,
		reactor:  reactor,
		handle:   registry.ControlHandle(sess.conn),
		interval: LivenessInterval,
		timeout:  HeartbeatTimeout,
		stop:     make(chan struct{}),
	}
}

// Run executes the wake/check/heartbeat loop until the session closes, the
// peer times out, or Stop is called.
func (l *Liveness) Run() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			if !l.tick() {
				return
			}
		}
	}
}

// tick performs one wake cycle and reports whether the monitor should keep
// running.
func (l *Liveness) tick() bool {
	var rec registry.PeerRecord
	var found bool
	if !l.reactor.Call(func() {
		rec, found = l.registry.Lookup(l.handle)
	}) {
		return false // reactor stopped
	}

	if !found {
		// Session already closed (read error, protocol violation, or a
		// prior timeout sweep); nothing left to monitor.
		return false
	}

	if time.Since(rec.LastTick) > l.timeout {
		log.Printf("session: heartbeat timeout for session %d, closing", rec.ID)
		l.session.terminate()
		return false
	}

	// Bound the write by the time left before the timeout, so a peer that
	// stops reading cannot keep the monitor blocked past it.
	_ = l.session.conn.SetWriteDeadline(rec.LastTick.Add(l.timeout))
	err := l.session.sendHeartbeat()
	_ = l.session.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		log.Printf("session: heartbeat send failed for session %d: %v", rec.ID, err)
		l.session.terminate()
		return false
	}

	return true
}

// Stop ends the monitor loop without closing the session.
func (l *Liveness) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}
