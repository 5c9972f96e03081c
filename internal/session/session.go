// ABOUTME: Per-connection control-channel state machine (server side)
// ABOUTME: Drives GetFormat / StartPlay / Heartbeat per spec's Fresh/Playing/Terminated transitions
package session

import (
	"log"
	"net"
	"sync"

	"github.com/loopstream/loopstream-go/internal/reactor"
	"github.com/loopstream/loopstream-go/internal/registry"
	"github.com/loopstream/loopstream-go/internal/wire"
)

// State is a node in the control-channel state machine.
type State int

const (
	StateFresh State = iota
	StatePlaying
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "Fresh"
	case StatePlaying:
		return "Playing"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Session drives one accepted TCP connection's read loop. One Session per
// connection; concurrent reads on the same connection are forbidden by
// construction (Run is called once, from one goroutine).
type Session struct {
	conn     net.Conn
	registry *registry.Registry
	reactor  *reactor.Reactor
	format   func() wire.AudioFormat

	// onAdmitted is invoked synchronously from the read-loop goroutine once
	// a session id has been allocated, so the caller can start the
	// liveness monitor for it.
	onAdmitted func(id registry.SessionId)

	writeMu sync.Mutex
	state   State
	id      registry.SessionId
}

// New creates a session for an already-accepted connection. format is
// called fresh on every GetFormat request so a capture restart is reflected
// without rebuilding sessions.
func New(conn net.Conn, reg *registry.Registry, reactor *reactor.Reactor, format func() wire.AudioFormat, onAdmitted func(id registry.SessionId)) *Session {
	return &Session{
		conn:       conn,
		registry:   reg,
		reactor:    reactor,
		format:     format,
		onAdmitted: onAdmitted,
		state:      StateFresh,
	}
}

// ID returns the assigned SessionId, or 0 if the session never reached
// Playing.
func (s *Session) ID() registry.SessionId {
	return s.id
}

// Run executes the read loop until a protocol violation, read error, or
// unsupported transition closes the session. It always ends by tearing
// down the connection and, if admitted, removing the registry entry.
func (s *Session) Run() {
	defer s.terminate()

	for {
		cmd, err := wire.ReadCommand(s.conn)
		if err != nil {
			return
		}
		if !s.handle(cmd) {
			return
		}
	}
}

// handle processes one command per the state table and reports whether the
// read loop should continue.
func (s *Session) handle(cmd wire.Command) bool {
	switch {
	case cmd == wire.CommandGetFormat:
		return s.replyFormat()
	case cmd == wire.CommandStartPlay && s.state == StateFresh:
		return s.admit()
	case cmd == wire.CommandHeartbeat && s.state == StatePlaying:
		s.reactor.Post(func() {
			s.registry.Touch(registry.ControlHandle(s.conn))
		})
		return true
	default:
		log.Printf("session: command %v invalid in state %v, closing", cmd, s.state)
		return false
	}
}

func (s *Session) replyFormat() bool {
	payload := s.format().Encode()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wire.WriteFormatReply(s.conn, payload); err != nil {
		log.Printf("session: write format reply failed: %v", err)
		return false
	}
	return true
}

func (s *Session) admit() bool {
	var id registry.SessionId
	if !s.reactor.Call(func() {
		id = s.registry.Admit(registry.ControlHandle(s.conn))
	}) {
		return false
	}

	s.writeMu.Lock()
	err := wire.WriteStartPlayReply(s.conn, uint32(id))
	s.writeMu.Unlock()
	if err != nil {
		log.Printf("session: write StartPlay reply failed: %v", err)
		return false
	}

	if id == 0 {
		log.Printf("session: duplicate admission attempt, closing")
		return false
	}

	s.state = StatePlaying
	s.id = id
	if s.onAdmitted != nil {
		s.onAdmitted(id)
	}
	return true
}

// sendHeartbeat writes a Heartbeat command, guarded against interleaving
// with a concurrent replyFormat/admit write from the read-loop goroutine.
// Used by the liveness monitor.
func (s *Session) sendHeartbeat() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteCommand(s.conn, wire.CommandHeartbeat)
}

// terminate is the Terminated state's absorbing action: remove from the
// registry (idempotent if never admitted or already removed), half-shutdown
// the write side, then close.
func (s *Session) terminate() {
	s.state = StateTerminated

	s.reactor.Post(func() {
		s.registry.Remove(registry.ControlHandle(s.conn))
	})

	if tcp, ok := s.conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = s.conn.Close()
}
