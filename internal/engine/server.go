// ABOUTME: Server-side lifecycle controller
// ABOUTME: Owns the reactor, registry, and both sockets; starts/stops capture and the accept loops
package engine

import (
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/loopstream/loopstream-go/internal/fanout"
	"github.com/loopstream/loopstream-go/internal/reactor"
	"github.com/loopstream/loopstream-go/internal/registry"
	"github.com/loopstream/loopstream-go/internal/session"
	"github.com/loopstream/loopstream-go/internal/wire"
)

// CaptureAdapter is the external collaborator from spec.md §6: loopback
// capture lives outside the core and is consumed through this interface.
type CaptureAdapter interface {
	// Start begins capturing and calls sink for every produced frame. sink
	// must be safe to call from a non-reactor thread.
	Start(sink func(frame []byte, blockAlign int)) error
	// Stop halts capture.
	Stop()
	// Format returns the capture's current AudioFormat. Safe to call
	// concurrently with Start/Stop.
	Format() wire.AudioFormat
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Addr is "host:port", shared by TCP and UDP per spec.md §6.
	Addr string
	// MTU is the path MTU used to size UDP segments. Zero selects
	// fanout.DefaultMTU.
	MTU int
}

// Server is the lifecycle controller for the streaming engine (C7). It
// owns the reactor and peer registry for exactly one run; Start is
// idempotent only while stopped, matching spec.md §4.7.
type Server struct {
	config  ServerConfig
	capture CaptureAdapter

	instanceID uuid.UUID

	registry *registry.Registry
	reactor  *reactor.Reactor
	fan      *fanout.Fanout

	tcpLn   *net.TCPListener
	udpConn *net.UDPConn

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	mu      sync.Mutex
	running bool

	stopped  chan struct{}
	wg       sync.WaitGroup
	sessWG   sync.WaitGroup
}

// NewServer creates a stopped Server. capture is invoked only from Start.
func NewServer(cfg ServerConfig, capture CaptureAdapter) *Server {
	if cfg.MTU == 0 {
		cfg.MTU = fanout.DefaultMTU
	}
	return &Server{
		config:     cfg,
		capture:    capture,
		instanceID: uuid.New(),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds both transports, starts capture, and spawns the accept and
// hello loops. Re-entry while running is a programming error.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("engine: server %s already running", s.instanceID)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("engine: resolve tcp addr: %w", err)
	}
	tcpLn, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("engine: listen tcp: %w", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.config.Addr)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("engine: resolve udp addr: %w", err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		tcpLn.Close()
		return fmt.Errorf("engine: listen udp: %w", err)
	}

	s.tcpLn = tcpLn
	s.udpConn = udpConn
	s.registry = registry.New()
	s.reactor = reactor.NewReactor()
	s.fan = fanout.New(udpConn, s.registry, s.config.MTU)
	s.stopped = make(chan struct{})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reactor.Run()
	}()

	if err := s.capture.Start(s.onFrame); err != nil {
		s.reactor.Stop()
		tcpLn.Close()
		udpConn.Close()
		return fmt.Errorf("engine: start capture: %w", err)
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	go func() {
		defer s.wg.Done()
		s.helloLoop()
	}()

	log.Printf("engine: server %s listening on %s", s.instanceID, s.config.Addr)
	s.running = true
	return nil
}

// onFrame is the capture sink. It never touches the registry or socket
// directly; it posts the fan-out work onto the reactor, per spec.md §4.4
// and the cyclic-ownership design note in §9.
func (s *Server) onFrame(frame []byte, blockAlign int) {
	s.reactor.Post(func() {
		s.fan.Broadcast(frame, blockAlign)
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.trackConn(conn)
		s.sessWG.Add(1)
		go func() {
			defer s.sessWG.Done()
			defer s.untrackConn(conn)
			s.runSession(conn)
		}()
	}
}

func (s *Server) runSession(conn net.Conn) {
	var sess *session.Session
	onAdmitted := func(id registry.SessionId) {
		liveness := session.NewLiveness(sess, s.registry, s.reactor)
		go liveness.Run()
	}
	sess = session.New(conn, s.registry, s.reactor, s.capture.Format, onAdmitted)
	sess.Run()
}

func (s *Server) helloLoop() {
	for {
		id, addr, err := s.fan.ReadHello()
		if err != nil {
			select {
			case <-s.stopped:
				return
			default:
				log.Printf("engine: hello receive error: %v", err)
				continue
			}
		}
		s.reactor.Post(func() {
			s.fan.Bind(id, addr)
		})
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.connMu.Lock()
	s.conns[conn] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// PeerCount returns the number of admitted sessions, for status reporting.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	reg := s.registry
	s.mu.Unlock()
	if reg == nil {
		return 0
	}
	return reg.Count()
}

// Snapshot returns the current peer records, for status reporting (e.g. a
// read-only TUI view).
func (s *Server) Snapshot() []registry.PeerRecord {
	s.mu.Lock()
	reg := s.registry
	s.mu.Unlock()
	if reg == nil {
		return nil
	}
	return reg.Snapshot()
}

// Stop tears everything down in the order spec.md §4.7 mandates: stop the
// reactor, join the worker threads, stop capture, clear the registry,
// release sockets. Go's goroutine-per-connection model needs one
// adaptation: accepted connections block on a per-session Read, which only
// a socket close can cancel, so closing the listener, the UDP socket and
// every tracked connection happens alongside "join the worker threads" rather than
// strictly after — the invariant spec cares about (no sends after stop,
// clean thread exit) holds either way since Broadcast cannot run once the
// reactor is stopped.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	close(s.stopped)
	s.reactor.Stop()

	s.tcpLn.Close()
	s.udpConn.Close()

	s.connMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.sessWG.Wait()

	s.capture.Stop()
	s.registry.Clear()

	s.running = false
	log.Printf("engine: server %s stopped", s.instanceID)
}
