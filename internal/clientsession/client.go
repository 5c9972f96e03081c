// ABOUTME: Client-side mirror of the control-channel and UDP fan-out protocol
// ABOUTME: Negotiates format, registers via UDP hello, streams audio into a playback sink
package clientsession

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// Sink is the playback adapter contract from spec.md §6. It is external to
// the protocol core; this package only calls it.
type Sink interface {
	// Init prepares the sink for the negotiated format. Called once before
	// streaming begins.
	Init(format wire.AudioFormat) error
	// Play delivers one received buffer verbatim. Must not block the
	// caller for long — the audio-in loop calls this inline.
	Play(buf []byte) error
	// Stop releases sink resources.
	Stop() error
}

// DefaultMaxDatagram is the receive buffer size for incoming audio
// segments, per spec.md §4.6 step 6 ("up to 4 KiB").
const DefaultMaxDatagram = 4096

// HeartbeatInterval is how often the client sends Heartbeat over the
// control channel.
const HeartbeatInterval = 3 * time.Second

// Config configures a Client.
type Config struct {
	// Addr is "host:port", shared by the TCP control channel and the UDP
	// datagram channel.
	Addr string
	// MaxDatagram bounds the receive buffer for incoming audio segments.
	// Zero selects DefaultMaxDatagram.
	MaxDatagram int
}

// Client drives one session against a loopstream server.
type Client struct {
	conn    net.Conn
	udpConn *net.UDPConn
	sink    Sink
	format  wire.AudioFormat
	id      uint32

	maxDatagram int

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Connect performs the full handshake from spec.md §4.6 steps 1-5 and, on
// success, starts the heartbeat-out and audio-in background tasks (step 6).
func Connect(cfg Config, sink Sink) (*Client, error) {
	if cfg.MaxDatagram == 0 {
		cfg.MaxDatagram = DefaultMaxDatagram
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("clientsession: dial %s: %w", cfg.Addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	format, err := negotiateFormat(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	id, err := startPlay(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientsession: resolve udp addr: %w", err)
	}
	udpConn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientsession: dial udp: %w", err)
	}
	if _, err := udpConn.Write(wire.EncodeHello(id)); err != nil {
		conn.Close()
		udpConn.Close()
		return nil, fmt.Errorf("clientsession: send hello: %w", err)
	}

	if err := sink.Init(format); err != nil {
		conn.Close()
		udpConn.Close()
		return nil, fmt.Errorf("clientsession: init playback sink: %w", err)
	}

	c := &Client{
		conn:        conn,
		udpConn:     udpConn,
		sink:        sink,
		format:      format,
		id:          id,
		maxDatagram: cfg.MaxDatagram,
		stop:        make(chan struct{}),
	}

	c.wg.Add(3)
	go c.heartbeatLoop()
	go c.audioInLoop()
	go c.controlReadLoop()

	return c, nil
}

// negotiateFormat performs step 2: GetFormat request/reply.
func negotiateFormat(conn net.Conn) (wire.AudioFormat, error) {
	if err := wire.WriteCommand(conn, wire.CommandGetFormat); err != nil {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: send GetFormat: %w", err)
	}
	cmd, err := wire.ReadCommand(conn)
	if err != nil {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: read GetFormat reply: %w", err)
	}
	if cmd != wire.CommandGetFormat {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: unexpected reply command %v to GetFormat", cmd)
	}
	payload, err := wire.ReadFormatReply(conn)
	if err != nil {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: read format payload: %w", err)
	}
	if len(payload) == 0 {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: empty format payload")
	}
	format, err := wire.DecodeAudioFormat(payload)
	if err != nil {
		return wire.AudioFormat{}, fmt.Errorf("clientsession: parse audio format: %w", err)
	}
	return format, nil
}

// startPlay performs step 3: StartPlay request/reply.
func startPlay(conn net.Conn) (uint32, error) {
	if err := wire.WriteCommand(conn, wire.CommandStartPlay); err != nil {
		return 0, fmt.Errorf("clientsession: send StartPlay: %w", err)
	}
	cmd, err := wire.ReadCommand(conn)
	if err != nil {
		return 0, fmt.Errorf("clientsession: read StartPlay reply: %w", err)
	}
	if cmd != wire.CommandStartPlay {
		return 0, fmt.Errorf("clientsession: unexpected reply command %v to StartPlay", cmd)
	}
	id, err := wire.ReadSessionID(conn)
	if err != nil {
		return 0, fmt.Errorf("clientsession: read session id: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("clientsession: server refused admission (duplicate or rejected)")
	}
	return id, nil
}

// ID returns the session id assigned by the server.
func (c *Client) ID() uint32 { return c.id }

// Format returns the negotiated audio format.
func (c *Client) Format() wire.AudioFormat { return c.format }

// IsRunning reports whether the client's background tasks are still
// active.
func (c *Client) IsRunning() bool {
	select {
	case <-c.stop:
		return false
	default:
		return true
	}
}

// heartbeatLoop sends Heartbeat over TCP every HeartbeatInterval until
// stopped or the connection fails.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := wire.WriteCommand(c.conn, wire.CommandHeartbeat); err != nil {
				log.Printf("clientsession: heartbeat send failed: %v", err)
				go c.Stop()
				return
			}
		}
	}
}

// controlReadLoop drains inbound control-channel commands (server
// heartbeats) and treats any successful read as an implicit liveness
// signal. A read error tears down the session.
func (c *Client) controlReadLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		cmd, err := wire.ReadCommand(c.conn)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			log.Printf("clientsession: control channel read error: %v", err)
			go c.Stop()
			return
		}
		if cmd == wire.CommandGetFormat {
			// A server-initiated GetFormat reply is never sent, but if a
			// format payload is somehow in flight, drain it so the stream
			// doesn't desync.
			if _, err := wire.ReadFormatReply(c.conn); err != nil {
				log.Printf("clientsession: failed to drain unexpected format payload: %v", err)
				go c.Stop()
				return
			}
		}
		// Heartbeat (and any other bare command) needs no further action;
		// the read itself is the liveness signal.
	}
}

// audioInLoop receives datagrams and delivers them verbatim to the
// playback sink. Receive errors are logged and the loop continues — the
// client tolerates transient UDP failures.
func (c *Client) audioInLoop() {
	defer c.wg.Done()

	buf := make([]byte, c.maxDatagram)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := c.udpConn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-c.stop:
				return
			default:
			}
			log.Printf("clientsession: udp receive error: %v", err)
			continue
		}

		segment := make([]byte, n)
		copy(segment, buf[:n])
		if err := c.sink.Play(segment); err != nil {
			log.Printf("clientsession: playback sink error: %v", err)
		}
	}
}

// Stop signals the three background tasks (heartbeat-out, audio-in,
// control-read) to exit, closes both sockets, waits for them to finish, and
// releases the playback sink. Idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.conn.Close()
		c.udpConn.Close()
		c.wg.Wait()
		_ = c.sink.Stop()
	})
}
