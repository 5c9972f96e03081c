// ABOUTME: Tests for the client-side session driver against a fake server
package clientsession

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// fakeSink records every buffer delivered by the client's audio-in loop.
type fakeSink struct {
	mu      sync.Mutex
	format  wire.AudioFormat
	buffers [][]byte
	stopped bool
}

func (f *fakeSink) Init(format wire.AudioFormat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.format = format
	return nil
}

func (f *fakeSink) Play(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffers = append(f.buffers, buf)
	return nil
}

func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSink) bufferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffers)
}

// fakeServer accepts exactly one TCP connection, replies to GetFormat and
// StartPlay, and fans out frames it's told to send once a hello arrives.
type fakeServer struct {
	tcpLn   *net.TCPListener
	udpConn *net.UDPConn
	format  wire.AudioFormat
	id      uint32

	helloAddr chan *net.UDPAddr
}

func newFakeServer(t *testing.T, format wire.AudioFormat, id uint32) *fakeServer {
	t.Helper()
	tcpLn, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: tcpLn.Addr().(*net.TCPAddr).Port})
	if err != nil {
		tcpLn.Close()
		t.Fatalf("ListenUDP: %v", err)
	}

	return &fakeServer{tcpLn: tcpLn, udpConn: udpConn, format: format, id: id, helloAddr: make(chan *net.UDPAddr, 1)}
}

func (s *fakeServer) addr() string { return s.tcpLn.Addr().String() }

func (s *fakeServer) run(t *testing.T) {
	t.Helper()
	conn, err := s.tcpLn.Accept()
	if err != nil {
		return
	}
	go func() {
		for {
			cmd, err := wire.ReadCommand(conn)
			if err != nil {
				return
			}
			switch cmd {
			case wire.CommandGetFormat:
				wire.WriteFormatReply(conn, s.format.Encode())
			case wire.CommandStartPlay:
				wire.WriteStartPlayReply(conn, s.id)
			case wire.CommandHeartbeat:
				// consumed, no reply required by the client's loop
			}
		}
	}()

	go func() {
		buf := make([]byte, 16)
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if _, err := wire.DecodeHello(buf[:n]); err == nil {
			s.helloAddr <- addr
		}
	}()
}

func (s *fakeServer) sendSegment(t *testing.T, addr *net.UDPAddr, payload []byte) {
	t.Helper()
	if _, err := s.udpConn.WriteToUDP(payload, addr); err != nil {
		t.Fatalf("sendSegment: %v", err)
	}
}

func (s *fakeServer) close() {
	s.tcpLn.Close()
	s.udpConn.Close()
}

func TestClientConnectNegotiatesAndRegisters(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: wire.EncodingPCM16}
	server := newFakeServer(t, format, 5)
	defer server.close()
	go server.run(t)

	sink := &fakeSink{}
	client, err := Connect(Config{Addr: server.addr()}, sink)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Stop()

	if client.ID() != 5 {
		t.Errorf("ID() = %d, want 5", client.ID())
	}
	if client.Format() != format {
		t.Errorf("Format() = %+v, want %+v", client.Format(), format)
	}
	if sink.format != format {
		t.Errorf("sink.format = %+v, want %+v", sink.format, format)
	}

	select {
	case <-server.helloAddr:
	case <-time.After(time.Second):
		t.Fatal("server never received a hello datagram")
	}
}

func TestClientDeliversReceivedSegmentsToSink(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 1, Encoding: wire.EncodingPCM16}
	server := newFakeServer(t, format, 9)
	defer server.close()
	go server.run(t)

	sink := &fakeSink{}
	client, err := Connect(Config{Addr: server.addr()}, sink)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Stop()

	var helloAddr *net.UDPAddr
	select {
	case helloAddr = <-server.helloAddr:
	case <-time.After(time.Second):
		t.Fatal("server never received a hello datagram")
	}

	payload := []byte{1, 2, 3, 4}
	server.sendSegment(t, helloAddr, payload)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sink.bufferCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.bufferCount() != 1 {
		t.Fatalf("sink received %d buffers, want 1", sink.bufferCount())
	}
}

func TestClientStopIsIdempotentAndStopsSink(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: wire.EncodingPCM16}
	server := newFakeServer(t, format, 3)
	defer server.close()
	go server.run(t)

	sink := &fakeSink{}
	client, err := Connect(Config{Addr: server.addr()}, sink)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	client.Stop()
	client.Stop() // must not panic or block

	if !sink.stopped {
		t.Error("sink.Stop was not called")
	}
	if client.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestConnectFailsOnRefusedAdmission(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: wire.EncodingPCM16}
	server := newFakeServer(t, format, 0) // id=0 simulates a server-side refusal
	defer server.close()
	go server.run(t)

	sink := &fakeSink{}
	if _, err := Connect(Config{Addr: server.addr()}, sink); err == nil {
		t.Error("expected Connect to fail when the server returns id=0")
	}
}
