// ABOUTME: UDP binder and per-peer audio fan-out
// ABOUTME: Segments capture frames to MTU-sized, block-aligned chunks and sends to every bound peer
package fanout

import (
	"net"

	"github.com/loopstream/loopstream-go/internal/registry"
	"github.com/loopstream/loopstream-go/internal/wire"
)

// DefaultMTU is the reference implementation's hard-coded path MTU. Spec's
// design notes call out exposing this as a parameter rather than a
// constant, for jumbo-frame or tunnelled-link environments.
const DefaultMTU = 1492

// ipUDPOverhead is the IPv4 + UDP header size subtracted from the MTU to
// get the maximum payload a single datagram can carry.
const ipUDPOverhead = 20 + 8

// MaxSegmentBytes returns the largest segment payload for a given MTU,
// mirroring spec.md's MAX_SEG = mtu - 20 - 8.
func MaxSegmentBytes(mtu int) int {
	n := mtu - ipUDPOverhead
	if n < 0 {
		return 0
	}
	return n
}

// Fanout owns the shared UDP socket used for both the hello bind phase and
// outbound audio segments. All of its methods are meant to be called from
// a single goroutine (the reactor) to serialize socket access; see
// internal/reactor.Reactor.
type Fanout struct {
	conn       *net.UDPConn
	registry   *registry.Registry
	maxSegment int
}

// New creates a Fanout bound to conn, computing its MTU-derived maximum
// segment size once.
func New(conn *net.UDPConn, reg *registry.Registry, mtu int) *Fanout {
	return &Fanout{
		conn:       conn,
		registry:   reg,
		maxSegment: MaxSegmentBytes(mtu),
	}
}

// SegmentSize returns the per-segment payload size for blockAlign, i.e.
// maxSegment truncated down to the nearest multiple of blockAlign.
func (f *Fanout) SegmentSize(blockAlign int) int {
	return segmentSize(f.maxSegment, blockAlign)
}

func segmentSize(maxSegment, blockAlign int) int {
	if blockAlign <= 0 {
		return 0
	}
	return maxSegment - (maxSegment % blockAlign)
}

// Segment splits frame into block-aligned chunks of at most
// MaxSegmentBytes. The final chunk may be shorter; it stays a multiple of
// blockAlign when len(frame) is one, as capture frames are, and otherwise
// carries the remainder as is. Segments carry no ordering metadata.
func Segment(frame []byte, blockAlign, maxSegment int) [][]byte {
	segSize := segmentSize(maxSegment, blockAlign)
	if segSize <= 0 || len(frame) == 0 {
		return nil
	}

	segments := make([][]byte, 0, (len(frame)+segSize-1)/segSize)
	for offset := 0; offset < len(frame); offset += segSize {
		end := offset + segSize
		if end > len(frame) {
			end = len(frame)
		}
		segments = append(segments, frame[offset:end])
	}
	return segments
}

// Broadcast segments frame per blockAlign and sends every segment to every
// peer in the registry with a bound UDP address. Sends are fire-and-forget:
// a write error drops that segment silently and is never surfaced to the
// capture pipeline. Must run on the reactor goroutine.
func (f *Fanout) Broadcast(frame []byte, blockAlign int) {
	segments := Segment(frame, blockAlign, f.maxSegment)
	if segments == nil {
		return
	}

	destinations := f.registry.SnapshotDestinations()
	for _, seg := range segments {
		for _, dest := range destinations {
			_, _ = f.conn.WriteToUDP(seg, dest.Addr)
		}
	}
}

// ReadHello blocks for the next hello datagram and returns the session id
// it carries along with the sender's UDP source endpoint. It is the bind
// phase's single suspension point and is meant to run on its own goroutine
// that posts BindUDP calls back onto the reactor (see internal/engine).
func (f *Fanout) ReadHello() (uint32, *net.UDPAddr, error) {
	buf := make([]byte, wire.HelloSize)
	n, addr, err := f.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, err
	}
	id, err := wire.DecodeHello(buf[:n])
	if err != nil {
		return 0, addr, err
	}
	return id, addr, nil
}

// Bind records addr as the UDP endpoint for id in the registry. Called
// from the reactor goroutine after ReadHello, per the single-mutator
// discipline.
func (f *Fanout) Bind(id uint32, addr *net.UDPAddr) {
	f.registry.BindUDP(registry.SessionId(id), addr)
}
