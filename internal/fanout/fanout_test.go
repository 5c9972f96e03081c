// ABOUTME: Tests for MTU-aware segmentation and fan-out completeness
package fanout

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/loopstream/loopstream-go/internal/registry"
)

func TestMaxSegmentBytes(t *testing.T) {
	if got := MaxSegmentBytes(1492); got != 1464 {
		t.Errorf("MaxSegmentBytes(1492) = %d, want 1464", got)
	}
}

func TestSegmentS1SinglePeerHappyPath(t *testing.T) {
	frame := make([]byte, 480)
	segs := Segment(frame, 4, MaxSegmentBytes(1492))
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1", len(segs))
	}
	if len(segs[0]) != 480 {
		t.Errorf("segment length = %d, want 480", len(segs[0]))
	}
}

func TestSegmentS2Boundary(t *testing.T) {
	frame := make([]byte, 3000)
	for i := range frame {
		frame[i] = byte(i)
	}
	segs := Segment(frame, 8, MaxSegmentBytes(1492))

	wantLens := []int{1464, 1464, 72}
	if len(segs) != len(wantLens) {
		t.Fatalf("got %d segments, want %d", len(segs), len(wantLens))
	}
	total := 0
	for i, seg := range segs {
		if len(seg) != wantLens[i] {
			t.Errorf("segment %d length = %d, want %d", i, len(seg), wantLens[i])
		}
		total += len(seg)
	}
	if total != len(frame) {
		t.Errorf("total segmented bytes = %d, want %d", total, len(frame))
	}

	var reassembled []byte
	for _, seg := range segs {
		reassembled = append(reassembled, seg...)
	}
	if !bytes.Equal(reassembled, frame) {
		t.Error("reassembled segments do not equal original frame")
	}
}

func TestSegmentAlignment(t *testing.T) {
	frame := make([]byte, 5004) // 834 whole 6-byte sample frames
	blockAlign := 6
	segs := Segment(frame, blockAlign, MaxSegmentBytes(1492))
	for i, seg := range segs {
		if len(seg)%blockAlign != 0 {
			t.Errorf("segment %d length %d is not a multiple of block_align %d", i, len(seg), blockAlign)
		}
	}
}

func TestSegmentEmptyFrame(t *testing.T) {
	if segs := Segment(nil, 4, MaxSegmentBytes(1492)); segs != nil {
		t.Errorf("got %v, want nil for empty frame", segs)
	}
}

func TestBroadcastOnlyReachesBoundPeers(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP server: %v", err)
	}
	defer serverConn.Close()

	clientA, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP client A: %v", err)
	}
	defer clientA.Close()

	reg := registry.New()
	handleA, _ := net.Pipe()
	defer handleA.Close()
	idA := reg.Admit(handleA)
	reg.BindUDP(registry.SessionId(idA), clientA.LocalAddr().(*net.UDPAddr))

	handleB, _ := net.Pipe()
	defer handleB.Close()
	reg.Admit(handleB) // never sends a hello; must not receive audio

	f := New(serverConn, reg, DefaultMTU)
	frame := []byte{1, 2, 3, 4}
	f.Broadcast(frame, 4)

	clientA.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, _, err := clientA.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("client A did not receive segment: %v", err)
	}
	if !bytes.Equal(buf[:n], frame) {
		t.Errorf("got %v, want %v", buf[:n], frame)
	}
}
