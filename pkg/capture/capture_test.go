// ABOUTME: Tests for the sine-wave test-tone capture source
package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/loopstream/loopstream-go/internal/wire"
)

func TestTestToneSourceEmitsFramesOfExpectedSize(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: wire.EncodingPCM16}
	src := NewTestToneSource(format)

	samplesPerChunk := int(format.SampleRate) * int(ChunkDuration/time.Millisecond) / 1000
	wantLen := samplesPerChunk * format.BlockAlign()

	var mu sync.Mutex
	var frames [][]byte
	if err := src.Start(func(frame []byte, blockAlign int) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, frame)
		if blockAlign != format.BlockAlign() {
			t.Errorf("blockAlign = %d, want %d", blockAlign, format.BlockAlign())
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) == 0 {
		t.Fatal("no frames produced")
	}
	if len(frames[0]) != wantLen {
		t.Errorf("frame length = %d, want %d", len(frames[0]), wantLen)
	}
}

func TestTestToneSourceFloat32Encoding(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 8000, Channels: 1, Encoding: wire.EncodingFloat32}
	src := NewTestToneSource(format)

	done := make(chan []byte, 1)
	if err := src.Start(func(frame []byte, blockAlign int) {
		select {
		case done <- frame:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case frame := <-done:
		if len(frame)%4 != 0 {
			t.Errorf("float32 frame length %d not a multiple of 4", len(frame))
		}
	case <-time.After(time.Second):
		t.Fatal("no frame produced")
	}
}

func TestTestToneSourceStopIsIdempotent(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 48000, Channels: 2, Encoding: wire.EncodingPCM16}
	src := NewTestToneSource(format)
	if err := src.Start(func(frame []byte, blockAlign int) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stop()
	src.Stop() // must not panic
}

func TestTestToneSourceFormat(t *testing.T) {
	format := wire.AudioFormat{SampleRate: 44100, Channels: 2, Encoding: wire.EncodingPCM16}
	src := NewTestToneSource(format)
	if got := src.Format(); got != format {
		t.Errorf("Format() = %+v, want %+v", got, format)
	}
}
