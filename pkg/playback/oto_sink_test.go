// ABOUTME: Tests for volume/mute application, mirroring the teacher's output_test.go scope
package playback

import (
	"encoding/binary"
	"testing"

	"github.com/loopstream/loopstream-go/internal/wire"
)

func TestApplyVolumePCM16(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(int16(-1000)))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(int16(500)))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(int16(-500)))

	out := applyVolume(buf, wire.EncodingPCM16, 50, false)

	want := []int16{500, -500, 250, -250}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		if got != w {
			t.Errorf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestApplyVolumeMutedZerosOutput(t *testing.T) {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, uint16(int16(12345)))

	out := applyVolume(buf, wire.EncodingPCM16, 80, true)

	got := int16(binary.LittleEndian.Uint16(out))
	if got != 0 {
		t.Errorf("muted sample = %d, want 0", got)
	}
}

func TestApplyVolumeFullVolumeReturnsSameBytes(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out := applyVolume(buf, wire.EncodingPCM16, 100, false)
	if len(out) != len(buf) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(buf))
	}
	for i := range buf {
		if out[i] != buf[i] {
			t.Errorf("byte %d = %d, want %d", i, out[i], buf[i])
		}
	}
}

func TestOtoSinkVolumeClamping(t *testing.T) {
	s := NewOtoSink()
	s.SetVolume(-10)
	if got := s.Volume(); got != 0 {
		t.Errorf("Volume() = %d, want 0", got)
	}
	s.SetVolume(150)
	if got := s.Volume(); got != 100 {
		t.Errorf("Volume() = %d, want 100", got)
	}
}

func TestOtoSinkPlayBeforeInitFails(t *testing.T) {
	s := NewOtoSink()
	if err := s.Play([]byte{1, 2}); err == nil {
		t.Error("expected Play before Init to fail")
	}
}

func TestOtoSinkMuteToggle(t *testing.T) {
	s := NewOtoSink()
	if s.Muted() {
		t.Fatal("new sink should start unmuted")
	}
	s.SetMuted(true)
	if !s.Muted() {
		t.Error("Muted() = false after SetMuted(true)")
	}
}
