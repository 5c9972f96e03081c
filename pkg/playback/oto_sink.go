// ABOUTME: oto-backed playback sink, software volume/mute carried from the teacher's player.Output
// ABOUTME: Implements clientsession.Sink: Init negotiates the oto context, Play renders one buffer at a time
package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// OtoSink renders received buffers through the host's default audio
// device. It satisfies clientsession.Sink.
type OtoSink struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	otoCtx  *oto.Context
	format  wire.AudioFormat
	volume  int
	muted   bool
	ready   bool
}

// NewOtoSink creates a sink at full volume, unmuted. Init must be called
// before Play.
func NewOtoSink() *OtoSink {
	return &OtoSink{volume: 100}
}

// Init implements clientsession.Sink. It (re)creates the oto context for
// the negotiated format.
func (s *OtoSink) Init(format wire.AudioFormat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.otoCtx != nil {
		s.closeLocked()
	}

	var otoFormat oto.Format
	switch format.Encoding {
	case wire.EncodingPCM16:
		otoFormat = oto.FormatSignedInt16LE
	case wire.EncodingFloat32:
		otoFormat = oto.FormatFloat32LE
	default:
		return fmt.Errorf("playback: unsupported encoding %v", format.Encoding)
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(format.SampleRate),
		ChannelCount: int(format.Channels),
		Format:       otoFormat,
	})
	if err != nil {
		return fmt.Errorf("playback: create oto context: %w", err)
	}
	<-readyChan

	_, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.otoCtx = ctx
	s.format = format
	s.ready = true

	log.Printf("playback: initialized %dHz, %d channels, %s", format.SampleRate, format.Channels, format.Encoding)
	return nil
}

// Play implements clientsession.Sink. buf is rendered after volume/mute is
// applied; a fresh oto.Player is spun up per buffer, mirroring the
// teacher's player.Output.Play.
func (s *OtoSink) Play(buf []byte) error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return fmt.Errorf("playback: sink not initialized")
	}
	ctx := s.otoCtx
	encoding := s.format.Encoding
	volume, muted := s.volume, s.muted
	s.mu.Unlock()

	rendered := applyVolume(buf, encoding, volume, muted)

	player := ctx.NewPlayer(bytes.NewReader(rendered))
	player.Play()
	return nil
}

// Stop implements clientsession.Sink.
func (s *OtoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *OtoSink) closeLocked() {
	if s.otoCtx != nil {
		s.otoCtx.Suspend()
		s.ready = false
	}
	if s.cancel != nil {
		s.cancel()
	}
}

// SetVolume sets playback volume, 0-100.
func (s *OtoSink) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
}

// SetMuted sets the mute flag.
func (s *OtoSink) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// Volume returns the current volume, 0-100.
func (s *OtoSink) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Muted reports the current mute flag.
func (s *OtoSink) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func applyVolume(buf []byte, encoding wire.Encoding, volume int, muted bool) []byte {
	multiplier := 0.0
	if !muted {
		multiplier = float64(volume) / 100.0
	}
	if multiplier == 1.0 {
		return buf
	}

	out := make([]byte, len(buf))
	switch encoding {
	case wire.EncodingFloat32:
		for i := 0; i+4 <= len(buf); i += 4 {
			bits := binary.LittleEndian.Uint32(buf[i : i+4])
			sample := math.Float32frombits(bits)
			scaled := math.Float32bits(sample * float32(multiplier))
			binary.LittleEndian.PutUint32(out[i:i+4], scaled)
		}
	default: // EncodingPCM16
		for i := 0; i+2 <= len(buf); i += 2 {
			sample := int16(binary.LittleEndian.Uint16(buf[i : i+2]))
			scaled := int16(float64(sample) * multiplier)
			binary.LittleEndian.PutUint16(out[i:i+2], uint16(scaled))
		}
	}
	return out
}
