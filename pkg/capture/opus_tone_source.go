// ABOUTME: Test tone source that round-trips through Opus before emitting PCM16 frames
// ABOUTME: Exercises the encode/decode path from the teacher's opus_encoder.go without changing the wire format
package capture

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gopkg.in/hraban/opus.v2"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// opusFrameSamples is the frame size libopus expects at 48kHz for a 20ms
// frame (960 samples per channel), matching the teacher's frameSize
// convention in NewOpusEncoder.
const opusFrameSamples = 960

// OpusTestToneSource generates the same 440Hz sine wave as TestToneSource
// but encodes each chunk through Opus and immediately decodes it back to
// PCM16 before handing it to the sink. The wire protocol only carries PCM16
// or float32 (spec.md §4.1), so this exists purely to exercise the Opus
// codec path the teacher depends on, the way a lossy intermediate transport
// would in production.
type OpusTestToneSource struct {
	sampleRate int
	channels   int
	frequency  float64

	encoder *opus.Encoder
	decoder *opus.Decoder

	mu          sync.Mutex
	sampleIndex uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewOpusTestToneSource creates an Opus-round-tripped tone generator.
// sampleRate must be one libopus accepts (8/12/16/24/48 kHz).
func NewOpusTestToneSource(sampleRate, channels int) (*OpusTestToneSource, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("capture: new opus encoder: %w", err)
	}
	if err := enc.SetBitrate(64000 * channels); err != nil {
		return nil, fmt.Errorf("capture: set opus bitrate: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("capture: new opus decoder: %w", err)
	}

	return &OpusTestToneSource{
		sampleRate: sampleRate,
		channels:   channels,
		frequency:  440.0,
		encoder:    enc,
		decoder:    dec,
		stop:       make(chan struct{}),
	}, nil
}

// Format implements engine.CaptureAdapter. The emitted frames are always
// PCM16 regardless of the Opus round trip in between.
func (s *OpusTestToneSource) Format() wire.AudioFormat {
	return wire.AudioFormat{
		SampleRate: uint32(s.sampleRate),
		Channels:   uint32(s.channels),
		Encoding:   wire.EncodingPCM16,
	}
}

// Start implements engine.CaptureAdapter.
func (s *OpusTestToneSource) Start(sink FrameSink) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		interval := time.Duration(opusFrameSamples) * time.Second / time.Duration(s.sampleRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				frame, err := s.generateChunk()
				if err != nil {
					continue
				}
				sink(frame, s.Format().BlockAlign())
			}
		}
	}()
	return nil
}

// Stop implements engine.CaptureAdapter.
func (s *OpusTestToneSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *OpusTestToneSource) generateChunk() ([]byte, error) {
	s.mu.Lock()
	startIndex := s.sampleIndex
	s.sampleIndex += uint64(opusFrameSamples)
	s.mu.Unlock()

	pcm := make([]int16, opusFrameSamples*s.channels)
	for i := 0; i < opusFrameSamples; i++ {
		t := float64(startIndex+uint64(i)) / float64(s.sampleRate)
		value := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5)
		for ch := 0; ch < s.channels; ch++ {
			pcm[i*s.channels+ch] = value
		}
	}

	encoded := make([]byte, 4000)
	n, err := s.encoder.Encode(pcm, encoded)
	if err != nil {
		return nil, fmt.Errorf("capture: opus encode: %w", err)
	}

	decoded := make([]int16, opusFrameSamples*s.channels)
	n2, err := s.decoder.Decode(encoded[:n], decoded)
	if err != nil {
		return nil, fmt.Errorf("capture: opus decode: %w", err)
	}

	frame := make([]byte, n2*s.channels*2)
	for i := 0; i < n2*s.channels; i++ {
		sample := decoded[i]
		frame[i*2] = byte(sample)
		frame[i*2+1] = byte(sample >> 8)
	}
	return frame, nil
}
