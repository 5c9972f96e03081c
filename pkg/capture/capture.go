// ABOUTME: Capture adapters producing PCM frames for the streaming engine
// ABOUTME: TestToneSource mirrors the teacher's default sine-wave generator; FileSource decodes local MP3/FLAC
package capture

import (
	"math"
	"sync"
	"time"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// FrameSink receives one encoded PCM frame at a time. blockAlign is the
// byte size of one interleaved sample frame (channels * bytes-per-sample),
// matching wire.AudioFormat.BlockAlign.
type FrameSink = func(frame []byte, blockAlign int)

// ChunkDuration is how often a capture source emits a frame, matching the
// teacher's 20ms chunking in AudioEngine.
const ChunkDuration = 20 * time.Millisecond

// TestToneSource generates a continuous 440Hz sine wave at a configured
// AudioFormat. It never touches real hardware; it exists so the engine is
// runnable without a loopback capture backend wired in.
type TestToneSource struct {
	format    wire.AudioFormat
	frequency float64

	mu          sync.Mutex
	sampleIndex uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewTestToneSource creates a generator for the given format. Only
// EncodingPCM16 and EncodingFloat32 are supported.
func NewTestToneSource(format wire.AudioFormat) *TestToneSource {
	return &TestToneSource{
		format:    format,
		frequency: 440.0, // A4
		stop:      make(chan struct{}),
	}
}

// Format implements engine.CaptureAdapter.
func (s *TestToneSource) Format() wire.AudioFormat { return s.format }

// Start implements engine.CaptureAdapter. It spawns a ticker goroutine
// producing one frame every ChunkDuration.
func (s *TestToneSource) Start(sink FrameSink) error {
	samplesPerChunk := int(s.format.SampleRate) * int(ChunkDuration/time.Millisecond) / 1000

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(ChunkDuration)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				frame := s.generateChunk(samplesPerChunk)
				sink(frame, s.format.BlockAlign())
			}
		}
	}()
	return nil
}

// Stop implements engine.CaptureAdapter. Idempotent.
func (s *TestToneSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *TestToneSource) generateChunk(samplesPerChunk int) []byte {
	s.mu.Lock()
	startIndex := s.sampleIndex
	s.sampleIndex += uint64(samplesPerChunk)
	s.mu.Unlock()

	channels := int(s.format.Channels)
	blockAlign := s.format.BlockAlign()
	bytesPerSample := s.format.Encoding.BytesPerSample()
	frame := make([]byte, samplesPerChunk*blockAlign)

	for i := 0; i < samplesPerChunk; i++ {
		t := float64(startIndex+uint64(i)) / float64(s.format.SampleRate)
		value := math.Sin(2*math.Pi*s.frequency*t) * 0.5

		offset := i * blockAlign
		for ch := 0; ch < channels; ch++ {
			writeSample(frame[offset+ch*bytesPerSample:], s.format.Encoding, value)
		}
	}

	return frame
}

func writeSample(dst []byte, encoding wire.Encoding, value float64) {
	switch encoding {
	case wire.EncodingFloat32:
		bits := math.Float32bits(float32(value))
		dst[0] = byte(bits)
		dst[1] = byte(bits >> 8)
		dst[2] = byte(bits >> 16)
		dst[3] = byte(bits >> 24)
	default: // EncodingPCM16
		sample := int16(value * 32767.0)
		dst[0] = byte(sample)
		dst[1] = byte(sample >> 8)
	}
}
