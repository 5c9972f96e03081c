// ABOUTME: Local MP3/FLAC playback source, trimmed from the teacher's HTTP/HLS-capable AudioSource
// ABOUTME: Loops the file from the start on EOF, matching the teacher's behavior
package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"

	"github.com/loopstream/loopstream-go/internal/wire"
)

// fileDecoder is the minimal surface FileSource needs from either the MP3
// or FLAC decoder, post-trim: read into an int16 PCM16 frame.
type fileDecoder interface {
	readFrame(samples []int16) (int, error)
	sampleRate() int
	channels() int
	close() error
}

// FileSource decodes a local MP3 or FLAC file into PCM16 frames at the
// file's native sample rate. Unlike the teacher's AudioSource, it has no
// HTTP/HLS/ffmpeg variants and no resampling — out of scope per spec.md's
// Non-goals around jitter/quality adaptation.
type FileSource struct {
	decoder fileDecoder
	format  wire.AudioFormat

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewFileSource opens path and prepares a capture source from it. The
// extension selects the decoder; ".mp3" and ".flac" are supported.
func NewFileSource(path string) (*FileSource, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var dec fileDecoder
	var err error

	switch ext {
	case ".mp3":
		dec, err = newMP3Decoder(path)
	case ".flac":
		dec, err = newFLACDecoder(path)
	default:
		return nil, fmt.Errorf("capture: unsupported file type %q (want .mp3 or .flac)", ext)
	}
	if err != nil {
		return nil, err
	}

	format := wire.AudioFormat{
		SampleRate: uint32(dec.sampleRate()),
		Channels:   uint32(dec.channels()),
		Encoding:   wire.EncodingPCM16,
	}

	return &FileSource{decoder: dec, format: format, stop: make(chan struct{})}, nil
}

// Format implements engine.CaptureAdapter.
func (s *FileSource) Format() wire.AudioFormat { return s.format }

// Start implements engine.CaptureAdapter.
func (s *FileSource) Start(sink FrameSink) error {
	samplesPerChunk := int(s.format.SampleRate) * int(ChunkDuration/time.Millisecond) / 1000
	if samplesPerChunk == 0 {
		samplesPerChunk = 1
	}
	channels := int(s.format.Channels)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		samples := make([]int16, samplesPerChunk*channels)
		for {
			select {
			case <-s.stop:
				return
			default:
			}

			s.mu.Lock()
			n, err := s.decoder.readFrame(samples)
			s.mu.Unlock()
			if err != nil && err != io.EOF {
				return
			}
			if n == 0 {
				continue
			}

			frame := make([]byte, n*2)
			for i := 0; i < n; i++ {
				sample := samples[i]
				frame[i*2] = byte(sample)
				frame[i*2+1] = byte(sample >> 8)
			}
			sink(frame, s.format.BlockAlign())
		}
	}()
	return nil
}

// Stop implements engine.CaptureAdapter.
func (s *FileSource) Stop() {
	close(s.stop)
	s.wg.Wait()
	_ = s.decoder.close()
}

type mp3Decoder struct {
	file    *os.File
	decoder *mp3.Decoder
	rate    int
}

func newMP3Decoder(path string) (*mp3Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open mp3: %w", err)
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: decode mp3: %w", err)
	}
	return &mp3Decoder{file: f, decoder: dec, rate: dec.SampleRate()}, nil
}

func (d *mp3Decoder) sampleRate() int { return d.rate }
func (d *mp3Decoder) channels() int   { return 2 }

func (d *mp3Decoder) readFrame(samples []int16) (int, error) {
	buf := make([]byte, len(samples)*2)
	n, err := d.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
	}
	if err == io.EOF {
		if _, serr := d.file.Seek(0, 0); serr != nil {
			return count, fmt.Errorf("capture: loop mp3: %w", serr)
		}
		newDec, derr := mp3.NewDecoder(d.file)
		if derr != nil {
			return count, fmt.Errorf("capture: restart mp3 decoder: %w", derr)
		}
		d.decoder = newDec
	}
	return count, nil
}

func (d *mp3Decoder) close() error { return d.file.Close() }

type flacDecoder struct {
	file     *os.File
	stream   *flac.Stream
	rate     int
	numCh    int
	bitDepth int

	pending []int16
}

func newFLACDecoder(path string) (*flacDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open flac: %w", err)
	}
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: decode flac: %w", err)
	}
	return &flacDecoder{
		file:     f,
		stream:   stream,
		rate:     int(stream.Info.SampleRate),
		numCh:    int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) sampleRate() int { return d.rate }
func (d *flacDecoder) channels() int   { return d.numCh }

func (d *flacDecoder) readFrame(samples []int16) (int, error) {
	written := 0
	for written < len(samples) {
		if len(d.pending) > 0 {
			n := copy(samples[written:], d.pending)
			d.pending = d.pending[n:]
			written += n
			continue
		}

		frame, err := d.stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				if _, serr := d.file.Seek(0, 0); serr != nil {
					return written, fmt.Errorf("capture: loop flac: %w", serr)
				}
				newStream, derr := flac.New(d.file)
				if derr != nil {
					return written, fmt.Errorf("capture: restart flac stream: %w", derr)
				}
				d.stream = newStream
				continue
			}
			return written, err
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < d.numCh; ch++ {
				d.pending = append(d.pending, to16Bit(frame.Subframes[ch].Samples[i], d.bitDepth))
			}
		}
	}
	return written, nil
}

func to16Bit(sample int32, bitDepth int) int16 {
	shift := bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	if shift < 0 {
		return int16(sample << -shift)
	}
	return int16(sample)
}

func (d *flacDecoder) close() error { return d.file.Close() }
