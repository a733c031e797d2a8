package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/Adityatewari181/krishi-bandhu/internal/audio"
)

// framesPerChunk is the PortAudio buffer size per callback. 1024 frames at
// 16 kHz is 64 ms of audio per chunk.
const framesPerChunk = 1024

// Microphone captures from the system default input device via PortAudio.
// Chunks are delivered as little-endian float32 PCM.
type Microphone struct{}

// NewMicrophone returns the default-input capture device.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Codec reports the native codec of delivered chunks.
func (m *Microphone) Codec() string {
	return audio.CodecPCMFloat32
}

// Open acquires the default input device and starts the capture callback.
func (m *Microphone) Open(cfg CaptureConfig, sink ChunkSink) (Stream, error) {
	if cfg.SampleRate <= 0 || cfg.Channels < 1 {
		return nil, fmt.Errorf("invalid capture config: rate=%d channels=%d", cfg.SampleRate, cfg.Channels)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	callback := func(in []float32) {
		buf := make([]byte, len(in)*4)
		for i, s := range in {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
		}
		sink.WriteChunk(buf)
	}

	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerChunk, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &micStream{stream: stream, running: true}, nil
}

// micStream wraps a PortAudio input stream. PortAudio's Stop drains the
// pending buffers before returning, which gives Stop its flush guarantee.
type micStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	closed  bool
}

func (s *micStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to pause input stream: %w", err)
	}
	s.running = false
	return nil
}

func (s *micStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to resume input stream: %w", err)
	}
	s.running = true
	return nil
}

func (s *micStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	s.running = false
	return nil
}

func (s *micStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}
