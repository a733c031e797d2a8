package playback

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// renderFramesPerBuffer is the output buffer size per render callback.
const renderFramesPerBuffer = 1024

// SourceFunc fills out with interleaved PCM-16 samples and returns how
// many it wrote. Returning 0 signals the end of the track; the renderer
// keeps the device silent afterwards.
type SourceFunc func(out []int16) int

// Renderer opens audio output streams.
type Renderer interface {
	Open(sampleRate, channels int, source SourceFunc) (RenderStream, error)
}

// RenderStream is an open output stream.
type RenderStream interface {
	Start() error
	Stop() error
	Close() error
}

// Speaker renders to the system default output device via PortAudio.
type Speaker struct{}

// NewSpeaker returns the default-output renderer.
func NewSpeaker() *Speaker {
	return &Speaker{}
}

// Open acquires the default output device.
func (s *Speaker) Open(sampleRate, channels int, source SourceFunc) (RenderStream, error) {
	if sampleRate <= 0 || channels < 1 {
		return nil, fmt.Errorf("invalid render config: rate=%d channels=%d", sampleRate, channels)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio output: %w", err)
	}

	callback := func(out []int16) {
		n := source(out)
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
	}

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), renderFramesPerBuffer, callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &speakerStream{stream: stream}, nil
}

type speakerStream struct {
	stream *portaudio.Stream
	closed bool
}

func (s *speakerStream) Start() error {
	return s.stream.Start()
}

func (s *speakerStream) Stop() error {
	return s.stream.Stop()
}

func (s *speakerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.stream.Close()
	portaudio.Terminate()
	return err
}
