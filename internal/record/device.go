package record

import "errors"

// ErrDeviceUnavailable is returned when the capture device cannot be
// opened: no microphone present, permission denied, or the device is
// claimed by another process.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// CaptureConfig describes the format a device should capture in.
type CaptureConfig struct {
	SampleRate int
	Channels   int
}

// ChunkSink receives native audio chunks as the device produces them.
// Implementations must tolerate being called from the device's capture
// goroutine.
type ChunkSink interface {
	WriteChunk(data []byte)
}

// Device opens capture streams. Implementations report the native codec
// of the chunks they deliver so the encoder knows how to decode them.
type Device interface {
	// Open starts capturing in the given format, delivering chunks to
	// sink until the stream is stopped. It returns ErrDeviceUnavailable
	// (possibly wrapped) when no capture source can be acquired.
	Open(cfg CaptureConfig, sink ChunkSink) (Stream, error)

	// Codec identifies the native codec of delivered chunks, e.g.
	// "pcm_f32le".
	Codec() string
}

// Stream is an open capture stream.
type Stream interface {
	// Pause suspends chunk delivery without releasing the device.
	Pause() error

	// Resume restarts chunk delivery after a Pause.
	Resume() error

	// Stop finalizes the stream. It blocks until every chunk the device
	// produced has been delivered to the sink.
	Stop() error

	// Close releases the device. Safe to call after Stop.
	Close() error
}
