package record

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adityatewari181/krishi-bandhu/internal/query"
)

// State represents the lifecycle state of a recording session.
type State int

const (
	// StateIdle means the session exists but capture has not started.
	StateIdle State = iota
	// StateRecording means the device is actively delivering chunks.
	StateRecording
	// StatePaused means capture is suspended but the device stays open.
	StatePaused
	// StateStopped means the session is finalized. Terminal.
	StateStopped
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SessionConfig describes the capture format and stop policy for one
// session.
type SessionConfig struct {
	SampleRate    int
	Channels      int
	MaxDuration   time.Duration
	ConfirmWindow time.Duration

	// OnDurationExceeded fires after the session auto-stops at
	// MaxDuration. The finalized blob is passed so the caller can still
	// use the truncated capture.
	OnDurationExceeded func(*query.NativeBlob)
}

// Session is a single recording lifecycle over a capture device.
//
// Stop is idempotent: every call after the first returns the same blob.
// Elapsed time excludes paused spans. Chunks are concatenated strictly in
// delivery order, and finalization waits for the device to flush before
// assembling the blob.
type Session struct {
	device Device
	cfg    SessionConfig
	logger *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu          sync.Mutex
	state       State
	stream      Stream
	discarded   bool
	accumulated time.Duration
	resumedAt   time.Time
	maxTimer    *time.Timer
	blob        *query.NativeBlob

	// chunkMu is separate from mu: the device's capture goroutine appends
	// chunks while finalization holds mu waiting for the flush.
	chunkMu sync.Mutex
	chunks  [][]byte
}

// NewSession creates an idle session over the given device.
func NewSession(device Device, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		device: device,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns recorded time so far, excluding paused spans.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.state == StateRecording {
		return s.accumulated + s.now().Sub(s.resumedAt)
	}
	return s.accumulated
}

// Start opens the capture device and begins recording. Device acquisition
// failures surface as ErrDeviceUnavailable without changing state, so the
// caller can retry on another device.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("cannot start recording from state %s", s.state)
	}

	stream, err := s.device.Open(CaptureConfig{
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
	}, sinkFunc(s.writeChunk))
	if err != nil {
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	s.stream = stream
	s.state = StateRecording
	s.resumedAt = s.now()
	s.armTimerLocked(s.cfg.MaxDuration)

	s.logger.Info("recording started",
		slog.Int("sample_rate", s.cfg.SampleRate),
		slog.Int("channels", s.cfg.Channels),
		slog.Duration("max_duration", s.cfg.MaxDuration))

	return nil
}

// Pause suspends capture. The duration clock stops until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return fmt.Errorf("cannot pause from state %s", s.state)
	}

	if err := s.stream.Pause(); err != nil {
		return fmt.Errorf("failed to pause capture: %w", err)
	}

	s.accumulated += s.now().Sub(s.resumedAt)
	s.disarmTimerLocked()
	s.state = StatePaused

	s.logger.Debug("recording paused", slog.Duration("elapsed", s.accumulated))
	return nil
}

// Resume restarts capture after a pause.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume from state %s", s.state)
	}

	if err := s.stream.Resume(); err != nil {
		return fmt.Errorf("failed to resume capture: %w", err)
	}

	s.resumedAt = s.now()
	s.state = StateRecording
	s.armTimerLocked(s.cfg.MaxDuration - s.accumulated)

	s.logger.Debug("recording resumed", slog.Duration("elapsed", s.accumulated))
	return nil
}

// PendingStop is an unconfirmed stop request. The recording keeps running
// until Confirm commits it; Cancel leaves the session exactly as it was.
type PendingStop struct {
	session  *Session
	resolved bool
}

// Confirm commits the stop and returns the finalized blob.
func (p *PendingStop) Confirm() (*query.NativeBlob, error) {
	if p.resolved {
		return nil, fmt.Errorf("stop request already resolved")
	}
	p.resolved = true
	return p.session.Stop()
}

// Cancel abandons the stop request. The session continues recording (or
// stays paused) untouched.
func (p *PendingStop) Cancel() error {
	if p.resolved {
		return fmt.Errorf("stop request already resolved")
	}
	p.resolved = true
	return nil
}

// RequestStop asks to stop the recording. Stops requested within the
// confirmation window of recorded time return a PendingStop instead of
// committing, so the caller can catch accidental taps. Outside the window
// the stop commits immediately and the blob is returned.
func (s *Session) RequestStop() (*query.NativeBlob, *PendingStop, error) {
	s.mu.Lock()

	if s.discarded {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("session was discarded")
	}

	if s.state == StateStopped {
		blob := s.blob
		s.mu.Unlock()
		return blob, nil, nil
	}

	if s.state == StateIdle {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("cannot stop recording from state idle")
	}

	if s.elapsedLocked() < s.cfg.ConfirmWindow {
		s.mu.Unlock()
		s.logger.Debug("stop requested inside confirmation window")
		return nil, &PendingStop{session: s}, nil
	}

	blob, err := s.finalizeLocked()
	s.mu.Unlock()
	return blob, nil, err
}

// Stop finalizes the session unconditionally and returns the blob.
// Calling Stop on an already stopped session returns the same blob again.
func (s *Session) Stop() (*query.NativeBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return nil, fmt.Errorf("session was discarded")
	}

	if s.state == StateStopped {
		return s.blob, nil
	}

	if s.state == StateIdle {
		return nil, fmt.Errorf("cannot stop recording from state idle")
	}

	return s.finalizeLocked()
}

// Discard abandons the recording and releases the device. It works from
// any state and is idempotent; the session can never produce a blob
// afterwards.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return nil
	}

	s.disarmTimerLocked()
	s.state = StateStopped
	s.discarded = true

	if s.stream != nil {
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn("failed to stop capture stream during discard", slog.String("error", err.Error()))
		}
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("failed to close capture stream during discard", slog.String("error", err.Error()))
		}
		s.stream = nil
	}

	s.chunkMu.Lock()
	s.chunks = nil
	s.chunkMu.Unlock()
	s.blob = nil

	s.logger.Info("recording discarded")
	return nil
}

// finalizeLocked commits the stop: it stops the duration clock, waits for
// the device to flush its pending chunks, and assembles the blob in
// delivery order. Caller holds mu.
func (s *Session) finalizeLocked() (*query.NativeBlob, error) {
	s.disarmTimerLocked()

	if s.state == StateRecording {
		s.accumulated += s.now().Sub(s.resumedAt)
	}
	s.state = StateStopped

	var streamErr error
	if s.stream != nil {
		// Stop blocks until the device has delivered everything it
		// captured, so the blob never misses trailing chunks.
		if err := s.stream.Stop(); err != nil {
			streamErr = fmt.Errorf("failed to finalize capture stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && streamErr == nil {
			streamErr = fmt.Errorf("failed to close capture stream: %w", err)
		}
		s.stream = nil
	}

	s.chunkMu.Lock()
	total := 0
	for _, c := range s.chunks {
		total += len(c)
	}
	data := make([]byte, 0, total)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	s.chunks = nil
	s.chunkMu.Unlock()

	s.blob = &query.NativeBlob{
		Codec:      s.device.Codec(),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Data:       data,
	}

	s.logger.Info("recording stopped",
		slog.Duration("duration", s.accumulated),
		slog.Int("bytes", len(data)))

	return s.blob, streamErr
}

func (s *Session) writeChunk(data []byte) {
	chunk := make([]byte, len(data))
	copy(chunk, data)

	s.chunkMu.Lock()
	s.chunks = append(s.chunks, chunk)
	s.chunkMu.Unlock()
}

func (s *Session) armTimerLocked(remaining time.Duration) {
	s.disarmTimerLocked()
	if remaining <= 0 {
		// Already at the ceiling; stop on the spot.
		remaining = time.Nanosecond
	}
	s.maxTimer = time.AfterFunc(remaining, s.autoStop)
}

func (s *Session) disarmTimerLocked() {
	if s.maxTimer != nil {
		s.maxTimer.Stop()
		s.maxTimer = nil
	}
}

// autoStop fires when the session hits its duration ceiling. The capture
// finalizes exactly as a normal stop would and the truncated blob is
// handed to the OnDurationExceeded callback.
func (s *Session) autoStop() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}

	blob, err := s.finalizeLocked()
	cb := s.cfg.OnDurationExceeded
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("auto-stop finalize reported an error", slog.String("error", err.Error()))
	}
	s.logger.Warn("recording reached maximum duration",
		slog.Duration("max_duration", s.cfg.MaxDuration))

	if cb != nil {
		cb(blob)
	}
}

// sinkFunc adapts a plain function to the ChunkSink interface.
type sinkFunc func(data []byte)

func (f sinkFunc) WriteChunk(data []byte) { f(data) }
