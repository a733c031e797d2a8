package record

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Adityatewari181/krishi-bandhu/internal/audio"
	"github.com/Adityatewari181/krishi-bandhu/internal/query"
)

// fakeDevice hands out fakeStreams and lets tests push chunks as if the
// hardware produced them.
type fakeDevice struct {
	openErr error
	stream  *fakeStream
}

func (d *fakeDevice) Codec() string { return audio.CodecPCM16 }

func (d *fakeDevice) Open(cfg CaptureConfig, sink ChunkSink) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.stream = &fakeStream{sink: sink}
	return d.stream, nil
}

// fakeStream buffers chunks marked as pending and only delivers them when
// Stop flushes, mirroring real device finalization.
type fakeStream struct {
	mu      sync.Mutex
	sink    ChunkSink
	pending [][]byte
	paused  bool
	stopped bool
	closed  bool
}

// deliver pushes a chunk straight through to the sink.
func (s *fakeStream) deliver(data []byte) {
	s.sink.WriteChunk(data)
}

// hold queues a chunk that only arrives on the Stop flush.
func (s *fakeStream) hold(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, data)
}

func (s *fakeStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.stopped = true
	s.mu.Unlock()

	for _, chunk := range pending {
		s.sink.WriteChunk(chunk)
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeClock provides a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSession(device *fakeDevice, clock *fakeClock, cfg SessionConfig) *Session {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = time.Minute
	}
	session := NewSession(device, cfg, nil)
	if clock != nil {
		session.now = clock.Now
	}
	return session
}

func TestSessionLifecycle(t *testing.T) {
	device := &fakeDevice{}
	session := newTestSession(device, newFakeClock(), SessionConfig{})

	if session.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", session.State())
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if session.State() != StateRecording {
		t.Fatalf("state after Start = %s, want recording", session.State())
	}

	if err := session.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if session.State() != StatePaused {
		t.Fatalf("state after Pause = %s, want paused", session.State())
	}
	if !device.stream.paused {
		t.Error("device stream was not paused")
	}

	if err := session.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if session.State() != StateRecording {
		t.Fatalf("state after Resume = %s, want recording", session.State())
	}

	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if session.State() != StateStopped {
		t.Fatalf("state after Stop = %s, want stopped", session.State())
	}
	if !device.stream.stopped || !device.stream.closed {
		t.Error("device stream was not finalized")
	}
}

func TestSessionInvalidTransitions(t *testing.T) {
	session := newTestSession(&fakeDevice{}, newFakeClock(), SessionConfig{})

	if err := session.Pause(); err == nil {
		t.Error("Pause from idle should fail")
	}
	if err := session.Resume(); err == nil {
		t.Error("Resume from idle should fail")
	}
	if _, err := session.Stop(); err == nil {
		t.Error("Stop from idle should fail")
	}

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := session.Resume(); err == nil {
		t.Error("Resume while recording should fail")
	}
}

func TestSessionElapsedExcludesPauses(t *testing.T) {
	clock := newFakeClock()
	session := newTestSession(&fakeDevice{}, clock, SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	clock.Advance(3 * time.Second)
	if err := session.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	// Paused time must not count.
	clock.Advance(10 * time.Second)
	if got := session.Elapsed(); got != 3*time.Second {
		t.Fatalf("elapsed while paused = %s, want 3s", got)
	}

	if err := session.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	clock.Advance(5 * time.Second)

	if got := session.Elapsed(); got != 8*time.Second {
		t.Fatalf("elapsed = %s, want 8s", got)
	}

	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := session.Elapsed(); got != 8*time.Second {
		t.Fatalf("elapsed after stop = %s, want 8s", got)
	}
}

func TestSessionStopIdempotent(t *testing.T) {
	device := &fakeDevice{}
	clock := newFakeClock()
	session := newTestSession(device, clock, SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	device.stream.deliver([]byte{1, 2})
	clock.Advance(5 * time.Second)

	first, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second, err := session.Stop()
	if err != nil {
		t.Fatalf("repeated Stop failed: %v", err)
	}
	if first != second {
		t.Error("repeated Stop returned a different blob")
	}
}

func TestSessionChunkOrderingAndFlush(t *testing.T) {
	device := &fakeDevice{}
	clock := newFakeClock()
	session := newTestSession(device, clock, SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	device.stream.deliver([]byte("ab"))
	device.stream.deliver([]byte("cd"))
	// Still buffered in the device until finalization.
	device.stream.hold([]byte("ef"))

	clock.Advance(5 * time.Second)
	blob, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !bytes.Equal(blob.Data, []byte("abcdef")) {
		t.Errorf("blob data = %q, want abcdef", blob.Data)
	}
	if blob.Codec != audio.CodecPCM16 {
		t.Errorf("blob codec = %q, want %q", blob.Codec, audio.CodecPCM16)
	}
	if blob.SampleRate != 16000 || blob.Channels != 1 {
		t.Errorf("blob format = %d Hz x%d, want 16000 Hz x1", blob.SampleRate, blob.Channels)
	}
}

func TestSessionDiscard(t *testing.T) {
	device := &fakeDevice{}
	session := newTestSession(device, newFakeClock(), SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	device.stream.deliver([]byte{1, 2, 3, 4})

	if err := session.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if session.State() != StateStopped {
		t.Fatalf("state after Discard = %s, want stopped", session.State())
	}

	if _, err := session.Stop(); err == nil {
		t.Error("Stop after Discard should fail")
	}
	if _, _, err := session.RequestStop(); err == nil {
		t.Error("RequestStop after Discard should fail")
	}
	if err := session.Discard(); err != nil {
		t.Errorf("repeated Discard should be a no-op, got %v", err)
	}
}

func TestSessionDiscardAfterStop(t *testing.T) {
	device := &fakeDevice{}
	session := newTestSession(device, newFakeClock(), SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := session.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Discard works from any state.
	if err := session.Discard(); err != nil {
		t.Fatalf("Discard after Stop failed: %v", err)
	}
	if _, err := session.Stop(); err == nil {
		t.Error("Stop after Discard should fail")
	}
}

func TestSessionDeviceUnavailable(t *testing.T) {
	device := &fakeDevice{
		openErr: fmt.Errorf("%w: no input device", ErrDeviceUnavailable),
	}
	session := newTestSession(device, newFakeClock(), SessionConfig{})

	err := session.Start()
	if err == nil {
		t.Fatal("Start should fail when the device is unavailable")
	}
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("error = %v, want ErrDeviceUnavailable", err)
	}
	if session.State() != StateIdle {
		t.Errorf("state = %s, want idle so the caller can retry", session.State())
	}
}

func TestSessionAutoStopAtMaxDuration(t *testing.T) {
	device := &fakeDevice{}

	var mu sync.Mutex
	var truncated *query.NativeBlob

	session := newTestSession(device, nil, SessionConfig{
		MaxDuration:   30 * time.Millisecond,
		ConfirmWindow: 0,
		OnDurationExceeded: func(blob *query.NativeBlob) {
			mu.Lock()
			truncated = blob
			mu.Unlock()
		},
	})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	device.stream.deliver([]byte{9, 9})

	deadline := time.Now().Add(2 * time.Second)
	for session.State() != StateStopped {
		if time.Now().After(deadline) {
			t.Fatal("session never auto-stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if truncated == nil {
		t.Fatal("OnDurationExceeded was not called")
	}
	if !bytes.Equal(truncated.Data, []byte{9, 9}) {
		t.Errorf("truncated blob data = %v, want [9 9]", truncated.Data)
	}
}

func TestRequestStopInsideConfirmWindow(t *testing.T) {
	device := &fakeDevice{}
	clock := newFakeClock()
	session := newTestSession(device, clock, SessionConfig{
		ConfirmWindow: 2 * time.Second,
	})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(1 * time.Second)

	blob, pending, err := session.RequestStop()
	if err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if blob != nil {
		t.Fatal("short stop should not commit immediately")
	}
	if pending == nil {
		t.Fatal("short stop should return a pending stop")
	}

	// Cancel keeps the recording alive.
	if err := pending.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if session.State() != StateRecording {
		t.Fatalf("state after Cancel = %s, want recording", session.State())
	}
	if err := pending.Cancel(); err == nil {
		t.Error("resolving a pending stop twice should fail")
	}

	// Past the window the stop commits without confirmation.
	clock.Advance(3 * time.Second)
	blob, pending, err = session.RequestStop()
	if err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if pending != nil {
		t.Fatal("stop past the window should not be pending")
	}
	if blob == nil {
		t.Fatal("stop past the window should return the blob")
	}
}

func TestPendingStopConfirm(t *testing.T) {
	device := &fakeDevice{}
	clock := newFakeClock()
	session := newTestSession(device, clock, SessionConfig{
		ConfirmWindow: 2 * time.Second,
	})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	device.stream.deliver([]byte{7})
	clock.Advance(500 * time.Millisecond)

	_, pending, err := session.RequestStop()
	if err != nil || pending == nil {
		t.Fatalf("RequestStop = (%v, %v), want pending stop", err, pending)
	}

	blob, err := pending.Confirm()
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if blob == nil || !bytes.Equal(blob.Data, []byte{7}) {
		t.Fatalf("confirmed blob = %v, want [7]", blob)
	}
	if session.State() != StateStopped {
		t.Fatalf("state after Confirm = %s, want stopped", session.State())
	}

	if _, err := pending.Confirm(); err == nil {
		t.Error("resolving a pending stop twice should fail")
	}
}

func TestRequestStopAfterStopReturnsSameBlob(t *testing.T) {
	device := &fakeDevice{}
	clock := newFakeClock()
	session := newTestSession(device, clock, SessionConfig{})

	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(5 * time.Second)

	first, err := session.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	second, pending, err := session.RequestStop()
	if err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if pending != nil {
		t.Fatal("RequestStop on a stopped session should not be pending")
	}
	if first != second {
		t.Error("RequestStop returned a different blob than Stop")
	}
}
