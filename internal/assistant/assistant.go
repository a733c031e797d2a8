package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adityatewari181/krishi-bandhu/internal/audio"
	"github.com/Adityatewari181/krishi-bandhu/internal/config"
	"github.com/Adityatewari181/krishi-bandhu/internal/metrics"
	"github.com/Adityatewari181/krishi-bandhu/internal/playback"
	"github.com/Adityatewari181/krishi-bandhu/internal/query"
	"github.com/Adityatewari181/krishi-bandhu/internal/record"
	"github.com/Adityatewari181/krishi-bandhu/internal/submit"
)

// Assistant wires the client subsystems together behind one API.
type Assistant struct {
	cfg      *config.Config
	client   *submit.Client
	device   record.Device
	renderer playback.Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	session *record.Session
	player  *playback.Controller
}

// New creates an assistant. The device and renderer are injectable so
// tests can run without audio hardware.
func New(cfg *config.Config, tokens submit.TokenSource, device record.Device, renderer playback.Renderer, m *metrics.Metrics, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewDefault()
	}

	client := submit.NewClient(submit.Config{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.Backend.GetTimeoutDuration(),
		TextRetryAttempts: cfg.Submission.TextRetryAttempts,
		TextRetryDelay:    cfg.Submission.GetTextRetryDelay(),
		OnRetry:           m.SubmissionRetries.Inc,
	}, tokens, logger)

	return &Assistant{
		cfg:      cfg,
		client:   client,
		device:   device,
		renderer: renderer,
		metrics:  m,
		logger:   logger,
	}
}

// Client exposes the underlying backend client, mainly for health checks.
func (a *Assistant) Client() *submit.Client {
	return a.client
}

// StartRecording begins a new voice recording. Only one recording can be
// live at a time.
func (a *Assistant) StartRecording() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil {
		switch a.session.State() {
		case record.StateRecording, record.StatePaused:
			return fmt.Errorf("a recording is already in progress")
		}
	}

	session := record.NewSession(a.device, record.SessionConfig{
		SampleRate:    a.cfg.Audio.SampleRate,
		Channels:      a.cfg.Audio.Channels,
		MaxDuration:   a.cfg.Recording.GetMaxDuration(),
		ConfirmWindow: a.cfg.Recording.GetConfirmWindow(),
		OnDurationExceeded: func(*query.NativeBlob) {
			a.metrics.RecordingsTruncated.Inc()
			a.logger.Warn("recording truncated at duration ceiling")
		},
	}, a.logger)

	if err := session.Start(); err != nil {
		return err
	}

	a.session = session
	a.metrics.RecordingsStarted.Inc()
	return nil
}

// PauseRecording suspends the live recording.
func (a *Assistant) PauseRecording() error {
	session, err := a.liveSession()
	if err != nil {
		return err
	}
	return session.Pause()
}

// ResumeRecording restarts a paused recording.
func (a *Assistant) ResumeRecording() error {
	session, err := a.liveSession()
	if err != nil {
		return err
	}
	return session.Resume()
}

// RecordingElapsed returns the recorded time so far, excluding pauses.
func (a *Assistant) RecordingElapsed() (time.Duration, error) {
	session, err := a.liveSession()
	if err != nil {
		return 0, err
	}
	return session.Elapsed(), nil
}

// RecordingState returns the current session state.
func (a *Assistant) RecordingState() (record.State, error) {
	session, err := a.liveSession()
	if err != nil {
		return record.StateIdle, err
	}
	return session.State(), nil
}

// RequestStopRecording asks to stop the recording. Very short recordings
// come back as a pending stop the caller must confirm or cancel.
func (a *Assistant) RequestStopRecording() (*query.NativeBlob, *record.PendingStop, error) {
	session, err := a.liveSession()
	if err != nil {
		return nil, nil, err
	}

	prior := session.State()
	blob, pending, err := session.RequestStop()
	if blob != nil && sessionWasLive(prior) {
		a.recordCompleted(session)
	}
	return blob, pending, err
}

// StopRecording stops the recording unconditionally and returns the blob.
func (a *Assistant) StopRecording() (*query.NativeBlob, error) {
	session, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	prior := session.State()
	blob, err := session.Stop()
	if blob != nil && sessionWasLive(prior) {
		a.recordCompleted(session)
	}
	return blob, err
}

// DiscardRecording abandons the live recording.
func (a *Assistant) DiscardRecording() error {
	session, err := a.liveSession()
	if err != nil {
		return err
	}

	if err := session.Discard(); err != nil {
		return err
	}
	a.metrics.RecordingsDiscarded.Inc()
	return nil
}

func (a *Assistant) liveSession() (*record.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return nil, fmt.Errorf("no recording session")
	}
	return a.session, nil
}

func (a *Assistant) recordCompleted(session *record.Session) {
	a.metrics.RecordRecordingCompleted(session.Elapsed())
}

// sessionWasLive reports whether a stop observed from this state actually
// finished a recording. Stop is idempotent, so a repeated stop returns the
// same blob but must not count as another completion.
func sessionWasLive(s record.State) bool {
	return s == record.StateRecording || s == record.StatePaused
}

// Ask submits a text query with the configured language and profile
// hints.
func (a *Assistant) Ask(ctx context.Context, text string) (*query.NormalizedResponse, error) {
	req := &query.SubmissionRequest{
		Kind:         query.KindText,
		Text:         text,
		Language:     a.cfg.Submission.Language,
		LocationHint: a.cfg.Submission.Location,
		CropHint:     a.cfg.Submission.CropType,
	}
	return a.submit(ctx, req)
}

// AskVoice encodes a captured blob and submits it as a voice query.
func (a *Assistant) AskVoice(ctx context.Context, blob *query.NativeBlob, transcription string) (*query.NormalizedResponse, error) {
	encoded := a.encodeVoice(blob)

	req := &query.SubmissionRequest{
		Kind:          query.KindVoice,
		Audio:         encoded,
		Transcription: transcription,
		Language:      a.cfg.Submission.Language,
	}
	return a.submit(ctx, req)
}

// encodeVoice canonicalizes a capture blob, counting and logging the
// fallback path.
func (a *Assistant) encodeVoice(blob *query.NativeBlob) *query.EncodedAudio {
	encoded := audio.Encode(blob)
	if encoded.Fallback {
		codec := ""
		if blob != nil {
			codec = blob.Codec
		}
		a.metrics.EncodeFallbacks.Inc()
		a.logger.Warn("voice encode fell back to native codec",
			slog.String("codec", codec))
	}
	return encoded
}

// AskImage submits an image query with an accompanying caption.
func (a *Assistant) AskImage(ctx context.Context, image []byte, filename, contentType, caption string) (*query.NormalizedResponse, error) {
	req := &query.SubmissionRequest{
		Kind:             query.KindImage,
		Text:             caption,
		Image:            image,
		ImageFilename:    filename,
		ImageContentType: contentType,
		Language:         a.cfg.Submission.Language,
	}
	return a.submit(ctx, req)
}

// AskVoiceImage submits a voice query with an attached image.
func (a *Assistant) AskVoiceImage(ctx context.Context, blob *query.NativeBlob, transcription string, image []byte, filename, contentType string) (*query.NormalizedResponse, error) {
	encoded := a.encodeVoice(blob)

	req := &query.SubmissionRequest{
		Kind:             query.KindVoiceImage,
		Audio:            encoded,
		Transcription:    transcription,
		Image:            image,
		ImageFilename:    filename,
		ImageContentType: contentType,
		Language:         a.cfg.Submission.Language,
	}
	return a.submit(ctx, req)
}

// AskTextImage submits a text query with an attached image.
func (a *Assistant) AskTextImage(ctx context.Context, text string, image []byte, filename, contentType string) (*query.NormalizedResponse, error) {
	req := &query.SubmissionRequest{
		Kind:             query.KindTextImage,
		Text:             text,
		Image:            image,
		ImageFilename:    filename,
		ImageContentType: contentType,
		Language:         a.cfg.Submission.Language,
	}
	return a.submit(ctx, req)
}

func (a *Assistant) submit(ctx context.Context, req *query.SubmissionRequest) (*query.NormalizedResponse, error) {
	start := time.Now()
	resp, err := a.client.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	a.metrics.RecordSubmission(req.Kind.String(), string(resp.Failure), time.Since(start))

	if resp.Success {
		a.logger.Info("query answered",
			slog.String("kind", req.Kind.String()),
			slog.Duration("elapsed", time.Since(start)))
	} else {
		a.logger.Warn("query failed",
			slog.String("kind", req.Kind.String()),
			slog.String("failure", string(resp.Failure)),
			slog.String("message", resp.Message))
	}

	return resp, nil
}

// Health checks backend liveness.
func (a *Assistant) Health(ctx context.Context) error {
	return a.client.Health(ctx)
}

// LoadReplyAudio downloads a reply's audio and readies it for playback,
// replacing any previously loaded track.
func (a *Assistant) LoadReplyAudio(ctx context.Context, resp *query.NormalizedResponse) error {
	if resp == nil || resp.AudioRef == "" {
		return fmt.Errorf("reply carries no audio")
	}

	data, err := a.client.FetchAudio(ctx, resp.AudioRef)
	if err != nil {
		a.metrics.PlaybackErrors.Inc()
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// A new answer always wins. An idle controller reloads in place; a
	// playing, paused, or errored one is stopped and replaced so the old
	// track never blocks the fresh reply.
	player := a.player
	if !playerReloadable(player) {
		if player != nil {
			player.Close()
		}
		player = playback.NewController(a.renderer, a.logger)
	}

	if err := player.Load(data); err != nil {
		a.metrics.PlaybackErrors.Inc()
		a.player = player
		return err
	}

	a.player = player
	a.metrics.TracksLoaded.Inc()
	return nil
}

// playerReloadable reports whether the controller accepts a new track
// without being torn down first.
func playerReloadable(player *playback.Controller) bool {
	if player == nil {
		return false
	}
	switch player.State() {
	case playback.StateUnloaded, playback.StateReady, playback.StateEnded:
		return true
	}
	return false
}

// Player returns the current playback controller.
func (a *Assistant) Player() (*playback.Controller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.player == nil {
		return nil, fmt.Errorf("no track loaded")
	}
	return a.player, nil
}

// Close releases playback resources.
func (a *Assistant) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.player != nil {
		return a.player.Close()
	}
	return nil
}
