package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/Adityatewari181/krishi-bandhu/internal/audio"
)

// State represents the playback lifecycle state.
type State int

const (
	// StateUnloaded means no track is loaded.
	StateUnloaded State = iota
	// StateReady means a track is loaded and positioned but not playing.
	StateReady
	// StatePlaying means the renderer is consuming the track.
	StatePlaying
	// StatePaused means playback is suspended at the current position.
	StatePaused
	// StateEnded means the track ran to completion. Seeking returns the
	// controller to StateReady.
	StateEnded
	// StateErrored means the controller hit an unrecoverable error.
	// Terminal.
	StateErrored
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// validRates is the fixed set of supported playback rates.
var validRates = map[float64]bool{
	0.5: true, 0.75: true, 1.0: true, 1.25: true, 1.5: true, 2.0: true,
}

// Controller plays one loaded track through a Renderer.
//
// Volume changes apply to the very next rendered buffer. Rate changes
// resample the track in place, preserving the fractional position.
// A decode or device failure moves the controller to StateErrored and it
// never recovers on its own.
type Controller struct {
	renderer Renderer
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	errMsg     string
	samples    []int16 // decoded track, interleaved
	sampleRate int
	channels   int
	rendered   []int16 // rate-adjusted samples actually played
	pos        int     // frames into rendered
	volume     float64
	rate       float64
	stream     RenderStream
	generation int // invalidates end-of-track callbacks from replaced streams
}

// NewController creates an unloaded controller.
func NewController(renderer Renderer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		renderer: renderer,
		logger:   logger,
		state:    StateUnloaded,
		volume:   1.0,
		rate:     1.0,
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the message that moved the controller to StateErrored.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Load decodes a track and readies it for playback at position zero. WAV
// and MP3 containers are accepted; the backend serves reply audio as MP3
// while recorded fixtures are WAV. Loading replaces any previously
// finished track; loading over active playback is an error.
func (c *Controller) Load(trackData []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUnloaded, StateReady, StateEnded:
	case StateErrored:
		return fmt.Errorf("playback controller is errored: %s", c.errMsg)
	default:
		return fmt.Errorf("cannot load a track while %s", c.state)
	}

	samples, sampleRate, channels, err := decodeTrack(trackData)
	if err != nil {
		c.state = StateErrored
		c.errMsg = fmt.Sprintf("failed to decode track: %v", err)
		c.logger.Error("track decode failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to decode track: %w", err)
	}

	c.samples = samples
	c.sampleRate = sampleRate
	c.channels = channels
	c.pos = 0

	if err := c.rebuildRenderedLocked(); err != nil {
		c.state = StateErrored
		c.errMsg = fmt.Sprintf("failed to prepare track: %v", err)
		return fmt.Errorf("failed to prepare track: %w", err)
	}

	c.state = StateReady
	c.logger.Info("track loaded",
		slog.Int("sample_rate", sampleRate),
		slog.Int("channels", channels),
		slog.Duration("duration", c.durationLocked()))
	return nil
}

// decodeTrack picks the container decoder by sniffing the payload.
func decodeTrack(data []byte) ([]int16, int, int, error) {
	if audio.SniffMP3(data) {
		return audio.DecodeMP3(data)
	}
	return audio.DecodeWAV(data)
}

// Play starts or resumes playback.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady, StatePaused:
	case StateEnded:
		return fmt.Errorf("track ended, seek before playing again")
	default:
		return fmt.Errorf("cannot play from state %s", c.state)
	}

	c.generation++
	gen := c.generation

	stream, err := c.renderer.Open(c.sampleRate, c.channels, c.makeSource(gen))
	if err != nil {
		c.state = StateErrored
		c.errMsg = fmt.Sprintf("failed to open output device: %v", err)
		c.logger.Error("output device open failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to open output device: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		c.state = StateErrored
		c.errMsg = fmt.Sprintf("failed to start output stream: %v", err)
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	c.stream = stream
	c.state = StatePlaying
	c.logger.Debug("playback started", slog.Float64("position", c.fractionLocked()))
	return nil
}

// Pause suspends playback at the current position.
func (c *Controller) Pause() error {
	c.mu.Lock()

	if c.state != StatePlaying {
		c.mu.Unlock()
		return fmt.Errorf("cannot pause from state %s", c.state)
	}

	stream := c.detachStreamLocked()
	c.state = StatePaused
	c.logger.Debug("playback paused", slog.Float64("position", c.fractionLocked()))
	c.mu.Unlock()

	c.stopStream(stream)
	return nil
}

// Seek moves the position to a fraction of the track. Values outside
// [0, 1] clamp. Seeking an ended track readies it again.
func (c *Controller) Seek(fraction float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady, StatePlaying, StatePaused, StateEnded:
	default:
		return fmt.Errorf("cannot seek from state %s", c.state)
	}

	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	frames := len(c.rendered) / c.channels
	c.pos = int(fraction * float64(frames))
	if c.pos > frames {
		c.pos = frames
	}

	if c.state == StateEnded {
		c.state = StateReady
	}

	c.logger.Debug("seek", slog.Float64("fraction", fraction))
	return nil
}

// SetVolume sets the playback volume. Valid range is [0, 1]; the change
// is heard on the next rendered buffer.
func (c *Controller) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("volume must be in [0, 1], got %g", volume)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = volume
	return nil
}

// Volume returns the current volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetRate sets the playback rate. Only 0.5, 0.75, 1, 1.25, 1.5, and 2 are
// accepted. The fractional position is preserved across the change.
func (c *Controller) SetRate(rate float64) error {
	if !validRates[rate] {
		return fmt.Errorf("unsupported playback rate %g", rate)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rate == rate {
		return nil
	}

	fraction := c.fractionLocked()
	c.rate = rate

	if c.samples != nil {
		if err := c.rebuildRenderedLocked(); err != nil {
			return fmt.Errorf("failed to apply playback rate: %w", err)
		}
		frames := len(c.rendered) / c.channels
		c.pos = int(fraction * float64(frames))
	}

	c.logger.Debug("playback rate changed", slog.Float64("rate", rate))
	return nil
}

// Rate returns the current playback rate.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Fraction returns the position as a fraction of the track in [0, 1].
func (c *Controller) Fraction() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fractionLocked()
}

// Duration returns the loaded track's duration at rate 1.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

// Close releases any open output stream. The controller keeps its state.
func (c *Controller) Close() error {
	c.mu.Lock()
	stream := c.detachStreamLocked()
	c.mu.Unlock()

	c.stopStream(stream)
	return nil
}

func (c *Controller) fractionLocked() float64 {
	frames := len(c.rendered) / max(c.channels, 1)
	if frames == 0 {
		return 0
	}
	return float64(c.pos) / float64(frames)
}

func (c *Controller) durationLocked() time.Duration {
	if c.sampleRate == 0 || c.channels == 0 {
		return 0
	}
	frames := len(c.samples) / c.channels
	return time.Duration(float64(frames) / float64(c.sampleRate) * float64(time.Second))
}

// makeSource builds the render callback for one stream generation. It
// pulls from the rendered buffer under the controller lock so seeks,
// volume, and rate changes take effect mid-playback.
func (c *Controller) makeSource(gen int) SourceFunc {
	return func(out []int16) int {
		c.mu.Lock()

		if c.generation != gen || c.state != StatePlaying {
			c.mu.Unlock()
			return 0
		}

		start := c.pos * c.channels
		if start >= len(c.rendered) {
			c.mu.Unlock()
			// Stream teardown cannot happen on the render callback
			// goroutine, PortAudio deadlocks on it.
			go c.finish(gen)
			return 0
		}

		n := copy(out, c.rendered[start:])
		n -= n % c.channels
		volume := c.volume
		c.pos += n / c.channels
		c.mu.Unlock()

		if volume != 1.0 {
			for i := 0; i < n; i++ {
				out[i] = int16(float64(out[i]) * volume)
			}
		}
		return n
	}
}

// finish moves a fully consumed track to StateEnded.
func (c *Controller) finish(gen int) {
	c.mu.Lock()

	if c.generation != gen || c.state != StatePlaying {
		c.mu.Unlock()
		return
	}

	// A seek may have rewound the track between the callback draining it
	// and this goroutine running.
	if c.pos*c.channels < len(c.rendered) {
		c.mu.Unlock()
		return
	}

	stream := c.detachStreamLocked()
	c.state = StateEnded
	c.logger.Info("playback ended")
	c.mu.Unlock()

	c.stopStream(stream)
}

// detachStreamLocked hands the active stream to the caller and bumps the
// generation so its callback goes quiet. Caller holds mu; the actual Stop
// must happen after mu is released because the device blocks on the render
// callback, which takes mu.
func (c *Controller) detachStreamLocked() RenderStream {
	stream := c.stream
	if stream != nil {
		c.generation++
	}
	c.stream = nil
	return stream
}

func (c *Controller) stopStream(stream RenderStream) {
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		c.logger.Warn("failed to stop output stream", slog.String("error", err.Error()))
	}
	if err := stream.Close(); err != nil {
		c.logger.Warn("failed to close output stream", slog.String("error", err.Error()))
	}
}

// rebuildRenderedLocked derives the rate-adjusted buffer from the decoded
// track. Rates other than 1 resample the track so the device keeps
// running at its native sample rate.
func (c *Controller) rebuildRenderedLocked() error {
	if c.rate == 1.0 {
		c.rendered = c.samples
		return nil
	}

	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.sampleRate),
		OutputRate: float64(c.sampleRate) / c.rate,
		Channels:   c.channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(c.samples))
	for i, s := range c.samples {
		input[i] = float64(s) / 32768
	}

	output, err := resampler.Process(input)
	if err != nil {
		return fmt.Errorf("failed to resample track: %w", err)
	}

	rendered := make([]int16, len(output)-len(output)%c.channels)
	for i := range rendered {
		v := output[i] * 32768
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		rendered[i] = int16(v)
	}

	c.rendered = rendered
	return nil
}
