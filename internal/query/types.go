package query

import "fmt"

// Kind identifies which multipart endpoint a submission targets.
type Kind int

const (
	KindText Kind = iota
	KindVoice
	KindImage
	KindVoiceImage
	KindTextImage
)

// String returns a human-readable name for the submission kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVoice:
		return "voice"
	case KindImage:
		return "image"
	case KindVoiceImage:
		return "voice_image"
	case KindTextImage:
		return "text_image"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Endpoint returns the backend path this kind is posted to.
func (k Kind) Endpoint() string {
	switch k {
	case KindText:
		return "/query/text"
	case KindVoice:
		return "/query/voice"
	case KindImage:
		return "/query/image"
	case KindVoiceImage:
		return "/query/voice-image"
	case KindTextImage:
		return "/query/text-image"
	default:
		return ""
	}
}

// FailureKind classifies every way a query can fail so the UI layer can
// render a deterministic message instead of a raw error.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureDeviceUnavailable  FailureKind = "DeviceUnavailable"
	FailureDurationExceeded   FailureKind = "DurationExceeded"
	FailureEncodingFallback   FailureKind = "EncodingFallback"
	FailureAlreadyInProgress  FailureKind = "AlreadyInProgress"
	FailureTimeout            FailureKind = "Timeout"
	FailureNetworkUnreachable FailureKind = "NetworkUnreachable"
	FailureRemoteRejected     FailureKind = "RemoteRejected"
	FailureUnrecognizedShape  FailureKind = "UnrecognizedShape"
	FailurePlaybackErrored    FailureKind = "PlaybackErrored"
)

// Retryable reports whether a failure of this kind may be retried locally.
// Only transport-level failures qualify; anything the backend actually
// answered must never be re-sent.
func (f FailureKind) Retryable() bool {
	return f == FailureTimeout || f == FailureNetworkUnreachable
}

// NativeBlob is the raw capture in whatever codec the recording device
// produced, with enough format metadata to decode it later.
type NativeBlob struct {
	Codec      string
	SampleRate int
	Channels   int
	Data       []byte
}

// EncodedAudio is the capture after canonical encoding. Payload carries a
// complete WAV file unless Fallback is set, in which case it carries the
// original native bytes because the decode step failed. It is created once
// and never mutated; retries of the same logical request may reuse it.
type EncodedAudio struct {
	SampleRate  int
	Channels    int
	BitDepth    int
	Payload     []byte
	Fallback    bool
	ContentType string
	Filename    string
}

// ByteLength returns the payload size in bytes.
func (e *EncodedAudio) ByteLength() int {
	return len(e.Payload)
}

// SubmissionRequest carries everything one query needs. Which fields must
// be set depends on Kind; Validate enforces the pairing.
type SubmissionRequest struct {
	Kind Kind

	Text  string
	Audio *EncodedAudio
	Image []byte

	ImageFilename    string
	ImageContentType string

	// Transcription is the client-side speech-to-text echo, sent alongside
	// voice payloads so the backend can compare against its own STT.
	Transcription string

	Language     string
	LocationHint string
	CropHint     string
	UserID       string
}

// Validate checks that the request carries the payloads its kind requires.
func (r *SubmissionRequest) Validate() error {
	if r.Language == "" {
		return fmt.Errorf("language tag cannot be empty")
	}

	switch r.Kind {
	case KindText:
		if r.Text == "" {
			return fmt.Errorf("text submission requires query text")
		}
	case KindVoice:
		if r.Audio == nil || len(r.Audio.Payload) == 0 {
			return fmt.Errorf("voice submission requires an audio payload")
		}
	case KindImage:
		if len(r.Image) == 0 {
			return fmt.Errorf("image submission requires an image payload")
		}
	case KindVoiceImage:
		if r.Audio == nil || len(r.Audio.Payload) == 0 {
			return fmt.Errorf("voice+image submission requires an audio payload")
		}
		if len(r.Image) == 0 {
			return fmt.Errorf("voice+image submission requires an image payload")
		}
	case KindTextImage:
		if r.Text == "" {
			return fmt.Errorf("text+image submission requires query text")
		}
		if len(r.Image) == 0 {
			return fmt.Errorf("text+image submission requires an image payload")
		}
	default:
		return fmt.Errorf("unknown submission kind: %d", int(r.Kind))
	}

	return nil
}

// NormalizedResponse is the single canonical result every backend reply is
// collapsed into. Success implies Text is present (possibly empty) and
// Failure is empty; on failure Text stays empty and Message carries the
// detail the caller should surface.
type NormalizedResponse struct {
	Success       bool
	Text          string
	AudioRef      string
	Transcription string
	Failure       FailureKind
	Message       string
}
