package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Adityatewari181/krishi-bandhu/internal/query"
)

// Native codecs the encoder knows how to decode. Capture devices report
// one of these on the blobs they produce.
const (
	CodecPCMFloat32 = "pcm_f32le"
	CodecPCM16      = "pcm_s16le"
	CodecWAV        = "wav"
)

// CanonicalFilename is the fixed name the backend expects for uploaded
// canonical audio.
const CanonicalFilename = "recording.wav"

// Encode converts a native capture blob into the canonical 16-bit PCM WAV
// container. The conversion is deterministic: each float sample is clamped
// to [-1, 1] and scaled asymmetrically (32768 for negative samples, 32767
// for non-negative ones), matching the container's integer range exactly.
//
// Encode never fails past its boundary. If the native blob cannot be
// decoded, the original bytes are returned unchanged with Fallback set so
// the caller can still submit best-effort audio instead of losing the
// capture. The function has no shared mutable state; concurrent calls for
// independent captures never interfere.
func Encode(blob *query.NativeBlob) *query.EncodedAudio {
	if blob == nil {
		return &query.EncodedAudio{
			BitDepth:    16,
			Fallback:    true,
			ContentType: nativeContentType(""),
			Filename:    nativeFilename(""),
		}
	}

	pcm, sampleRate, channels, err := decodeNative(blob)
	if err != nil {
		return &query.EncodedAudio{
			SampleRate:  blob.SampleRate,
			Channels:    blob.Channels,
			BitDepth:    16,
			Payload:     blob.Data,
			Fallback:    true,
			ContentType: nativeContentType(blob.Codec),
			Filename:    nativeFilename(blob.Codec),
		}
	}

	payload, err := EncodeWAV(pcm, sampleRate, channels)
	if err != nil {
		return &query.EncodedAudio{
			SampleRate:  blob.SampleRate,
			Channels:    blob.Channels,
			BitDepth:    16,
			Payload:     blob.Data,
			Fallback:    true,
			ContentType: nativeContentType(blob.Codec),
			Filename:    nativeFilename(blob.Codec),
		}
	}

	return &query.EncodedAudio{
		SampleRate:  sampleRate,
		Channels:    channels,
		BitDepth:    16,
		Payload:     payload,
		ContentType: "audio/wav",
		Filename:    CanonicalFilename,
	}
}

// scaleSample clamps a float sample to [-1, 1] and scales it to a signed
// 16-bit integer. Negative samples scale by 32768 and non-negative ones by
// 32767; the asymmetry is intentional and must be preserved for
// bit-identical output.
func scaleSample(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}

	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// decodeNative decodes a native blob into interleaved PCM-16 samples.
// Inputs that are already 16-bit pass through untouched; only float
// captures go through scaling. Unsupported codecs and truncated payloads
// are errors; the caller maps them to the fallback path.
func decodeNative(blob *query.NativeBlob) ([]int16, int, int, error) {
	if len(blob.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty native blob")
	}

	switch blob.Codec {
	case CodecPCMFloat32:
		return decodeFloat32(blob)
	case CodecPCM16:
		if len(blob.Data)%2 != 0 {
			return nil, 0, 0, fmt.Errorf("truncated pcm_s16le payload: %d bytes", len(blob.Data))
		}
		if blob.SampleRate <= 0 || blob.Channels < 1 {
			return nil, 0, 0, fmt.Errorf("invalid pcm_s16le format: rate=%d channels=%d", blob.SampleRate, blob.Channels)
		}
		samples := make([]int16, len(blob.Data)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(blob.Data[i*2:]))
		}
		return samples, blob.SampleRate, blob.Channels, nil
	case CodecWAV:
		return DecodeWAV(blob.Data)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported native codec: %q", blob.Codec)
	}
}

// decodeFloat32 decodes little-endian IEEE 754 float samples and scales
// them to PCM-16.
func decodeFloat32(blob *query.NativeBlob) ([]int16, int, int, error) {
	if len(blob.Data)%4 != 0 {
		return nil, 0, 0, fmt.Errorf("truncated pcm_f32le payload: %d bytes", len(blob.Data))
	}
	if blob.SampleRate <= 0 || blob.Channels < 1 {
		return nil, 0, 0, fmt.Errorf("invalid pcm_f32le format: rate=%d channels=%d", blob.SampleRate, blob.Channels)
	}

	samples := make([]int16, len(blob.Data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(blob.Data[i*4:])
		s := math.Float32frombits(bits)
		if s != s { // NaN would otherwise scale to garbage
			s = 0
		}
		samples[i] = scaleSample(s)
	}
	return samples, blob.SampleRate, blob.Channels, nil
}

func nativeContentType(codec string) string {
	switch codec {
	case CodecWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

func nativeFilename(codec string) string {
	switch codec {
	case CodecWAV:
		return "recording.wav"
	default:
		return "recording.raw"
	}
}
