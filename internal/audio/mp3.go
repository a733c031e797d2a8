package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MPEG layer III stream into interleaved PCM-16
// samples. The decoder always emits stereo at the stream's sample rate.
func DecodeMP3(data []byte) ([]int16, int, int, error) {
	if len(data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty mp3 data")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("invalid mp3 stream: %w", err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode mp3 stream: %w", err)
	}
	if len(raw) == 0 {
		return nil, 0, 0, fmt.Errorf("mp3 stream holds no samples")
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, decoder.SampleRate(), 2, nil
}

// SniffMP3 reports whether data starts like an MP3 stream, either with an
// ID3 tag or an MPEG frame sync.
func SniffMP3(data []byte) bool {
	if len(data) >= 3 && bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
