package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// sineWave generates a 440 Hz test tone as PCM-16 samples.
func sineWave(sampleRate, numSamples int) []int16 {
	samples := make([]int16, numSamples)
	for i := range samples {
		v := math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate))
		samples[i] = int16(v * 16000)
	}
	return samples
}

func TestEncodeWAVHeaderLayout(t *testing.T) {
	samples := []int16{100, -200, 300, -400}
	data, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	wantLen := 44 + len(samples)*2
	if len(data) != wantLen {
		t.Fatalf("encoded length = %d, want %d", len(data), wantLen)
	}

	if string(data[0:4]) != "RIFF" {
		t.Errorf("bytes 0-3 = %q, want RIFF", data[0:4])
	}
	if got := binary.LittleEndian.Uint32(data[4:8]); got != uint32(36+len(samples)*2) {
		t.Errorf("chunk size = %d, want %d", got, 36+len(samples)*2)
	}
	if string(data[8:12]) != "WAVE" {
		t.Errorf("bytes 8-11 = %q, want WAVE", data[8:12])
	}
	if string(data[12:16]) != "fmt " {
		t.Errorf("bytes 12-15 = %q, want 'fmt '", data[12:16])
	}
	if got := binary.LittleEndian.Uint32(data[16:20]); got != 16 {
		t.Errorf("fmt chunk size = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint16(data[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(data[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 32000 {
		t.Errorf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint16(data[32:34]); got != 2 {
		t.Errorf("block align = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint16(data[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if string(data[36:40]) != "data" {
		t.Errorf("bytes 36-39 = %q, want data", data[36:40])
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data size = %d, want %d", got, len(samples)*2)
	}

	// Sample data follows the header verbatim, little-endian.
	if got := int16(binary.LittleEndian.Uint16(data[44:46])); got != 100 {
		t.Errorf("first sample = %d, want 100", got)
	}
	if got := int16(binary.LittleEndian.Uint16(data[46:48])); got != -200 {
		t.Errorf("second sample = %d, want -200", got)
	}
}

func TestEncodeWAVStereo(t *testing.T) {
	samples := sineWave(44100, 1000)
	data, err := EncodeWAV(samples, 44100, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if got := binary.LittleEndian.Uint16(data[22:24]); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(data[28:32]); got != 44100*2*2 {
		t.Errorf("byte rate = %d, want %d", got, 44100*2*2)
	}
	if got := binary.LittleEndian.Uint16(data[32:34]); got != 4 {
		t.Errorf("block align = %d, want 4", got)
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	tests := []struct {
		name       string
		samples    []int16
		sampleRate int
		channels   int
	}{
		{"empty samples", nil, 16000, 1},
		{"zero sample rate", []int16{1, 2}, 0, 1},
		{"negative sample rate", []int16{1, 2}, -1, 1},
		{"zero channels", []int16{1, 2}, 16000, 0},
		{"too many channels", []int16{1, 2}, 16000, 3},
		{"odd samples for stereo", []int16{1, 2, 3}, 16000, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.samples, tt.sampleRate, tt.channels); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	original := sineWave(16000, 16000)

	data, err := EncodeWAV(original, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decoded, rate, channels, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if len(decoded) != len(original) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], original[i])
		}
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	valid, err := EncodeWAV(sineWave(16000, 100), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	notRIFF := bytes.Clone(valid)
	copy(notRIFF[0:4], "JUNK")

	notPCM := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(notPCM[20:22], 3)

	eightBit := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", valid[:20]},
		{"wrong magic", notRIFF},
		{"non-PCM format", notPCM},
		{"unsupported bit depth", eightBit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGetWAVDuration(t *testing.T) {
	mono, err := EncodeWAV(sineWave(16000, 16000), 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(mono)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}
	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("duration = %f, want 1.0", duration)
	}

	// Stereo halves the frame count for the same sample count.
	stereo, err := EncodeWAV(sineWave(16000, 16000), 16000, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err = GetWAVDuration(stereo)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}
	if math.Abs(duration-0.5) > 0.001 {
		t.Errorf("stereo duration = %f, want 0.5", duration)
	}
}

func TestGetWAVInfo(t *testing.T) {
	data, err := EncodeWAV(sineWave(44100, 44100), 44100, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}

	if info.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Channels = %d, want 1", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", info.BitsPerSample)
	}
	if info.NumFrames != 44100 {
		t.Errorf("NumFrames = %d, want 44100", info.NumFrames)
	}
	if math.Abs(info.Duration-1.0) > 0.001 {
		t.Errorf("Duration = %f, want 1.0", info.Duration)
	}
}
