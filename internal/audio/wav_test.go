package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// decodeFloatWAV decodes a 32-bit float WAV file into interleaved samples
func decodeFloatWAV(data []byte) ([]float32, *WAVInfo, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return nil, nil, err
	}

	if info.Format != wavFormatIEEEFloat || info.BitsPerSample != 32 {
		return nil, nil, fmt.Errorf("unsupported sample encoding: format %d, %d bits", info.Format, info.BitsPerSample)
	}

	payload := data[wavHeaderSize:]
	if uint32(len(payload)) < info.DataSize {
		return nil, nil, fmt.Errorf("truncated WAV data: header says %d bytes, got %d", info.DataSize, len(payload))
	}

	samples := make([]float32, info.DataSize/bytesPerFloatSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*bytesPerFloatSample:]))
	}

	return samples, info, nil
}

func sineSamples(n, channels int, sampleRate int) []float32 {
	samples := make([]float32, n*channels)
	for i := 0; i < n; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return samples
}

func TestWAVWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.wav")
	sampleRate := 16000
	channels := 2

	w, err := CreateWAV(path, channels, sampleRate)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}

	first := sineSamples(800, channels, sampleRate)
	second := sineSamples(800, channels, sampleRate)
	if err := w.WriteSamples(first); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.WriteSamples(second); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}

	if w.Frames() != 1600 {
		t.Errorf("Expected 1600 frames, got %d", w.Frames())
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	expectedSize := wavHeaderSize + (len(first)+len(second))*4
	if len(data) != expectedSize {
		t.Errorf("Expected file size %d, got %d", expectedSize, len(data))
	}

	samples, info, err := decodeFloatWAV(data)
	if err != nil {
		t.Fatalf("decodeFloatWAV failed: %v", err)
	}

	if info.Format != wavFormatIEEEFloat {
		t.Errorf("Expected IEEE float format, got %d", info.Format)
	}
	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != uint16(channels) {
		t.Errorf("Expected %d channels, got %d", channels, info.Channels)
	}
	if info.BitsPerSample != 32 {
		t.Errorf("Expected 32 bits per sample, got %d", info.BitsPerSample)
	}
	if info.NumFrames != 1600 {
		t.Errorf("Expected 1600 frames, got %d", info.NumFrames)
	}

	all := append(append([]float32{}, first...), second...)
	if len(samples) != len(all) {
		t.Fatalf("Expected %d samples, got %d", len(all), len(samples))
	}
	for i := range all {
		if samples[i] != all[i] {
			t.Fatalf("Sample %d: expected %f, got %f", i, all[i], samples[i])
		}
	}
}

func TestWAVWriterCloseTwice(t *testing.T) {
	w, err := CreateWAV(filepath.Join(t.TempDir(), "a.wav"), 1, 8000)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := w.WriteSamples([]float32{1}); err == nil {
		t.Error("Expected error writing to closed writer")
	}
}

func TestCreateWAVInvalidFormat(t *testing.T) {
	dir := t.TempDir()
	if _, err := CreateWAV(filepath.Join(dir, "a.wav"), 0, 8000); err == nil {
		t.Error("Expected error for zero channels")
	}
	if _, err := CreateWAV(filepath.Join(dir, "b.wav"), 1, -1); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestEmptySegmentIsValidWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	w, err := CreateWAV(path, 1, 48000)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := ValidateWAV(data); err != nil {
		t.Errorf("Empty segment should still be a valid WAV: %v", err)
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		t.Fatalf("GetWAVInfo failed: %v", err)
	}
	if info.Duration != 0 {
		t.Errorf("Expected zero duration, got %v", info.Duration)
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestTruncatedWAVData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.wav")
	w, err := CreateWAV(path, 1, 8000)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	if err := w.WriteSamples(make([]float32, 100)); err != nil {
		t.Fatalf("WriteSamples failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	if _, _, err := decodeFloatWAV(data[:len(data)-10]); err == nil {
		t.Error("Expected error for truncated data")
	}
}

func TestGetWAVInfoRejectsPartialByteSamples(t *testing.T) {
	header := newFloatHeader(1, 8000, 16)
	header.AudioFormat = wavFormatPCM
	header.BitsPerSample = 4

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("Failed to encode header: %v", err)
	}
	buf.Write(make([]byte, 16))

	if err := ValidateWAV(buf.Bytes()); err != nil {
		t.Fatalf("Header should pass the structural check: %v", err)
	}

	info, err := GetWAVInfo(buf.Bytes())
	if err == nil {
		t.Fatalf("Expected error for 4-bit samples, got %+v", info)
	}
}
