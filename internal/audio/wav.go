package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

const (
	wavHeaderSize = 44

	// WAV format tags
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3

	bytesPerFloatSample = 4
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16  // 1 for PCM, 3 for IEEE float
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// newFloatHeader builds a 32-bit IEEE float header for dataSize bytes of samples
func newFloatHeader(channels, sampleRate int, dataSize uint32) WAVHeader {
	numChannels := uint16(channels)
	bitsPerSample := uint16(32)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatIEEEFloat,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WAVWriter appends interleaved 32-bit float samples to a WAV file.
// The header is written with zero sizes on creation and patched on Close.
type WAVWriter struct {
	file       *os.File
	buf        *bufio.Writer
	channels   int
	sampleRate int
	dataBytes  uint32
	scratch    [bytesPerFloatSample]byte
	closed     bool
}

// CreateWAV creates (or truncates) path and writes a placeholder float header
func CreateWAV(path string, channels, sampleRate int) (*WAVWriter, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("channels must be positive, got %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := &WAVWriter{
		file:       file,
		buf:        bufio.NewWriterSize(file, 64*1024),
		channels:   channels,
		sampleRate: sampleRate,
	}

	header := newFloatHeader(channels, sampleRate, 0)
	if err := binary.Write(w.buf, binary.LittleEndian, header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return w, nil
}

// WriteSamples appends samples to the data chunk
func (w *WAVWriter) WriteSamples(samples []float32) error {
	if w.closed {
		return fmt.Errorf("write to closed WAV writer")
	}

	size := uint64(len(samples)) * bytesPerFloatSample
	if uint64(w.dataBytes)+size > math.MaxUint32-wavHeaderSize {
		return fmt.Errorf("WAV data chunk would exceed 4 GiB")
	}

	for _, sample := range samples {
		binary.LittleEndian.PutUint32(w.scratch[:], math.Float32bits(sample))
		if _, err := w.buf.Write(w.scratch[:]); err != nil {
			return fmt.Errorf("failed to write audio data: %w", err)
		}
	}
	w.dataBytes += uint32(size)

	return nil
}

// Frames returns the number of complete frames written so far
func (w *WAVWriter) Frames() int64 {
	return int64(w.dataBytes) / int64(bytesPerFloatSample*w.channels)
}

// Size returns the number of bytes the finalized file will occupy
func (w *WAVWriter) Size() int64 {
	return wavHeaderSize + int64(w.dataBytes)
}

// Close flushes buffered samples, patches the header sizes and closes the file
func (w *WAVWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush audio data: %w", err)
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to seek to WAV header: %w", err)
	}

	header := newFloatHeader(w.channels, w.sampleRate, w.dataBytes)
	if err := binary.Write(w.file, binary.LittleEndian, header); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to patch WAV header: %w", err)
	}

	return w.file.Close()
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVInfo contains basic information about a WAV file
type WAVInfo struct {
	Format        uint16        `json:"format"`
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint16        `json:"channels"`
	BitsPerSample uint16        `json:"bits_per_sample"`
	Duration      time.Duration `json:"duration"`
	DataSize      uint32        `json:"data_size_bytes"`
	NumFrames     uint32        `json:"num_frames"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != wavFormatPCM && header.AudioFormat != wavFormatIEEEFloat {
		return nil, fmt.Errorf("unsupported audio format: %d", header.AudioFormat)
	}

	if header.SampleRate == 0 || header.NumChannels == 0 || header.BitsPerSample == 0 {
		return nil, fmt.Errorf("invalid WAV header: zero sample rate, channels or bit depth")
	}

	if header.BitsPerSample%8 != 0 {
		return nil, fmt.Errorf("invalid WAV header: %d bits per sample is not a whole number of bytes", header.BitsPerSample)
	}

	frameSize := uint32(header.NumChannels) * uint32(header.BitsPerSample) / 8
	numFrames := header.Subchunk2Size / frameSize

	return &WAVInfo{
		Format:        header.AudioFormat,
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      time.Duration(numFrames) * time.Second / time.Duration(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumFrames:     numFrames,
	}, nil
}
