package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

var ErrNotWAV = errors.New("media: not a PCM WAV file")

// WAVInfo describes the audio format of a WAV file.
type WAVInfo struct {
	Format        uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// WAV is an opened PCM WAV file positioned after its header.
type WAV struct {
	Info WAVInfo
	f    *os.File
}

// OpenWAV opens a 16-bit PCM WAV file for streaming.
func OpenWAV(path string) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	info, err := ParseWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WAV{Info: info, f: f}, nil
}

// ParseWAVHeader reads and validates a 44-byte PCM WAV header.
func ParseWAVHeader(r io.Reader) (WAVInfo, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVInfo{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVInfo{}, ErrNotWAV
	}

	info := WAVInfo{
		Format:        binary.LittleEndian.Uint16(header[20:22]),
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if info.Format != 1 { // PCM
		return info, fmt.Errorf("%w: format %d", ErrNotWAV, info.Format)
	}
	return info, nil
}

func (w *WAV) Read(p []byte) (int, error) { return w.f.Read(p) }
func (w *WAV) Close() error               { return w.f.Close() }
