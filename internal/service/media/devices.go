// Package media acquires the capture devices and produces camera frames for
// proctoring and answer submission.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrPermissionDenied is returned when a device cannot be opened.
	ErrPermissionDenied = errors.New("media: permission denied")
	// ErrNoVideo is returned when a frame is requested from an audio-only stream.
	ErrNoVideo = errors.New("media: stream has no video track")
	// ErrStreamClosed is returned by a closed stream.
	ErrStreamClosed = errors.New("media: stream closed")
)

// Constraints selects the tracks to open.
type Constraints struct {
	Audio bool
	Video bool
}

// String returns a short description for logs.
func (c Constraints) String() string {
	switch {
	case c.Audio && c.Video:
		return "audio+video"
	case c.Audio:
		return "audio"
	case c.Video:
		return "video"
	default:
		return "none"
	}
}

// Stream is an open capture stream.
type Stream interface {
	HasAudio() bool
	HasVideo() bool
	// Audio returns raw PCM audio, or nil when the stream has no audio track.
	Audio() io.Reader
	// CaptureFrame returns the current video frame as JPEG.
	CaptureFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Devices opens capture streams.
type Devices interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// StaticDevices serves frames from a directory of JPEG files and audio from a
// WAV file. Without a frame directory a generated placeholder is used, and
// without an audio file the audio track is silence.
type StaticDevices struct {
	AudioFile string
	DenyAudio bool
	DenyVideo bool

	mu     sync.Mutex
	frames [][]byte
	next   int
}

// NewStaticDevices loads every .jpg/.jpeg file in framesDir (sorted by name).
func NewStaticDevices(framesDir, audioFile string) (*StaticDevices, error) {
	d := &StaticDevices{AudioFile: audioFile}
	if framesDir == "" {
		return d, nil
	}

	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, fmt.Errorf("read frames dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".jpg" || ext == ".jpeg") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(framesDir, name))
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		d.frames = append(d.frames, b)
	}
	return d, nil
}

// Open opens a stream with the requested tracks.
func (d *StaticDevices) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Audio && d.DenyAudio {
		return nil, fmt.Errorf("%w: microphone", ErrPermissionDenied)
	}
	if c.Video && d.DenyVideo {
		return nil, fmt.Errorf("%w: camera", ErrPermissionDenied)
	}

	s := &staticStream{devices: d, video: c.Video}
	if c.Audio {
		if d.AudioFile != "" {
			w, err := OpenWAV(d.AudioFile)
			if err != nil {
				return nil, err
			}
			s.audio = w
			s.closer = w
		} else {
			s.audio = Silence{}
		}
	}
	return s, nil
}

func (d *StaticDevices) nextFrame() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return Placeholder()
	}
	f := d.frames[d.next%len(d.frames)]
	d.next++
	return f, nil
}

type staticStream struct {
	devices *StaticDevices
	audio   io.Reader
	closer  io.Closer
	video   bool

	mu     sync.Mutex
	closed bool
}

func (s *staticStream) HasAudio() bool   { return s.audio != nil }
func (s *staticStream) HasVideo() bool   { return s.video }
func (s *staticStream) Audio() io.Reader { return s.audio }

func (s *staticStream) CaptureFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}
	if !s.video {
		return nil, ErrNoVideo
	}
	return s.devices.nextFrame()
}

func (s *staticStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Silence is an endless source of zeroed PCM samples.
type Silence struct{}

func (Silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

var (
	placeholderOnce sync.Once
	placeholderJPEG []byte
	placeholderErr  error
)

// Placeholder returns a mid-gray 320x240 JPEG frame.
func Placeholder() ([]byte, error) {
	placeholderOnce.Do(func() {
		img := image.NewGray(image.Rect(0, 0, 320, 240))
		for i := range img.Pix {
			img.Pix[i] = color.Gray{Y: 128}.Y
		}
		var buf bytes.Buffer
		placeholderErr = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
		placeholderJPEG = buf.Bytes()
	})
	return placeholderJPEG, placeholderErr
}
