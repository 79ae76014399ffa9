package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/stt"
)

// ErrMicrophoneUnavailable is returned when recording cannot open the microphone.
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// Listener receives transcript updates. Calls arrive on recognizer goroutines
// and carry a copy of the buffer taken under the capture lock.
type Listener interface {
	OnSpeechStart()
	OnPartial(windowID, text string, buf Buffer)
	OnFinal(windowID, text string, confidence float64, buf Buffer)
	// OnRecognizerError is called after recording has stopped because of err.
	OnRecognizerError(err error)
}

// AdapterFactory builds the recognizer on first use.
type AdapterFactory func(ctx context.Context) (stt.Adapter, error)

// Config tunes audio pumping.
type Config struct {
	InterviewID string
	Provider    string
	// ChunkSize is the number of audio bytes per recognizer send.
	ChunkSize int
	// ChunkInterval paces sends to real time.
	ChunkInterval time.Duration
}

// DefaultConfig returns 100ms chunks of 16 kHz 16-bit mono audio.
func DefaultConfig() Config {
	return Config{
		Provider:      "mock",
		ChunkSize:     3200,
		ChunkInterval: 100 * time.Millisecond,
	}
}

// Capture manages recording for one session: it opens the microphone, feeds
// the recognizer and maintains the transcript buffer.
//
// Each recording has its own id; results that arrive after a recording has
// ended are discarded.
type Capture struct {
	cfg        Config
	devices    media.Devices
	newAdapter AdapterFactory
	listener   Listener
	windows    *WindowGenerator

	mu       sync.Mutex
	adapter  stt.Adapter
	rec      *recording
	seq      uint64
	starting bool
	buf      Buffer
	window   string
}

type recording struct {
	id     uint64
	cancel context.CancelFunc
	stream media.Stream
}

// NewCapture creates an idle capture.
func NewCapture(cfg Config, devices media.Devices, newAdapter AdapterFactory, listener Listener) *Capture {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = def.ChunkInterval
	}
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	return &Capture{
		cfg:        cfg,
		devices:    devices,
		newAdapter: newAdapter,
		listener:   listener,
		windows:    NewWindowGenerator(),
	}
}

// Start begins recording. It is a no-op while recording is active. The
// microphone is re-checked on every start; the recognizer is built on the
// first start and reused afterwards.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.rec != nil || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	adapter := c.adapter
	c.mu.Unlock()

	fail := func(err error) error {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return err
	}

	stream, err := c.devices.Open(ctx, media.Constraints{Audio: true})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err))
	}
	if !stream.HasAudio() {
		_ = stream.Close()
		return fail(ErrMicrophoneUnavailable)
	}

	if adapter == nil {
		adapter, err = c.newAdapter(ctx)
		if err != nil {
			_ = stream.Close()
			return fail(fmt.Errorf("create recognizer: %w", err))
		}
		c.mu.Lock()
		c.adapter = adapter
		c.mu.Unlock()
	}

	recCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.seq++
	rec := &recording{id: c.seq, cancel: cancel, stream: stream}
	c.rec = rec
	c.starting = false
	c.window = c.windows.Next(c.cfg.InterviewID)
	c.buf.BeginWindow()
	window := c.window
	c.mu.Unlock()

	if err := adapter.Start(recCtx, &recordingCallback{c: c, id: rec.id}); err != nil {
		c.end(rec.id)
		return fmt.Errorf("start recognizer: %w", err)
	}

	go c.pump(recCtx, rec.id, stream.Audio(), adapter)

	log.Debug().
		Str("interviewId", c.cfg.InterviewID).
		Str("windowId", window).
		Str("provider", c.cfg.Provider).
		Msg("recording started")
	return nil
}

// Stop ends the active recording, if any.
func (c *Capture) Stop() {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec != nil && c.end(rec.id) {
		log.Debug().Str("interviewId", c.cfg.InterviewID).Msg("recording stopped")
	}
}

// Active reports whether recording is on.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil || c.starting
}

// Buffer returns a copy of the transcript.
func (c *Capture) Buffer() Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}

// Window returns the current window id.
func (c *Capture) Window() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.window
}

// Edit replaces the transcript with typed text and starts a new window.
func (c *Capture) Edit(text string) (Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec != nil || c.starting {
		return c.buf, ErrTranscriptLocked
	}
	c.buf.Edit(text)
	c.window = c.windows.Next(c.cfg.InterviewID)
	return c.buf, nil
}

// Reset stops recording and clears the transcript for the next prompt.
func (c *Capture) Reset() {
	c.Stop()
	c.mu.Lock()
	c.buf.Reset()
	c.window = ""
	c.mu.Unlock()
}

// Close stops recording and releases the recognizer.
func (c *Capture) Close() error {
	c.Stop()
	c.mu.Lock()
	adapter := c.adapter
	c.adapter = nil
	c.mu.Unlock()

	if s, ok := adapter.(interface{ Shutdown() error }); ok {
		return s.Shutdown()
	}
	return nil
}

// end tears down recording id. It reports false if id is no longer current.
func (c *Capture) end(id uint64) bool {
	c.mu.Lock()
	if c.rec == nil || c.rec.id != id {
		c.mu.Unlock()
		return false
	}
	rec := c.rec
	c.rec = nil
	adapter := c.adapter
	c.mu.Unlock()

	rec.cancel()
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			log.Debug().Err(err).Msg("recognizer close")
		}
	}
	if err := rec.stream.Close(); err != nil {
		log.Debug().Err(err).Msg("microphone close")
	}
	return true
}

func (c *Capture) fail(id uint64, err error) {
	if !c.end(id) {
		return
	}
	metrics.DefaultMetrics.RecordRecognizerError(c.cfg.Provider)
	log.Warn().Err(err).Str("interviewId", c.cfg.InterviewID).Msg("recognition failed, recording stopped")
	c.listener.OnRecognizerError(err)
}

// apply mutates the buffer if id is still the active recording.
func (c *Capture) apply(id uint64, fn func(*Buffer)) (Buffer, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil || c.rec.id != id {
		return Buffer{}, "", false
	}
	fn(&c.buf)
	return c.buf, c.window, true
}

func (c *Capture) current(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil && c.rec.id == id
}

// pump streams microphone audio to the recognizer in real time.
func (c *Capture) pump(ctx context.Context, id uint64, audio io.Reader, adapter stt.Adapter) {
	chunk := make([]byte, c.cfg.ChunkSize)
	ticker := time.NewTicker(c.cfg.ChunkInterval)
	defer ticker.Stop()

	for {
		n, err := audio.Read(chunk)
		if n > 0 {
			if sendErr := adapter.SendAudio(ctx, chunk[:n]); sendErr != nil {
				if ctx.Err() == nil {
					c.fail(id, sendErr)
				}
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.fail(id, err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// recordingCallback binds recognizer results to one recording.
type recordingCallback struct {
	c  *Capture
	id uint64
}

func (r *recordingCallback) OnSpeechStart() {
	if r.c.current(r.id) {
		r.c.listener.OnSpeechStart()
	}
}

func (r *recordingCallback) OnPartial(text string) {
	buf, window, ok := r.c.apply(r.id, func(b *Buffer) { b.ApplyPartial(text) })
	if !ok {
		return
	}
	metrics.DefaultMetrics.RecordPartialTranscript()
	r.c.listener.OnPartial(window, text, buf)
}

func (r *recordingCallback) OnFinal(text string, confidence float64) {
	buf, window, ok := r.c.apply(r.id, func(b *Buffer) { b.ApplyFinal(text) })
	if !ok {
		return
	}
	metrics.DefaultMetrics.RecordFinalTranscript()
	r.c.listener.OnFinal(window, text, confidence, buf)
}

func (r *recordingCallback) OnError(err error) {
	r.c.fail(r.id, err)
}
