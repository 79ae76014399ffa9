package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/clock"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
)

// ErrNotAcquired is returned when frames are requested before Acquire.
var ErrNotAcquired = errors.New("media: pipeline not acquired")

// Pipeline owns the session's capture stream. It prefers audio+video and
// degrades to video-only when the combined request fails.
type Pipeline struct {
	devices Devices

	mu       sync.Mutex
	stream   Stream
	degraded bool
}

// NewPipeline creates a pipeline over devices.
func NewPipeline(devices Devices) *Pipeline {
	return &Pipeline{devices: devices}
}

// Acquire opens the capture stream. A failure of the video-only fallback is
// returned to the caller as a setup failure.
func (p *Pipeline) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.stream != nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	degraded := false
	stream, err := p.devices.Open(ctx, Constraints{Audio: true, Video: true})
	if err != nil {
		log.Warn().Err(err).Msg("audio+video capture failed, retrying video only")
		metrics.DefaultMetrics.RecordMediaDegraded()

		stream, err = p.devices.Open(ctx, Constraints{Video: true})
		if err != nil {
			return fmt.Errorf("camera unavailable: %w", err)
		}
		degraded = true
	}

	p.mu.Lock()
	p.stream = stream
	p.degraded = degraded
	p.mu.Unlock()

	log.Info().
		Bool("degraded", degraded).
		Bool("audio", stream.HasAudio()).
		Bool("video", stream.HasVideo()).
		Msg("media acquired")
	return nil
}

// Degraded reports whether the pipeline fell back to video only.
func (p *Pipeline) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// CaptureFrame returns the current frame as JPEG.
func (p *Pipeline) CaptureFrame(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream == nil {
		return nil, ErrNotAcquired
	}
	return stream.CaptureFrame(ctx)
}

// Close releases the stream.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()
	if stream == nil {
		return nil
	}
	return stream.Close()
}

// FrameMonitor periodically captures a frame and reports it to the proctoring
// endpoint. The next capture is scheduled only after the previous report
// finishes, so reports never overlap.
type FrameMonitor struct {
	clock    clock.Clock
	interval time.Duration
	capture  func(ctx context.Context) ([]byte, error)
	report   func(ctx context.Context, frame []byte) (*models.SecurityStatus, error)
	onStatus func(*models.SecurityStatus)

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	pending clock.Timer
	running bool
}

// NewFrameMonitor creates a stopped monitor.
func NewFrameMonitor(
	clk clock.Clock,
	interval time.Duration,
	capture func(ctx context.Context) ([]byte, error),
	report func(ctx context.Context, frame []byte) (*models.SecurityStatus, error),
	onStatus func(*models.SecurityStatus),
) *FrameMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &FrameMonitor{
		clock:    clk,
		interval: interval,
		capture:  capture,
		report:   report,
		onStatus: onStatus,
	}
}

// Start begins monitoring until ctx is done or Stop is called.
func (m *FrameMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.schedule()
}

// Stop ends monitoring. An in-flight report is cancelled.
func (m *FrameMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	m.cancel()
}

// schedule must be called with m.mu held.
func (m *FrameMonitor) schedule() {
	ctx := m.ctx
	m.pending = m.clock.AfterFunc(m.interval, func() { m.tick(ctx) })
}

func (m *FrameMonitor) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	frame, err := m.capture(ctx)
	switch {
	case err != nil:
		metrics.DefaultMetrics.RecordMonitorFrame("capture_error")
		log.Debug().Err(err).Msg("monitor frame capture failed")
	default:
		status, err := m.report(ctx, frame)
		if err != nil {
			metrics.DefaultMetrics.RecordMonitorFrame("error")
			log.Warn().Err(err).Msg("monitor report failed")
		} else {
			metrics.DefaultMetrics.RecordMonitorFrame("ok")
			if status != nil && m.onStatus != nil && ctx.Err() == nil {
				m.onStatus(status)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running && ctx == m.ctx {
		m.schedule()
	}
}
