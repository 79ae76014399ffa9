package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
)

// Subscriber receives session events on the bus worker goroutine.
type Subscriber func(models.Event)

// mustDeliver are the events a subscriber cannot reconstruct later. They wait
// for queue space instead of being dropped.
var mustDeliver = map[string]bool{
	models.EventPhase:          true,
	models.EventSubmitted:      true,
	models.EventWarningOverlay: true,
	models.EventNavigate:       true,
	models.EventReport:         true,
}

// Bus fans session events out to subscribers from a single worker. Progress
// events are dropped when the queue is full; phase changes and terminal
// events wait for space until the bus closes.
type Bus struct {
	queue    chan models.Event
	done     chan struct{}
	stopping chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	subs   map[int]Subscriber
	nextID int
}

// NewBus starts a bus with the given queue size.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 256
	}
	b := &Bus{
		queue:    make(chan models.Event, size),
		done:     make(chan struct{}),
		stopping: make(chan struct{}),
		subs:     make(map[int]Subscriber),
	}
	go b.run()
	return b
}

// Emit enqueues an event. Only must-deliver events block, and only while
// the queue is full.
func (b *Bus) Emit(ev models.Event) {
	select {
	case <-b.stopping:
		return
	default:
	}

	select {
	case b.queue <- ev:
		return
	default:
	}

	if mustDeliver[ev.Type] {
		select {
		case b.queue <- ev:
			return
		case <-b.stopping:
		}
	}
	metrics.DefaultMetrics.RecordEventDropped()
	log.Warn().Str("type", ev.Type).Msg("Event bus full, dropping event")
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close stops accepting events and waits for queued events to be delivered.
func (b *Bus) Close() {
	b.stopOnce.Do(func() { close(b.stopping) })
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.stopping:
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev models.Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		s(ev)
	}
}
