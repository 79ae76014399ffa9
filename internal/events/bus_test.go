package events

import (
	"sync"
	"testing"
	"time"

	"ascend-interview-agent/internal/models"
)

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) record(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, ev.Type)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus(16)
	rec := &recorder{}
	b.Subscribe(rec.record)

	b.Emit(models.NewEvent(models.EventPhase, "iv", nil))
	b.Emit(models.NewEvent(models.EventPrompt, "iv", nil))
	b.Emit(models.NewEvent(models.EventCountdown, "iv", nil))
	b.Close()

	got := rec.snapshot()
	want := []string{models.EventPhase, models.EventPrompt, models.EventCountdown}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(16)
	rec := &recorder{}
	cancel := b.Subscribe(rec.record)
	cancel()

	b.Emit(models.NewEvent(models.EventPhase, "iv", nil))
	b.Close()

	if len(rec.snapshot()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBus_EmitAfterCloseIsIgnored(t *testing.T) {
	b := NewBus(1)
	b.Close()
	b.Close()
	b.Emit(models.NewEvent(models.EventPhase, "iv", nil))
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := NewBus(1)
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	rec := &recorder{}
	b.Subscribe(func(ev models.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		rec.record(ev)
	})

	b.Emit(models.NewEvent(models.EventPhase, "iv", nil))
	<-started
	b.Emit(models.NewEvent(models.EventPrompt, "iv", nil))
	b.Emit(models.NewEvent(models.EventCountdown, "iv", nil))
	close(block)
	b.Close()

	if got := rec.snapshot(); len(got) != 2 {
		t.Errorf("expected 2 delivered events with one dropped, got %v", got)
	}
}

func blockingBus(t *testing.T) (*Bus, *recorder, chan struct{}) {
	t.Helper()
	b := NewBus(1)
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	rec := &recorder{}
	b.Subscribe(func(ev models.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		rec.record(ev)
	})

	b.Emit(models.NewEvent(models.EventPrompt, "iv", nil))
	<-started
	b.Emit(models.NewEvent(models.EventCountdown, "iv", nil))
	return b, rec, block
}

func TestBus_MustDeliverWaitsForSpace(t *testing.T) {
	b, rec, block := blockingBus(t)

	b.Emit(models.NewEvent(models.EventTranscriptPartial, "iv", nil))

	emitted := make(chan struct{})
	go func() {
		b.Emit(models.NewEvent(models.EventReport, "iv", nil))
		close(emitted)
	}()
	select {
	case <-emitted:
		t.Fatal("report must wait for queue space")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	<-emitted
	b.Close()

	got := rec.snapshot()
	want := []string{models.EventPrompt, models.EventCountdown, models.EventReport}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBus_CloseReleasesWaitingEmit(t *testing.T) {
	b, rec, block := blockingBus(t)

	emitted := make(chan struct{})
	go func() {
		b.Emit(models.NewEvent(models.EventPhase, "iv", nil))
		close(emitted)
	}()

	closed := make(chan struct{})
	go func() {
		b.Close()
		close(closed)
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the waiting emitter")
	}

	close(block)
	<-closed
	if got := rec.snapshot(); len(got) < 2 {
		t.Errorf("queued events must still be delivered, got %v", got)
	}
}
