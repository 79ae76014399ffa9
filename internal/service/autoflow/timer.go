// Package autoflow implements the auto-submit countdown.
package autoflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ascend-interview-agent/internal/clock"
)

// DefaultSeconds is the countdown length.
const DefaultSeconds = 30

// State represents the countdown state.
type State int

const (
	// StateIdle - no voice detected yet for this prompt.
	StateIdle State = iota
	// StateArmed - voice detected, countdown not yet running.
	StateArmed
	// StateCounting - ticking once per second.
	StateCounting
	// StateFired - reached zero. Terminal until Reset.
	StateFired
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmed:
		return "ARMED"
	case StateCounting:
		return "COUNTING"
	case StateFired:
		return "FIRED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true while a countdown is pending or running.
func (s State) IsActive() bool {
	return s == StateArmed || s == StateCounting
}

// Errors for invalid transitions.
var (
	ErrAlreadyArmed = errors.New("countdown already armed for this prompt")
	ErrNotArmed     = errors.New("countdown not armed")
)

// Snapshot is the countdown as seen by the UI.
type Snapshot struct {
	State     string `json:"state"`
	Remaining int    `json:"remaining"`
}

// Timer is the auto-flow countdown for one prompt at a time.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → ARMED → COUNTING → FIRED
//	  ↑______________________________│ Reset()
//
// Every Reset bumps the generation; callbacks carry the generation they were
// scheduled under so a receiver can discard ticks that raced a reset.
type Timer struct {
	clock   clock.Clock
	seconds int
	onTick  func(gen uint64, remaining int)
	onFire  func(gen uint64)

	mu        sync.Mutex
	state     State
	remaining int
	gen       uint64
	pending   clock.Timer
}

// New creates an idle timer. Callbacks run outside the timer's lock.
func New(clk clock.Clock, seconds int, onTick func(gen uint64, remaining int), onFire func(gen uint64)) *Timer {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	if onTick == nil {
		onTick = func(uint64, int) {}
	}
	if onFire == nil {
		onFire = func(uint64) {}
	}
	return &Timer{
		clock:     clk,
		seconds:   seconds,
		onTick:    onTick,
		onFire:    onFire,
		remaining: seconds,
	}
}

// Arm moves IDLE → ARMED. Arming is allowed once per prompt.
func (t *Timer) Arm() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return ErrAlreadyArmed
	}
	t.state = StateArmed
	return nil
}

// Start moves ARMED → COUNTING and schedules the first tick.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.state != StateArmed {
		t.mu.Unlock()
		return ErrNotArmed
	}
	t.state = StateCounting
	t.remaining = t.seconds
	gen := t.gen
	t.pending = t.clock.AfterFunc(time.Second, func() { t.tick(gen) })
	remaining := t.remaining
	t.mu.Unlock()

	t.onTick(gen, remaining)
	return nil
}

// Reset cancels any countdown and returns to IDLE.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
	t.state = StateIdle
	t.remaining = t.seconds
}

// State returns the current state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// IsCurrent reports whether gen belongs to the running countdown.
func (t *Timer) IsCurrent(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen == t.gen
}

// Snapshot returns the UI view of the timer.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{State: t.state.String(), Remaining: t.remaining}
}

func (t *Timer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateCounting {
		t.mu.Unlock()
		return
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.state = StateFired
		t.pending = nil
		t.mu.Unlock()

		t.onTick(gen, 0)
		t.onFire(gen)
		return
	}
	t.pending = t.clock.AfterFunc(time.Second, func() { t.tick(gen) })
	remaining := t.remaining
	t.mu.Unlock()

	t.onTick(gen, remaining)
}
