package autoflow

import (
	"testing"
	"time"

	"ascend-interview-agent/internal/clock"
)

type recorder struct {
	ticks []int
	fires []uint64
}

func newTimer(seconds int) (*Timer, *clock.Fake, *recorder) {
	clk := clock.NewFake(time.Unix(0, 0))
	rec := &recorder{}
	tm := New(clk, seconds,
		func(_ uint64, remaining int) { rec.ticks = append(rec.ticks, remaining) },
		func(gen uint64) { rec.fires = append(rec.fires, gen) },
	)
	return tm, clk, rec
}

func TestTimer_InitialState(t *testing.T) {
	tm, _, _ := newTimer(30)

	if tm.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", tm.State())
	}
	if tm.Remaining() != 30 {
		t.Errorf("expected 30 remaining, got %d", tm.Remaining())
	}
	if tm.State().IsActive() {
		t.Error("idle timer should not be active")
	}
}

func TestTimer_CountsDownAndFiresOnce(t *testing.T) {
	tm, clk, rec := newTimer(3)

	if err := tm.Arm(); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := tm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(10 * time.Second)

	want := []int{3, 2, 1, 0}
	if len(rec.ticks) != len(want) {
		t.Fatalf("expected ticks %v, got %v", want, rec.ticks)
	}
	for i := range want {
		if rec.ticks[i] != want[i] {
			t.Errorf("tick %d: expected %d, got %d", i, want[i], rec.ticks[i])
		}
	}
	if len(rec.fires) != 1 {
		t.Errorf("expected exactly one fire, got %d", len(rec.fires))
	}
	if tm.State() != StateFired {
		t.Errorf("expected StateFired, got %v", tm.State())
	}
}

func TestTimer_ArmTwiceRejected(t *testing.T) {
	tm, _, _ := newTimer(30)

	if err := tm.Arm(); err != nil {
		t.Fatalf("first arm: %v", err)
	}
	if err := tm.Arm(); err != ErrAlreadyArmed {
		t.Errorf("expected ErrAlreadyArmed, got %v", err)
	}
	_ = tm.Start()
	if err := tm.Arm(); err != ErrAlreadyArmed {
		t.Errorf("expected ErrAlreadyArmed while counting, got %v", err)
	}
}

func TestTimer_StartRequiresArm(t *testing.T) {
	tm, _, _ := newTimer(30)
	if err := tm.Start(); err != ErrNotArmed {
		t.Errorf("expected ErrNotArmed, got %v", err)
	}
}

func TestTimer_FiredIsTerminalUntilReset(t *testing.T) {
	tm, clk, _ := newTimer(1)
	_ = tm.Arm()
	_ = tm.Start()
	clk.Advance(time.Second)

	if err := tm.Arm(); err != ErrAlreadyArmed {
		t.Errorf("expected ErrAlreadyArmed after fire, got %v", err)
	}
	tm.Reset()
	if err := tm.Arm(); err != nil {
		t.Errorf("expected arm after reset, got %v", err)
	}
}

func TestTimer_ResetCancelsCountdown(t *testing.T) {
	tm, clk, rec := newTimer(30)
	_ = tm.Arm()
	_ = tm.Start()

	clk.Advance(20 * time.Second)
	if tm.Remaining() != 10 {
		t.Fatalf("expected 10 remaining, got %d", tm.Remaining())
	}

	tm.Reset()
	clk.Advance(time.Minute)

	if len(rec.fires) != 0 {
		t.Errorf("expected no fire after reset, got %d", len(rec.fires))
	}
	if tm.State() != StateIdle || tm.Remaining() != 30 {
		t.Errorf("expected idle with full countdown, got %v %d", tm.State(), tm.Remaining())
	}
	if clk.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", clk.Pending())
	}
}

func TestTimer_StaleTickIgnored(t *testing.T) {
	tm, _, rec := newTimer(5)
	_ = tm.Arm()
	_ = tm.Start()
	oldGen := uint64(0)

	tm.Reset()
	_ = tm.Arm()
	_ = tm.Start()
	before := tm.Remaining()

	tm.tick(oldGen)

	if tm.Remaining() != before {
		t.Errorf("stale tick changed remaining: %d -> %d", before, tm.Remaining())
	}
	if tm.IsCurrent(oldGen) {
		t.Error("old generation should not be current")
	}
	if len(rec.fires) != 0 {
		t.Error("stale tick must not fire")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateArmed, "ARMED"},
		{StateCounting, "COUNTING"},
		{StateFired, "FIRED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
