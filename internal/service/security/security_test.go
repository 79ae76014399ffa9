package security

import "testing"

func mustPolicy(t *testing.T, level string, flags ...string) Policy {
	t.Helper()
	p, err := NewPolicy(level, flags)
	if err != nil {
		t.Fatalf("NewPolicy(%q, %v): %v", level, flags, err)
	}
	return p
}

func TestNewPolicy_Defaults(t *testing.T) {
	tests := []struct {
		level     string
		clipboard bool
		devtools  bool
	}{
		{"off", false, false},
		{"standard", false, true},
		{"strict", true, true},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			p := mustPolicy(t, tt.level)
			if p.Enabled(FlagClipboard) != tt.clipboard {
				t.Errorf("clipboard: expected %v", tt.clipboard)
			}
			if p.Enabled(FlagDevTools) != tt.devtools {
				t.Errorf("devtools: expected %v", tt.devtools)
			}
		})
	}
}

func TestNewPolicy_ExplicitFlags(t *testing.T) {
	p := mustPolicy(t, "standard", "devtools", "clipboard")
	if !p.Enabled(FlagDevTools) {
		t.Error("expected devtools enabled")
	}
	if p.Enabled(FlagContextMenu) {
		t.Error("expected context menu disabled when not listed")
	}
	if p.Enabled(FlagClipboard) {
		t.Error("clipboard must stay disabled below strict")
	}

	strict := mustPolicy(t, "strict", "clipboard")
	if !strict.Enabled(FlagClipboard) {
		t.Error("expected clipboard enabled in strict")
	}
}

func TestNewPolicy_Invalid(t *testing.T) {
	if _, err := NewPolicy("paranoid", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewPolicy("standard", []string{"telepathy"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   InputEvent
		want Flag
		ok   bool
	}{
		{"context menu", InputEvent{Type: "contextmenu"}, FlagContextMenu, true},
		{"print screen keyup", InputEvent{Type: "keyup", Key: "PrintScreen"}, FlagScreenshot, true},
		{"print screen keydown", InputEvent{Type: "keydown", Key: "PrintScreen"}, "", false},
		{"f12 keyup", InputEvent{Type: "keyup", Key: "F12"}, "", false},
		{"ctrl shift i keyup", InputEvent{Type: "keyup", Key: "I", Ctrl: true, Shift: true}, "", false},
		{"f12", InputEvent{Type: "keydown", Key: "F12"}, FlagDevTools, true},
		{"ctrl shift i", InputEvent{Type: "keydown", Key: "I", Ctrl: true, Shift: true}, FlagDevTools, true},
		{"ctrl shift j", InputEvent{Type: "keydown", Key: "j", Ctrl: true, Shift: true}, FlagDevTools, true},
		{"ctrl shift c", InputEvent{Type: "keydown", Key: "C", Ctrl: true, Shift: true}, FlagDevTools, true},
		{"ctrl u", InputEvent{Type: "keydown", Key: "u", Ctrl: true}, FlagDevTools, true},
		{"ctrl s", InputEvent{Type: "keydown", Key: "s", Ctrl: true}, FlagScreenshot, true},
		{"ctrl p", InputEvent{Type: "keydown", Key: "p", Ctrl: true}, FlagScreenshot, true},
		{"cmd shift 4", InputEvent{Type: "keydown", Key: "4", Meta: true, Shift: true}, FlagScreenshot, true},
		{"win shift s", InputEvent{Type: "keydown", Key: "S", Meta: true, Shift: true}, FlagScreenshot, true},
		{"dragstart", InputEvent{Type: "dragstart"}, FlagDragSelect, true},
		{"drop", InputEvent{Type: "drop"}, FlagDragSelect, true},
		{"drag move", InputEvent{Type: "drag"}, "", false},
		{"dragend", InputEvent{Type: "dragend"}, "", false},
		{"select", InputEvent{Type: "selectstart"}, FlagDragSelect, true},
		{"copy", InputEvent{Type: "copy"}, FlagClipboard, true},
		{"plain typing", InputEvent{Type: "keydown", Key: "a"}, "", false},
		{"ctrl c copy shortcut", InputEvent{Type: "keydown", Key: "c", Ctrl: true}, "", false},
		{"click", InputEvent{Type: "click"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, ok := Classify(tt.ev)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Classify(%+v) = %q, %v; want %q, %v", tt.ev, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMonitor_ThresholdThreeNotTwo(t *testing.T) {
	m := NewMonitor(mustPolicy(t, "standard"), 3)
	ev := InputEvent{Type: "contextmenu"}

	for i := 1; i <= 2; i++ {
		v := m.Handle(ev)
		if !v.Blocked {
			t.Fatalf("event %d should be blocked", i)
		}
		if v.ThresholdReached {
			t.Fatalf("threshold reached after %d violations", i)
		}
	}
	if m.Tripped() {
		t.Fatal("two violations must not trip the monitor")
	}

	v := m.Handle(ev)
	if !v.ThresholdReached || !m.Tripped() {
		t.Fatal("third violation should reach the threshold")
	}

	v = m.Handle(ev)
	if !v.Blocked || v.ThresholdReached {
		t.Error("later violations are blocked but do not re-trigger the threshold")
	}

	st := m.State()
	if st.Count != 4 || st.Secure || len(st.Violations) != 4 {
		t.Errorf("unexpected state %+v", st)
	}
	if st.Violations[3].Count != 4 {
		t.Errorf("expected running count on violation, got %d", st.Violations[3].Count)
	}

	keys := NewMonitor(mustPolicy(t, "standard"), 3)
	for i := 0; i < 2; i++ {
		keys.Handle(InputEvent{Type: "keydown", Key: "F12"})
		keys.Handle(InputEvent{Type: "keyup", Key: "F12"})
	}
	if keys.Tripped() {
		t.Fatal("two key presses must not trip the monitor")
	}
	if !keys.Handle(InputEvent{Type: "keydown", Key: "F12"}).ThresholdReached {
		t.Error("third key press should reach the threshold")
	}
}

func TestMonitor_CountsActionsNotEvents(t *testing.T) {
	tests := []struct {
		name   string
		events []InputEvent
		want   int
	}{
		{"shortcut press and release", []InputEvent{
			{Type: "keydown", Key: "I", Ctrl: true, Shift: true},
			{Type: "keyup", Key: "I", Ctrl: true, Shift: true},
		}, 1},
		{"drag gesture", []InputEvent{
			{Type: "dragstart"}, {Type: "drag"}, {Type: "drag"}, {Type: "drag"}, {Type: "dragend"},
		}, 1},
		{"print screen", []InputEvent{
			{Type: "keydown", Key: "PrintScreen"},
			{Type: "keyup", Key: "PrintScreen"},
		}, 1},
		{"two presses", []InputEvent{
			{Type: "keydown", Key: "F12"}, {Type: "keyup", Key: "F12"},
			{Type: "keydown", Key: "F12"}, {Type: "keyup", Key: "F12"},
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(mustPolicy(t, "standard"), 3)
			for _, ev := range tt.events {
				if v := m.Handle(ev); v.ThresholdReached {
					t.Fatalf("threshold reached on %+v", ev)
				}
			}
			if st := m.State(); st.Count != tt.want {
				t.Errorf("count = %d, want %d", st.Count, tt.want)
			}
		})
	}
}

func TestMonitor_DisabledFlagsPassThrough(t *testing.T) {
	m := NewMonitor(mustPolicy(t, "off"), 3)
	for i := 0; i < 5; i++ {
		if v := m.Handle(InputEvent{Type: "contextmenu"}); v.Blocked {
			t.Fatal("off policy must not block")
		}
	}
	if st := m.State(); !st.Secure || st.Count != 0 {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestMonitor_ClipboardOnlyStrict(t *testing.T) {
	standard := NewMonitor(mustPolicy(t, "standard"), 3)
	if standard.Handle(InputEvent{Type: "paste"}).Blocked {
		t.Error("standard policy must not block paste")
	}
	strict := NewMonitor(mustPolicy(t, "strict"), 3)
	if !strict.Handle(InputEvent{Type: "paste"}).Blocked {
		t.Error("strict policy must block paste")
	}
}
