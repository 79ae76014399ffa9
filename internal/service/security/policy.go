// Package security blocks capture-related input events and counts violations.
// It is a deterrent, not a security boundary.
package security

import (
	"fmt"
	"strings"
)

// Level is the strictness of the policy.
type Level int

const (
	LevelOff Level = iota
	LevelStandard
	LevelStrict
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelStandard:
		return "standard"
	case LevelStrict:
		return "strict"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel parses off, standard or strict.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none":
		return LevelOff, nil
	case "", "standard":
		return LevelStandard, nil
	case "strict":
		return LevelStrict, nil
	default:
		return LevelOff, fmt.Errorf("unknown security level %q", s)
	}
}

// Flag names one class of intercepted input.
type Flag string

const (
	FlagContextMenu Flag = "contextmenu"
	FlagDevTools    Flag = "devtools"
	FlagScreenshot  Flag = "screenshot"
	FlagDragSelect  Flag = "dragselect"
	FlagClipboard   Flag = "clipboard"
)

var standardFlags = []Flag{FlagContextMenu, FlagDevTools, FlagScreenshot, FlagDragSelect}

// Policy is the injected security configuration.
type Policy struct {
	Level Level
	flags map[Flag]bool
}

// NewPolicy builds a policy. With no flags, the level's defaults apply.
// Clipboard interception is honoured only at the strict level.
func NewPolicy(level string, flags []string) (Policy, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return Policy{}, err
	}
	p := Policy{Level: lvl, flags: make(map[Flag]bool)}
	if lvl == LevelOff {
		return p, nil
	}

	if len(flags) == 0 {
		for _, f := range standardFlags {
			p.flags[f] = true
		}
		if lvl == LevelStrict {
			p.flags[FlagClipboard] = true
		}
		return p, nil
	}

	for _, raw := range flags {
		f := Flag(strings.ToLower(strings.TrimSpace(raw)))
		switch f {
		case FlagContextMenu, FlagDevTools, FlagScreenshot, FlagDragSelect:
			p.flags[f] = true
		case FlagClipboard:
			if lvl == LevelStrict {
				p.flags[f] = true
			}
		default:
			return Policy{}, fmt.Errorf("unknown security flag %q", raw)
		}
	}
	return p, nil
}

// Enabled reports whether f is intercepted.
func (p Policy) Enabled(f Flag) bool {
	return p.flags[f]
}

// Flags returns the enabled flags.
func (p Policy) Flags() []string {
	var out []string
	for _, f := range []Flag{FlagContextMenu, FlagDevTools, FlagScreenshot, FlagDragSelect, FlagClipboard} {
		if p.flags[f] {
			out = append(out, string(f))
		}
	}
	return out
}

// InputEvent is a DOM-style input event reported by the UI.
type InputEvent struct {
	Type  string `json:"type"`
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

// Classify maps an event to the flag it falls under and a description.
// Each user action counts once: shortcuts on keydown and drags on dragstart.
// A blocked dragstart cancels the drag, so a drop only arrives for content
// dragged in from outside the page. PrintScreen is only delivered as keyup.
func Classify(ev InputEvent) (Flag, string, bool) {
	switch strings.ToLower(ev.Type) {
	case "contextmenu":
		return FlagContextMenu, "Right-click context menu", true
	case "dragstart", "drop":
		return FlagDragSelect, "Drag attempt", true
	case "selectstart":
		return FlagDragSelect, "Text selection attempt", true
	case "copy", "cut", "paste":
		return FlagClipboard, "Clipboard " + strings.ToLower(ev.Type) + " attempt", true
	case "keydown":
		if ev.Key == "PrintScreen" {
			return "", "", false
		}
		return classifyKey(ev)
	case "keyup":
		if ev.Key == "PrintScreen" {
			return classifyKey(ev)
		}
	}
	return "", "", false
}

func classifyKey(ev InputEvent) (Flag, string, bool) {
	key := ev.Key
	lower := strings.ToLower(key)

	switch {
	case key == "PrintScreen":
		return FlagScreenshot, "Screenshot attempt (PrintScreen)", true
	case key == "F12":
		return FlagDevTools, "Developer tools attempt (F12)", true
	case ev.Ctrl && ev.Shift && (lower == "i" || lower == "j" || lower == "c"):
		return FlagDevTools, "Developer tools attempt (Ctrl+Shift+" + strings.ToUpper(key) + ")", true
	case ev.Meta && ev.Alt && (lower == "i" || lower == "j" || lower == "c"):
		return FlagDevTools, "Developer tools attempt (Cmd+Option+" + strings.ToUpper(key) + ")", true
	case ev.Ctrl && !ev.Shift && lower == "u":
		return FlagDevTools, "View source attempt (Ctrl+U)", true
	case ev.Ctrl && !ev.Shift && lower == "s":
		return FlagScreenshot, "Save page attempt (Ctrl+S)", true
	case ev.Ctrl && !ev.Shift && lower == "p":
		return FlagScreenshot, "Print attempt (Ctrl+P)", true
	case ev.Meta && ev.Shift && (key == "3" || key == "4" || key == "5"):
		return FlagScreenshot, "Screenshot attempt (Cmd+Shift+" + key + ")", true
	case ev.Meta && ev.Shift && lower == "s":
		return FlagScreenshot, "Screenshot attempt (Win+Shift+S)", true
	}
	return "", "", false
}
