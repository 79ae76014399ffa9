// Package speech turns recognizer output into the editable answer transcript.
package speech

import (
	"errors"
	"strings"
)

// ErrTranscriptLocked is returned when the transcript is edited while recording.
var ErrTranscriptLocked = errors.New("transcript cannot be edited while recording")

// Buffer is the answer transcript for the current prompt.
//
// Finalized accumulates final phrases, Interim holds the latest partial, and
// Live is what the user sees: Finalized followed by Interim.
type Buffer struct {
	Live      string `json:"live"`
	Finalized string `json:"finalized"`
	Interim   string `json:"interim"`
}

// ApplyPartial replaces the interim text.
func (b *Buffer) ApplyPartial(text string) {
	b.Interim = strings.TrimSpace(text)
	b.refresh()
}

// ApplyFinal appends a final phrase and clears the interim text.
func (b *Buffer) ApplyFinal(text string) {
	b.Finalized = join(b.Finalized, strings.TrimSpace(text))
	b.Interim = ""
	b.refresh()
}

// Edit replaces the transcript with user-typed text. Recognition resumes
// from the edited text.
func (b *Buffer) Edit(text string) {
	b.Finalized = text
	b.Interim = ""
	b.Live = text
}

// BeginWindow keeps interim text left by the previous recording as finalized
// text, so nothing the user saw is lost when recognition restarts.
func (b *Buffer) BeginWindow() {
	if b.Interim != "" {
		b.Finalized = join(b.Finalized, b.Interim)
		b.Interim = ""
	}
	b.refresh()
}

// Reset clears the buffer.
func (b *Buffer) Reset() {
	*b = Buffer{}
}

// Text returns the answer to submit: the live transcript, or the finalized
// text when the live transcript is blank. Empty means there is nothing to submit.
func (b Buffer) Text() string {
	if live := strings.TrimSpace(b.Live); live != "" {
		return live
	}
	return strings.TrimSpace(b.Finalized)
}

func (b *Buffer) refresh() {
	b.Live = join(b.Finalized, b.Interim)
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
