// Package mock provides a scripted STT adapter for running without cloud credentials.
// Each audio chunk advances the script: speech start, progressive partials, then
// exactly one final per utterance.
package mock

import (
	"context"
	"sync"

	"ascend-interview-agent/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample interview answers.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"In my last", "In my last role I", "In my last role I led"},
		Final:      "In my last role I led the migration to a service architecture",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"The main", "The main challenge was"},
		Final:      "The main challenge was keeping the old system running during the cutover",
		Confidence: 0.9,
	},
	{
		Partials:   []string{"I would", "I would start by", "I would start by measuring"},
		Final:      "I would start by measuring where the time is actually spent",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"Yes"},
		Final:      "Yes I have worked with that before",
		Confidence: 0.97,
	},
}

// Adapter implements stt.Adapter with scripted responses.
// Callbacks run synchronously on the SendAudio caller's goroutine.
type Adapter struct {
	mu           sync.Mutex
	cb           stt.Callback
	script       []SimulatedUtterance
	utterance    int  // Index into script
	partialIndex int  // Next partial to send
	speaking     bool // Speech start sent for current utterance
	started      bool
	audioFrames  int
}

// utteranceCounter picks the starting utterance for New (cycles through defaults).
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a mock adapter that speaks one default utterance per session.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return NewScripted([]SimulatedUtterance{DefaultUtterances[idx]})
}

// NewScripted creates a mock adapter that plays the given utterances in order
// and then stays silent.
func NewScripted(script []SimulatedUtterance) *Adapter {
	return &Adapter{script: script}
}

// Start begins a mock session. The script restarts from the beginning.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	a.started = true
	a.utterance = 0
	a.partialIndex = 0
	a.speaking = false
	return nil
}

// SendAudio advances the script by one step per chunk.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	if !a.started || a.cb == nil || a.utterance >= len(a.script) {
		a.mu.Unlock()
		return nil
	}
	a.audioFrames++
	cb := a.cb
	utt := a.script[a.utterance]

	var emit func()
	switch {
	case !a.speaking:
		a.speaking = true
		emit = cb.OnSpeechStart
	case a.partialIndex < len(utt.Partials):
		text := utt.Partials[a.partialIndex]
		a.partialIndex++
		emit = func() { cb.OnPartial(text) }
	default:
		a.utterance++
		a.partialIndex = 0
		a.speaking = false
		emit = func() { cb.OnFinal(utt.Final, utt.Confidence) }
	}
	a.mu.Unlock()

	emit()
	return nil
}

// Close ends the mock session. Results not yet sent are discarded.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	a.cb = nil
	return nil
}

// AudioFrames returns the number of chunks received while started.
func (a *Adapter) AudioFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audioFrames
}
