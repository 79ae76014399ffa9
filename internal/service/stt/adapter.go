// Package stt defines the interface for Speech-to-Text adapters.
package stt

import "context"

// Callback receives recognition results from the STT provider.
// Implementations must tolerate calls from provider goroutines.
type Callback interface {
	// OnSpeechStart is called when the provider detects the start of speech.
	OnSpeechStart()

	// OnPartial is called when an interim transcript is received.
	OnPartial(text string)

	// OnFinal is called when a phrase is finalized.
	OnFinal(text string, confidence float64)

	// OnError is called when recognition fails. No further results follow.
	OnError(err error)
}

// Adapter defines the interface for STT providers (Google, mock, etc.).
// An adapter may be started again after Close.
type Adapter interface {
	// Start begins a streaming recognition session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session.
	Close() error
}
