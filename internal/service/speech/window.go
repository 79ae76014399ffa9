package speech

import (
	"fmt"
	"sync/atomic"
)

// WindowGenerator issues ids for recognition windows. A window starts at
// recording start or after an edit.
type WindowGenerator struct {
	counter uint64
}

// NewWindowGenerator creates a generator starting at 1.
func NewWindowGenerator() *WindowGenerator {
	return &WindowGenerator{}
}

// Next returns the next window id for an interview.
func (g *WindowGenerator) Next(interviewID string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-win-%d", interviewID, n)
}
