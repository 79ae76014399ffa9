package security

import (
	"time"

	"ascend-interview-agent/internal/models"
)

// DefaultThreshold is the violation count that ends a session.
const DefaultThreshold = 3

// State is the accumulated security state of a session.
type State struct {
	Violations []models.Violation `json:"violations"`
	Secure     bool               `json:"isSecure"`
	Count      int                `json:"count"`
}

// Verdict is the result of handling one input event.
type Verdict struct {
	// Blocked tells the UI to prevent the default action.
	Blocked   bool              `json:"blocked"`
	Violation *models.Violation `json:"violation,omitempty"`
	// ThresholdReached is true only for the event that crossed the threshold.
	ThresholdReached bool `json:"thresholdReached"`
}

// Monitor accumulates violations for one session. Violations never decrease.
// Not safe for concurrent use; the session controller owns it.
type Monitor struct {
	policy     Policy
	threshold  int
	violations []models.Violation
	tripped    bool
	now        func() time.Time
}

// NewMonitor creates a monitor for policy.
func NewMonitor(policy Policy, threshold int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Monitor{policy: policy, threshold: threshold, now: time.Now}
}

// Handle classifies ev and records a violation when the policy intercepts it.
func (m *Monitor) Handle(ev InputEvent) Verdict {
	flag, desc, ok := Classify(ev)
	if !ok || !m.policy.Enabled(flag) {
		return Verdict{}
	}

	v := models.Violation{
		Kind:        string(flag),
		Description: desc,
		Count:       len(m.violations) + 1,
		At:          m.now().UnixMilli(),
	}
	m.violations = append(m.violations, v)

	verdict := Verdict{Blocked: true, Violation: &v}
	if !m.tripped && len(m.violations) >= m.threshold {
		m.tripped = true
		verdict.ThresholdReached = true
	}
	return verdict
}

// Tripped reports whether the threshold has been reached.
func (m *Monitor) Tripped() bool {
	return m.tripped
}

// State returns a copy of the accumulated state.
func (m *Monitor) State() State {
	return State{
		Violations: append([]models.Violation(nil), m.violations...),
		Secure:     len(m.violations) == 0,
		Count:      len(m.violations),
	}
}

// Policy returns the policy in force.
func (m *Monitor) Policy() Policy {
	return m.policy
}
