package session

import (
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/security"
)

// handleInput counts violations only while the interview is running.
func (c *Controller) handleInput(ev security.InputEvent) security.Verdict {
	if !c.phase.InProgress() {
		return security.Verdict{}
	}
	v := c.guard.Handle(ev)
	if v.Violation == nil {
		return v
	}

	metrics.DefaultMetrics.RecordSecurityViolation(v.Violation.Kind)
	c.log.Warn().
		Str("kind", v.Violation.Kind).
		Str("description", v.Violation.Description).
		Int("count", v.Violation.Count).
		Msg("security violation")
	c.emit(models.EventViolation, *v.Violation)

	if v.ThresholdReached {
		c.terminate()
	}
	return v
}

// terminate shows the warning overlay, stops the interview and leaves for
// the home page after the exit delay.
func (c *Controller) terminate() {
	if c.phase == PhaseTerminating || c.phase == PhaseClosed {
		return
	}
	metrics.DefaultMetrics.RecordSessionTerminated("security")
	c.emit(models.EventWarningOverlay, c.guard.State())
	c.setPhase(PhaseTerminating, "security")
	c.stopActivity()

	exit := func() {
		if c.phase != PhaseTerminating {
			return
		}
		c.exitTimer = nil
		c.shutdown()
		c.navigate(RouteHome)
		c.setPhase(PhaseClosed, "security")
		c.finish()
	}
	if c.cfg.ExitDelay <= 0 {
		exit()
		return
	}
	c.exitTimer = c.clk.AfterFunc(c.cfg.ExitDelay, func() { c.post(exit) })
}
