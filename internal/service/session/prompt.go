package session

import (
	"errors"

	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/narration"
	"ascend-interview-agent/internal/service/speech"
)

// presentPrompt shows the current prompt and requests its narration.
func (c *Controller) presentPrompt() {
	key := c.promptKey()
	c.emit(models.EventPrompt, models.Prompt{
		QuestionIndex: key.Question,
		FollowUpIndex: key.FollowUp,
		FollowUp:      key.IsFollowUp(),
		Text:          c.promptText(),
	})
	c.maybeNarrate()
}

// maybeNarrate reads the current prompt unless it was read already or
// another narration is running.
func (c *Controller) maybeNarrate() {
	if c.phase != PhaseActive {
		return
	}
	key := c.promptKey()
	started := c.narrator.Present(c.ctx, key, c.promptText(), func(k narration.PromptKey, o narration.Outcome) {
		c.post(func() { c.onNarrationDone(k, o) })
	})
	if started {
		c.emit(models.EventNarration, models.Narration{
			QuestionIndex: key.Question,
			FollowUpIndex: key.FollowUp,
			State:         "started",
		})
	}
}

// onNarrationDone treats every outcome as finished: the prompt counts as read
// and speech capture starts.
func (c *Controller) onNarrationDone(key narration.PromptKey, outcome narration.Outcome) {
	c.narrator.Finish(key)
	if outcome == narration.OutcomeCancelled {
		return
	}

	c.emit(models.EventNarration, models.Narration{
		QuestionIndex: key.Question,
		FollowUpIndex: key.FollowUp,
		State:         "finished",
		Outcome:       outcome.String(),
	})
	if outcome != narration.OutcomePlayed {
		c.emitError("narration_"+outcome.String(), "The question could not be read aloud.", true)
	}

	if c.phase != PhaseActive || key != c.promptKey() {
		c.maybeNarrate()
		return
	}
	c.hasTtsFinished = true
	if err := c.startRecording(); err != nil {
		c.log.Warn().Err(err).Msg("auto-start recording failed")
	}
}

// startRecording turns on speech capture. Errors are reported as transient.
func (c *Controller) startRecording() error {
	if c.capture == nil {
		return ErrNotActive
	}
	if c.capture.Active() {
		return nil
	}
	if err := c.capture.Start(c.ctx); err != nil {
		code := "recognizer"
		msg := "Speech recognition could not start."
		if errors.Is(err, speech.ErrMicrophoneUnavailable) {
			code = "microphone"
			msg = "Microphone is unavailable. You can type your answer instead."
		}
		c.emitError(code, msg, true)
		return err
	}
	c.emit(models.EventRecording, models.Recording{Active: true})
	return nil
}

func (c *Controller) stopRecording() {
	if c.capture == nil || !c.capture.Active() {
		return
	}
	c.capture.Stop()
	c.emit(models.EventRecording, models.Recording{Active: false})
}

// onVoice arms the countdown on the first non-empty speech after narration.
func (c *Controller) onVoice(text string) {
	if c.phase != PhaseActive || !c.hasTtsFinished || c.voiceDetected || blank(text) {
		return
	}
	c.voiceDetected = true
	if err := c.timer.Arm(); err != nil {
		c.log.Debug().Err(err).Msg("countdown not armed")
		return
	}
	if err := c.timer.Start(); err != nil {
		c.log.Debug().Err(err).Msg("countdown not started")
	}
}

// onCountdownTick runs on the clock goroutine and only emits.
func (c *Controller) onCountdownTick(gen uint64, remaining int) {
	if !c.timer.IsCurrent(gen) {
		return
	}
	c.emit(models.EventCountdown, models.Countdown{State: c.timer.State().String(), Remaining: remaining})
}

func (c *Controller) onCountdownFire(gen uint64) {
	c.post(func() {
		if !c.timer.IsCurrent(gen) || c.phase != PhaseActive {
			return
		}
		metrics.DefaultMetrics.RecordCountdownFired()
		if err := c.beginSubmit(TriggerAuto); err != nil {
			c.log.Warn().Err(err).Msg("auto-submit rejected")
		}
	})
}

// captureListener forwards recognizer output to the loop.
type captureListener struct {
	c *Controller
}

// OnSpeechStart only reports activity. It does not arm the countdown.
func (l captureListener) OnSpeechStart() {
	l.c.post(func() {
		c := l.c
		if c.phase != PhaseActive {
			return
		}
		c.emit(models.EventSpeechStart, models.SpeechStart{
			QuestionIndex: c.questionIndex,
			FollowUpIndex: c.followUpIndex(),
		})
	})
}

func (l captureListener) OnPartial(windowID, text string, buf speech.Buffer) {
	l.c.post(func() {
		c := l.c
		if c.phase != PhaseActive {
			return
		}
		c.emit(models.EventTranscriptPartial, models.TranscriptPartial{
			QuestionIndex: c.questionIndex,
			FollowUpIndex: c.followUpIndex(),
			WindowID:      windowID,
			Text:          text,
			Live:          buf.Live,
		})
		c.onVoice(text)
	})
}

func (l captureListener) OnFinal(windowID, text string, confidence float64, buf speech.Buffer) {
	l.c.post(func() {
		c := l.c
		if c.phase != PhaseActive {
			return
		}
		c.emit(models.EventTranscriptFinal, models.TranscriptFinal{
			QuestionIndex: c.questionIndex,
			FollowUpIndex: c.followUpIndex(),
			WindowID:      windowID,
			Text:          text,
			Finalized:     buf.Finalized,
			Confidence:    confidence,
		})
		c.onVoice(text)
	})
}

func (l captureListener) OnRecognizerError(err error) {
	l.c.post(func() {
		c := l.c
		c.emit(models.EventRecording, models.Recording{Active: false})
		c.emitError("recognizer", "Speech recognition stopped: "+err.Error(), true)
	})
}
