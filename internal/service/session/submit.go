package session

import (
	"context"
	"errors"
	"time"

	"ascend-interview-agent/internal/backend"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/flow"
)

const frameTimeout = 2 * time.Second

var errAnalysisUnavailable = errors.New("analysis unavailable")

// submission is one answer in flight.
type submission struct {
	gen           uint64
	trigger       Trigger
	followUp      bool
	questionIndex int
	followUpIndex int
	question      models.Question
	promptText    string
	answer        string
	started       time.Time
}

func (s submission) mode() string {
	if s.followUp {
		return "followup"
	}
	return "main"
}

type submitResult struct {
	sub         submission
	reply       *models.SubmitReply
	analysis    models.AnalysisResult
	analysisErr error
	err         error
}

// beginSubmit is the single submit path for both triggers.
func (c *Controller) beginSubmit(trigger Trigger) error {
	switch c.phase {
	case PhaseSubmitting, PhaseTransitioning:
		if trigger == TriggerAuto {
			return nil
		}
		metrics.DefaultMetrics.RecordSubmitRejected("in_progress")
		return ErrSubmitInProgress
	case PhaseActive:
	default:
		metrics.DefaultMetrics.RecordSubmitRejected("not_active")
		return ErrNotActive
	}

	answer := c.capture.Buffer().Text()
	if answer == "" {
		metrics.DefaultMetrics.RecordSubmitRejected("empty")
		c.emitError("empty_transcript", ErrEmptyTranscript.Error(), false)
		return ErrEmptyTranscript
	}

	c.stopRecording()
	c.timer.Reset()
	c.emit(models.EventCountdown, models.Countdown{State: c.timer.State().String(), Remaining: c.timer.Remaining()})

	sub := submission{
		trigger:       trigger,
		questionIndex: c.questionIndex,
		question:      c.currentQuestion(),
		promptText:    c.promptText(),
		answer:        answer,
		started:       c.clk.Now(),
	}
	if c.followUp.Active {
		if c.followUp.Valid() {
			sub.followUp = true
			sub.followUpIndex = c.followUp.Index
		} else {
			metrics.DefaultMetrics.RecordFollowUpFallback()
			c.log.Warn().
				Int("followUpIndex", c.followUp.Index).
				Int("followUps", len(c.followUp.Questions)).
				Msg("follow-up index out of range, submitting as main answer")
		}
	}

	c.submitGen++
	sub.gen = c.submitGen
	c.setPhase(PhaseSubmitting, string(trigger))

	go c.runSubmit(c.ctx, sub)
	return nil
}

// runSubmit performs the network side of a submission off the loop.
func (c *Controller) runSubmit(ctx context.Context, sub submission) {
	res := submitResult{sub: sub}

	id := c.InterviewID()
	frame := c.captureFrame(ctx)
	if sub.followUp {
		res.reply, res.err = c.deps.Backend.SubmitFollowUp(ctx, id, sub.questionIndex, sub.followUpIndex, sub.answer, frame)
	} else {
		res.reply, res.err = c.deps.Backend.Submit(ctx, id, sub.questionIndex, sub.answer, frame)
	}

	if res.err == nil {
		if res.reply == nil {
			res.reply = &models.SubmitReply{}
		}
		if err := res.reply.Validate(); err != nil {
			c.log.Warn().Err(err).Msg("submit reply contained blank follow-ups")
		}
		res.analysis = res.reply.Analysis()
		if res.analysis.Kind == models.AnalysisDeferred {
			res.analysis, res.analysisErr = c.analyze(ctx, sub)
		}
	}

	c.post(func() { c.finishSubmit(res) })
}

func (c *Controller) analyze(ctx context.Context, sub submission) (models.AnalysisResult, error) {
	a, err := c.deps.Backend.AnalyzeResponse(ctx, models.AnalyzeRequest{
		Transcription: sub.answer,
		Question:      sub.promptText,
		QuestionType:  sub.question.Type,
	})
	if err != nil {
		return models.Deferred(), err
	}
	if a == nil || a.Scores == nil {
		return models.Deferred(), errAnalysisUnavailable
	}
	return models.Inline(*a), nil
}

// captureFrame grabs a frame for the submission. Failure sends no image.
func (c *Controller) captureFrame(ctx context.Context) []byte {
	fctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()
	frame, err := c.pipeline.CaptureFrame(fctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("no frame for submission")
		return nil
	}
	return frame
}

func (c *Controller) finishSubmit(res submitResult) {
	if res.sub.gen != c.submitGen || c.phase != PhaseSubmitting {
		return
	}
	sub := res.sub
	logger := c.log.With().Int("questionIndex", sub.questionIndex).Str("trigger", string(sub.trigger)).Logger()

	if res.err != nil {
		logger.Error().Err(res.err).Msg("submission failed")
		c.setPhase(PhaseActive, "submit_failed")
		if backend.IsUnauthorized(res.err) {
			c.emitError("submit_unauthorized", "Your session has expired. Please log in again.", false, ActionLogin)
			return
		}
		c.emitError("submit_failed", backend.UserMessage(res.err), false, ActionRetry)
		return
	}

	latency := c.clk.Now().Sub(sub.started).Seconds()
	metrics.DefaultMetrics.RecordSubmission(string(sub.trigger), sub.mode(), latency)

	if res.analysisErr != nil {
		logger.Warn().Err(res.analysisErr).Msg("answer analysis unavailable")
		c.emitError("analysis_unavailable", "Analysis is unavailable for this answer.", true)
	} else {
		scores := res.analysis.Scores
		c.scores = &scores
		c.emit(models.EventScores, scores)
	}
	if res.reply.SecurityStatus != nil {
		c.applySecurityStatus(res.reply.SecurityStatus)
	}

	t := flow.Decide(c.flowInput(res.reply))
	metrics.DefaultMetrics.RecordTransition(t.Action.String())
	logger.Info().Str("action", t.Action.String()).Int("nextQuestion", t.QuestionIndex).Int("nextFollowUp", t.FollowUpIndex).Msg("answer submitted")

	fi := -1
	if sub.followUp {
		fi = sub.followUpIndex
	}
	c.emit(models.EventSubmitted, models.Submitted{
		QuestionIndex: sub.questionIndex,
		FollowUpIndex: fi,
		FollowUp:      sub.followUp,
		Trigger:       string(sub.trigger),
		Action:        t.Action.String(),
	})

	c.setPhase(PhaseTransitioning, t.Action.String())
	c.scheduleTransition(t, res.reply.FollowUpQuestions)
}

func (c *Controller) scheduleTransition(t flow.Transition, followUps []string) {
	c.transGen++
	gen := c.transGen
	if c.cfg.TransitionDelay <= 0 {
		c.applyTransition(gen, t, followUps)
		return
	}
	c.transTimer = c.clk.AfterFunc(c.cfg.TransitionDelay, func() {
		c.post(func() { c.applyTransition(gen, t, followUps) })
	})
}

// applyTransition resets per-prompt state and moves to the decided prompt.
func (c *Controller) applyTransition(gen uint64, t flow.Transition, followUps []string) {
	if gen != c.transGen || c.phase != PhaseTransitioning {
		return
	}
	c.transTimer = nil

	c.capture.Reset()
	c.hasTtsFinished = false
	c.voiceDetected = false
	c.timer.Reset()
	c.narrator.Cancel()

	switch t.Action {
	case flow.ActionAdvanceFollowUp:
		c.followUp.Index = t.FollowUpIndex
	case flow.ActionEnterFollowUp:
		c.followUp = FollowUpState{Active: true, Questions: followUps, Index: t.FollowUpIndex}
	case flow.ActionAdvanceQuestion:
		c.questionIndex = t.QuestionIndex
		c.followUp = FollowUpState{}
	case flow.ActionFinalize:
		c.followUp = FollowUpState{}
		c.setPhase(PhaseFinalizing, "last_question")
		c.fetchAssessment()
		return
	}

	c.setPhase(PhaseActive, t.Action.String())
	c.presentPrompt()
}

func (c *Controller) fetchAssessment() {
	c.assessGen++
	gen := c.assessGen
	ctx := c.ctx
	id := c.InterviewID()
	go func() {
		a, err := c.deps.Backend.Assessment(ctx, id)
		c.post(func() { c.finishAssessment(gen, a, err) })
	}()
}

func (c *Controller) finishAssessment(gen uint64, a *models.Assessment, err error) {
	if gen != c.assessGen || c.phase != PhaseFinalizing {
		return
	}
	if err != nil {
		c.assessmentErr = err
		c.log.Error().Err(err).Msg("assessment failed")
		c.emitError("assessment_failed", backend.UserMessage(err), false, ActionRetry)
		return
	}
	if a == nil {
		a = &models.Assessment{}
	}
	if a.InterviewID == "" {
		a.InterviewID = c.InterviewID()
	}
	c.report = a
	metrics.DefaultMetrics.RecordSessionCompleted()
	c.log.Info().Float64("overallScore", a.OverallScore).Msg("interview completed")

	c.emit(models.EventReport, a)
	c.setPhase(PhaseCompleted, "assessment")
	c.stopActivity()
	if err := c.pipeline.Close(); err != nil {
		c.log.Debug().Err(err).Msg("media close")
	}
	c.navigate(ReportRoute(c.InterviewID()))
	c.finish()
}
