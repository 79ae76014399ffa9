package session

import (
	"context"
	"errors"
	"fmt"

	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/backend"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/logging"
	"ascend-interview-agent/internal/observability/metrics"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/speech"
)

// bootstrap checks auth and entitlement, loads or creates the interview and
// acquires media. Network work runs off the loop; the result is applied in
// one step so a failure never leaves partial state.
func (c *Controller) bootstrap(ctx context.Context) error {
	var gen uint64
	if err := c.do(ctx, func() error {
		if c.phase != PhaseIdle && c.phase != PhaseFailed {
			return ErrAlreadyStarted
		}
		c.bootGen++
		gen = c.bootGen
		c.setupErr = nil
		c.setPhase(PhaseBootstrapping, "")
		return nil
	}); err != nil {
		return err
	}

	s, err := c.load(c.ctx)
	return c.do(ctx, func() error { return c.applyBootstrap(gen, s, err) })
}

func (c *Controller) load(ctx context.Context) (*models.InterviewSession, error) {
	if c.deps.Tokens == nil {
		return nil, &redirect{route: RouteLogin, reason: "no_token", err: ErrUnauthenticated}
	}
	token, err := c.deps.Tokens.Token()
	if err != nil {
		return nil, &redirect{route: RouteLogin, reason: "no_token", err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)}
	}
	if _, err := auth.Inspect(token, c.clk.Now()); err != nil {
		return nil, &redirect{route: RouteLogin, reason: "token", err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)}
	}

	sub, err := c.deps.Backend.CurrentSubscription(ctx)
	if err != nil {
		return nil, c.setupFailure(err)
	}
	if !sub.Entitled() {
		return nil, &redirect{
			route:  RouteSubscription,
			reason: "subscription",
			err:    fmt.Errorf("%w: plan %q status %q", ErrNotEntitled, sub.Plan, sub.Status),
		}
	}

	if c.deps.Recognizer == nil {
		return nil, &SetupError{
			Kind:    KindSpeech,
			Message: "Speech recognition is not supported in this environment.",
			Actions: []string{ActionBack},
		}
	}

	var s *models.InterviewSession
	if id := c.cfg.InterviewID; id != "" {
		s, err = c.deps.Backend.GetInterview(ctx, id)
	} else {
		s, err = c.deps.Backend.StartInterview(ctx, models.StartRequest{
			Type:          c.cfg.Type,
			Difficulty:    c.cfg.Difficulty,
			QuestionCount: c.cfg.QuestionCount,
		})
	}
	if err != nil {
		return nil, c.setupFailure(err)
	}
	if s == nil {
		return nil, &SetupError{Kind: KindBackend, Message: "The interview could not be loaded.", Actions: []string{ActionRetry, ActionBack}}
	}
	if err := s.Validate(); err != nil {
		return nil, &SetupError{
			Kind:    KindBackend,
			Message: invalidSessionMessage(err),
			Actions: []string{ActionRetry, ActionBack},
			Err:     err,
		}
	}

	if err := c.pipeline.Acquire(ctx); err != nil {
		return nil, &SetupError{
			Kind:    KindCamera,
			Message: "Camera access is required for the interview.",
			Actions: []string{ActionRetry, ActionBack},
			Err:     err,
		}
	}
	return s, nil
}

func invalidSessionMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrNoQuestions):
		return "The interview has no questions to ask."
	case errors.Is(err, models.ErrQuestionIndexInvalid):
		return "This interview has already been completed or cannot be resumed."
	case errors.Is(err, models.ErrEmptyQuestion):
		return "The interview contains a question without text."
	case errors.Is(err, models.ErrMissingInterviewID):
		return "The interview service returned an interview without an id."
	default:
		return "The interview could not be loaded."
	}
}

// setupFailure classifies a backend error from bootstrap.
func (c *Controller) setupFailure(err error) error {
	if backend.IsUnauthorized(err) {
		return &redirect{route: RouteLogin, reason: "unauthorized", err: fmt.Errorf("%w: %v", ErrUnauthenticated, err)}
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return &SetupError{Kind: KindBackend, Message: backend.UserMessage(err), Actions: []string{ActionRetry, ActionBack}, Err: err}
	}
	return &SetupError{
		Kind:    KindNetwork,
		Message: "Could not reach the interview service.",
		Actions: []string{ActionRetry, ActionBack},
		Err:     err,
	}
}

func (c *Controller) applyBootstrap(gen uint64, s *models.InterviewSession, err error) error {
	if gen != c.bootGen || c.phase != PhaseBootstrapping {
		return ErrClosed
	}

	var rd *redirect
	if errors.As(err, &rd) {
		metrics.DefaultMetrics.RecordSetupFailure(rd.reason)
		c.log.Warn().Err(rd.err).Str("route", rd.route).Msg("bootstrap redirect")
		c.setPhase(PhaseRedirected, rd.reason)
		c.navigate(rd.route)
		c.finish()
		return rd.err
	}

	var setup *SetupError
	if errors.As(err, &setup) {
		metrics.DefaultMetrics.RecordSetupFailure(setup.Kind)
		c.log.Error().Err(err).Str("kind", setup.Kind).Msg("bootstrap failed")
		c.setupErr = setup
		c.setPhase(PhaseFailed, setup.Kind)
		c.emitError("setup_"+setup.Kind, setup.Message, false, setup.Actions...)
		return setup
	}
	if err != nil {
		return err
	}

	c.session = s
	c.idVal.Store(s.InterviewID)
	c.log = logging.WithSession(s.InterviewID)
	c.questionIndex = s.CurrentQuestionIndex
	c.followUp = FollowUpState{}

	c.capture = speech.NewCapture(speech.Config{
		InterviewID:   s.InterviewID,
		Provider:      c.cfg.STTProvider,
		ChunkSize:     c.cfg.AudioChunkSize,
		ChunkInterval: c.cfg.AudioChunkInterval,
	}, c.deps.Devices, c.deps.Recognizer, captureListener{c})

	c.monitor = media.NewFrameMonitor(c.clk, c.cfg.MonitorInterval,
		c.pipeline.CaptureFrame,
		func(ctx context.Context, frame []byte) (*models.SecurityStatus, error) {
			return c.deps.Backend.Monitor(ctx, s.InterviewID, frame)
		},
		func(st *models.SecurityStatus) {
			c.post(func() { c.applySecurityStatus(st) })
		},
	)

	metrics.DefaultMetrics.RecordSessionStarted()
	c.log.Info().
		Int("questions", len(s.Questions)).
		Int("questionIndex", s.CurrentQuestionIndex).
		Bool("mediaDegraded", c.pipeline.Degraded()).
		Msg("interview session started")

	c.setPhase(PhaseActive, "bootstrapped")
	c.monitor.Start(c.ctx)
	c.presentPrompt()
	return nil
}

func (c *Controller) applySecurityStatus(st *models.SecurityStatus) {
	if st == nil || c.phase == PhaseClosed {
		return
	}
	c.securityStatus = st
	c.emit(models.EventSecurityStatus, st)
}
