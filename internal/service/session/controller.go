package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/clock"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/observability/logging"
	"ascend-interview-agent/internal/service/autoflow"
	"ascend-interview-agent/internal/service/flow"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/narration"
	"ascend-interview-agent/internal/service/security"
	"ascend-interview-agent/internal/service/speech"
)

const mailboxSize = 256

// Controller owns all state of one interview session.
//
// A single goroutine runs every state change. Public methods, timer
// callbacks and network results post closures into the mailbox; network
// calls run on their own goroutines bound to the session context. Results
// carry the generation they were started under and are dropped if stale.
type Controller struct {
	cfg  Config
	deps Deps
	clk  clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once
	finished  chan struct{}

	phaseVal atomic.Int32
	idVal    atomic.Value

	// Loop-owned state below.
	log           zerolog.Logger
	phase         Phase
	session       *models.InterviewSession
	questionIndex int
	followUp      FollowUpState

	pipeline *media.Pipeline
	monitor  *media.FrameMonitor
	capture  *speech.Capture
	narrator *narration.Presenter
	timer    *autoflow.Timer
	guard    *security.Monitor

	hasTtsFinished bool
	voiceDetected  bool

	scores         *models.ScoreSnapshot
	securityStatus *models.SecurityStatus
	setupErr       *SetupError
	report         *models.Assessment
	assessmentErr  error

	bootGen       uint64
	submitGen     uint64
	transGen      uint64
	assessGen     uint64
	transTimer    clock.Timer
	exitTimer     clock.Timer
	finishedFired bool
}

// New creates a controller and starts its loop. Call Start to bootstrap.
func New(cfg Config, deps Deps) *Controller {
	def := DefaultConfig()
	if cfg.Type == "" {
		cfg.Type = def.Type
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = def.Difficulty
	}
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = def.QuestionCount
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.TransitionDelay < 0 {
		cfg.TransitionDelay = 0
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Navigator == nil {
		deps.Navigator = NavigatorFunc(func(route string) {
			log.Info().Str("route", route).Msg("navigate")
		})
	}
	if deps.Sink == nil {
		deps.Sink = discardSink{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		clk:      deps.Clock,
		ctx:      ctx,
		cancel:   cancel,
		mailbox:  make(chan func(), mailboxSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		log:      logging.WithComponent("session"),
		pipeline: media.NewPipeline(deps.Devices),
		narrator: narration.NewPresenter(deps.Backend, deps.Player, deps.Cache, cfg.NarrationTTL),
		guard:    security.NewMonitor(deps.Policy, cfg.SecurityThreshold),
	}
	c.idVal.Store(cfg.InterviewID)
	c.timer = autoflow.New(c.clk, cfg.AutoSubmitSeconds, c.onCountdownTick, c.onCountdownFire)

	go c.run()
	return c
}

func (c *Controller) run() {
	for {
		select {
		case fn := <-c.mailbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// post queues fn on the loop. It must not be called from the loop itself.
func (c *Controller) post(fn func()) bool {
	select {
	case c.mailbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.mailbox <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start bootstraps the session and presents the first prompt.
func (c *Controller) Start(ctx context.Context) error {
	return c.bootstrap(ctx)
}

// Phase returns the current phase. Safe from any goroutine.
func (c *Controller) Phase() Phase {
	return Phase(c.phaseVal.Load())
}

// InterviewID returns the interview id once known.
func (c *Controller) InterviewID() string {
	id, _ := c.idVal.Load().(string)
	return id
}

// Finished is closed when the session leaves the interview page: report
// shown, redirected, terminated or closed.
func (c *Controller) Finished() <-chan struct{} {
	return c.finished
}

// Submit submits the current answer manually.
func (c *Controller) Submit(ctx context.Context) error {
	return c.do(ctx, func() error { return c.beginSubmit(TriggerManual) })
}

// EditTranscript replaces the answer with typed text. Rejected while recording.
func (c *Controller) EditTranscript(ctx context.Context, text string) error {
	return c.do(ctx, func() error {
		if c.phase != PhaseActive || c.capture == nil {
			return ErrNotActive
		}
		buf, err := c.capture.Edit(text)
		if err != nil {
			return err
		}
		f := c.followUpIndex()
		c.emit(models.EventTranscriptFinal, models.TranscriptFinal{
			QuestionIndex: c.questionIndex,
			FollowUpIndex: f,
			WindowID:      c.capture.Window(),
			Text:          text,
			Finalized:     buf.Finalized,
			Confidence:    1,
		})
		return nil
	})
}

// SetRecording turns speech capture on or off.
func (c *Controller) SetRecording(ctx context.Context, on bool) error {
	return c.do(ctx, func() error {
		if !on {
			c.stopRecording()
			return nil
		}
		if c.phase != PhaseActive || c.capture == nil {
			return ErrNotActive
		}
		return c.startRecording()
	})
}

// HandleInput applies the security policy to a UI input event.
func (c *Controller) HandleInput(ctx context.Context, ev security.InputEvent) (security.Verdict, error) {
	var v security.Verdict
	err := c.do(ctx, func() error {
		if c.phase == PhaseClosed {
			return ErrClosed
		}
		v = c.handleInput(ev)
		return nil
	})
	return v, err
}

// Retry re-runs a failed bootstrap or a failed assessment fetch.
func (c *Controller) Retry(ctx context.Context) error {
	rebootstrap := false
	err := c.do(ctx, func() error {
		switch {
		case c.phase == PhaseFailed:
			rebootstrap = true
			return nil
		case c.phase == PhaseFinalizing && c.assessmentErr != nil:
			c.assessmentErr = nil
			c.fetchAssessment()
			return nil
		default:
			return ErrNothingToRetry
		}
	})
	if err != nil || !rebootstrap {
		return err
	}
	return c.bootstrap(ctx)
}

// Snapshot returns the observable state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.do(ctx, func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Close tears the session down: in-flight requests are cancelled and media,
// recognizer, narration and timers are stopped.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		_ = c.do(context.Background(), func() error {
			c.shutdown()
			c.setPhase(PhaseClosed, "closed")
			c.finish()
			return nil
		})
		close(c.done)
	})
	return nil
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Phase:          c.phase.String(),
		InterviewID:    c.InterviewID(),
		QuestionIndex:  c.questionIndex,
		FollowUp:       c.followUp,
		TTSFinished:    c.hasTtsFinished,
		VoiceDetected:  c.voiceDetected,
		Narrating:      c.narrator.InProgress(),
		Countdown:      c.timer.Snapshot(),
		Scores:         c.scores,
		Security:       c.guard.State(),
		SecurityStatus: c.securityStatus,
		MediaDegraded:  c.pipeline.Degraded(),
		Setup:          c.setupErr,
		Report:         c.report,
	}
	if c.session != nil {
		s.QuestionCount = len(c.session.Questions)
		s.Prompt = c.promptText()
	}
	if c.capture != nil {
		s.Transcript = c.capture.Buffer()
		s.Recording = c.capture.Active()
	}
	return s
}

func (c *Controller) setPhase(p Phase, reason string) {
	if c.phase == p {
		return
	}
	c.log.Info().Str("from", c.phase.String()).Str("to", p.String()).Str("reason", reason).Msg("phase change")
	c.phase = p
	c.phaseVal.Store(int32(p))
	c.emit(models.EventPhase, models.PhaseChange{Phase: p.String(), Reason: reason})
}

func (c *Controller) emit(eventType string, data any) {
	c.deps.Sink.Emit(models.NewEvent(eventType, c.InterviewID(), data))
}

func (c *Controller) emitError(code, message string, transient bool, actions ...string) {
	c.emit(models.EventError, models.ErrorInfo{
		Code:      code,
		Message:   message,
		Transient: transient,
		Actions:   actions,
	})
}

func (c *Controller) navigate(route string) {
	c.emit(models.EventNavigate, models.Navigate{Route: route})
	c.deps.Navigator.Navigate(route)
}

func (c *Controller) finish() {
	if c.finishedFired {
		return
	}
	c.finishedFired = true
	close(c.finished)
}

// stopActivity halts everything that could still change the prompt state.
func (c *Controller) stopActivity() {
	c.submitGen++
	c.transGen++
	c.assessGen++
	if c.transTimer != nil {
		c.transTimer.Stop()
		c.transTimer = nil
	}
	c.timer.Reset()
	c.narrator.Cancel()
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.capture != nil {
		c.capture.Stop()
	}
}

// shutdown releases every resource. Loop only.
func (c *Controller) shutdown() {
	c.stopActivity()
	if c.exitTimer != nil {
		c.exitTimer.Stop()
		c.exitTimer = nil
	}
	if c.capture != nil {
		if err := c.capture.Close(); err != nil {
			c.log.Debug().Err(err).Msg("recognizer shutdown")
		}
	}
	if err := c.pipeline.Close(); err != nil {
		c.log.Debug().Err(err).Msg("media close")
	}
	c.cancel()
}

// promptKey returns the key of the prompt on screen.
func (c *Controller) promptKey() narration.PromptKey {
	if c.followUp.Valid() {
		return narration.PromptKey{Question: c.questionIndex, FollowUp: c.followUp.Index}
	}
	return narration.MainQuestion(c.questionIndex)
}

func (c *Controller) followUpIndex() int {
	if c.followUp.Valid() {
		return c.followUp.Index
	}
	return -1
}

func (c *Controller) currentQuestion() models.Question {
	if c.session == nil || c.questionIndex < 0 || c.questionIndex >= len(c.session.Questions) {
		return models.Question{}
	}
	return c.session.Questions[c.questionIndex]
}

func (c *Controller) promptText() string {
	if c.followUp.Valid() {
		return c.followUp.Questions[c.followUp.Index]
	}
	return c.currentQuestion().Question
}

func (c *Controller) flowInput(reply *models.SubmitReply) flow.Input {
	return flow.Input{
		FollowUpMode:      c.followUp.Active,
		FollowUpIndex:     c.followUp.Index,
		FollowUpCount:     len(c.followUp.Questions),
		ReturnedFollowUps: len(reply.FollowUpQuestions),
		NextQuestionIndex: reply.NextQuestionIndex,
		QuestionIndex:     c.questionIndex,
		QuestionCount:     len(c.session.Questions),
	}
}

type discardSink struct{}

func (discardSink) Emit(models.Event) {}
