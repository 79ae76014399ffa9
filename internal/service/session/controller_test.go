package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/backend"
	"ascend-interview-agent/internal/clock"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/narration"
	"ascend-interview-agent/internal/service/security"
	"ascend-interview-agent/internal/service/stt"
	"ascend-interview-agent/internal/service/stt/mock"
)

// --- fakes ---

type submitCall struct {
	question int
	followUp int
	answer   string
	frame    bool
}

type fakeBackend struct {
	mu sync.Mutex

	sub        *models.Subscription
	subErr     error
	session    *models.InterviewSession
	sessionErr error
	ttsErr     error

	replies    []*models.SubmitReply
	submitErr  error
	submitGate chan struct{}

	analysis    *models.AIAnalysis
	analysisErr error

	assessment    *models.Assessment
	assessmentErr error

	started  int
	fetched  []string
	submits  []submitCall
	analyzed int
	assessed int
	monitors int
}

func newFakeBackend(questions ...string) *fakeBackend {
	s := &models.InterviewSession{InterviewID: "iv-1"}
	for i, q := range questions {
		s.Questions = append(s.Questions, models.Question{ID: string(rune('a' + i)), Question: q, Type: "technical"})
	}
	return &fakeBackend{
		sub:        &models.Subscription{Plan: "pro", Status: "active", IsActive: true},
		session:    s,
		assessment: &models.Assessment{OverallScore: 7.5, Summary: "solid"},
	}
}

func (f *fakeBackend) CurrentSubscription(ctx context.Context) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub, f.subErr
}

func (f *fakeBackend) GetInterview(ctx context.Context, id string) (*models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) StartInterview(ctx context.Context, req models.StartRequest) (*models.InterviewSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	cp := *f.session
	return &cp, nil
}

func (f *fakeBackend) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ttsErr != nil {
		return nil, f.ttsErr
	}
	return []byte("mp3"), nil
}

func (f *fakeBackend) Monitor(ctx context.Context, id string, frame []byte) (*models.SecurityStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors++
	return &models.SecurityStatus{IsSecure: true, FaceDetected: true}, nil
}

func (f *fakeBackend) Submit(ctx context.Context, id string, q int, answer string, frame []byte) (*models.SubmitReply, error) {
	return f.submit(ctx, submitCall{question: q, followUp: -1, answer: answer, frame: len(frame) > 0})
}

func (f *fakeBackend) SubmitFollowUp(ctx context.Context, id string, q, fu int, answer string, frame []byte) (*models.SubmitReply, error) {
	return f.submit(ctx, submitCall{question: q, followUp: fu, answer: answer, frame: len(frame) > 0})
}

func (f *fakeBackend) submit(ctx context.Context, call submitCall) (*models.SubmitReply, error) {
	f.mu.Lock()
	f.submits = append(f.submits, call)
	gate := f.submitGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if len(f.replies) == 0 {
		return &models.SubmitReply{AIAnalysis: &models.AIAnalysis{Scores: &models.Scores{Communication: 8, Technical: 6, ProblemSolving: 7, Confidence: 7}}}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeBackend) AnalyzeResponse(ctx context.Context, req models.AnalyzeRequest) (*models.AIAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed++
	return f.analysis, f.analysisErr
}

func (f *fakeBackend) Assessment(ctx context.Context, id string) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assessed++
	return f.assessment, f.assessmentErr
}

func (f *fakeBackend) submitCalls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.submits...)
}

func (f *fakeBackend) loads() (started int, fetched []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, append([]string(nil), f.fetched...)
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (l *eventLog) Emit(ev models.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofType(t string) []models.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type navLog struct {
	mu     sync.Mutex
	routes []string
}

func (n *navLog) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *navLog) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.routes) == 0 {
		return ""
	}
	return n.routes[len(n.routes)-1]
}

type failingPlayer struct{}

func (failingPlayer) Play(ctx context.Context, audio []byte) error {
	return errors.New("autoplay blocked")
}

// --- harness ---

type harness struct {
	t       *testing.T
	backend *fakeBackend
	sink    *eventLog
	nav     *navLog
	clk     *clock.Fake
	devices *media.StaticDevices
	c       *Controller
}

type option func(*Config, *Deps)

func withScript(script ...mock.SimulatedUtterance) option {
	return func(_ *Config, d *Deps) {
		adapter := mock.NewScripted(script)
		d.Recognizer = func(ctx context.Context) (stt.Adapter, error) { return adapter, nil }
	}
}

var answer = mock.SimulatedUtterance{Partials: []string{"my"}, Final: "my answer", Confidence: 0.9}

func newHarness(t *testing.T, b *fakeBackend, opts ...option) *harness {
	t.Helper()
	devices, err := media.NewStaticDevices("", "")
	if err != nil {
		t.Fatal(err)
	}
	policy, err := security.NewPolicy("standard", nil)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		t:       t,
		backend: b,
		sink:    &eventLog{},
		nav:     &navLog{},
		clk:     clock.NewFake(time.Unix(1_700_000_000, 0)),
		devices: devices,
	}

	cfg := DefaultConfig()
	cfg.TransitionDelay = 0
	cfg.ExitDelay = 3 * time.Second
	cfg.AudioChunkSize = 320
	cfg.AudioChunkInterval = time.Millisecond

	deps := Deps{
		Backend:   b,
		Tokens:    auth.Static("opaque-session-token"),
		Devices:   devices,
		Player:    narration.DiscardPlayer{},
		Policy:    policy,
		Navigator: h.nav,
		Sink:      h.sink,
		Clock:     h.clk,
	}
	withScript(answer)(&cfg, &deps)
	for _, o := range opts {
		o(&cfg, &deps)
	}

	h.c = New(cfg, deps)
	t.Cleanup(func() { _ = h.c.Close() })
	return h
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	s, err := h.c.Snapshot(context.Background())
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	return s
}

func (h *harness) waitFor(desc string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		s := h.snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; last snapshot %+v", desc, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// answered waits until the current prompt has been narrated, heard and the
// countdown is running.
func (h *harness) answered() Snapshot {
	h.t.Helper()
	return h.waitFor("answer with running countdown", func(s Snapshot) bool {
		return s.VoiceDetected && s.Transcript.Text() != "" && s.Countdown.State == "COUNTING"
	})
}

// --- tests ---

func TestController_TwoQuestionScenario(t *testing.T) {
	b := newFakeBackend("Tell me about yourself", "Describe a hard bug")
	h := newHarness(t, b)
	h.start()

	s := h.answered()
	if s.QuestionIndex != 0 || s.Prompt != "Tell me about yourself" {
		t.Fatalf("unexpected first prompt %+v", s)
	}
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s = h.waitFor("second question", func(s Snapshot) bool {
		return s.Phase == "ACTIVE" && s.QuestionIndex == 1
	})
	if s.Scores == nil || s.Scores.Overall != 7 {
		t.Errorf("expected inline scores with overall 7, got %+v", s.Scores)
	}

	h.answered()
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	s = h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })
	if s.Report == nil || s.Report.OverallScore != 7.5 {
		t.Errorf("expected report, got %+v", s.Report)
	}

	calls := b.submitCalls()
	if len(calls) != 2 || calls[0].question != 0 || calls[1].question != 1 {
		t.Fatalf("unexpected submissions %+v", calls)
	}
	if calls[0].answer != "my answer" || !calls[0].frame {
		t.Errorf("expected transcript and frame in submission, got %+v", calls[0])
	}
	if started, _ := b.loads(); started != 1 {
		t.Errorf("expected a new interview to be started, got %d", started)
	}
	if got := h.nav.last(); got != ReportRoute("iv-1") {
		t.Errorf("expected navigation to report, got %q", got)
	}
	select {
	case <-h.c.Finished():
	default:
		t.Error("expected Finished to be closed")
	}
	if n := len(h.sink.ofType(models.EventPrompt)); n != 2 {
		t.Errorf("expected 2 prompts, got %d", n)
	}
}

func TestController_ManualSubmitClearsCountdown(t *testing.T) {
	b := newFakeBackend("Only question")
	b.submitGate = make(chan struct{})
	h := newHarness(t, b)
	h.start()

	h.answered()
	h.clk.Advance(20 * time.Second)
	s := h.waitFor("countdown at 10s", func(s Snapshot) bool { return s.Countdown.Remaining == 10 })
	if s.Countdown.State != "COUNTING" {
		t.Fatalf("expected counting, got %+v", s.Countdown)
	}

	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s = h.snapshot()
	if s.Countdown.State != "IDLE" {
		t.Errorf("manual submit must clear the countdown, got %+v", s.Countdown)
	}

	h.clk.Advance(time.Minute)
	h.waitFor("submitting", func(s Snapshot) bool { return s.Phase == "SUBMITTING" })
	if n := len(b.submitCalls()); n != 1 {
		t.Fatalf("expected exactly one submission, got %d", n)
	}

	close(b.submitGate)
	h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })
	if n := len(b.submitCalls()); n != 1 {
		t.Errorf("expected exactly one submission, got %d", n)
	}
}

func TestController_AutoSubmitIdempotent(t *testing.T) {
	b := newFakeBackend("First", "Second")
	b.submitGate = make(chan struct{})
	h := newHarness(t, b)
	h.start()

	h.answered()
	h.clk.Advance(30 * time.Second)
	h.waitFor("auto submit", func(s Snapshot) bool { return s.Phase == "SUBMITTING" })

	auto := func() error {
		return h.c.do(context.Background(), func() error { return h.c.beginSubmit(TriggerAuto) })
	}
	if err := auto(); err != nil {
		t.Errorf("auto trigger during submit should be silently ignored, got %v", err)
	}
	if err := h.c.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("expected ErrSubmitInProgress, got %v", err)
	}
	if n := len(b.submitCalls()); n != 1 {
		t.Fatalf("expected one submission, got %d", n)
	}

	close(b.submitGate)
	h.waitFor("second question", func(s Snapshot) bool { return s.Phase == "ACTIVE" && s.QuestionIndex == 1 })

	submitted := h.sink.ofType(models.EventSubmitted)
	if len(submitted) != 1 {
		t.Fatalf("expected one submitted event, got %d", len(submitted))
	}
	if got := submitted[0].Data.(models.Submitted).Trigger; got != string(TriggerAuto) {
		t.Errorf("expected auto trigger, got %s", got)
	}
}

func TestController_NarrationFailureEquivalence(t *testing.T) {
	tests := []struct {
		name   string
		opt    option
		ttsErr error
	}{
		{"played", nil, nil},
		{"request failed", nil, errors.New("tts down")},
		{"playback failed", func(_ *Config, d *Deps) { d.Player = failingPlayer{} }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend("Q")
			b.ttsErr = tt.ttsErr
			var opts []option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			h := newHarness(t, b, opts...)
			h.start()

			s := h.answered()
			if !s.TTSFinished {
				t.Error("expected narration finished")
			}
		})
	}
}

func TestController_EmptyTranscriptRejected(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b, withScript())
	h.start()

	h.waitFor("recording", func(s Snapshot) bool { return s.Recording })
	if err := h.c.Submit(context.Background()); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	if err := h.c.SetRecording(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := h.c.EditTranscript(context.Background(), "   "); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Submit(context.Background()); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("whitespace must be rejected, got %v", err)
	}
	if n := len(b.submitCalls()); n != 0 {
		t.Errorf("expected no network call, got %d", n)
	}
	if s := h.snapshot(); s.Phase != "ACTIVE" {
		t.Errorf("expected to stay active, got %s", s.Phase)
	}
}

func TestController_TypedAnswer(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b, withScript())
	h.start()

	h.waitFor("recording", func(s Snapshot) bool { return s.Recording })
	if err := h.c.EditTranscript(context.Background(), "typed"); err == nil {
		t.Fatal("editing while recording must be rejected")
	}
	_ = h.c.SetRecording(context.Background(), false)
	if err := h.c.EditTranscript(context.Background(), "typed answer"); err != nil {
		t.Fatalf("EditTranscript: %v", err)
	}
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })
	if got := b.submitCalls()[0].answer; got != "typed answer" {
		t.Errorf("submitted %q", got)
	}
}

func TestController_SecurityThreshold(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b)
	h.start()

	ev := security.InputEvent{Type: "keydown", Key: "F12"}
	for i := 0; i < 2; i++ {
		v, err := h.c.HandleInput(context.Background(), ev)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Blocked || v.ThresholdReached {
			t.Fatalf("violation %d: unexpected verdict %+v", i+1, v)
		}
	}
	if s := h.snapshot(); s.Phase != "ACTIVE" || s.Security.Count != 2 {
		t.Fatalf("two violations must not terminate, got %+v", s)
	}

	v, _ := h.c.HandleInput(context.Background(), ev)
	if !v.ThresholdReached {
		t.Fatal("third violation should reach the threshold")
	}
	if s := h.snapshot(); s.Phase != "TERMINATING" {
		t.Fatalf("expected terminating, got %s", s.Phase)
	}
	if len(h.sink.ofType(models.EventWarningOverlay)) != 1 {
		t.Error("expected warning overlay event")
	}
	if h.nav.last() != "" {
		t.Error("navigation must wait for the exit delay")
	}

	h.clk.Advance(3 * time.Second)
	select {
	case <-h.c.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after exit delay")
	}
	if got := h.nav.last(); got != RouteHome {
		t.Errorf("expected navigation home, got %q", got)
	}
}

func TestController_InputIgnoredOutsideInterview(t *testing.T) {
	b := newFakeBackend("Only question")
	h := newHarness(t, b)

	ev := security.InputEvent{Type: "keydown", Key: "F12"}
	if v, err := h.c.HandleInput(context.Background(), ev); err != nil || v.Blocked {
		t.Fatalf("input before start: verdict %+v, err %v", v, err)
	}

	h.start()
	h.answered()
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })

	for i := 0; i < 3; i++ {
		v, err := h.c.HandleInput(context.Background(), ev)
		if err != nil {
			t.Fatal(err)
		}
		if v.Blocked || v.ThresholdReached {
			t.Fatalf("input after completion %d: unexpected verdict %+v", i+1, v)
		}
	}

	s := h.snapshot()
	if s.Phase != "COMPLETED" || s.Security.Count != 0 {
		t.Errorf("completed session must not collect violations, got %+v", s)
	}
	if len(h.sink.ofType(models.EventWarningOverlay)) != 0 {
		t.Error("unexpected warning overlay after completion")
	}
	if got := h.nav.last(); got != ReportRoute("iv-1") {
		t.Errorf("expected to stay on the report, got %q", got)
	}
}

type gatedPlayer struct {
	gate chan struct{}
}

func (p gatedPlayer) Play(ctx context.Context, audio []byte) error {
	select {
	case <-p.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *harness) finals(n int) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(h.sink.ofType(models.EventTranscriptFinal)) < n {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %d final transcripts", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_SpeechStartAloneDoesNotArm(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b, withScript(mock.SimulatedUtterance{Final: ""}))
	h.start()

	h.waitFor("recording after narration", func(s Snapshot) bool { return s.TTSFinished && s.Recording })
	h.finals(1)

	s := h.snapshot()
	if s.VoiceDetected || s.Countdown.State != "IDLE" {
		t.Fatalf("speech without text must not arm the countdown, got voice=%v countdown=%+v", s.VoiceDetected, s.Countdown)
	}
	if len(h.sink.ofType(models.EventSpeechStart)) == 0 {
		t.Error("expected a speech start event")
	}

	h.clk.Advance(time.Minute)
	if n := len(b.submitCalls()); n != 0 {
		t.Errorf("expected no auto submission, got %d", n)
	}
	if s := h.snapshot(); s.Phase != "ACTIVE" {
		t.Errorf("expected to stay active, got %s", s.Phase)
	}
}

func TestController_SpeechDuringNarrationDoesNotArm(t *testing.T) {
	b := newFakeBackend("Q")
	gate := make(chan struct{})
	h := newHarness(t, b, func(_ *Config, d *Deps) { d.Player = gatedPlayer{gate: gate} })
	h.start()

	h.waitFor("narrating", func(s Snapshot) bool { return s.Narrating })
	if err := h.c.SetRecording(context.Background(), true); err != nil {
		t.Fatalf("SetRecording: %v", err)
	}
	h.finals(1)

	s := h.snapshot()
	if s.TTSFinished || s.VoiceDetected || s.Countdown.State != "IDLE" {
		t.Fatalf("speech before narration finished must not arm, got %+v", s)
	}

	close(gate)
	s = h.waitFor("narration finished", func(s Snapshot) bool { return s.TTSFinished })
	if s.VoiceDetected || s.Countdown.State != "IDLE" {
		t.Fatalf("earlier speech must not arm after narration, got %+v", s)
	}

	if err := h.c.SetRecording(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := h.c.SetRecording(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	h.answered()
}

func TestController_FollowUps(t *testing.T) {
	b := newFakeBackend("Main one", "Main two")
	b.replies = []*models.SubmitReply{
		{FollowUpQuestions: []string{"Why?", "  ", "How?"}, AIAnalysis: &models.AIAnalysis{Scores: &models.Scores{}}},
		{FollowUpQuestions: []string{"ignored in follow-up mode"}, AIAnalysis: &models.AIAnalysis{Scores: &models.Scores{}}},
		{AIAnalysis: &models.AIAnalysis{Scores: &models.Scores{}}},
	}
	h := newHarness(t, b)
	h.start()

	h.answered()
	_ = h.c.Submit(context.Background())
	s := h.waitFor("first follow-up", func(s Snapshot) bool { return s.Phase == "ACTIVE" && s.FollowUp.Active })
	if s.Prompt != "Why?" || len(s.FollowUp.Questions) != 2 || s.QuestionIndex != 0 {
		t.Fatalf("unexpected follow-up state %+v", s)
	}

	h.answered()
	_ = h.c.Submit(context.Background())
	s = h.waitFor("second follow-up", func(s Snapshot) bool { return s.Phase == "ACTIVE" && s.FollowUp.Index == 1 })
	if s.Prompt != "How?" {
		t.Fatalf("unexpected prompt %q", s.Prompt)
	}

	h.answered()
	_ = h.c.Submit(context.Background())
	s = h.waitFor("next main question", func(s Snapshot) bool { return s.Phase == "ACTIVE" && s.QuestionIndex == 1 })
	if s.FollowUp.Active {
		t.Error("follow-up mode should end when the main index advances")
	}

	calls := b.submitCalls()
	want := []submitCall{{question: 0, followUp: -1}, {question: 0, followUp: 0}, {question: 0, followUp: 1}}
	for i, w := range want {
		if calls[i].question != w.question || calls[i].followUp != w.followUp {
			t.Errorf("submission %d = %+v, want q=%d f=%d", i, calls[i], w.question, w.followUp)
		}
	}
}

func TestController_SubmitFailureKeepsPrompt(t *testing.T) {
	b := newFakeBackend("Q1", "Q2")
	b.submitErr = &backend.APIError{Endpoint: backend.EndpointSubmit, Status: http.StatusBadGateway, Message: "try later"}
	h := newHarness(t, b)
	h.start()

	h.answered()
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := h.waitFor("failure handled", func(s Snapshot) bool { return s.Phase == "ACTIVE" && len(b.submitCalls()) == 1 })
	if s.QuestionIndex != 0 || s.Transcript.Text() != "my answer" {
		t.Fatalf("failed submit must not transition or clear the answer, got %+v", s)
	}
	errs := h.sink.ofType(models.EventError)
	if len(errs) == 0 || errs[len(errs)-1].Data.(models.ErrorInfo).Message != "try later" {
		t.Errorf("expected server message in error event, got %+v", errs)
	}

	b.set(func(f *fakeBackend) { f.submitErr = nil })
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	h.waitFor("second question", func(s Snapshot) bool { return s.QuestionIndex == 1 })
}

func TestController_DeferredAnalysis(t *testing.T) {
	b := newFakeBackend("Q1", "Q2")
	b.replies = []*models.SubmitReply{{}, {}}
	b.analysisErr = errors.New("analysis down")
	h := newHarness(t, b)
	h.start()

	h.answered()
	_ = h.c.Submit(context.Background())
	s := h.waitFor("second question", func(s Snapshot) bool { return s.QuestionIndex == 1 && s.Phase == "ACTIVE" })
	if s.Scores != nil {
		t.Errorf("failed analysis must keep previous scores, got %+v", s.Scores)
	}
	var analyzed int
	b.set(func(f *fakeBackend) { analyzed = f.analyzed })
	if analyzed != 1 {
		t.Errorf("expected analyze call, got %d", analyzed)
	}

	b.set(func(f *fakeBackend) {
		f.analysisErr = nil
		f.analysis = &models.AIAnalysis{Scores: &models.Scores{Communication: 4, Technical: 4, ProblemSolving: 4, Confidence: 4}}
	})
	h.answered()
	_ = h.c.Submit(context.Background())
	s = h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })
	if s.Scores == nil || s.Scores.Overall != 4 {
		t.Errorf("expected deferred scores, got %+v", s.Scores)
	}
}

func TestController_AssessmentRetry(t *testing.T) {
	b := newFakeBackend("Q")
	b.assessmentErr = errors.New("timeout")
	h := newHarness(t, b)
	h.start()

	h.answered()
	_ = h.c.Submit(context.Background())
	h.waitFor("assessment failure", func(s Snapshot) bool {
		return s.Phase == "FINALIZING" && len(h.sink.ofType(models.EventError)) > 0
	})

	b.set(func(f *fakeBackend) { f.assessmentErr = nil })
	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	h.waitFor("completion", func(s Snapshot) bool { return s.Phase == "COMPLETED" })
}

func TestController_BootstrapRedirects(t *testing.T) {
	tests := []struct {
		name    string
		tokens  auth.Source
		sub     *models.Subscription
		subErr  error
		wantErr error
		route   string
	}{
		{"no token", auth.Static(""), nil, nil, ErrUnauthenticated, RouteLogin},
		{"free plan", nil, &models.Subscription{Plan: "free", IsActive: true}, nil, ErrNotEntitled, RouteSubscription},
		{"inactive", nil, &models.Subscription{Plan: "pro", IsActive: false}, nil, ErrNotEntitled, RouteSubscription},
		{"401", nil, nil, &backend.APIError{Status: http.StatusUnauthorized}, ErrUnauthenticated, RouteLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend("Q")
			if tt.sub != nil {
				b.sub = tt.sub
			}
			b.subErr = tt.subErr
			h := newHarness(t, b, func(_ *Config, d *Deps) {
				if tt.tokens != nil {
					d.Tokens = tt.tokens
				}
			})

			err := h.c.Start(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := h.nav.last(); got != tt.route {
				t.Errorf("expected redirect to %s, got %q", tt.route, got)
			}
			s := h.snapshot()
			if s.Phase != "REDIRECTED" || s.QuestionCount != 0 {
				t.Errorf("no interview state may be created, got %+v", s)
			}
			if started, fetched := b.loads(); started != 0 || len(fetched) != 0 {
				t.Error("interview must not be loaded")
			}
		})
	}
}

func TestController_SetupFailureAndRetry(t *testing.T) {
	b := newFakeBackend("Q")
	b.sessionErr = &backend.APIError{Status: http.StatusInternalServerError, Message: "database offline"}
	h := newHarness(t, b, func(c *Config, _ *Deps) { c.InterviewID = "iv-1" })

	err := h.c.Start(context.Background())
	var setup *SetupError
	if !errors.As(err, &setup) {
		t.Fatalf("expected SetupError, got %v", err)
	}
	if setup.Kind != KindBackend || setup.Message != "database offline" {
		t.Errorf("unexpected setup error %+v", setup)
	}
	if s := h.snapshot(); s.Phase != "FAILED" || s.Setup == nil {
		t.Fatalf("expected failed phase, got %+v", s)
	}

	b.set(func(f *fakeBackend) { f.sessionErr = nil })
	if err := h.c.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	s := h.snapshot()
	if s.Phase != "ACTIVE" || s.Setup != nil {
		t.Errorf("expected active session after retry, got %+v", s)
	}
	if _, fetched := b.loads(); len(fetched) != 2 || fetched[0] != "iv-1" {
		t.Errorf("expected resume by id twice, got %v", fetched)
	}
}

func TestController_SetupErrors(t *testing.T) {
	tests := []struct {
		name    string
		prep    func(b *fakeBackend, d *media.StaticDevices)
		opt     option
		kind    string
		message string
	}{
		{"no questions", func(b *fakeBackend, _ *media.StaticDevices) { b.session.Questions = nil }, nil,
			KindBackend, "The interview has no questions to ask."},
		{"finished interview", func(b *fakeBackend, _ *media.StaticDevices) { b.session.CurrentQuestionIndex = 1 }, nil,
			KindBackend, "This interview has already been completed or cannot be resumed."},
		{"missing id", func(b *fakeBackend, _ *media.StaticDevices) { b.session.InterviewID = "" }, nil,
			KindBackend, "The interview service returned an interview without an id."},
		{"blank question", func(b *fakeBackend, _ *media.StaticDevices) { b.session.Questions[0].Question = " " }, nil,
			KindBackend, "The interview contains a question without text."},
		{"camera denied", func(_ *fakeBackend, d *media.StaticDevices) { d.DenyVideo = true }, nil,
			KindCamera, "Camera access is required for the interview."},
		{"network", func(b *fakeBackend, _ *media.StaticDevices) { b.sessionErr = errors.New("dial tcp: refused") }, nil,
			KindNetwork, "Could not reach the interview service."},
		{"no recognizer", nil, func(_ *Config, d *Deps) { d.Recognizer = nil },
			KindSpeech, "Speech recognition is not supported in this environment."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend("Q")
			var opts []option
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			h := newHarness(t, b, opts...)
			if tt.prep != nil {
				tt.prep(b, h.devices)
			}

			var setup *SetupError
			if err := h.c.Start(context.Background()); !errors.As(err, &setup) || setup.Kind != tt.kind {
				t.Fatalf("expected %s setup error, got %v", tt.kind, err)
			}
			if setup.Message != tt.message {
				t.Errorf("message = %q, want %q", setup.Message, tt.message)
			}
			if s := h.snapshot(); s.Phase != "FAILED" || s.QuestionCount != 0 {
				t.Errorf("unexpected partial state %+v", s)
			}
		})
	}
}

func TestController_DegradedMedia(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b)
	h.devices.DenyAudio = true
	h.start()

	s := h.waitFor("narration finished", func(s Snapshot) bool { return s.TTSFinished })
	if !s.MediaDegraded || s.Recording {
		t.Errorf("expected degraded media without recording, got %+v", s)
	}
	errs := h.sink.ofType(models.EventError)
	if len(errs) == 0 || errs[len(errs)-1].Data.(models.ErrorInfo).Code != "microphone" {
		t.Errorf("expected microphone error event, got %+v", errs)
	}
}

func TestController_ResumeAndMonitor(t *testing.T) {
	b := newFakeBackend("Q1", "Q2", "Q3")
	b.session.CurrentQuestionIndex = 2
	h := newHarness(t, b, func(c *Config, _ *Deps) { c.InterviewID = "iv-1" })
	h.start()

	s := h.snapshot()
	if s.QuestionIndex != 2 || s.Prompt != "Q3" {
		t.Fatalf("expected resume at question 2, got %+v", s)
	}

	h.clk.Advance(5 * time.Second)
	s = h.waitFor("security status", func(s Snapshot) bool { return s.SecurityStatus != nil })
	if !s.SecurityStatus.FaceDetected {
		t.Errorf("unexpected status %+v", s.SecurityStatus)
	}
}

func TestController_CloseStopsEverything(t *testing.T) {
	b := newFakeBackend("Q")
	h := newHarness(t, b)
	h.start()
	h.answered()

	if err := h.c.Close(); err != nil {
		t.Fatal(err)
	}
	if h.c.Phase() != PhaseClosed {
		t.Errorf("expected closed, got %s", h.c.Phase())
	}
	if _, err := h.c.Snapshot(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	h.clk.Advance(time.Minute)
	if n := len(b.submitCalls()); n != 0 {
		t.Errorf("closed session must not auto-submit, got %d", n)
	}
}

func TestPhase_String(t *testing.T) {
	if PhaseActive.String() != "ACTIVE" || Phase(99).String() != "UNKNOWN(99)" {
		t.Error("unexpected phase names")
	}
	if !PhaseSubmitting.InProgress() || PhaseFailed.InProgress() {
		t.Error("unexpected InProgress")
	}
}
