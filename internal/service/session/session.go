// Package session runs one interview: bootstrap, prompts, answers, transitions,
// proctoring and the final assessment.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ascend-interview-agent/internal/auth"
	"ascend-interview-agent/internal/cache"
	"ascend-interview-agent/internal/clock"
	"ascend-interview-agent/internal/models"
	"ascend-interview-agent/internal/service/autoflow"
	"ascend-interview-agent/internal/service/media"
	"ascend-interview-agent/internal/service/narration"
	"ascend-interview-agent/internal/service/security"
	"ascend-interview-agent/internal/service/speech"
)

var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrNotEntitled      = errors.New("subscription does not include interviews")
	ErrEmptyTranscript  = errors.New("please provide a response before submitting")
	ErrSubmitInProgress = errors.New("a submission is already in progress")
	ErrNotActive        = errors.New("session is not accepting answers")
	ErrAlreadyStarted   = errors.New("session already started")
	ErrNothingToRetry   = errors.New("nothing to retry")
	ErrClosed           = errors.New("session closed")
)

// Phase is the controller lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBootstrapping
	PhaseActive
	PhaseSubmitting
	PhaseTransitioning
	PhaseFinalizing
	PhaseCompleted
	PhaseFailed
	PhaseRedirected
	PhaseTerminating
	PhaseClosed
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseBootstrapping:
		return "BOOTSTRAPPING"
	case PhaseActive:
		return "ACTIVE"
	case PhaseSubmitting:
		return "SUBMITTING"
	case PhaseTransitioning:
		return "TRANSITIONING"
	case PhaseFinalizing:
		return "FINALIZING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	case PhaseRedirected:
		return "REDIRECTED"
	case PhaseTerminating:
		return "TERMINATING"
	case PhaseClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// InProgress reports whether the interview is running.
func (p Phase) InProgress() bool {
	switch p {
	case PhaseActive, PhaseSubmitting, PhaseTransitioning, PhaseFinalizing:
		return true
	default:
		return false
	}
}

// Routes the controller navigates to.
const (
	RouteLogin        = "/login"
	RouteSubscription = "/subscription"
	RouteHome         = "/"
)

// ReportRoute is the report page of an interview.
func ReportRoute(interviewID string) string {
	return "/interview/" + interviewID + "/report"
}

// Trigger is what started a submission.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// Setup failure kinds.
const (
	KindNetwork = "network"
	KindBackend = "backend"
	KindCamera  = "camera"
	KindSpeech  = "speech"
)

// User actions offered with an error.
const (
	ActionRetry = "retry"
	ActionLogin = "login"
	ActionBack  = "back"
)

// SetupError is a bootstrap failure shown with recovery actions.
type SetupError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Actions []string `json:"actions"`
	Err     error    `json:"-"`
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed (%s): %s", e.Kind, e.Message)
}

func (e *SetupError) Unwrap() error { return e.Err }

// redirect is a bootstrap outcome that leaves the interview page.
type redirect struct {
	route  string
	reason string
	err    error
}

func (r *redirect) Error() string { return r.err.Error() }
func (r *redirect) Unwrap() error { return r.err }

// FollowUpState tracks follow-up mode for the current main question.
type FollowUpState struct {
	Active    bool     `json:"active"`
	Questions []string `json:"questions,omitempty"`
	Index     int      `json:"index"`
}

// Valid reports whether Index addresses a follow-up.
func (f FollowUpState) Valid() bool {
	return f.Active && f.Index >= 0 && f.Index < len(f.Questions)
}

// Backend is the subset of the Ascend API the session uses.
type Backend interface {
	CurrentSubscription(ctx context.Context) (*models.Subscription, error)
	GetInterview(ctx context.Context, interviewID string) (*models.InterviewSession, error)
	StartInterview(ctx context.Context, req models.StartRequest) (*models.InterviewSession, error)
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
	Monitor(ctx context.Context, interviewID string, frame []byte) (*models.SecurityStatus, error)
	Submit(ctx context.Context, interviewID string, questionIndex int, answer string, frame []byte) (*models.SubmitReply, error)
	SubmitFollowUp(ctx context.Context, interviewID string, questionIndex, followUpIndex int, answer string, frame []byte) (*models.SubmitReply, error)
	AnalyzeResponse(ctx context.Context, req models.AnalyzeRequest) (*models.AIAnalysis, error)
	Assessment(ctx context.Context, interviewID string) (*models.Assessment, error)
}

// Navigator performs route changes requested by the session.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// EventSink receives session events. Emit must not block.
type EventSink interface {
	Emit(ev models.Event)
}

// Config holds session settings.
type Config struct {
	// InterviewID resumes an existing interview; empty starts a new one.
	InterviewID   string
	Type          string
	Difficulty    string
	QuestionCount int

	AutoSubmitSeconds int
	TransitionDelay   time.Duration
	MonitorInterval   time.Duration
	SecurityThreshold int
	ExitDelay         time.Duration

	STTProvider        string
	AudioChunkSize     int
	AudioChunkInterval time.Duration
	NarrationTTL       time.Duration
}

// DefaultConfig returns the standard interview settings.
func DefaultConfig() Config {
	return Config{
		Type:              "technical",
		Difficulty:        "medium",
		QuestionCount:     5,
		AutoSubmitSeconds: autoflow.DefaultSeconds,
		TransitionDelay:   2 * time.Second,
		MonitorInterval:   5 * time.Second,
		SecurityThreshold: security.DefaultThreshold,
		ExitDelay:         3 * time.Second,
		STTProvider:       "mock",
		NarrationTTL:      24 * time.Hour,
	}
}

// Deps are the collaborators of a session.
type Deps struct {
	Backend    Backend
	Tokens     auth.Source
	Devices    media.Devices
	Recognizer speech.AdapterFactory
	Player     narration.Player
	Cache      cache.Cache
	Policy     security.Policy
	Navigator  Navigator
	Sink       EventSink
	Clock      clock.Clock
}

// Snapshot is the observable session state.
type Snapshot struct {
	Phase          string                 `json:"phase"`
	InterviewID    string                 `json:"interviewId,omitempty"`
	QuestionIndex  int                    `json:"questionIndex"`
	QuestionCount  int                    `json:"questionCount"`
	FollowUp       FollowUpState          `json:"followUp"`
	Prompt         string                 `json:"prompt,omitempty"`
	Transcript     speech.Buffer          `json:"transcript"`
	Recording      bool                   `json:"recording"`
	Narrating      bool                   `json:"narrating"`
	TTSFinished    bool                   `json:"ttsFinished"`
	VoiceDetected  bool                   `json:"voiceDetected"`
	Countdown      autoflow.Snapshot      `json:"countdown"`
	Scores         *models.ScoreSnapshot  `json:"scores,omitempty"`
	Security       security.State         `json:"security"`
	SecurityStatus *models.SecurityStatus `json:"securityStatus,omitempty"`
	MediaDegraded  bool                   `json:"mediaDegraded"`
	Setup          *SetupError            `json:"setupError,omitempty"`
	Report         *models.Assessment     `json:"report,omitempty"`
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
