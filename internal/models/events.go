package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session event types.
const (
	EventPhase             = "interview.phase"
	EventPrompt            = "interview.prompt"
	EventNarration         = "interview.narration"
	EventRecording         = "interview.recording"
	EventSpeechStart       = "interview.speech.start"
	EventTranscriptPartial = "interview.transcript.partial"
	EventTranscriptFinal   = "interview.transcript.final"
	EventCountdown         = "interview.countdown"
	EventSubmitted         = "interview.submitted"
	EventScores            = "interview.scores"
	EventSecurityStatus    = "interview.security.status"
	EventViolation         = "interview.security.violation"
	EventWarningOverlay    = "interview.security.overlay"
	EventNavigate          = "interview.navigate"
	EventReport            = "interview.report"
	EventError             = "interview.error"
)

// Event is one entry of the session event stream.
type Event struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	InterviewID string `json:"interviewId,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Data        any    `json:"data,omitempty"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType, interviewID string, data any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		InterviewID: interviewID,
		Timestamp:   time.Now().UnixMilli(),
		Data:        data,
	}
}

// IsTranscript reports whether the event belongs on the transcript stream.
func (e Event) IsTranscript() bool {
	return strings.HasPrefix(e.Type, "interview.transcript.")
}

// PhaseChange reports a controller phase change.
type PhaseChange struct {
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
}

// Prompt is the active question or follow-up.
type Prompt struct {
	QuestionIndex int    `json:"questionIndex"`
	FollowUpIndex int    `json:"followUpIndex"`
	FollowUp      bool   `json:"followUp"`
	Text          string `json:"text"`
}

// TranscriptPartial represents an interim recognition result.
type TranscriptPartial struct {
	QuestionIndex int    `json:"questionIndex"`
	FollowUpIndex int    `json:"followUpIndex"`
	WindowID      string `json:"windowId"`
	Text          string `json:"text"`
	Live          string `json:"live"`
}

// TranscriptFinal represents a finalized phrase with confidence score.
type TranscriptFinal struct {
	QuestionIndex int     `json:"questionIndex"`
	FollowUpIndex int     `json:"followUpIndex"`
	WindowID      string  `json:"windowId"`
	Text          string  `json:"text"`
	Finalized     string  `json:"finalized"`
	Confidence    float64 `json:"confidence"`
}

// Countdown is an auto-flow timer update.
type Countdown struct {
	State     string `json:"state"`
	Remaining int    `json:"remaining"`
}

// Submitted reports a completed submission round trip.
type Submitted struct {
	QuestionIndex int    `json:"questionIndex"`
	FollowUpIndex int    `json:"followUpIndex"`
	FollowUp      bool   `json:"followUp"`
	Trigger       string `json:"trigger"`
	Action        string `json:"action"`
}

// Violation is one security violation.
type Violation struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Count       int    `json:"count"`
	At          int64  `json:"at"`
}

// Navigate reports a forced route change.
type Navigate struct {
	Route string `json:"route"`
}

// ErrorInfo reports a user-visible error.
type ErrorInfo struct {
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Transient bool     `json:"transient"`
	Actions   []string `json:"actions,omitempty"`
}

// Narration reports a prompt being read aloud or finishing.
type Narration struct {
	QuestionIndex int    `json:"questionIndex"`
	FollowUpIndex int    `json:"followUpIndex"`
	State         string `json:"state"`
	Outcome       string `json:"outcome,omitempty"`
}

// Recording reports the recognizer turning on or off.
type Recording struct {
	Active bool `json:"active"`
}

// SpeechStart reports voice activity on the current prompt. It carries no
// text and does not count as an answer.
type SpeechStart struct {
	QuestionIndex int `json:"questionIndex"`
	FollowUpIndex int `json:"followUpIndex"`
}
