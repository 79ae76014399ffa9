// Package models defines the backend wire types and session event payloads.
package models

import "encoding/json"

// Envelope is the standard backend response wrapper.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Subscription is the caller's current plan.
type Subscription struct {
	Plan     string `json:"plan"`
	Status   string `json:"status"`
	IsActive bool   `json:"isActive"`
}

// Entitled reports whether the plan allows interviews.
func (s Subscription) Entitled() bool {
	return s.IsActive && s.Plan != "" && s.Plan != "free"
}

// InterviewSession is the question list and position of one interview.
type InterviewSession struct {
	InterviewID          string     `json:"interviewId"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
}

// Question is a main interview question. Read-only once loaded.
type Question struct {
	ID               string      `json:"id"`
	Question         string      `json:"question"`
	Type             string      `json:"type"`
	ExpectedDuration int         `json:"expectedDuration"`
	AIAnalysis       *AIAnalysis `json:"aiAnalysis,omitempty"`
}

// StartRequest creates a new AI interview.
type StartRequest struct {
	Type          string `json:"type"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"questionCount"`
}

// TTSRequest asks the backend to narrate text.
type TTSRequest struct {
	Text string `json:"text"`
}

// AnalyzeRequest scores a response independently of a submission.
type AnalyzeRequest struct {
	Transcription string `json:"transcription"`
	Question      string `json:"question"`
	QuestionType  string `json:"questionType"`
}

// Scores are the four AI sub-scores of an answer.
type Scores struct {
	Communication  float64 `json:"communication"`
	Technical      float64 `json:"technical"`
	ProblemSolving float64 `json:"problemSolving"`
	Confidence     float64 `json:"confidence"`
}

// AIAnalysis is the backend's evaluation of one answer.
type AIAnalysis struct {
	Scores       *Scores  `json:"scores,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// ScoreSnapshot is the score panel state. Overall is the unweighted mean of
// the four sub-scores.
type ScoreSnapshot struct {
	Communication  float64 `json:"communication"`
	Technical      float64 `json:"technical"`
	ProblemSolving float64 `json:"problemSolving"`
	Confidence     float64 `json:"confidence"`
	Overall        float64 `json:"overall"`
}

// NewScoreSnapshot derives a snapshot from sub-scores.
func NewScoreSnapshot(s Scores) ScoreSnapshot {
	return ScoreSnapshot{
		Communication:  s.Communication,
		Technical:      s.Technical,
		ProblemSolving: s.ProblemSolving,
		Confidence:     s.Confidence,
		Overall:        (s.Communication + s.Technical + s.ProblemSolving + s.Confidence) / 4,
	}
}

// SecurityStatus is the proctoring verdict returned by monitor and submit calls.
type SecurityStatus struct {
	IsSecure      bool     `json:"isSecure"`
	FaceDetected  bool     `json:"faceDetected"`
	MultipleFaces bool     `json:"multipleFaces"`
	Warnings      []string `json:"warnings,omitempty"`
}

// SubmitReply is the data of a submit or submit-followup response.
type SubmitReply struct {
	AIAnalysis        *AIAnalysis     `json:"aiAnalysis,omitempty"`
	FollowUpQuestions []string        `json:"followUpQuestions,omitempty"`
	NextQuestionIndex *int            `json:"nextQuestionIndex,omitempty"`
	SecurityStatus    *SecurityStatus `json:"securityStatus,omitempty"`
}

// AnalysisKind tags an AnalysisResult.
type AnalysisKind int

const (
	// AnalysisDeferred means scores must be fetched with a separate call.
	AnalysisDeferred AnalysisKind = iota
	// AnalysisInline means the reply carried scores.
	AnalysisInline
)

// String returns the string representation of the kind.
func (k AnalysisKind) String() string {
	if k == AnalysisInline {
		return "inline"
	}
	return "deferred"
}

// AnalysisResult is Inline(scores) or Deferred.
type AnalysisResult struct {
	Kind     AnalysisKind
	Scores   ScoreSnapshot
	Feedback string
}

// Inline builds an inline result.
func Inline(a AIAnalysis) AnalysisResult {
	r := AnalysisResult{Kind: AnalysisInline, Feedback: a.Feedback}
	if a.Scores != nil {
		r.Scores = NewScoreSnapshot(*a.Scores)
	}
	return r
}

// Deferred builds a deferred result.
func Deferred() AnalysisResult {
	return AnalysisResult{Kind: AnalysisDeferred}
}

// Analysis resolves the reply into a tagged result.
func (r SubmitReply) Analysis() AnalysisResult {
	if r.AIAnalysis != nil && r.AIAnalysis.Scores != nil {
		return Inline(*r.AIAnalysis)
	}
	return Deferred()
}

// Assessment is the final interview report.
type Assessment struct {
	InterviewID     string   `json:"interviewId,omitempty"`
	OverallScore    float64  `json:"overallScore"`
	Scores          *Scores  `json:"scores,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Improvements    []string `json:"improvements,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}
