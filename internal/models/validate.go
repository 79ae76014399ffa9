package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors for backend payloads.
var (
	ErrMissingInterviewID   = errors.New("interview id is missing")
	ErrNoQuestions          = errors.New("interview has no questions")
	ErrEmptyQuestion        = errors.New("question text is empty")
	ErrQuestionIndexInvalid = errors.New("current question index out of range")
	ErrEmptyFollowUp        = errors.New("follow-up question text is empty")
)

// Validate checks that a session can be presented.
func (s *InterviewSession) Validate() error {
	if strings.TrimSpace(s.InterviewID) == "" {
		return ErrMissingInterviewID
	}
	if len(s.Questions) == 0 {
		return ErrNoQuestions
	}
	for i, q := range s.Questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("question %d: %w", i, ErrEmptyQuestion)
		}
	}
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return fmt.Errorf("%w: %d of %d", ErrQuestionIndexInvalid, s.CurrentQuestionIndex, len(s.Questions))
	}
	return nil
}

// Validate drops blank follow-ups so an empty prompt is never presented.
func (r *SubmitReply) Validate() error {
	kept := r.FollowUpQuestions[:0]
	for _, f := range r.FollowUpQuestions {
		if strings.TrimSpace(f) != "" {
			kept = append(kept, f)
		}
	}
	dropped := len(r.FollowUpQuestions) - len(kept)
	r.FollowUpQuestions = kept
	if len(kept) == 0 {
		r.FollowUpQuestions = nil
	}
	if dropped > 0 {
		return fmt.Errorf("%w: %d dropped", ErrEmptyFollowUp, dropped)
	}
	return nil
}
