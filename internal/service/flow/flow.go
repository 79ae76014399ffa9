// Package flow decides the next prompt after an answer is submitted.
package flow

import "fmt"

// Action is the single outcome of a submission.
type Action int

const (
	// ActionAdvanceFollowUp moves to the next follow-up of the current question.
	ActionAdvanceFollowUp Action = iota
	// ActionEnterFollowUp starts follow-up mode at index 0.
	ActionEnterFollowUp
	// ActionAdvanceQuestion moves to another main question and leaves follow-up mode.
	ActionAdvanceQuestion
	// ActionFinalize ends the interview and requests the assessment.
	ActionFinalize
)

// String returns the string representation of the action.
func (a Action) String() string {
	switch a {
	case ActionAdvanceFollowUp:
		return "advance_followup"
	case ActionEnterFollowUp:
		return "enter_followup"
	case ActionAdvanceQuestion:
		return "advance_question"
	case ActionFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", a)
	}
}

// Input is everything the decision depends on.
type Input struct {
	FollowUpMode  bool
	FollowUpIndex int
	FollowUpCount int

	// ReturnedFollowUps is the number of follow-ups in the submit reply.
	ReturnedFollowUps int
	// NextQuestionIndex is the backend's suggested next question, if any.
	NextQuestionIndex *int

	QuestionIndex int
	QuestionCount int
}

// Transition is the decided action and the resulting position.
type Transition struct {
	Action        Action
	QuestionIndex int
	FollowUpIndex int
}

// Decide returns exactly one transition for in.
//
// Follow-ups returned while already in follow-up mode are ignored; the
// backend only branches from a main question.
func Decide(in Input) Transition {
	if in.FollowUpMode {
		if in.FollowUpIndex+1 < in.FollowUpCount {
			return Transition{
				Action:        ActionAdvanceFollowUp,
				QuestionIndex: in.QuestionIndex,
				FollowUpIndex: in.FollowUpIndex + 1,
			}
		}
		return advanceOrFinalize(in)
	}

	if in.ReturnedFollowUps > 0 {
		return Transition{
			Action:        ActionEnterFollowUp,
			QuestionIndex: in.QuestionIndex,
			FollowUpIndex: 0,
		}
	}
	return advanceOrFinalize(in)
}

func advanceOrFinalize(in Input) Transition {
	if next, ok := ValidNext(in.NextQuestionIndex, in.QuestionIndex, in.QuestionCount); ok {
		return Transition{Action: ActionAdvanceQuestion, QuestionIndex: next}
	}
	if in.QuestionIndex < in.QuestionCount-1 {
		return Transition{Action: ActionAdvanceQuestion, QuestionIndex: in.QuestionIndex + 1}
	}
	return Transition{Action: ActionFinalize, QuestionIndex: in.QuestionIndex}
}

// ValidNext reports whether the backend's next index moves forward and stays in range.
func ValidNext(next *int, current, count int) (int, bool) {
	if next == nil {
		return 0, false
	}
	if *next <= current || *next >= count {
		return 0, false
	}
	return *next, true
}
