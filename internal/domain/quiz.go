package domain

import (
	"fmt"
	"time"
)

// Question is one multiple-choice question of a quiz.
type Question struct {
	Question      string
	Choices       []string
	CorrectAnswer int
}

// Quiz represents a multiple-choice quiz
type Quiz struct {
	ID        string
	Title     string
	Subject   string
	Level     string
	Questions []Question
	CreatedAt time.Time
}

// Validate validates the quiz
func (q *Quiz) Validate() error {
	if q.Title == "" {
		return NewValidationError("title is required", nil)
	}
	if len(q.Questions) == 0 {
		return NewValidationError("at least one question is required", nil)
	}
	for i, question := range q.Questions {
		if question.Question == "" {
			return NewValidationError(fmt.Sprintf("question %d has no text", i+1), nil)
		}
		if len(question.Choices) < 2 {
			return NewValidationError(fmt.Sprintf("question %d needs at least two choices", i+1), nil)
		}
		if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Choices) {
			return NewValidationError(fmt.Sprintf("question %d has an out of range correct answer", i+1), nil)
		}
	}
	return nil
}

// QuizSubmission is a student's completed attempt. A nil answer means the question was skipped.
type QuizSubmission struct {
	QuizID   string `validate:"required"`
	UserID   string `validate:"required"`
	Username string `validate:"required"`
	Answers  []*int `validate:"required,min=1,dive,required"`
}

// Answer returns a pointer to choice, for building submissions.
func Answer(choice int) *int {
	return &choice
}

// Answers builds a fully answered submission payload.
func Answers(choices ...int) []*int {
	out := make([]*int, len(choices))
	for i, c := range choices {
		out[i] = Answer(c)
	}
	return out
}

// Unanswered returns the zero-based indexes of skipped questions.
func (s *QuizSubmission) Unanswered() []int {
	var missing []int
	for i, a := range s.Answers {
		if a == nil {
			missing = append(missing, i)
		}
	}
	return missing
}

// WrongQuestion records a question the student missed.
type WrongQuestion struct {
	Question      string
	Choices       []string
	UserAnswer    int
	CorrectAnswer int
}

// QuizResult is the graded outcome of a submission. Only AIFeedback changes after creation.
type QuizResult struct {
	ID             string
	QuizID         string
	UserID         string
	Username       string
	Score          float64
	CorrectCount   int
	TotalQuestions int
	CompletedAt    time.Time
	WrongQuestions []WrongQuestion
	FeedbackTaskID string
	AIFeedback     string
}

// Validate checks the grading invariants of a result.
func (r *QuizResult) Validate() error {
	if r.TotalQuestions < 0 {
		return NewValidationError("total questions must not be negative", nil)
	}
	if r.CorrectCount < 0 || r.CorrectCount > r.TotalQuestions {
		return NewValidationError(fmt.Sprintf("correct count %d outside [0, %d]", r.CorrectCount, r.TotalQuestions), nil)
	}
	if r.Score < 0 || r.Score > 100 {
		return NewValidationError(fmt.Sprintf("score %.2f outside [0, 100]", r.Score), nil)
	}
	return nil
}

// HasPendingFeedback reports whether a feedback task is outstanding for this result.
func (r *QuizResult) HasPendingFeedback() bool {
	return r.FeedbackTaskID != "" && r.AIFeedback == ""
}

// Clone returns a deep copy safe to hand out of a locked owner.
func (r *QuizResult) Clone() *QuizResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.WrongQuestions != nil {
		c.WrongQuestions = make([]WrongQuestion, len(r.WrongQuestions))
		for i, wq := range r.WrongQuestions {
			wq.Choices = append([]string(nil), wq.Choices...)
			c.WrongQuestions[i] = wq
		}
	}
	return &c
}

// Grade scores answers against quiz. Missing trailing answers count as wrong with UserAnswer -1.
func Grade(quiz *Quiz, answers []*int) (*QuizResult, error) {
	if quiz == nil {
		return nil, NewInvalidInputError("quiz is required")
	}

	total := len(quiz.Questions)
	result := &QuizResult{
		QuizID:         quiz.ID,
		TotalQuestions: total,
		WrongQuestions: []WrongQuestion{},
	}

	for i, q := range quiz.Questions {
		userAnswer := -1
		if i < len(answers) && answers[i] != nil {
			userAnswer = *answers[i]
		}
		if userAnswer == q.CorrectAnswer {
			result.CorrectCount++
			continue
		}
		result.WrongQuestions = append(result.WrongQuestions, WrongQuestion{
			Question:      q.Question,
			Choices:       append([]string(nil), q.Choices...),
			UserAnswer:    userAnswer,
			CorrectAnswer: q.CorrectAnswer,
		})
	}

	if total > 0 {
		result.Score = float64(result.CorrectCount) / float64(total) * 100
	}
	return result, nil
}
