package domain

import "context"

// TaskStatus is the state of a server-side feedback task.
type TaskStatus string

const (
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskError      TaskStatus = "error"
)

// Terminal reports whether polling must stop at this status. Unrecognized statuses are terminal.
func (s TaskStatus) Terminal() bool {
	return s != TaskProcessing
}

// Known reports whether s is one of the statuses the remote API documents.
func (s TaskStatus) Known() bool {
	switch s {
	case TaskProcessing, TaskCompleted, TaskError:
		return true
	}
	return false
}

// FeedbackStatus is one answer from the feedback-status endpoint.
type FeedbackStatus struct {
	Status   TaskStatus
	Feedback string
	Error    string
}

// FeedbackState is the derived display state of the selected result.
type FeedbackState string

const (
	FeedbackNone      FeedbackState = "none"
	FeedbackPending   FeedbackState = "pending"
	FeedbackAvailable FeedbackState = "available"
	FeedbackFailed    FeedbackState = "failed"
	FeedbackGaveUp    FeedbackState = "gave_up"
)

// DeriveFeedbackState computes the display state from a result alone.
// Failed and GaveUp are only reachable through a poll outcome.
func DeriveFeedbackState(r *QuizResult) FeedbackState {
	switch {
	case r == nil:
		return FeedbackNone
	case r.AIFeedback != "":
		return FeedbackAvailable
	case r.FeedbackTaskID != "":
		return FeedbackPending
	default:
		return FeedbackNone
	}
}

// QuizAPI is the remote collaborator as seen by the quiz flow.
type QuizAPI interface {
	SubmitQuiz(ctx context.Context, submission *QuizSubmission) (*QuizResult, error)
	GetFeedbackStatus(ctx context.Context, taskID string) (*FeedbackStatus, error)
	GetUserResults(ctx context.Context, username string) ([]*QuizResult, error)
	ClearQuizCache(ctx context.Context) error
	GetQuiz(ctx context.Context, quizID string) (*Quiz, error)
}

// FeedbackGenerator produces tutoring feedback for the questions a student missed.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, username string, quiz *Quiz, wrong []WrongQuestion) (string, error)
}
