package domain

import "context"

// QuizRepository stores quiz definitions.
type QuizRepository interface {
	// GetQuizByID returns a QUIZ_NOT_FOUND error when id is unknown.
	GetQuizByID(ctx context.Context, id string) (*Quiz, error)
	ListQuizzes(ctx context.Context, subject, level string) ([]*Quiz, error)
	SaveQuiz(ctx context.Context, quiz *Quiz) error
}

// ResultRepository stores graded attempts.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *QuizResult) error
	// GetResultsByUsername returns the user's results, most recent first.
	GetResultsByUsername(ctx context.Context, username string) ([]*QuizResult, error)
	// GetResultByTaskID returns a NOT_FOUND error when no result references taskID.
	GetResultByTaskID(ctx context.Context, taskID string) (*QuizResult, error)
	// SetFeedback stores feedback on a result unless it already has some.
	SetFeedback(ctx context.Context, resultID, feedback string) error
}
