package service

import (
	"context"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/metrics"
	"adaptive-learning/internal/validation"

	"go.uber.org/zap"
)

// UnknownQuestionCount tells Submit that the quiz's question count is not known locally.
const UnknownQuestionCount = -1

// SubmissionService sends completed quiz attempts to the quiz API.
type SubmissionService interface {
	// Submit validates the attempt and posts it exactly once. expectedQuestions is the
	// quiz's question count, or UnknownQuestionCount.
	Submit(ctx context.Context, submission *domain.QuizSubmission, expectedQuestions int) (*domain.QuizResult, error)
	// Validate runs Submit's local checks without touching the network.
	Validate(submission *domain.QuizSubmission, expectedQuestions int) error
}

type submissionService struct {
	api       domain.QuizAPI
	validator *validation.Validator
	metrics   *metrics.Metrics
}

// NewSubmissionService creates a SubmissionService. m may be nil.
func NewSubmissionService(api domain.QuizAPI, validator *validation.Validator, m *metrics.Metrics) SubmissionService {
	if validator == nil {
		validator = validation.NewValidator()
	}
	return &submissionService{
		api:       api,
		validator: validator,
		metrics:   m,
	}
}

// Validate implements SubmissionService
func (s *submissionService) Validate(submission *domain.QuizSubmission, expectedQuestions int) error {
	if err := s.validator.ValidateSubmission(submission, expectedQuestions); err != nil {
		s.metrics.RecordSubmission("invalid")
		logger.Get().Debug("Rejected incomplete submission", zap.Error(err))
		return err
	}
	return nil
}

// Submit implements SubmissionService
func (s *submissionService) Submit(ctx context.Context, submission *domain.QuizSubmission, expectedQuestions int) (*domain.QuizResult, error) {
	l := logger.Get()

	if err := s.Validate(submission, expectedQuestions); err != nil {
		return nil, err
	}

	result, err := s.api.SubmitQuiz(ctx, submission)
	if err != nil {
		s.metrics.RecordSubmission("failed")
		l.Warn("Quiz submission failed",
			zap.String("quiz_id", submission.QuizID),
			zap.String("username", submission.Username),
			zap.Error(err))
		return nil, domain.NewSubmissionFailedError(err)
	}
	if result == nil {
		s.metrics.RecordSubmission("failed")
		return nil, domain.NewSubmissionFailedError(domain.NewInternalError("empty submission response", nil))
	}
	if err := result.Validate(); err != nil {
		s.metrics.RecordSubmission("failed")
		l.Error("Quiz API returned an inconsistent result",
			zap.String("result_id", result.ID),
			zap.Error(err))
		return nil, domain.NewSubmissionFailedError(err)
	}

	s.metrics.RecordSubmission("ok")
	l.Info("Quiz submitted",
		zap.String("quiz_id", submission.QuizID),
		zap.String("result_id", result.ID),
		zap.Float64("score", result.Score),
		zap.Bool("feedback_pending", result.HasPendingFeedback()))
	return result, nil
}
