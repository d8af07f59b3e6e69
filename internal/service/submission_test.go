package service

import (
	"context"
	"errors"
	"testing"

	"adaptive-learning/internal/apiclient"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func submission(answers ...*int) *domain.QuizSubmission {
	return &domain.QuizSubmission{
		QuizID:   "quiz-1",
		UserID:   "u-1",
		Username: "alice",
		Answers:  answers,
	}
}

func TestSubmit_Success(t *testing.T) {
	api := new(MockQuizAPI)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := NewSubmissionService(api, nil, m)
	ctx := context.Background()

	sub := submission(domain.Answers(1, 0, 2)...)
	want := &domain.QuizResult{ID: "r1", QuizID: "quiz-1", Score: 66.7, CorrectCount: 2, TotalQuestions: 3, FeedbackTaskID: "t1"}
	api.On("SubmitQuiz", ctx, sub).Return(want, nil).Once()

	got, err := svc.Submit(ctx, sub, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.HasPendingFeedback())
	api.AssertNumberOfCalls(t, "SubmitQuiz", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("ok")))
}

func TestSubmit_IncompleteAnswersMakeNoNetworkCall(t *testing.T) {
	tests := []struct {
		name     string
		sub      *domain.QuizSubmission
		expected int
	}{
		{"skipped question", submission(domain.Answer(1), nil, domain.Answer(2)), 3},
		{"too few answers", submission(domain.Answers(1, 0)...), 3},
		{"no answers", submission(), UnknownQuestionCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockQuizAPI)
			svc := NewSubmissionService(api, nil, nil)

			result, err := svc.Submit(context.Background(), tt.sub, tt.expected)
			assert.Nil(t, result)
			assert.True(t, domain.IsCode(err, domain.ErrValidation))
			api.AssertNotCalled(t, "SubmitQuiz", mock.Anything, mock.Anything)
		})
	}
}

func TestValidate_RejectsSkippedAnswersWithoutQuizSize(t *testing.T) {
	api := new(MockQuizAPI)
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := NewSubmissionService(api, nil, m)

	err := svc.Validate(submission(domain.Answer(1), nil, domain.Answer(2)), UnknownQuestionCount)
	assert.True(t, domain.IsCode(err, domain.ErrValidation))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Submissions.WithLabelValues("invalid")))

	assert.NoError(t, svc.Validate(submission(domain.Answers(1, 0, 2)...), UnknownQuestionCount))
	api.AssertNotCalled(t, "SubmitQuiz", mock.Anything, mock.Anything)
}

func TestSubmit_RemoteFailureIsNotRetried(t *testing.T) {
	api := new(MockQuizAPI)
	svc := NewSubmissionService(api, nil, nil)
	ctx := context.Background()

	remote := &apiclient.APIError{Status: 500, Message: "database unavailable"}
	api.On("SubmitQuiz", ctx, mock.Anything).Return(nil, remote).Once()

	_, err := svc.Submit(ctx, submission(domain.Answers(1, 0, 2)...), 3)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrSubmissionFailed))
	assert.Contains(t, err.Error(), "database unavailable")

	var apiErr *apiclient.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 500, apiErr.Status)
	api.AssertNumberOfCalls(t, "SubmitQuiz", 1)
}

func TestSubmit_RejectsInconsistentResult(t *testing.T) {
	api := new(MockQuizAPI)
	svc := NewSubmissionService(api, nil, nil)
	ctx := context.Background()

	bad := &domain.QuizResult{ID: "r1", Score: 150, CorrectCount: 4, TotalQuestions: 3}
	api.On("SubmitQuiz", ctx, mock.Anything).Return(bad, nil).Once()

	_, err := svc.Submit(ctx, submission(domain.Answers(1, 0, 2)...), UnknownQuestionCount)
	assert.True(t, domain.IsCode(err, domain.ErrSubmissionFailed))
}
