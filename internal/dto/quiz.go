package dto

import (
	"adaptive-learning/internal/domain"
)

// SubmitQuizRequest is the body of POST /quiz/submit-quiz.
// @Description Completed quiz attempt
type SubmitQuizRequest struct {
	QuizID   string `json:"quizId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Answers  []*int `json:"answers"`
}

// WrongQuestionResponse describes a missed question inside a result.
type WrongQuestionResponse struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	UserAnswer    int      `json:"userAnswer"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// QuizResultResponse is a graded attempt as returned by the quiz API.
// @Description Graded quiz attempt
type QuizResultResponse struct {
	ID             string                  `json:"_id"`
	QuizID         string                  `json:"quizId"`
	UserID         string                  `json:"userId,omitempty"`
	Username       string                  `json:"username,omitempty"`
	Answers        []*int                  `json:"answers,omitempty"`
	Score          float64                 `json:"score"`
	CorrectCount   int                     `json:"correctCount"`
	TotalQuestions int                     `json:"totalQuestions"`
	CompletedAt    Timestamp               `json:"completedAt"`
	WrongQuestions []WrongQuestionResponse `json:"wrongQuestions"`
	FeedbackTaskID string                  `json:"feedbackTaskId,omitempty"`
	AIFeedback     string                  `json:"aiFeedback,omitempty"`
}

// FeedbackStatusResponse is the body of GET /quiz/feedback-status/{taskId}.
// @Description Feedback task status
type FeedbackStatusResponse struct {
	Status   string `json:"status"`
	Feedback string `json:"feedback,omitempty"`
	State    string `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
}

// QuestionResponse is one quiz question. CorrectAnswer is omitted for students.
type QuestionResponse struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}

// QuizResponse is the body of GET /quiz/quiz/{quizId}.
// @Description Quiz with its questions
type QuizResponse struct {
	ID        string             `json:"_id"`
	Title     string             `json:"title"`
	Subject   string             `json:"subject"`
	Level     string             `json:"level"`
	Questions []QuestionResponse `json:"questions"`
}

// ClearCacheResponse is the body of POST /quiz/clear-quiz-cache.
type ClearCacheResponse struct {
	Message     string `json:"message"`
	DeletedKeys int    `json:"deletedKeys"`
}

// ErrorResponse represents an error in the API response
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Text returns whichever free-text field the remote filled in.
func (e ErrorResponse) Text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

func NewSubmitQuizRequest(s *domain.QuizSubmission) SubmitQuizRequest {
	return SubmitQuizRequest{
		QuizID:   s.QuizID,
		UserID:   s.UserID,
		Username: s.Username,
		Answers:  s.Answers,
	}
}

func (r SubmitQuizRequest) ToDomain() *domain.QuizSubmission {
	return &domain.QuizSubmission{
		QuizID:   r.QuizID,
		UserID:   r.UserID,
		Username: r.Username,
		Answers:  r.Answers,
	}
}

func NewQuizResultResponse(r *domain.QuizResult) QuizResultResponse {
	wrong := make([]WrongQuestionResponse, 0, len(r.WrongQuestions))
	for _, wq := range r.WrongQuestions {
		wrong = append(wrong, WrongQuestionResponse{
			Question:      wq.Question,
			Choices:       wq.Choices,
			UserAnswer:    wq.UserAnswer,
			CorrectAnswer: wq.CorrectAnswer,
		})
	}
	return QuizResultResponse{
		ID:             r.ID,
		QuizID:         r.QuizID,
		UserID:         r.UserID,
		Username:       r.Username,
		Score:          r.Score,
		CorrectCount:   r.CorrectCount,
		TotalQuestions: r.TotalQuestions,
		CompletedAt:    Timestamp{Time: r.CompletedAt},
		WrongQuestions: wrong,
		FeedbackTaskID: r.FeedbackTaskID,
		AIFeedback:     r.AIFeedback,
	}
}

func (r QuizResultResponse) ToDomain() *domain.QuizResult {
	wrong := make([]domain.WrongQuestion, 0, len(r.WrongQuestions))
	for _, wq := range r.WrongQuestions {
		wrong = append(wrong, domain.WrongQuestion{
			Question:      wq.Question,
			Choices:       wq.Choices,
			UserAnswer:    wq.UserAnswer,
			CorrectAnswer: wq.CorrectAnswer,
		})
	}
	return &domain.QuizResult{
		ID:             r.ID,
		QuizID:         r.QuizID,
		UserID:         r.UserID,
		Username:       r.Username,
		Score:          r.Score,
		CorrectCount:   r.CorrectCount,
		TotalQuestions: r.TotalQuestions,
		CompletedAt:    r.CompletedAt.Time,
		WrongQuestions: wrong,
		FeedbackTaskID: r.FeedbackTaskID,
		AIFeedback:     r.AIFeedback,
	}
}

func (r FeedbackStatusResponse) ToDomain() *domain.FeedbackStatus {
	return &domain.FeedbackStatus{
		Status:   domain.TaskStatus(r.Status),
		Feedback: r.Feedback,
		Error:    r.Error,
	}
}

// NewQuizResponse renders a quiz. Answer keys are included only when withAnswers is set.
func NewQuizResponse(q *domain.Quiz, withAnswers bool) QuizResponse {
	questions := make([]QuestionResponse, 0, len(q.Questions))
	for _, question := range q.Questions {
		qr := QuestionResponse{Question: question.Question, Choices: question.Choices}
		if withAnswers {
			correct := question.CorrectAnswer
			qr.CorrectAnswer = &correct
		}
		questions = append(questions, qr)
	}
	return QuizResponse{
		ID:        q.ID,
		Title:     q.Title,
		Subject:   q.Subject,
		Level:     q.Level,
		Questions: questions,
	}
}

func (r QuizResponse) ToDomain() *domain.Quiz {
	questions := make([]domain.Question, 0, len(r.Questions))
	for _, q := range r.Questions {
		question := domain.Question{Question: q.Question, Choices: q.Choices, CorrectAnswer: -1}
		if q.CorrectAnswer != nil {
			question.CorrectAnswer = *q.CorrectAnswer
		}
		questions = append(questions, question)
	}
	return &domain.Quiz{
		ID:        r.ID,
		Title:     r.Title,
		Subject:   r.Subject,
		Level:     r.Level,
		Questions: questions,
	}
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}
