package handler

import (
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/dto"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/middleware"
	"adaptive-learning/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// QuizHandler handles quiz-related HTTP requests
type QuizHandler struct {
	service service.QuizService
}

// NewQuizHandler creates a new QuizHandler instance
func NewQuizHandler(service service.QuizService) *QuizHandler {
	return &QuizHandler{
		service: service,
	}
}

// GetQuizzes godoc
// @Summary List quizzes
// @Description Returns quizzes without their answer keys, optionally filtered
// @Tags quiz
// @Produce json
// @Param subject query string false "Subject"
// @Param level query string false "Level"
// @Success 200 {array} dto.QuizResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/get-quizzes [get]
func (h *QuizHandler) GetQuizzes(c *fiber.Ctx) error {
	quizzes, err := h.service.ListQuizzes(c.UserContext(), c.Query("subject"), c.Query("level"))
	if err != nil {
		return err
	}

	resp := make([]dto.QuizResponse, 0, len(quizzes))
	for _, q := range quizzes {
		resp = append(resp, dto.NewQuizResponse(q, false))
	}
	return c.JSON(resp)
}

// GetQuiz godoc
// @Summary Get a quiz
// @Description Returns one quiz without its answer key
// @Tags quiz
// @Produce json
// @Param quizId path string true "Quiz ID"
// @Success 200 {object} dto.QuizResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/quiz/{quizId} [get]
func (h *QuizHandler) GetQuiz(c *fiber.Ctx) error {
	quiz, err := h.service.GetQuiz(c.UserContext(), c.Params("quizId"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQuizResponse(quiz, false))
}

// SubmitQuiz godoc
// @Summary Submit a quiz attempt
// @Description Grades the attempt and starts AI feedback generation when answers are wrong
// @Tags quiz
// @Accept json
// @Produce json
// @Param request body dto.SubmitQuizRequest true "Quiz attempt"
// @Success 201 {object} dto.QuizResultResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/submit-quiz [post]
func (h *QuizHandler) SubmitQuiz(c *fiber.Ctx) error {
	submission, ok := middleware.ValidatedSubmission(c)
	if !ok {
		return domain.NewInvalidInputError("submission was not validated")
	}

	result, err := h.service.SubmitQuiz(c.UserContext(), submission)
	if err != nil {
		return err
	}

	resp := dto.NewQuizResultResponse(result)
	resp.Answers = submission.Answers
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetFeedbackStatus godoc
// @Summary Get feedback task status
// @Description Reports whether AI feedback for a submission is still processing
// @Tags quiz
// @Produce json
// @Param taskId path string true "Feedback task ID"
// @Success 200 {object} dto.FeedbackStatusResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/feedback-status/{taskId} [get]
func (h *QuizHandler) GetFeedbackStatus(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	status, err := h.service.GetFeedbackStatus(c.UserContext(), taskID)
	if err != nil {
		return err
	}

	logger.Get().Debug("Feedback status",
		zap.String("task_id", taskID),
		zap.String("status", string(status.Status)),
		zap.String("state", status.State))

	return c.JSON(dto.FeedbackStatusResponse{
		Status:   string(status.Status),
		Feedback: status.Feedback,
		State:    status.State,
		Error:    status.Error,
	})
}

// GetUserResults godoc
// @Summary List a user's quiz results
// @Description Students may only read their own results. Any t query parameter bypasses the cache.
// @Tags quiz
// @Produce json
// @Param username path string true "Username"
// @Param t query string false "Cache buster"
// @Success 200 {array} dto.QuizResultResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/user-results/{username} [get]
func (h *QuizHandler) GetUserResults(c *fiber.Ctx) error {
	username := c.Params("username")
	if middleware.Role(c) == service.RoleStudent && middleware.Username(c) != username {
		return domain.NewForbiddenError("Access denied: you can only view your own results")
	}

	results, err := h.service.GetUserResults(c.UserContext(), username, c.Query("t") != "")
	if err != nil {
		return err
	}

	resp := make([]dto.QuizResultResponse, 0, len(results))
	for _, r := range results {
		resp = append(resp, dto.NewQuizResultResponse(r))
	}
	return c.JSON(resp)
}

// ClearQuizCache godoc
// @Summary Clear quiz caches
// @Description Drops cached quizzes, listings, results and feedback statuses
// @Tags quiz
// @Produce json
// @Success 200 {object} dto.ClearCacheResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Security ApiKeyAuth
// @Router /quiz/clear-quiz-cache [post]
func (h *QuizHandler) ClearQuizCache(c *fiber.Ctx) error {
	n, err := h.service.ClearCache(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(dto.ClearCacheResponse{Message: "Quiz cache cleared", DeletedKeys: n})
}
