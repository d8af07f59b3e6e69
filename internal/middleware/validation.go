package middleware

import (
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/dto"
	"adaptive-learning/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const validatedSubmissionKey = "validated_submission"

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.Validator
}

// NewValidationMiddleware creates a new validation middleware instance
func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validation.NewValidator(),
	}
}

// ValidateSubmitQuiz parses and validates a submit-quiz body. The quiz's question
// count is checked later by grading, so short answer lists pass here.
func (vm *ValidationMiddleware) ValidateSubmitQuiz() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req dto.SubmitQuizRequest
		if err := c.BodyParser(&req); err != nil {
			return domain.NewInvalidInputError("request body must be a JSON submission")
		}

		submission := req.ToDomain()
		if err := vm.validator.ValidateSubmission(submission, -1); err != nil {
			return err
		}
		if name := Username(c); name != "" && name != submission.Username {
			return domain.NewForbiddenError("Access denied: you can only submit your own quizzes")
		}

		c.Locals(validatedSubmissionKey, submission)
		return c.Next()
	}
}

// ValidatedSubmission returns the submission stored by ValidateSubmitQuiz.
func ValidatedSubmission(c *fiber.Ctx) (*domain.QuizSubmission, bool) {
	s, ok := c.Locals(validatedSubmissionKey).(*domain.QuizSubmission)
	return s, ok
}
