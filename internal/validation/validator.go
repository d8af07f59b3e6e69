package validation

import (
	"errors"
	"fmt"
	"strings"

	"adaptive-learning/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Validator provides request validation functionality
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Struct validates s against its `validate` tags and converts failures to a VALIDATION_ERROR.
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return domain.NewValidationError(describe(fieldErrs), err)
		}
		return domain.NewValidationError("invalid request", err)
	}
	return nil
}

// ValidateSubmission checks a quiz attempt before it is sent. expectedQuestions is the
// quiz's question count, or a negative number when it is not known.
func (v *Validator) ValidateSubmission(s *domain.QuizSubmission, expectedQuestions int) error {
	if s == nil {
		return domain.NewValidationError("submission is required", nil)
	}
	if missing := s.Unanswered(); len(missing) > 0 {
		return domain.NewValidationError(domain.MsgIncompleteAnswers,
			fmt.Errorf("unanswered questions: %s", questionNumbers(missing)))
	}
	if expectedQuestions >= 0 && len(s.Answers) < expectedQuestions {
		return domain.NewValidationError(domain.MsgIncompleteAnswers,
			fmt.Errorf("%d of %d questions answered", len(s.Answers), expectedQuestions))
	}
	if expectedQuestions >= 0 && len(s.Answers) > expectedQuestions {
		return domain.NewValidationError(
			fmt.Sprintf("Too many answers: quiz has %d questions.", expectedQuestions), nil)
	}
	if err := v.Struct(s); err != nil {
		return err
	}
	for i, a := range s.Answers {
		if *a < 0 {
			return domain.NewValidationError(fmt.Sprintf("answer %d is not a valid choice", i+1), nil)
		}
	}
	return nil
}

func describe(fieldErrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func questionNumbers(indexes []int) string {
	nums := make([]string, len(indexes))
	for i, idx := range indexes {
		nums[i] = fmt.Sprint(idx + 1)
	}
	return strings.Join(nums, ", ")
}
