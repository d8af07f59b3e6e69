package evaluator

import (
	"context"
	"fmt"
	"strings"

	"adaptive-learning/internal/domain"
)

type templateFeedbackGenerator struct{}

// NewTemplateFeedbackGenerator returns a deterministic FeedbackGenerator that needs no model.
// The stub API falls back to it when no LLM server is configured.
func NewTemplateFeedbackGenerator() domain.FeedbackGenerator {
	return templateFeedbackGenerator{}
}

func (templateFeedbackGenerator) GenerateFeedback(ctx context.Context, username string, quiz *domain.Quiz, wrong []domain.WrongQuestion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(wrong) == 0 {
		return "", domain.NewInvalidInputError("no wrong questions to give feedback on")
	}

	var b strings.Builder
	subject := "this topic"
	if quiz != nil && quiz.Subject != "" {
		subject = quiz.Subject
	}
	fmt.Fprintf(&b, "%s, here is where you can improve in %s:\n", username, subject)
	for i, q := range wrong {
		fmt.Fprintf(&b, "\n%d. %s\n   You answered %q; the correct answer is %q.\n",
			i+1, q.Question, choiceText(q.Choices, q.UserAnswer), choiceText(q.Choices, q.CorrectAnswer))
	}
	b.WriteString("\nReview these questions and try the quiz again.")
	return b.String(), nil
}
