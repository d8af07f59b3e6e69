package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries  = 3
	defaultCallTimeout = 60 * time.Second
)

// llmFeedbackGenerator implements domain.FeedbackGenerator on top of a langchaingo model.
type llmFeedbackGenerator struct {
	model       llms.Model
	maxRetries  int
	callTimeout time.Duration
	retryDelay  time.Duration
}

// Option tunes the generator.
type Option func(*llmFeedbackGenerator)

func WithMaxRetries(n int) Option {
	return func(g *llmFeedbackGenerator) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

func WithCallTimeout(d time.Duration) Option {
	return func(g *llmFeedbackGenerator) {
		if d > 0 {
			g.callTimeout = d
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(g *llmFeedbackGenerator) {
		g.retryDelay = d
	}
}

// NewLLMFeedbackGenerator creates a FeedbackGenerator backed by model (ollama in production).
func NewLLMFeedbackGenerator(model llms.Model, opts ...Option) domain.FeedbackGenerator {
	g := &llmFeedbackGenerator{
		model:       model,
		maxRetries:  defaultMaxRetries,
		callTimeout: defaultCallTimeout,
		retryDelay:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateFeedback asks the model to tutor username through the questions they missed.
func (g *llmFeedbackGenerator) GenerateFeedback(ctx context.Context, username string, quiz *domain.Quiz, wrong []domain.WrongQuestion) (string, error) {
	l := logger.Get()
	if len(wrong) == 0 {
		return "", domain.NewInvalidInputError("no wrong questions to give feedback on")
	}

	prompt := BuildFeedbackPrompt(username, quiz, wrong)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		l.Info("Generating quiz feedback with LLM",
			zap.String("username", username),
			zap.Int("wrong_questions", len(wrong)),
			zap.Int("attempt", attempt))

		raw, err := g.callLLM(ctx, prompt)
		if err == nil {
			feedback := stripThinking(raw)
			if feedback != "" {
				return feedback, nil
			}
			err = errors.New("empty response from LLM")
		}
		lastErr = err
		l.Warn("LLM feedback attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == g.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", domain.NewLLMServiceError(ctx.Err())
		case <-time.After(g.retryDelay):
		}
	}
	return "", domain.NewLLMServiceError(fmt.Errorf("feedback generation failed after %d attempts: %w", g.maxRetries, lastErr))
}

func (g *llmFeedbackGenerator) callLLM(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	response, err := llms.GenerateFromSinglePrompt(ctx, g.model, prompt, llms.WithTemperature(0.7))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("LLM request timed out: %w", err)
		}
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	return response, nil
}

// BuildFeedbackPrompt renders the tutor prompt for the missed questions.
func BuildFeedbackPrompt(username string, quiz *domain.Quiz, wrong []domain.WrongQuestion) string {
	subject, level := "general knowledge", "beginner"
	if quiz != nil {
		if quiz.Subject != "" {
			subject = quiz.Subject
		}
		if quiz.Level != "" {
			level = quiz.Level
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Imagine you are a tutor. The student %s took a quiz on %s at %s level and got some questions wrong.\n\n", username, subject, level)
	b.WriteString("Here are the questions they answered incorrectly:\n")

	for i, q := range wrong {
		fmt.Fprintf(&b, "\nQuestion %d: %s\n", i+1, q.Question)
		fmt.Fprintf(&b, "Options: %s\n", strings.Join(q.Choices, ", "))
		fmt.Fprintf(&b, "Student's answer: %s\n", choiceText(q.Choices, q.UserAnswer))
		fmt.Fprintf(&b, "Correct answer: %s\n", choiceText(q.Choices, q.CorrectAnswer))
	}

	b.WriteString(`
Please provide:
1. Concise and short feedback on where the student went wrong for each question
2. Concepts they need to review based on their mistakes
3. Three sample practice questions to help them improve in the areas they struggled with

Address the student as "you" in the feedback. Do not use "The student" or "The user".
`)
	return b.String()
}

func choiceText(choices []string, idx int) string {
	if idx < 0 || idx >= len(choices) {
		return "No answer"
	}
	return choices[idx]
}

// stripThinking drops a reasoning model's <think>...</think> block.
func stripThinking(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if start := strings.Index(cleaned, "<think>"); start != -1 {
		if end := strings.Index(cleaned, "</think>"); end > start {
			cleaned = cleaned[:start] + cleaned[end+len("</think>"):]
		}
	}
	return strings.TrimSpace(cleaned)
}
