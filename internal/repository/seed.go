package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"adaptive-learning/internal/domain"
)

//go:embed seed_quizzes.json
var defaultSeed []byte

// SeedQuestion defines one question in the JSON seed file.
type SeedQuestion struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// SeedQuiz defines the structure for a quiz in the JSON seed file.
type SeedQuiz struct {
	ID        string         `json:"_id"`
	Title     string         `json:"title"`
	Subject   string         `json:"subject"`
	Level     string         `json:"level"`
	Questions []SeedQuestion `json:"questions"`
}

func (s SeedQuiz) toDomain() *domain.Quiz {
	q := &domain.Quiz{
		ID:      s.ID,
		Title:   s.Title,
		Subject: s.Subject,
		Level:   s.Level,
	}
	for _, sq := range s.Questions {
		q.Questions = append(q.Questions, domain.Question{
			Question:      sq.Question,
			Choices:       sq.Choices,
			CorrectAnswer: sq.CorrectAnswer,
		})
	}
	return q
}

// SeedQuizzes loads quizzes from path into repo, or the built-in set when path is empty.
// It returns how many quizzes were stored.
func SeedQuizzes(ctx context.Context, repo domain.QuizRepository, path string) (int, error) {
	raw := defaultSeed
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return 0, fmt.Errorf("failed to read seed file %s: %w", path, err)
		}
	}

	var seeds []SeedQuiz
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return 0, fmt.Errorf("failed to unmarshal seed data: %w", err)
	}
	for i, s := range seeds {
		if err := repo.SaveQuiz(ctx, s.toDomain()); err != nil {
			return i, fmt.Errorf("seed quiz %q: %w", s.Title, err)
		}
	}
	return len(seeds), nil
}
