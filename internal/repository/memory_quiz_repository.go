package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/util"
)

type memoryQuizRepository struct {
	mu      sync.RWMutex
	quizzes map[string]*domain.Quiz
}

// NewMemoryQuizRepository creates an empty in-process quiz store.
func NewMemoryQuizRepository() domain.QuizRepository {
	return &memoryQuizRepository{quizzes: make(map[string]*domain.Quiz)}
}

func (r *memoryQuizRepository) GetQuizByID(_ context.Context, id string) (*domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	quiz, ok := r.quizzes[id]
	if !ok {
		return nil, domain.NewQuizNotFoundError(id)
	}
	return cloneQuiz(quiz), nil
}

// ListQuizzes filters by subject and level, case-insensitively; empty filters match everything.
func (r *memoryQuizRepository) ListQuizzes(_ context.Context, subject, level string) ([]*domain.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Quiz, 0, len(r.quizzes))
	for _, q := range r.quizzes {
		if subject != "" && !strings.EqualFold(q.Subject, subject) {
			continue
		}
		if level != "" && !strings.EqualFold(q.Level, level) {
			continue
		}
		out = append(out, cloneQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveQuiz validates and stores quiz, assigning an ID and creation time when missing.
func (r *memoryQuizRepository) SaveQuiz(_ context.Context, quiz *domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	if quiz.ID == "" {
		quiz.ID = util.NewULID()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func cloneQuiz(q *domain.Quiz) *domain.Quiz {
	c := *q
	c.Questions = make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Choices = append([]string(nil), question.Choices...)
		c.Questions[i] = question
	}
	return &c
}
