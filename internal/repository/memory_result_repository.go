package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/util"
)

type memoryResultRepository struct {
	mu      sync.RWMutex
	results map[string]*domain.QuizResult
}

// NewMemoryResultRepository creates an empty in-process result store.
func NewMemoryResultRepository() domain.ResultRepository {
	return &memoryResultRepository{results: make(map[string]*domain.QuizResult)}
}

// SaveResult stores result, assigning an ID and completion time when missing.
func (r *memoryResultRepository) SaveResult(_ context.Context, result *domain.QuizResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}
	if result.ID == "" {
		result.ID = util.NewULIDAt(result.CompletedAt)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[result.ID] = result.Clone()
	return nil
}

func (r *memoryResultRepository) GetResultsByUsername(_ context.Context, username string) ([]*domain.QuizResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.QuizResult, 0)
	for _, res := range r.results {
		if res.Username == username {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *memoryResultRepository) GetResultByTaskID(_ context.Context, taskID string) (*domain.QuizResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, res := range r.results {
		if taskID != "" && res.FeedbackTaskID == taskID {
			return res.Clone(), nil
		}
	}
	return nil, domain.NewNotFoundError(fmt.Sprintf("no result for feedback task %s", taskID))
}

func (r *memoryResultRepository) SetFeedback(_ context.Context, resultID, feedback string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[resultID]
	if !ok {
		return domain.NewNotFoundError(fmt.Sprintf("result %s not found", resultID))
	}
	if res.AIFeedback == "" {
		res.AIFeedback = feedback
	}
	return nil
}
