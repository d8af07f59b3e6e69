package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"adaptive-learning/internal/cache"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	cacheService = "quiz"

	quizDetailType  = "quiz_detail"
	quizListingType = "quiz_listing"
	userResultsType = "user_results"
	feedbackType    = "feedback"

	// TaskStatePending and TaskStateStarted are reported while a task is processing.
	TaskStatePending = "PENDING"
	TaskStateStarted = "STARTED"
)

// QuizService is the server side of the quiz flow used by the stub API: grading,
// result storage and asynchronous feedback tasks.
type QuizService interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
	ListQuizzes(ctx context.Context, subject, level string) ([]*domain.Quiz, error)
	SubmitQuiz(ctx context.Context, submission *domain.QuizSubmission) (*domain.QuizResult, error)
	GetFeedbackStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	GetUserResults(ctx context.Context, username string, bypassCache bool) ([]*domain.QuizResult, error)
	ClearCache(ctx context.Context) (int, error)
	// Shutdown cancels running feedback tasks and waits for them to exit.
	Shutdown(ctx context.Context) error
}

// TaskStatus is a feedback task as reported by the feedback-status endpoint.
type TaskStatus struct {
	Status   domain.TaskStatus `json:"status"`
	Feedback string            `json:"feedback,omitempty"`
	State    string            `json:"state,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type feedbackTask struct {
	resultID string
	status   TaskStatus
}

type QuizServiceConfig struct {
	CacheTTL           time.Duration
	MaxConcurrentTasks int64
}

type quizService struct {
	quizzes   domain.QuizRepository
	results   domain.ResultRepository
	cache     domain.Cache
	generator domain.FeedbackGenerator
	cfg       QuizServiceConfig

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*feedbackTask
}

// NewQuizService creates a QuizService. Caching is skipped when cache is nil.
func NewQuizService(
	quizzes domain.QuizRepository,
	results domain.ResultRepository,
	cache domain.Cache,
	generator domain.FeedbackGenerator,
	cfg QuizServiceConfig,
) QuizService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &quizService{
		quizzes:   quizzes,
		results:   results,
		cache:     cache,
		generator: generator,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrentTasks),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]*feedbackTask),
	}
}

// GetQuiz implements QuizService
func (s *quizService) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	key := cache.GenerateCacheKey(cacheService, quizDetailType, quizID)
	var quiz domain.Quiz
	if s.getCached(ctx, key, &quiz) {
		return &quiz, nil
	}

	found, err := s.quizzes.GetQuizByID(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, key, found)
	return found, nil
}

// ListQuizzes implements QuizService
func (s *quizService) ListQuizzes(ctx context.Context, subject, level string) ([]*domain.Quiz, error) {
	key := cache.GenerateCacheKey(cacheService, quizListingType, "all", subject, level)
	var quizzes []*domain.Quiz
	if s.getCached(ctx, key, &quizzes) {
		return quizzes, nil
	}

	quizzes, err := s.quizzes.ListQuizzes(ctx, subject, level)
	if err != nil {
		return nil, domain.NewInternalError("Failed to list quizzes", err)
	}
	s.setCached(ctx, key, quizzes)
	return quizzes, nil
}

// SubmitQuiz grades the attempt, stores it and, when some answers are wrong,
// starts a feedback task whose id is returned on the result.
func (s *quizService) SubmitQuiz(ctx context.Context, submission *domain.QuizSubmission) (*domain.QuizResult, error) {
	l := logger.Get()

	quiz, err := s.quizzes.GetQuizByID(ctx, submission.QuizID)
	if err != nil {
		return nil, err
	}
	result, err := domain.Grade(quiz, submission.Answers)
	if err != nil {
		return nil, err
	}
	result.UserID = submission.UserID
	result.Username = submission.Username
	result.CompletedAt = time.Now().UTC()
	if len(result.WrongQuestions) > 0 {
		result.FeedbackTaskID = util.NewULID()
	}

	if err := s.results.SaveResult(ctx, result); err != nil {
		return nil, domain.NewInternalError("Failed to save quiz result", err)
	}
	l.Info("Saved quiz result",
		zap.String("result_id", result.ID),
		zap.String("username", result.Username),
		zap.Float64("score", result.Score),
		zap.Int("wrong", len(result.WrongQuestions)))

	s.deleteCached(ctx, cache.GenerateCacheKey(cacheService, userResultsType, result.Username))

	if result.FeedbackTaskID != "" {
		s.startFeedbackTask(quiz, result.Clone())
	}
	return result, nil
}

func (s *quizService) startFeedbackTask(quiz *domain.Quiz, result *domain.QuizResult) {
	taskID := result.FeedbackTaskID
	pending := TaskStatus{Status: domain.TaskProcessing, State: TaskStatePending}

	s.mu.Lock()
	s.tasks[taskID] = &feedbackTask{resultID: result.ID, status: pending}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runFeedbackTask(quiz, result)
	}()
}

func (s *quizService) runFeedbackTask(quiz *domain.Quiz, result *domain.QuizResult) {
	ctx := s.ctx
	taskID := result.FeedbackTaskID
	l := logger.Get().With(zap.String("task_id", taskID), zap.String("result_id", result.ID))

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finishTask(ctx, taskID, TaskStatus{Status: domain.TaskError, Error: "feedback task cancelled"})
		return
	}
	defer s.sem.Release(1)

	s.setTaskStatus(taskID, TaskStatus{Status: domain.TaskProcessing, State: TaskStateStarted})
	feedback, err := s.generator.GenerateFeedback(ctx, result.Username, quiz, result.WrongQuestions)
	if err != nil {
		l.Error("Feedback generation failed", zap.Error(err))
		s.finishTask(ctx, taskID, TaskStatus{Status: domain.TaskError, Error: err.Error()})
		return
	}

	if err := s.results.SetFeedback(ctx, result.ID, feedback); err != nil {
		l.Error("Failed to store feedback on result", zap.Error(err))
	}
	s.deleteCached(ctx, cache.GenerateCacheKey(cacheService, userResultsType, result.Username))
	s.finishTask(ctx, taskID, TaskStatus{Status: domain.TaskCompleted, Feedback: feedback})
	l.Info("Feedback task completed")
}

func (s *quizService) setTaskStatus(taskID string, status TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task, ok := s.tasks[taskID]; ok {
		task.status = status
	}
}

func (s *quizService) finishTask(ctx context.Context, taskID string, status TaskStatus) {
	s.setTaskStatus(taskID, status)
	// Cache writes must outlive a cancelled service context.
	s.setCached(context.WithoutCancel(ctx), cache.GenerateCacheKey(cacheService, feedbackType, taskID), status)
}

// GetFeedbackStatus reads the cached status first, then the live task table, then
// falls back to feedback already stored on the result.
func (s *quizService) GetFeedbackStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	key := cache.GenerateCacheKey(cacheService, feedbackType, taskID)
	var status TaskStatus
	if s.getCached(ctx, key, &status) {
		return &status, nil
	}

	s.mu.RLock()
	task, ok := s.tasks[taskID]
	var current TaskStatus
	if ok {
		current = task.status
	}
	s.mu.RUnlock()
	if ok {
		if current.Status.Terminal() {
			s.setCached(ctx, key, current)
		}
		return &current, nil
	}

	result, err := s.results.GetResultByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if result.AIFeedback == "" {
		return &TaskStatus{Status: domain.TaskError, Error: "feedback task was lost"}, nil
	}
	completed := TaskStatus{Status: domain.TaskCompleted, Feedback: result.AIFeedback}
	s.setCached(ctx, key, completed)
	return &completed, nil
}

// GetUserResults implements QuizService
func (s *quizService) GetUserResults(ctx context.Context, username string, bypassCache bool) ([]*domain.QuizResult, error) {
	key := cache.GenerateCacheKey(cacheService, userResultsType, username)
	if bypassCache {
		s.deleteCached(ctx, key)
	} else {
		var cached []*domain.QuizResult
		if s.getCached(ctx, key, &cached) {
			return cached, nil
		}
	}

	results, err := s.results.GetResultsByUsername(ctx, username)
	if err != nil {
		return nil, domain.NewInternalError("Failed to fetch quiz results", err)
	}
	s.setCached(ctx, key, results)
	return results, nil
}

// ClearCache drops cached quizzes, listings, results and feedback statuses.
func (s *quizService) ClearCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	total := 0
	for _, objectType := range []string{quizDetailType, quizListingType, userResultsType, feedbackType} {
		n, err := s.cache.DeleteByPrefix(ctx, cache.KeyPrefix(cacheService, objectType))
		total += n
		if err != nil {
			return total, domain.NewInternalError(fmt.Sprintf("Failed to clear %s cache", objectType), err)
		}
	}
	logger.Get().Info("Cleared quiz cache", zap.Int("deleted_keys", total))
	return total, nil
}

// Shutdown implements QuizService
func (s *quizService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *quizService) getCached(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			logger.Get().Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		logger.Get().Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		s.deleteCached(ctx, key)
		return false
	}
	return true
}

func (s *quizService) setCached(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Get().Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cfg.CacheTTL); err != nil {
		logger.Get().Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *quizService) deleteCached(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		logger.Get().Warn("Cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
