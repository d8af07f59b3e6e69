package service

import (
	"context"
	"sync"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "user-results"

// ResultsView holds one user's results list and the result currently on display.
// It runs at most one feedback coordinator, for the selected result. All state is
// transient and guarded by mu.
type ResultsView struct {
	api         domain.QuizAPI
	poller      FeedbackPoller
	username    string
	metrics     *metrics.Metrics
	settleDelay time.Duration
	sleep       Sleeper
	onChange    func()

	ctx    context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu         sync.Mutex
	results    []*domain.QuizResult
	selected   *domain.QuizResult
	state      domain.FeedbackState
	message    string
	generation uint64
	stopPoll   context.CancelFunc
	pollDone   chan struct{}
	closed     bool

	// running counts coordinators and shared refreshes; Add only under mu while !closed.
	running sync.WaitGroup
}

type ViewOption func(*ResultsView)

// WithSettleDelay waits d between clearing the server cache and fetching results.
func WithSettleDelay(d time.Duration) ViewOption {
	return func(v *ResultsView) { v.settleDelay = d }
}

// WithOnChange registers a callback run after every visible state change.
// It is called without the view's lock held.
func WithOnChange(fn func()) ViewOption {
	return func(v *ResultsView) { v.onChange = fn }
}

func WithViewMetrics(m *metrics.Metrics) ViewOption {
	return func(v *ResultsView) { v.metrics = m }
}

// NewResultsView creates the view for username. Close must be called to release it.
func NewResultsView(api domain.QuizAPI, poller FeedbackPoller, username string, opts ...ViewOption) *ResultsView {
	ctx, cancel := context.WithCancel(context.Background())
	v := &ResultsView{
		api:         api,
		poller:      poller,
		username:    username,
		settleDelay: 500 * time.Millisecond,
		sleep:       sleepContext,
		ctx:         ctx,
		cancel:      cancel,
		state:       domain.FeedbackNone,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Load clears the server cache (best effort) and replaces the list with fresh results.
// Concurrent loads share one request, which only Close can cancel.
func (v *ResultsView) Load(ctx context.Context) error {
	ch := v.joinRefresh()
	if ch == nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// joinRefresh starts the shared list refresh or joins the one in flight.
// It returns nil once the view is closed.
func (v *ResultsView) joinRefresh() <-chan singleflight.Result {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.running.Add(1)
	v.mu.Unlock()

	shared := v.group.DoChan(refreshKey, func() (any, error) {
		return nil, v.refresh(v.ctx)
	})
	out := make(chan singleflight.Result, 1)
	go func() {
		defer v.running.Done()
		out <- <-shared
	}()
	return out
}

func (v *ResultsView) refresh(ctx context.Context) error {
	l := logger.Get().With(zap.String("username", v.username))

	if err := v.api.ClearQuizCache(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.Warn("Failed to clear quiz cache, fetching anyway", zap.Error(err))
	}
	if v.settleDelay > 0 {
		if err := v.sleep(ctx, v.settleDelay); err != nil {
			return err
		}
	}

	fresh, err := v.api.GetUserResults(ctx, v.username)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.metrics.RecordRefresh("failed")
		l.Warn("Failed to fetch quiz results", zap.Error(err))
		v.update(func() { v.message = domain.MsgResultsFailed })
		return domain.NewResultsFetchFailedError(err)
	}
	v.metrics.RecordRefresh("ok")

	v.update(func() {
		if v.message == domain.MsgResultsFailed {
			v.message = ""
		}
		v.results = make([]*domain.QuizResult, 0, len(fresh))
		for _, r := range fresh {
			if r == nil {
				continue
			}
			c := r.Clone()
			if v.selected != nil && c.ID == v.selected.ID && c.AIFeedback == "" {
				c.AIFeedback = v.selected.AIFeedback
			}
			v.results = append(v.results, c)
		}
		v.reconcileLocked(fresh)
	})
	return nil
}

// Select puts result on display. If it still awaits feedback, a coordinator starts polling
// its task; any coordinator for a previous selection is cancelled first.
func (v *ResultsView) Select(result *domain.QuizResult) {
	if result == nil {
		v.Back()
		return
	}
	v.update(func() {
		if v.closed {
			return
		}
		v.stopPollLocked()
		v.selected = result.Clone()
		v.state = domain.DeriveFeedbackState(v.selected)
		v.message = ""
		if v.selected.HasPendingFeedback() {
			v.startPollLocked(v.selected.ID, v.selected.FeedbackTaskID)
		}
	})
}

// Reconcile replaces the displayed result with its entry in fresh, matched by id.
// A nil selection or a missing match leaves the display unchanged.
func (v *ResultsView) Reconcile(fresh []*domain.QuizResult) {
	v.update(func() { v.reconcileLocked(fresh) })
}

func (v *ResultsView) reconcileLocked(fresh []*domain.QuizResult) {
	if v.selected == nil {
		return
	}
	for _, r := range fresh {
		if r == nil || r.ID != v.selected.ID {
			continue
		}
		updated := r.Clone()
		if updated.AIFeedback == "" {
			updated.AIFeedback = v.selected.AIFeedback
		}
		v.selected = updated

		if updated.AIFeedback != "" {
			v.state = domain.FeedbackAvailable
			v.message = ""
			// The list already carries feedback; polling has nothing left to find.
			v.stopPollLocked()
		} else if v.state != domain.FeedbackFailed && v.state != domain.FeedbackGaveUp {
			v.state = domain.DeriveFeedbackState(updated)
		}
		return
	}
}

// Back clears the selection and stops its coordinator.
func (v *ResultsView) Back() {
	v.update(func() {
		v.stopPollLocked()
		v.selected = nil
		v.state = domain.FeedbackNone
		v.message = ""
	})
}

// Close stops every goroutine the view started and waits for all of them to exit.
func (v *ResultsView) Close() {
	v.mu.Lock()
	v.closed = true
	v.stopPollLocked()
	v.mu.Unlock()

	v.cancel()
	v.running.Wait()
}

// Wait blocks until the current coordinator, including its follow-up refresh, has finished.
func (v *ResultsView) Wait(ctx context.Context) error {
	v.mu.Lock()
	done := v.pollDone
	v.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (v *ResultsView) Selected() *domain.QuizResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected.Clone()
}

func (v *ResultsView) Results() []*domain.QuizResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*domain.QuizResult, len(v.results))
	for i, r := range v.results {
		out[i] = r.Clone()
	}
	return out
}

func (v *ResultsView) FeedbackState() domain.FeedbackState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Message is the user-visible error or notice, empty when there is none.
func (v *ResultsView) Message() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.message
}

func (v *ResultsView) startPollLocked(resultID, taskID string) {
	v.generation++
	gen := v.generation
	ctx, cancel := context.WithCancel(v.ctx)
	done := make(chan struct{})
	v.stopPoll = cancel
	v.pollDone = done
	v.running.Add(1)

	go func() {
		defer v.running.Done()
		defer close(done)
		defer cancel()
		v.coordinate(ctx, gen, resultID, taskID)
	}()
}

func (v *ResultsView) stopPollLocked() {
	v.generation++
	if v.stopPoll != nil {
		v.stopPoll()
		v.stopPoll = nil
	}
}

func (v *ResultsView) coordinate(ctx context.Context, gen uint64, resultID, taskID string) {
	l := logger.Get().With(zap.String("result_id", resultID), zap.String("task_id", taskID))

	outcome, err := v.poller.Poll(ctx, taskID)
	if outcome == nil {
		if err != nil && ctx.Err() == nil {
			l.Error("Feedback poller stopped without an outcome", zap.Error(err))
		}
		return
	}

	current := true
	v.update(func() {
		if gen != v.generation || v.selected == nil || v.selected.ID != resultID {
			current = false
			return
		}
		switch outcome.State {
		case domain.FeedbackAvailable:
			v.applyFeedbackLocked(resultID, outcome.Feedback)
		default:
			v.state = outcome.State
			v.message = outcome.Message
		}
	})
	if !current {
		l.Debug("Dropping outcome for a result no longer on display")
		return
	}
	if outcome.State != domain.FeedbackAvailable {
		return
	}

	ch := v.joinRefresh()
	if ch == nil {
		return
	}
	select {
	case <-ctx.Done():
	case res := <-ch:
		if res.Err != nil && v.ctx.Err() == nil {
			l.Warn("Refresh after feedback completion failed", zap.Error(res.Err))
		}
	}
}

// applyFeedbackLocked writes feedback into the selection and its list entry.
// Feedback that is already present is never overwritten.
func (v *ResultsView) applyFeedbackLocked(resultID, feedback string) {
	if v.selected.AIFeedback == "" {
		v.selected.AIFeedback = feedback
	}
	for _, r := range v.results {
		if r.ID == resultID && r.AIFeedback == "" {
			r.AIFeedback = feedback
		}
	}
	v.state = domain.FeedbackAvailable
	v.message = ""
}

func (v *ResultsView) update(fn func()) {
	v.mu.Lock()
	fn()
	v.mu.Unlock()
	if v.onChange != nil {
		v.onChange()
	}
}
