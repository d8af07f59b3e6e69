package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"adaptive-learning/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	PollFunc func(ctx context.Context, taskID string) (*FeedbackOutcome, error)
}

func (f *fakePoller) Poll(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
	return f.PollFunc(ctx, taskID)
}

// blockingPoller waits for cancellation and reports which tasks it saw.
func blockingPoller(started chan<- string) *fakePoller {
	return &fakePoller{PollFunc: func(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
		started <- taskID
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func pendingResult(id, taskID string) *domain.QuizResult {
	return &domain.QuizResult{ID: id, QuizID: "quiz-1", Username: "alice", Score: 50, CorrectCount: 1, TotalQuestions: 2, FeedbackTaskID: taskID}
}

func newTestView(t *testing.T, api domain.QuizAPI, poller FeedbackPoller, opts ...ViewOption) *ResultsView {
	t.Helper()
	v := NewResultsView(api, poller, "alice", append([]ViewOption{WithSettleDelay(0)}, opts...)...)
	t.Cleanup(v.Close)
	return v
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestResultsView_CompletedFeedbackIsDisplayed(t *testing.T) {
	r1 := pendingResult("R1", "t1")
	api := &fakeQuizAPI{
		GetFeedbackStatusFunc: statusScript(processing(), completed("Great job")),
		// The server has not stored the feedback yet when the refresh runs.
		GetUserResultsFunc: func(context.Context, string) ([]*domain.QuizResult, error) {
			return []*domain.QuizResult{pendingResult("R1", "t1")}, nil
		},
	}
	poller := NewFeedbackPoller(api, fastPollConfig(), WithSleeper((&recordingSleeper{}).Sleep))
	v := newTestView(t, api, poller)

	require.NoError(t, v.Load(waitCtx(t)))
	v.Select(r1)
	require.NoError(t, v.Wait(waitCtx(t)))

	assert.Equal(t, "Great job", v.Selected().AIFeedback)
	assert.Equal(t, domain.FeedbackAvailable, v.FeedbackState())
	assert.Empty(t, v.Message())
	require.Len(t, v.Results(), 1)
	assert.Equal(t, "Great job", v.Results()[0].AIFeedback, "list entry keeps the polled feedback")

	assert.Equal(t, 2, api.Calls("GetFeedbackStatus"), "polling halts on completed")
	assert.Equal(t, 2, api.Calls("GetUserResults"), "one load plus one completion-driven refresh")
	assert.Equal(t, 2, api.Calls("ClearQuizCache"))
}

func TestResultsView_ErrorStatusSetsMessage(t *testing.T) {
	api := &fakeQuizAPI{GetFeedbackStatusFunc: statusScript(&domain.FeedbackStatus{Status: domain.TaskError})}
	poller := NewFeedbackPoller(api, fastPollConfig(), WithSleeper((&recordingSleeper{}).Sleep))
	v := newTestView(t, api, poller)

	v.Select(pendingResult("R1", "t1"))
	require.NoError(t, v.Wait(waitCtx(t)))

	assert.Equal(t, domain.FeedbackFailed, v.FeedbackState())
	assert.Equal(t, domain.MsgFeedbackFailed, v.Message())
	assert.Empty(t, v.Selected().AIFeedback)
	assert.Equal(t, 1, api.Calls("GetFeedbackStatus"))
	assert.Zero(t, api.Calls("GetUserResults"), "no refresh after a failed task")
}

func TestResultsView_GaveUpIsSurfaced(t *testing.T) {
	api := &fakeQuizAPI{GetFeedbackStatusFunc: statusScript(processing())}
	cfg := fastPollConfig()
	cfg.MaxAttempts = 2
	poller := NewFeedbackPoller(api, cfg, WithSleeper((&recordingSleeper{}).Sleep))
	v := newTestView(t, api, poller)

	v.Select(pendingResult("R1", "t1"))
	require.NoError(t, v.Wait(waitCtx(t)))

	assert.Equal(t, domain.FeedbackGaveUp, v.FeedbackState())
	assert.Equal(t, domain.MsgFeedbackGaveUp, v.Message())
}

func TestResultsView_SelectWithFeedbackDoesNotPoll(t *testing.T) {
	api := &fakeQuizAPI{}
	v := newTestView(t, api, &fakePoller{PollFunc: func(context.Context, string) (*FeedbackOutcome, error) {
		t.Fatal("poller must not run")
		return nil, nil
	}})

	r := pendingResult("R1", "t1")
	r.AIFeedback = "Already here"
	v.Select(r)
	require.NoError(t, v.Wait(waitCtx(t)))
	assert.Equal(t, domain.FeedbackAvailable, v.FeedbackState())

	v.Select(&domain.QuizResult{ID: "R2", Score: 100, CorrectCount: 2, TotalQuestions: 2})
	assert.Equal(t, domain.FeedbackNone, v.FeedbackState())
}

func TestResultsView_Reconcile(t *testing.T) {
	t.Run("matching entry updates the display", func(t *testing.T) {
		v := newTestView(t, &fakeQuizAPI{}, blockingPoller(make(chan string, 1)))
		v.Select(pendingResult("R1", "t1"))

		updated := pendingResult("R1", "t1")
		updated.AIFeedback = "Fresh feedback"
		v.Reconcile([]*domain.QuizResult{pendingResult("R0", ""), updated})

		assert.Equal(t, "Fresh feedback", v.Selected().AIFeedback)
		assert.Equal(t, domain.FeedbackAvailable, v.FeedbackState())
		require.NoError(t, v.Wait(waitCtx(t)), "polling stops once the list carries feedback")
	})

	t.Run("missing entry leaves the display unchanged", func(t *testing.T) {
		v := newTestView(t, &fakeQuizAPI{}, blockingPoller(make(chan string, 1)))
		v.Select(pendingResult("R1", "t1"))
		before := v.Selected()

		assert.NotPanics(t, func() {
			v.Reconcile([]*domain.QuizResult{pendingResult("R2", "t2"), nil})
			v.Reconcile(nil)
		})
		assert.Equal(t, before, v.Selected())
		assert.Equal(t, domain.FeedbackPending, v.FeedbackState())
	})

	t.Run("nil selection is a no-op", func(t *testing.T) {
		v := newTestView(t, &fakeQuizAPI{}, blockingPoller(make(chan string, 1)))
		assert.NotPanics(t, func() { v.Reconcile([]*domain.QuizResult{pendingResult("R1", "t1")}) })
		assert.Nil(t, v.Selected())
	})

	t.Run("known feedback survives a stale entry", func(t *testing.T) {
		v := newTestView(t, &fakeQuizAPI{}, blockingPoller(make(chan string, 1)))
		r := pendingResult("R1", "t1")
		r.AIFeedback = "Kept"
		v.Select(r)

		v.Reconcile([]*domain.QuizResult{pendingResult("R1", "t1")})
		assert.Equal(t, "Kept", v.Selected().AIFeedback)
	})
}

func TestResultsView_LoadClearsCacheBestEffort(t *testing.T) {
	api := &fakeQuizAPI{
		ClearQuizCacheFunc: func(context.Context) error { return errors.New("redis down") },
		GetUserResultsFunc: func(_ context.Context, username string) ([]*domain.QuizResult, error) {
			assert.Equal(t, "alice", username)
			return []*domain.QuizResult{pendingResult("R1", ""), pendingResult("R2", "")}, nil
		},
	}
	v := newTestView(t, api, blockingPoller(make(chan string, 1)))

	require.NoError(t, v.Load(waitCtx(t)))
	assert.Len(t, v.Results(), 2)
	assert.Empty(t, v.Message())
	assert.Equal(t, 1, api.Calls("ClearQuizCache"))
}

func TestResultsView_LoadFailure(t *testing.T) {
	api := &fakeQuizAPI{
		GetUserResultsFunc: func(context.Context, string) ([]*domain.QuizResult, error) {
			return nil, errors.New("502 bad gateway")
		},
	}
	v := newTestView(t, api, blockingPoller(make(chan string, 1)))

	err := v.Load(waitCtx(t))
	assert.True(t, domain.IsCode(err, domain.ErrResultsFetchFailed))
	assert.Equal(t, domain.MsgResultsFailed, v.Message())
}

func TestResultsView_ConcurrentLoadsAreCoalesced(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	api := &fakeQuizAPI{
		GetUserResultsFunc: func(context.Context, string) ([]*domain.QuizResult, error) {
			entered <- struct{}{}
			<-release
			return []*domain.QuizResult{pendingResult("R1", "")}, nil
		},
	}
	v := newTestView(t, api, blockingPoller(make(chan string, 1)))

	ctx := waitCtx(t)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = v.Load(ctx)
	}()
	<-entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = v.Load(ctx)
	}()
	// Give the second Load a moment to join the in-flight request.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, api.Calls("GetUserResults"))
}

func TestResultsView_SwitchingResultCancelsPreviousCoordinator(t *testing.T) {
	started := make(chan string, 2)
	v := newTestView(t, &fakeQuizAPI{}, blockingPoller(started))

	v.Select(pendingResult("R1", "t1"))
	assert.Equal(t, "t1", <-started)
	v.mu.Lock()
	first := v.pollDone
	v.mu.Unlock()

	v.Select(pendingResult("R2", "t2"))
	assert.Equal(t, "t2", <-started)

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatal("first coordinator was not cancelled")
	}
	assert.Equal(t, "R2", v.Selected().ID)
	assert.Equal(t, domain.FeedbackPending, v.FeedbackState())
}

func TestResultsView_LoadSurvivesResultSwitch(t *testing.T) {
	fetching := make(chan struct{}, 1)
	release := make(chan struct{})
	api := &fakeQuizAPI{GetUserResultsFunc: func(ctx context.Context, _ string) ([]*domain.QuizResult, error) {
		fetching <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []*domain.QuizResult{pendingResult("R1", "t1")}, nil
	}}
	poller := &fakePoller{PollFunc: func(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
		if taskID == "t1" {
			return &FeedbackOutcome{State: domain.FeedbackAvailable, Feedback: "done"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	v := newTestView(t, api, poller)

	// The completion-driven refresh for R1 is now in flight.
	v.Select(pendingResult("R1", "t1"))
	<-fetching

	loadErr := make(chan error, 1)
	go func() { loadErr <- v.Load(waitCtx(t)) }()
	// Give Load time to join the in-flight refresh.
	time.Sleep(20 * time.Millisecond)

	v.Select(pendingResult("R2", "t2"))
	close(release)

	require.NoError(t, <-loadErr)
	require.Len(t, v.Results(), 1)
	assert.Equal(t, "R1", v.Results()[0].ID)
	assert.Equal(t, "R2", v.Selected().ID)
}

func TestResultsView_CloseWaitsForEarlierRefresh(t *testing.T) {
	fetching := make(chan struct{}, 1)
	var returned atomic.Bool
	api := &fakeQuizAPI{GetUserResultsFunc: func(ctx context.Context, _ string) ([]*domain.QuizResult, error) {
		fetching <- struct{}{}
		<-ctx.Done()
		returned.Store(true)
		return nil, ctx.Err()
	}}
	poller := &fakePoller{PollFunc: func(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
		if taskID == "t1" {
			return &FeedbackOutcome{State: domain.FeedbackAvailable, Feedback: "done"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	v := NewResultsView(api, poller, "alice", WithSettleDelay(0))

	v.Select(pendingResult("R1", "t1"))
	<-fetching
	v.Select(pendingResult("R2", "t2"))
	v.Close()

	assert.True(t, returned.Load(), "Close returned while a refresh was still running")
}

func TestResultsView_StaleOutcomeIsDropped(t *testing.T) {
	release := make(chan struct{})
	poller := &fakePoller{PollFunc: func(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
		if taskID == "t1" {
			<-release
			return &FeedbackOutcome{State: domain.FeedbackAvailable, Feedback: "for R1"}, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	v := newTestView(t, &fakeQuizAPI{}, poller)

	v.Select(pendingResult("R1", "t1"))
	v.mu.Lock()
	first := v.pollDone
	v.mu.Unlock()
	v.Select(pendingResult("R2", "t2"))
	close(release)
	<-first

	assert.Empty(t, v.Selected().AIFeedback)
	assert.Equal(t, "R2", v.Selected().ID)
}

func TestResultsView_BackAndClose(t *testing.T) {
	started := make(chan string, 1)
	v := NewResultsView(&fakeQuizAPI{}, blockingPoller(started), "alice")

	v.Select(pendingResult("R1", "t1"))
	<-started
	v.Back()
	require.NoError(t, v.Wait(waitCtx(t)))
	assert.Nil(t, v.Selected())
	assert.Equal(t, domain.FeedbackNone, v.FeedbackState())

	v.Select(pendingResult("R1", "t1"))
	<-started
	v.Close()

	v.Select(pendingResult("R2", "t2"))
	assert.Equal(t, "R1", v.Selected().ID, "a closed view ignores new selections")
}

func TestResultsView_OnChange(t *testing.T) {
	var mu sync.Mutex
	changes := 0
	v := newTestView(t, &fakeQuizAPI{}, blockingPoller(make(chan string, 1)), WithOnChange(func() {
		mu.Lock()
		changes++
		mu.Unlock()
	}))

	v.Select(&domain.QuizResult{ID: "R1"})
	v.Back()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, changes)
}
