package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adaptive-learning/internal/config"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/metrics"

	"go.uber.org/zap"
)

// FeedbackOutcome is the terminal state a poll loop ended in.
type FeedbackOutcome struct {
	State    domain.FeedbackState
	Feedback string
	// Message is the user-visible text for failed and gave_up outcomes.
	Message  string
	Attempts int
}

// FeedbackPoller polls a feedback task until it reaches a terminal state.
type FeedbackPoller interface {
	// Poll returns the outcome together with a FEEDBACK_FAILED or FEEDBACK_TIMEOUT error for
	// unsuccessful outcomes. If ctx is cancelled it returns a nil outcome and ctx.Err().
	Poll(ctx context.Context, taskID string) (*FeedbackOutcome, error)
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type feedbackPoller struct {
	api     domain.QuizAPI
	cfg     config.PollConfig
	sleep   Sleeper
	metrics *metrics.Metrics
}

type PollerOption func(*feedbackPoller)

func WithSleeper(s Sleeper) PollerOption {
	return func(p *feedbackPoller) { p.sleep = s }
}

func WithPollerMetrics(m *metrics.Metrics) PollerOption {
	return func(p *feedbackPoller) { p.metrics = m }
}

// NewFeedbackPoller creates a FeedbackPoller. Zero fields of cfg fall back to config.PollDefaults,
// except MaxAttempts and Timeout where zero means unbounded.
func NewFeedbackPoller(api domain.QuizAPI, cfg config.PollConfig, opts ...PollerOption) FeedbackPoller {
	defaults := config.PollDefaults()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.MaxInterval <= 0 || cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}

	p := &feedbackPoller{api: api, cfg: cfg, sleep: sleepContext}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll implements FeedbackPoller
func (p *feedbackPoller) Poll(ctx context.Context, taskID string) (*FeedbackOutcome, error) {
	l := logger.Get().With(zap.String("task_id", taskID))
	start := time.Now()

	pollCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	finish := func(out *FeedbackOutcome, err error) (*FeedbackOutcome, error) {
		p.metrics.RecordFeedbackOutcome(string(out.State), time.Since(start))
		return out, err
	}
	gaveUp := func(attempts int) (*FeedbackOutcome, error) {
		l.Warn("Giving up on feedback task", zap.Int("attempts", attempts), zap.Duration("waited", time.Since(start)))
		return finish(&FeedbackOutcome{
			State:    domain.FeedbackGaveUp,
			Message:  domain.MsgFeedbackGaveUp,
			Attempts: attempts,
		}, domain.NewFeedbackTimeoutError(taskID, attempts))
	}

	delay := p.cfg.InitialInterval
	for attempt := 1; ; attempt++ {
		status, err := p.api.GetFeedbackStatus(pollCtx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if pollCtx.Err() != nil {
				return gaveUp(attempt - 1)
			}
			p.metrics.RecordPoll("network_error")
			l.Warn("Feedback status request failed", zap.Int("attempt", attempt), zap.Error(err))
			return finish(&FeedbackOutcome{
				State:    domain.FeedbackFailed,
				Message:  domain.MsgFeedbackFetch,
				Attempts: attempt,
			}, domain.NewFeedbackFailedError(domain.MsgFeedbackFetch, err))
		}
		p.metrics.RecordPoll(string(status.Status))

		switch status.Status {
		case domain.TaskCompleted:
			if status.Feedback == "" {
				return finish(&FeedbackOutcome{
					State:    domain.FeedbackFailed,
					Message:  domain.MsgFeedbackFailed,
					Attempts: attempt,
				}, domain.NewFeedbackFailedError(domain.MsgFeedbackFailed,
					fmt.Errorf("task %s completed without feedback", taskID)))
			}
			l.Info("Feedback ready", zap.Int("attempts", attempt))
			return finish(&FeedbackOutcome{
				State:    domain.FeedbackAvailable,
				Feedback: status.Feedback,
				Attempts: attempt,
			}, nil)

		case domain.TaskProcessing:
			if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
				return gaveUp(attempt)
			}
			l.Debug("Feedback still processing", zap.Int("attempt", attempt), zap.Duration("next_poll_in", delay))
			if err := p.sleep(pollCtx, delay); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return gaveUp(attempt)
			}
			delay = p.nextDelay(delay)

		default:
			cause := fmt.Errorf("task %s reported status %q", taskID, status.Status)
			if status.Error != "" {
				cause = fmt.Errorf("%w: %s", cause, status.Error)
			}
			if !status.Status.Known() {
				l.Warn("Unrecognized feedback status", zap.String("status", string(status.Status)))
			}
			return finish(&FeedbackOutcome{
				State:    domain.FeedbackFailed,
				Message:  domain.MsgFeedbackFailed,
				Attempts: attempt,
			}, domain.NewFeedbackFailedError(domain.MsgFeedbackFailed, cause))
		}
	}
}

func (p *feedbackPoller) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * p.cfg.Multiplier)
	if next > p.cfg.MaxInterval {
		return p.cfg.MaxInterval
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsGaveUp reports whether err is the bounded-retry exhaustion error.
func IsGaveUp(err error) bool {
	return domain.IsCode(err, domain.ErrFeedbackTimeout)
}

// IsCancelled reports whether err only means the caller stopped waiting.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
