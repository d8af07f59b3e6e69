package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/dto"
	"adaptive-learning/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	RequestIDHeader = "X-Request-ID"

	defaultTimeout = 15 * time.Second
)

// APIError is a non-2xx answer from the quiz API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("quiz api returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// StatusOf returns the HTTP status of an APIError in err's chain, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client talks JSON over HTTP to the quiz API. It implements domain.QuizAPI.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// anonClient skips the token source, for Login.
	anonClient *http.Client
	now        func() time.Time
}

var _ domain.QuizAPI = (*Client)(nil)

type Option func(*clientOptions)

type clientOptions struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	timeout     time.Duration
	now         func() time.Time
}

// WithHTTPClient replaces the underlying HTTP client. Its transport is still wrapped
// when a token source is configured.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *clientOptions) { o.tokenSource = ts }
}

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithClock overrides the clock used for the results cache-buster.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// New creates a Client for baseURL, e.g. http://localhost:8090/api.
func New(baseURL string, opts ...Option) *Client {
	o := clientOptions{timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{Timeout: o.timeout}
	if o.httpClient != nil {
		copied := *o.httpClient
		httpClient = &copied
	}
	anonClient := httpClient
	if o.tokenSource != nil {
		authed := *httpClient
		httpClient = &authed
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient.Transport = &oauth2.Transport{Source: o.tokenSource, Base: base}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		anonClient: anonClient,
		now:        o.now,
	}
}

// SubmitQuiz posts a completed attempt and returns the graded result.
func (c *Client) SubmitQuiz(ctx context.Context, submission *domain.QuizSubmission) (*domain.QuizResult, error) {
	var resp dto.QuizResultResponse
	if err := c.do(ctx, http.MethodPost, "/quiz/submit-quiz", dto.NewSubmitQuizRequest(submission), &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// GetFeedbackStatus reads the state of a feedback task.
func (c *Client) GetFeedbackStatus(ctx context.Context, taskID string) (*domain.FeedbackStatus, error) {
	var resp dto.FeedbackStatusResponse
	if err := c.do(ctx, http.MethodGet, "/quiz/feedback-status/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.ToDomain(), nil
}

// GetUserResults lists a user's results. A timestamp query parameter defeats intermediate caches.
func (c *Client) GetUserResults(ctx context.Context, username string) ([]*domain.QuizResult, error) {
	path := "/quiz/user-results/" + url.PathEscape(username) + "?t=" + strconv.FormatInt(c.now().UnixMilli(), 10)

	var resp []dto.QuizResultResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	results := make([]*domain.QuizResult, 0, len(resp))
	for _, r := range resp {
		results = append(results, r.ToDomain())
	}
	return results, nil
}

// ClearQuizCache asks the server to drop its cached quiz, result and feedback entries.
func (c *Client) ClearQuizCache(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/quiz/clear-quiz-cache", struct{}{}, nil)
}

// GetQuiz fetches a quiz definition.
func (c *Client) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	var resp dto.QuizResponse
	if err := c.do(ctx, http.MethodGet, "/quiz/quiz/"+url.PathEscape(quizID), nil, &resp); err != nil {
		if StatusOf(err) == http.StatusNotFound {
			return nil, domain.NewQuizNotFoundError(quizID)
		}
		return nil, err
	}
	return resp.ToDomain(), nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp dto.LoginResponse
	req := dto.LoginRequest{Username: username, Password: password}
	if err := c.send(ctx, c.anonClient, http.MethodPost, "/login", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.send(ctx, c.httpClient, method, path, body, out)
}

func (c *Client) send(ctx context.Context, httpClient *http.Client, method, path string, body, out any) error {
	l := logger.Get()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		l.Debug("quiz api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	l.Debug("quiz api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp dto.ErrorResponse
	message := ""
	if json.Unmarshal(raw, &errResp) == nil {
		message = errResp.Text()
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: message}
}
