package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"adaptive-learning/internal/config"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/dto"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/metrics"
	"adaptive-learning/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(config.LoggerConfig{Env: "test", Level: "error"}); err != nil {
		panic(err)
	}
	code := m.Run()
	_ = logger.Sync()
	os.Exit(code)
}

type ManualMockAuthService struct {
	ValidateJWTFunc func(ctx context.Context, tokenString string) (*dto.AuthClaims, error)
}

func (m *ManualMockAuthService) Login(context.Context, string, string) (string, error) {
	panic("not implemented in mock")
}

func (m *ManualMockAuthService) CreateJWT(context.Context, string, time.Duration) (string, error) {
	panic("not implemented in mock")
}

func (m *ManualMockAuthService) ValidateJWT(ctx context.Context, tokenString string) (*dto.AuthClaims, error) {
	if m.ValidateJWTFunc != nil {
		return m.ValidateJWTFunc(ctx, tokenString)
	}
	return nil, errors.New("ValidateJWTFunc not set on mock")
}

func TestProtected(t *testing.T) {
	mockAuthSvc := &ManualMockAuthService{
		ValidateJWTFunc: func(_ context.Context, token string) (*dto.AuthClaims, error) {
			if token == "good" {
				return &dto.AuthClaims{Username: "alice", UserID: "u1", Role: "student"}, nil
			}
			return nil, errors.New("invalid jwt token")
		},
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer good", fiber.StatusOK, "alice/u1/student"},
		{"missing header", "", fiber.StatusUnauthorized, "MISSING_AUTH_HEADER"},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized, "INVALID_AUTH_SCHEME"},
		{"empty token", "Bearer ", fiber.StatusUnauthorized, "EMPTY_TOKEN"},
		{"invalid token", "Bearer bad", fiber.StatusUnauthorized, "INVALID_TOKEN"},
	}

	app := fiber.New()
	app.Get("/protected", middleware.Protected(mockAuthSvc), func(c *fiber.Ctx) error {
		return c.SendString(middleware.Username(c) + "/" + c.Locals(middleware.UserIDKey).(string) + "/" + middleware.Role(c))
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, string(body), tt.wantBody)
		})
	}
}

func TestErrorHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{domain.NewQuizNotFoundError("q"), fiber.StatusNotFound},
		{domain.NewNotFoundError("x"), fiber.StatusNotFound},
		{domain.NewValidationError("bad", nil), fiber.StatusBadRequest},
		{domain.NewInvalidInputError("bad"), fiber.StatusBadRequest},
		{domain.NewUnauthorizedError("who"), fiber.StatusUnauthorized},
		{domain.NewForbiddenError("no"), fiber.StatusForbidden},
		{domain.NewLLMServiceError(errors.New("down")), fiber.StatusServiceUnavailable},
		{domain.NewInternalError("boom", nil), fiber.StatusInternalServerError},
		{fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{errors.New("plain"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Metrics(m))
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		if c.Params("id") == "missing" {
			return domain.NewNotFoundError("missing")
		}
		return c.SendString("ok")
	})

	for _, path := range []string{"/items/1", "/items/2", "/items/missing"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/items/:id", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsInFlight))
}
