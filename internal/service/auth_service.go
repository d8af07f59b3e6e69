package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/dto"
	"adaptive-learning/internal/logger"
	"adaptive-learning/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	RoleStudent     = "student"
	DefaultTokenTTL = time.Hour
)

var ErrInvalidJWTToken = errors.New("invalid jwt token")

// AuthService issues and checks the bearer tokens of the stub quiz API.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
	CreateJWT(ctx context.Context, username string, ttl time.Duration) (string, error)
	ValidateJWT(ctx context.Context, tokenString string) (*dto.AuthClaims, error)
}

type authServiceImpl struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	userIDs map[string]string
}

// NewAuthService creates an AuthService signing with secret.
func NewAuthService(secret string, ttl time.Duration) (AuthService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &authServiceImpl{
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
		userIDs: make(map[string]string),
	}, nil
}

// Login accepts any non-empty credentials. There is no user store behind the stub.
func (s *authServiceImpl) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", domain.NewUnauthorizedError("username and password are required")
	}
	token, err := s.CreateJWT(ctx, username, s.ttl)
	if err != nil {
		return "", domain.NewInternalError("Failed to issue token", err)
	}
	logger.Get().Info("User logged in", zap.String("username", username))
	return token, nil
}

func (s *authServiceImpl) CreateJWT(ctx context.Context, username string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := dto.AuthClaims{
		Username: username,
		UserID:   s.userID(username),
		Role:     RoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *authServiceImpl) ValidateJWT(ctx context.Context, tokenString string) (*dto.AuthClaims, error) {
	appLogger := logger.Get()
	token, err := jwt.ParseWithClaims(tokenString, &dto.AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			appLogger.Warn("JWT token expired", zap.Error(err))
		} else {
			appLogger.Warn("JWT validation failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWTToken, err)
	}

	if claims, ok := token.Claims.(*dto.AuthClaims); ok && token.Valid && claims.Username != "" {
		return claims, nil
	}
	return nil, ErrInvalidJWTToken
}

// userID keeps a stable id per username for the lifetime of the process.
func (s *authServiceImpl) userID(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.userIDs[username]
	if !ok {
		id = util.NewULID()
		s.userIDs[username] = id
	}
	return id
}
