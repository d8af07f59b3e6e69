package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"adaptive-learning/internal/cache"
	"adaptive-learning/internal/domain"
	"adaptive-learning/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const DefaultProfile = "default"

// ErrNotLoggedIn is returned when no usable session exists.
var ErrNotLoggedIn = domain.NewUnauthorizedError("not logged in")

// Manager owns the current login session and persists it in a domain.Cache.
// It doubles as the oauth2.TokenSource for the API client.
type Manager struct {
	store domain.Cache
	key   string
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	current *domain.Session
}

var _ oauth2.TokenSource = (*Manager)(nil)

type Option func(*Manager)

// WithProfile stores the session under a named profile instead of DefaultProfile.
func WithProfile(profile string) Option {
	return func(m *Manager) {
		if profile != "" {
			m.key = sessionKey(profile)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store domain.Cache, ttl time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		key:   sessionKey(DefaultProfile),
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sessionKey(profile string) string {
	return cache.GenerateCacheKey("quizctl", "session", profile)
}

// Login records token as the current session. Identity and expiry come from the token's claims;
// the token is not verified here, the server does that on every request.
func (m *Manager) Login(ctx context.Context, token string) (*domain.Session, error) {
	sess, err := sessionFromToken(token)
	if err != nil {
		return nil, err
	}
	if !sess.Valid(m.now()) {
		return nil, domain.NewUnauthorizedError("token already expired")
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, domain.NewInternalError("failed to encode session", err)
	}
	if err := m.store.Set(ctx, m.key, string(payload), m.expiration(sess)); err != nil {
		return nil, domain.NewInternalError("failed to persist session", err)
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	logger.Get().Info("Logged in", zap.String("username", sess.Username), zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// Restore loads a persisted session. Expired or unreadable sessions are deleted and
// reported as ErrNotLoggedIn.
func (m *Manager) Restore(ctx context.Context) (*domain.Session, error) {
	raw, err := m.store.Get(ctx, m.key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, ErrNotLoggedIn
		}
		return nil, domain.NewInternalError("failed to read session", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || !sess.Valid(m.now()) {
		l := logger.Get()
		if err != nil {
			l.Warn("Discarding unreadable session", zap.Error(err))
		} else {
			l.Info("Discarding expired session", zap.String("username", sess.Username))
		}
		if delErr := m.store.Delete(ctx, m.key); delErr != nil {
			l.Warn("Failed to delete stale session", zap.Error(delErr))
		}
		return nil, ErrNotLoggedIn
	}

	m.mu.Lock()
	m.current = &sess
	m.mu.Unlock()
	return &sess, nil
}

// Logout forgets the session both in memory and in the store.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Delete(ctx, m.key); err != nil {
		return domain.NewInternalError("failed to delete session", err)
	}
	return nil
}

// Current returns a copy of the in-memory session, or nil.
func (m *Manager) Current() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}

// Token implements oauth2.TokenSource.
func (m *Manager) Token() (*oauth2.Token, error) {
	sess := m.Current()
	if !sess.Valid(m.now()) {
		return nil, ErrNotLoggedIn
	}
	return &oauth2.Token{
		AccessToken: sess.Token,
		TokenType:   "Bearer",
		Expiry:      sess.ExpiresAt,
	}, nil
}

func (m *Manager) expiration(sess *domain.Session) time.Duration {
	ttl := m.ttl
	if !sess.ExpiresAt.IsZero() {
		if untilExpiry := sess.ExpiresAt.Sub(m.now()); ttl <= 0 || untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

func sessionFromToken(token string) (*domain.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, domain.NewError(domain.ErrUnauthorized, "malformed token", err)
	}

	sess := &domain.Session{Token: token}
	sess.Username = stringClaim(claims, "username")
	if sess.Username == "" {
		sess.Username, _ = claims.GetSubject()
	}
	if sess.Username == "" {
		return nil, domain.NewUnauthorizedError("token carries no username")
	}
	sess.UserID = stringClaim(claims, "user_id")
	if sess.UserID == "" {
		sess.UserID = sess.Username
	}
	sess.Role = stringClaim(claims, "role")

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, domain.NewError(domain.ErrUnauthorized, "malformed exp claim", err)
	}
	if exp != nil {
		sess.ExpiresAt = exp.Time
	}
	return sess, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}
