package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"adaptive-learning/internal/adapter"
	"adaptive-learning/internal/domain"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestManager(store domain.Cache) *Manager {
	return NewManager(store, 24*time.Hour, WithClock(func() time.Time { return fixedNow }))
}

func TestManager_LoginRestoreLogout(t *testing.T) {
	store := adapter.NewMemoryCache()
	ctx := context.Background()
	token := signToken(t, jwt.MapClaims{
		"username": "alice",
		"user_id":  "u-1",
		"role":     "student",
		"exp":      fixedNow.Add(time.Hour).Unix(),
	})

	m := newTestManager(store)
	sess, err := m.Login(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Username)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Equal(t, "student", sess.Role)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), sess.ExpiresAt.Unix())

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, token, tok.AccessToken)

	// A fresh manager over the same store picks the session up.
	restored, err := newTestManager(store).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", restored.Username)

	require.NoError(t, m.Logout(ctx))
	assert.Nil(t, m.Current())
	_, err = m.Token()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = newTestManager(store).Restore(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_UserIDFallsBackToUsername(t *testing.T) {
	m := newTestManager(adapter.NewMemoryCache())
	sess, err := m.Login(context.Background(), signToken(t, jwt.MapClaims{"sub": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, "bob", sess.Username)
	assert.Equal(t, "bob", sess.UserID)
	assert.True(t, sess.ExpiresAt.IsZero())
}

func TestManager_LoginRejects(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"malformed", func(*testing.T) string { return "not-a-jwt" }},
		{"no username", func(t *testing.T) string { return signToken(t, jwt.MapClaims{"role": "student"}) }},
		{"expired", func(t *testing.T) string {
			return signToken(t, jwt.MapClaims{"username": "alice", "exp": fixedNow.Add(-time.Minute).Unix()})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(adapter.NewMemoryCache())
			_, err := m.Login(context.Background(), tt.token(t))
			assert.True(t, domain.IsCode(err, domain.ErrUnauthorized))
			assert.Nil(t, m.Current())
		})
	}
}

func TestManager_RestoreDropsExpiredSession(t *testing.T) {
	store := adapter.NewMemoryCache()
	ctx := context.Background()
	stale, err := json.Marshal(domain.Session{Token: "t", Username: "alice", ExpiresAt: fixedNow.Add(-time.Second)})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, sessionKey(DefaultProfile), string(stale), 0))

	_, err = newTestManager(store).Restore(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = store.Get(ctx, sessionKey(DefaultProfile))
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestManager_ProfilesAreIsolated(t *testing.T) {
	store := adapter.NewMemoryCache()
	ctx := context.Background()

	work := NewManager(store, time.Hour, WithProfile("work"), WithClock(func() time.Time { return fixedNow }))
	_, err := work.Login(ctx, signToken(t, jwt.MapClaims{"username": "alice"}))
	require.NoError(t, err)

	_, err = newTestManager(store).Restore(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_RedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := newTestManager(adapter.NewRedisCacheAdapter(db))
	ctx := context.Background()

	token := signToken(t, jwt.MapClaims{"username": "carol", "exp": fixedNow.Add(30 * time.Minute).Unix()})
	sess, err := sessionFromToken(token)
	require.NoError(t, err)
	payload, err := json.Marshal(sess)
	require.NoError(t, err)

	// TTL is capped by the token expiry.
	mock.ExpectSet(sessionKey(DefaultProfile), string(payload), 30*time.Minute).SetVal("OK")
	_, err = m.Login(ctx, token)
	require.NoError(t, err)

	mock.ExpectGet(sessionKey(DefaultProfile)).SetVal(string(payload))
	restored, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "carol", restored.Username)

	mock.ExpectDel(sessionKey(DefaultProfile)).SetVal(1)
	require.NoError(t, m.Logout(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}
