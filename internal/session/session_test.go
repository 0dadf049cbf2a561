package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/cache"
	"github.com/emberapp/ember-core/internal/config"
	"github.com/emberapp/ember-core/internal/db"
	svcErr "github.com/emberapp/ember-core/internal/errors"
	"github.com/emberapp/ember-core/internal/session"
	"github.com/emberapp/ember-core/internal/store"
)

func setupAuth(t *testing.T) (*session.Authenticator, *gorm.DB) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))

	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(database, redisCache, store.NewFeed(redisCache), log)
	return session.NewAuthenticator(appCtx, time.Hour), database
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	auth, database := setupAuth(t)

	sess, err := auth.SignUp(ctx, db.Profile{FullName: "Alice", Email: "alice@test.com"}, "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, sess.UserID)
	assert.Equal(t, "alice@test.com", sess.Email)
	assert.True(t, sess.Valid(time.Now()))

	var p db.Profile
	require.NoError(t, database.First(&p, "id = ?", sess.UserID).Error)
	assert.NotEqual(t, "s3cret", p.PasswordHash, "password must be hashed")
	require.NotNil(t, p.LastLoginAt)
	require.NotNil(t, p.SessionExpiresAt)
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	auth, database := setupAuth(t)

	created, err := auth.SignUp(ctx, db.Profile{FullName: "Alice", Email: "alice@test.com"}, "s3cret")
	require.NoError(t, err)

	sess, err := auth.SignIn(ctx, "alice@test.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, sess.UserID)
	assert.True(t, sess.Valid(time.Now()))

	var p db.Profile
	require.NoError(t, database.First(&p, "id = ?", sess.UserID).Error)
	require.NotNil(t, p.LastLoginAt)
	assert.WithinDuration(t, time.Now(), *p.LastLoginAt, 5*time.Second)
}

func TestSignIn_BadCredentials(t *testing.T) {
	ctx := context.Background()
	auth, _ := setupAuth(t)

	_, err := auth.SignUp(ctx, db.Profile{FullName: "Alice", Email: "alice@test.com"}, "s3cret")
	require.NoError(t, err)

	_, err = auth.SignIn(ctx, "alice@test.com", "wrong")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	// unknown email gets the same error, not a not-found leak
	_, err = auth.SignIn(ctx, "nobody@test.com", "s3cret")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	auth, database := setupAuth(t)

	sess, err := auth.SignUp(ctx, db.Profile{FullName: "Alice", Email: "alice@test.com"}, "s3cret")
	require.NoError(t, err)

	require.NoError(t, auth.SignOut(ctx, sess))
	assert.False(t, sess.Valid(time.Now()), "session is dead after sign-out")

	var p db.Profile
	require.NoError(t, database.First(&p, "id = ?", sess.UserID).Error)
	require.NotNil(t, p.LastLogoutAt)

	assert.ErrorIs(t, auth.SignOut(ctx, nil), svcErr.ErrNotAuthenticated)
}

func TestCurrentSession(t *testing.T) {
	ctx := context.Background()
	auth, _ := setupAuth(t)

	sess, err := auth.SignUp(ctx, db.Profile{FullName: "Alice", Email: "alice@test.com"}, "s3cret")
	require.NoError(t, err)

	// resumable while the window is open
	resumed, err := auth.CurrentSession(ctx, sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, resumed.UserID)
	assert.Equal(t, "alice@test.com", resumed.Email)

	// sign-out ends it
	require.NoError(t, auth.SignOut(ctx, sess))
	_, err = auth.CurrentSession(ctx, sess.UserID)
	assert.ErrorIs(t, err, svcErr.ErrNotAuthenticated)

	// unknown user is not authenticated either
	_, err = auth.CurrentSession(ctx, "missing")
	assert.ErrorIs(t, err, svcErr.ErrNotAuthenticated)
}

func TestSessionValid(t *testing.T) {
	now := time.Now()

	var nilSess *session.Session
	assert.False(t, nilSess.Valid(now))

	live := &session.Session{UserID: "u", ExpiresAt: now.Add(time.Minute)}
	assert.True(t, live.Valid(now))

	lapsed := &session.Session{UserID: "u", ExpiresAt: now.Add(-time.Minute)}
	assert.False(t, lapsed.Valid(now))
}
