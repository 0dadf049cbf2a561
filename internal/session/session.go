package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/db"
	svcErr "github.com/emberapp/ember-core/internal/errors"
	"github.com/emberapp/ember-core/internal/store"
)

// ErrInvalidCredentials is returned by SignIn for a wrong email/password
// combination. Kept distinct from infrastructure errors so callers can show
// the right message.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Session is the explicit actor context passed into every engine, registry
// and pipeline operation. Created at successful auth, torn down at
// sign-out; never queried ad hoc from global state.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Authenticator owns the sign-up/in/out lifecycle against the profiles
// collection and stamps the presence timestamps the estimator reads.
type Authenticator struct {
	appCtx   *app.AppContext
	profiles *store.ProfileRepository
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthenticator creates an authenticator with the given session TTL.
func NewAuthenticator(appCtx *app.AppContext, ttl time.Duration) *Authenticator {
	return &Authenticator{
		appCtx:   appCtx,
		profiles: store.NewProfileRepository(appCtx.DB, appCtx.Feed),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SignUp creates a profile with a bcrypt-hashed password and returns a live
// session for it.
func (a *Authenticator) SignUp(ctx context.Context, profile db.Profile, password string) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	profile.PasswordHash = string(hash)

	now := a.now()
	expires := now.Add(a.ttl)
	profile.LastLoginAt = &now
	profile.SessionExpiresAt = &expires

	if err := a.profiles.Create(ctx, &profile); err != nil {
		a.appCtx.Logger.Error("sign-up failed", "email", profile.Email, "err", err)
		return nil, svcErr.Map(err)
	}

	return &Session{UserID: profile.ID, Email: profile.Email, ExpiresAt: expires}, nil
}

// SignIn verifies credentials, stamps last_login_at and the session expiry
// on the profile row, and returns the session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (*Session, error) {
	profile, err := a.profiles.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	if err := a.profiles.StampLogin(ctx, profile.ID, now, expires); err != nil {
		return nil, svcErr.Map(err)
	}

	a.appCtx.Logger.Info("signed in", "user", profile.ID)
	return &Session{UserID: profile.ID, Email: profile.Email, ExpiresAt: expires}, nil
}

// CurrentSession resumes the session for a user from the persisted expiry
// stamp, for callers that restart without re-entering credentials. Returns
// ErrNotAuthenticated when the window has lapsed or the user signed out.
func (a *Authenticator) CurrentSession(ctx context.Context, userID string) (*Session, error) {
	profile, err := a.profiles.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotAuthenticated
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}

	now := a.now()
	if profile.SessionExpiresAt == nil || !profile.SessionExpiresAt.After(now) {
		return nil, svcErr.ErrNotAuthenticated
	}
	if profile.LastLogoutAt != nil && profile.LastLoginAt != nil &&
		!profile.LastLoginAt.After(*profile.LastLogoutAt) {
		return nil, svcErr.ErrNotAuthenticated
	}

	return &Session{UserID: profile.ID, Email: profile.Email, ExpiresAt: *profile.SessionExpiresAt}, nil
}

// SignOut stamps last_logout_at and invalidates the session object.
func (a *Authenticator) SignOut(ctx context.Context, sess *Session) error {
	if sess == nil {
		return svcErr.ErrNotAuthenticated
	}
	if err := a.profiles.StampLogout(ctx, sess.UserID, a.now()); err != nil {
		return svcErr.Map(err)
	}
	sess.ExpiresAt = time.Time{}
	return nil
}

// Valid reports whether the session can act as an identity right now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}
