package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/db"
)

// ProfileRepository provides data access for profile rows.
type ProfileRepository struct {
	db   *gorm.DB
	feed *Feed
}

// NewProfileRepository creates a repository bound to the given DB
// connection.
func NewProfileRepository(database *gorm.DB, feed *Feed) *ProfileRepository {
	return &ProfileRepository{db: database, feed: feed}
}

// Create persists a new profile (signup completion).
func (r *ProfileRepository) Create(ctx context.Context, p *db.Profile) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	if r.feed != nil {
		_ = r.feed.Publish(ctx, TableProfiles, EventInsert, *p)
	}
	return nil
}

// FindByID returns a profile by primary key.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, err
}

// FindByEmail returns a profile by its unique email.
func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, "email = ?", email).Error
	return p, err
}

// ListByIDs fetches profiles for a set of ids, used to annotate
// conversation entries with the other party's details.
func (r *ProfileRepository) ListByIDs(ctx context.Context, ids []string) ([]db.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var profiles []db.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error
	return profiles, err
}

/// StampLogin records a successful sign-in: last_login_at plus the session
// expiry window. Presence derivation reads these timestamps.
func (r *ProfileRepository) StampLogin(ctx context.Context, id string, loginAt, expiresAt time.Time) error {
	return r.patch(ctx, id, map[string]any{
		"last_login_at":      loginAt,
		"session_expires_at": expiresAt,
	})
}

// StampLogout records a sign-out.
func (r *ProfileRepository) StampLogout(ctx context.Context, id string, logoutAt time.Time) error {
	return r.patch(ctx, id, map[string]any{
		"last_logout_at": logoutAt,
	})
}

func (r *ProfileRepository) patch(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	if r.feed != nil {
		var p db.Profile
		if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err == nil {
			_ = r.feed.Publish(ctx, TableProfiles, EventUpdate, p)
		}
	}
	return nil
}
