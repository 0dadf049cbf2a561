package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberapp/ember-core/internal/db"
)

// MatchRepository provides data access for match records.
type MatchRepository struct {
	db   *gorm.DB
	feed *Feed
}

// NewMatchRepository creates a repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB, feed *Feed) *MatchRepository {
	return &MatchRepository{db: database, feed: feed}
}

// FindOrCreate returns the match row for an unordered pair, creating it if
// absent. The pair is stored canonically and guarded by a unique index, so
// two concurrent creators converge on a single row: the loser's insert is
// swallowed by DoNothing and the existing row is fetched instead.
//
// The second return value reports whether this call created the row.
func (r *MatchRepository) FindOrCreate(ctx context.Context, userA, userB string) (db.Match, bool, error) {
	u1, u2 := db.OrderPair(userA, userB)
	match := db.Match{User1: u1, User2: u2}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&match)
	if res.Error != nil {
		return db.Match{}, false, res.Error
	}

	if res.RowsAffected == 0 {
		// lost the race or already matched; fetch the existing row
		err := r.db.WithContext(ctx).
			Where("user1 = ? AND user2 = ?", u1, u2).
			First(&match).Error
		return match, false, err
	}

	if r.feed != nil {
		_ = r.feed.Publish(ctx, TableMatches, EventInsert, match)
	}
	return match, true, nil
}

// FindByPair returns the match for an unordered pair, or
// gorm.ErrRecordNotFound.
func (r *MatchRepository) FindByPair(ctx context.Context, userA, userB string) (db.Match, error) {
	u1, u2 := db.OrderPair(userA, userB)
	var match db.Match
	err := r.db.WithContext(ctx).
		Where("user1 = ? AND user2 = ?", u1, u2).
		First(&match).Error
	return match, err
}

// ListForUser returns all matches involving the given user, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user1 = ? OR user2 = ?", userID, userID).
		Order("created_at DESC").
		Find(&matches).Error
	return matches, err
}
