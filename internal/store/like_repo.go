package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberapp/ember-core/internal/db"
	"github.com/emberapp/ember-core/internal/utils/pagination"
)

// LikeRepository provides data access for the directed like edges.
type LikeRepository struct {
	db   *gorm.DB
	feed *Feed
}

// NewLikeRepository creates a repository bound to the given DB connection.
// feed may be nil, in which case writes emit no change events.
func NewLikeRepository(database *gorm.DB, feed *Feed) *LikeRepository {
	return &LikeRepository{db: database, feed: feed}
}

// Create records a directed like edge idempotently.
//
// Behavior:
//   - If (actor_id, recipient_id) already exists → no-op (composite PK +
//     DoNothing), so double-submission never creates two edges.
//   - On a fresh insert an insert event is published to the changefeed.
func (r *LikeRepository) Create(ctx context.Context, actorID, recipientID string) error {
	like := db.Like{
		ActorID:     actorID,
		RecipientID: recipientID,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 && r.feed != nil {
		_ = r.feed.Publish(ctx, TableLikes, EventInsert, like)
	}
	return nil
}

// Delete removes the directed edge and publishes a delete event when a row
// was actually removed. Removing an absent edge is a no-op.
func (r *LikeRepository) Delete(ctx context.Context, actorID, recipientID string) error {
	res := r.db.WithContext(ctx).
		Where("actor_id = ? AND recipient_id = ?", actorID, recipientID).
		Delete(&db.Like{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 && r.feed != nil {
		like := db.Like{ActorID: actorID, RecipientID: recipientID}
		_ = r.feed.Publish(ctx, TableLikes, EventDelete, like)
	}
	return nil
}

// Exists checks whether actor has liked recipient. Used for the mutual-like
// check when a like comes in.
func (r *LikeRepository) Exists(ctx context.Context, actorID, recipientID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("actor_id = ? AND recipient_id = ?", actorID, recipientID).
		Count(&count).Error
	return count > 0, err
}

// ListLikers returns users who liked the given recipient, newest first,
// excluding pairs that already matched (their entry lives in the
// conversation view instead).
//
// Supports cursor-based pagination via paginationToken.
func (r *LikeRepository) ListLikers(
	ctx context.Context,
	recipientID string,
	paginationToken *string,
	limit int,
) ([]db.Like, *string, error) {
	var likes []db.Like

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.recipient_id = ?", recipientID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM likes l2
				WHERE l2.actor_id = ?
				  AND l2.recipient_id = l.actor_id
			)`, recipientID).
		Order("l.created_at DESC, l.actor_id DESC").
		Limit(limit + 1)

	// apply cursor
	if cursor.ActorID != "" && cursor.CreatedUnix > 0 {
		ts := time.UnixMilli(cursor.CreatedUnix)
		query = query.Where(
			"(l.created_at < ? OR (l.created_at = ? AND l.actor_id < ?))",
			ts, ts, cursor.ActorID,
		)
	}

	if err := query.Find(&likes).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(likes) > limit {
		last := likes[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ActorID:     last.ActorID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		likes = likes[:limit]
	}

	return likes, nextToken, nil
}

// CountLikers returns how many users liked the given recipient and have not
// been liked back yet. Used with the Redis counter cache (DB is fallback).
func (r *LikeRepository) CountLikers(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.recipient_id = ?", recipientID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM likes l2
				WHERE l2.actor_id = ?
				  AND l2.recipient_id = l.actor_id
			)`, recipientID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
