package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/db"
)

// MessageRepository provides data access for chat messages.
type MessageRepository struct {
	db   *gorm.DB
	feed *Feed
}

// NewMessageRepository creates a repository bound to the given DB
// connection.
func NewMessageRepository(database *gorm.DB, feed *Feed) *MessageRepository {
	return &MessageRepository{db: database, feed: feed}
}

// Create persists a message and publishes its insert event. The caller's
// struct is filled in with the authoritative ID and CreatedAt, which the
// pipeline uses to replace its optimistic placeholder.
func (r *MessageRepository) Create(ctx context.Context, msg *db.Message) error {
	if msg.Type == "" {
		msg.Type = db.MessageTypeText
	}
	if msg.Status == "" {
		msg.Status = db.MessageStatusSent
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	if r.feed != nil {
		_ = r.feed.Publish(ctx, TableMessages, EventInsert, *msg)
	}
	return nil
}

// ListForChat returns all messages in a chat ordered by created_at
// ascending, ID as tiebreak.
func (r *MessageRepository) ListForChat(ctx context.Context, chatID uint64) ([]db.Message, error) {
	var messages []db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// LatestForChat returns the most recent message in a chat, or nil when the
// chat has no messages yet.
func (r *MessageRepository) LatestForChat(ctx context.Context, chatID uint64) (*db.Message, error) {
	var msg db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountUnread counts messages in a chat still in `sent` status that were
// authored by someone other than the viewer.
func (r *MessageRepository) CountUnread(ctx context.Context, chatID uint64, viewerID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ? AND status = ? AND sender_id <> ?", chatID, db.MessageStatusSent, viewerID).
		Count(&count).Error
	return count, err
}

// ListUnreadIDs returns the ids of unread inbound messages in a chat,
// used to seed the conversation view's unread set from a snapshot.
func (r *MessageRepository) ListUnreadIDs(ctx context.Context, chatID uint64, viewerID string) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("chat_id = ? AND status = ? AND sender_id <> ?", chatID, db.MessageStatusSent, viewerID).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkRead advances every inbound `sent` message in the chat to `read` in
// one batch and publishes an update event per advanced row. Calling it when
// nothing is unread is a no-op. Status never moves backward: already-read
// rows are untouched by the WHERE clause.
func (r *MessageRepository) MarkRead(ctx context.Context, chatID uint64, readerID string) ([]db.Message, error) {
	var pending []db.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND status = ? AND sender_id <> ?", chatID, db.MessageStatusSent, readerID).
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]uint64, len(pending))
	for i, m := range pending {
		ids[i] = m.ID
	}

	err = r.db.WithContext(ctx).
		Model(&db.Message{}).
		Where("id IN ? AND status = ?", ids, db.MessageStatusSent).
		Update("status", db.MessageStatusRead).Error
	if err != nil {
		return nil, err
	}

	for i := range pending {
		pending[i].Status = db.MessageStatusRead
		if r.feed != nil {
			_ = r.feed.Publish(ctx, TableMessages, EventUpdate, pending[i])
		}
	}
	return pending, nil
}
