package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberapp/ember-core/internal/db"
)

// ChatRepository provides data access for conversation containers.
type ChatRepository struct {
	db   *gorm.DB
	feed *Feed
}

// NewChatRepository creates a repository bound to the given DB connection.
func NewChatRepository(database *gorm.DB, feed *Feed) *ChatRepository {
	return &ChatRepository{db: database, feed: feed}
}

// FindOrCreate returns the single chat for an unordered pair, creating it
// if absent. Same insert-if-absent discipline as MatchRepository: canonical
// pair + unique index + DoNothing, so concurrent creators (both parties
// liking each other near-simultaneously) end up sharing one chat.
func (r *ChatRepository) FindOrCreate(ctx context.Context, userA, userB string) (db.Chat, bool, error) {
	u1, u2 := db.OrderPair(userA, userB)
	chat := db.Chat{User1: u1, User2: u2}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&chat)
	if res.Error != nil {
		return db.Chat{}, false, res.Error
	}

	if res.RowsAffected == 0 {
		err := r.db.WithContext(ctx).
			Where("user1 = ? AND user2 = ?", u1, u2).
			First(&chat).Error
		return chat, false, err
	}

	if r.feed != nil {
		_ = r.feed.Publish(ctx, TableChats, EventInsert, chat)
	}
	return chat, true, nil
}

// FindByID returns a chat by primary key.
func (r *ChatRepository) FindByID(ctx context.Context, chatID uint64) (db.Chat, error) {
	var chat db.Chat
	err := r.db.WithContext(ctx).First(&chat, chatID).Error
	return chat, err
}

// FindByPair returns the chat for an unordered pair, or
// gorm.ErrRecordNotFound when the pair has not been promoted yet.
func (r *ChatRepository) FindByPair(ctx context.Context, userA, userB string) (db.Chat, error) {
	u1, u2 := db.OrderPair(userA, userB)
	var chat db.Chat
	err := r.db.WithContext(ctx).
		Where("user1 = ? AND user2 = ?", u1, u2).
		First(&chat).Error
	return chat, err
}

// ListForUser returns all chats the user participates in, newest first.
func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]db.Chat, error) {
	var chats []db.Chat
	err := r.db.WithContext(ctx).
		Where("user1 = ? OR user2 = ?", userID, userID).
		Order("created_at DESC").
		Find(&chats).Error
	return chats, err
}
