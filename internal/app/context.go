package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/cache"
	"github.com/emberapp/ember-core/internal/store"
)

// AppContext holds shared dependencies (DB, Redis, changefeed, Logger).
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Feed       *store.Feed
	Logger     *slog.Logger
}

// New creates a new AppContext
func New(db *gorm.DB, rdb *cache.RedisCache, feed *store.Feed, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Feed:       feed,
		Logger:     logger,
	}
}
