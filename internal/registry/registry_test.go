package registry

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
	"github.com/emberapp/ember-core/internal/store"
)

func setupRegistry(t *testing.T) (*Registry, *app.AppContext) {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	require.NoError(t, db.SeedMinimalTestData(database))

	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(cfg)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(database, redisCache, store.NewFeed(redisCache), log)
	return New(appCtx), appCtx
}

func TestBuildView_Snapshot(t *testing.T) {
	ctx := context.Background()
	reg, appCtx := setupRegistry(t)

	matches := store.NewMatchRepository(appCtx.DB, nil)
	chats := store.NewChatRepository(appCtx.DB, nil)
	messages := store.NewMessageRepository(appCtx.DB, nil)

	// alice↔bob is a promoted chat with one unread inbound message;
	// alice↔carol is still a bare match
	_, _, err := matches.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)
	chat, _, err := chats.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)
	require.NoError(t, messages.Create(ctx, &db.Message{ChatID: chat.ID, SenderID: "user-bob", Content: "Hey!"}))
	_, _, err = matches.FindOrCreate(ctx, "user-alice", "user-carol")
	require.NoError(t, err)

	view, err := reg.BuildView(ctx, "user-alice")
	require.NoError(t, err)

	entries := view.Entries(FilterAll, time.Now())
	require.Len(t, entries, 2, "a promoted pair appears once, never as match and chat")

	bob, ok := view.Lookup("user-alice", "user-bob")
	require.True(t, ok)
	assert.Equal(t, KindChat, bob.Kind)
	assert.Equal(t, "Hey!", bob.Preview)
	assert.Equal(t, 1, bob.Unread)
	assert.Equal(t, "Bob", bob.Other.FullName)

	carol, ok := view.Lookup("user-alice", "user-carol")
	require.True(t, ok)
	assert.Equal(t, KindNewMatch, carol.Kind)
	assert.Equal(t, HelloPreview, carol.Preview)

	// the badge counter is warmed from the snapshot
	cached, found, err := appCtx.RedisCache.GetCount(ctx, appCtx.RedisCache.KeyForUnreadCount(chat.ID, "user-alice"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), cached)
}

func TestBuildView_RequiresUser(t *testing.T) {
	reg, _ := setupRegistry(t)
	_, err := reg.BuildView(context.Background(), "")
	assert.Error(t, err)
}

func TestHandle_LiveEventsConverge(t *testing.T) {
	ctx := context.Background()
	reg, appCtx := setupRegistry(t)

	h, err := reg.Open(ctx, "user-alice")
	require.NoError(t, err)
	defer h.Close()
	require.Empty(t, h.View(FilterAll))

	matches := store.NewMatchRepository(appCtx.DB, appCtx.Feed)
	chats := store.NewChatRepository(appCtx.DB, appCtx.Feed)
	messages := store.NewMessageRepository(appCtx.DB, appCtx.Feed)

	// a fresh match streams in as a new-match entry
	_, _, err = matches.FindOrCreate(ctx, "user-bob", "user-alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e, ok := h.Lookup("user-alice", "user-bob")
		return ok && e.Kind == KindNewMatch
	}, 2*time.Second, 20*time.Millisecond)

	// chat creation promotes the same entry in place
	chat, _, err := chats.FindOrCreate(ctx, "user-bob", "user-alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e, ok := h.Lookup("user-alice", "user-bob")
		return ok && e.Kind == KindChat
	}, 2*time.Second, 20*time.Millisecond)
	assert.Len(t, h.View(FilterAll), 1)

	// an inbound message updates preview and unread
	require.NoError(t, messages.Create(ctx, &db.Message{ChatID: chat.ID, SenderID: "user-bob", Content: "Hey!"}))
	require.Eventually(t, func() bool {
		e, _ := h.Lookup("user-alice", "user-bob")
		return e.Preview == "Hey!" && e.Unread == 1
	}, 2*time.Second, 20*time.Millisecond)

	// marking read streams update events that clear the badge
	_, err = messages.MarkRead(ctx, chat.ID, "user-alice")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		e, _ := h.Lookup("user-alice", "user-bob")
		return e.Unread == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHandle_SnapshotOverlapsStream(t *testing.T) {
	ctx := context.Background()
	reg, appCtx := setupRegistry(t)

	matches := store.NewMatchRepository(appCtx.DB, nil)
	chats := store.NewChatRepository(appCtx.DB, nil)
	messages := store.NewMessageRepository(appCtx.DB, nil)

	match, _, err := matches.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)
	chat, _, err := chats.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)
	msg := db.Message{ChatID: chat.ID, SenderID: "user-bob", Content: "Hey!"}
	require.NoError(t, messages.Create(ctx, &msg))

	// the handle subscribes before snapshotting, so rows committed around
	// Open can arrive through both sources
	h, err := reg.Open(ctx, "user-alice")
	require.NoError(t, err)
	defer h.Close()

	// redeliver every insert the snapshot already merged
	require.NoError(t, appCtx.Feed.Publish(ctx, store.TableMatches, store.EventInsert, match))
	require.NoError(t, appCtx.Feed.Publish(ctx, store.TableChats, store.EventInsert, chat))
	require.NoError(t, appCtx.Feed.Publish(ctx, store.TableMessages, store.EventInsert, msg))

	time.Sleep(300 * time.Millisecond)
	entries := h.View(FilterAll)
	require.Len(t, entries, 1, "overlapping sources must not duplicate the pair")
	assert.Equal(t, KindChat, entries[0].Kind)
	assert.Equal(t, "Hey!", entries[0].Preview)
	assert.Equal(t, 1, entries[0].Unread, "replayed insert must not double count")
}

func TestHandle_MessageBeforeChatHeals(t *testing.T) {
	ctx := context.Background()
	reg, appCtx := setupRegistry(t)

	h, err := reg.Open(ctx, "user-alice")
	require.NoError(t, err)
	defer h.Close()

	// write the chat and message without publishing, then publish only the
	// chat insert; hydration on the chat event must pick the message up
	chats := store.NewChatRepository(appCtx.DB, nil)
	messages := store.NewMessageRepository(appCtx.DB, nil)
	chat, _, err := chats.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)
	require.NoError(t, messages.Create(ctx, &db.Message{ChatID: chat.ID, SenderID: "user-bob", Content: "early bird"}))

	require.NoError(t, appCtx.Feed.Publish(ctx, store.TableChats, store.EventInsert, chat))
	require.Eventually(t, func() bool {
		e, ok := h.Lookup("user-alice", "user-bob")
		return ok && e.Preview == "early bird" && e.Unread == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestChatFor(t *testing.T) {
	ctx := context.Background()
	reg, appCtx := setupRegistry(t)

	_, err := reg.ChatFor(ctx, "user-alice", "user-bob")
	assert.Error(t, err)

	chats := store.NewChatRepository(appCtx.DB, nil)
	created, _, err := chats.FindOrCreate(ctx, "user-alice", "user-bob")
	require.NoError(t, err)

	got, err := reg.ChatFor(ctx, "user-bob", "user-alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}
