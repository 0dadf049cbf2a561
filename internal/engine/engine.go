package engine

import (
	"context"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/db"
	svcErr "github.com/emberapp/ember-core/internal/errors"
	"github.com/emberapp/ember-core/internal/session"
	"github.com/emberapp/ember-core/internal/store"
)

// Engine implements the like/match flow: record a directed like, detect
// reciprocity, and promote reciprocal pairs to a match record plus a
// provisioned chat.
type Engine struct {
	appCtx   *app.AppContext
	profiles *store.ProfileRepository
	likes    *store.LikeRepository
	matches  *store.MatchRepository
	chats    *store.ChatRepository
}

// New creates an engine with dependencies from AppContext.
func New(appCtx *app.AppContext) *Engine {
	return &Engine{
		appCtx:   appCtx,
		profiles: store.NewProfileRepository(appCtx.DB, appCtx.Feed),
		likes:    store.NewLikeRepository(appCtx.DB, appCtx.Feed),
		matches:  store.NewMatchRepository(appCtx.DB, appCtx.Feed),
		chats:    store.NewChatRepository(appCtx.DB, appCtx.Feed),
	}
}

// LikeResult reports the outcome of SubmitLike. When Matched is true the
// chat handle is included so the caller can transition straight into
// messaging.
type LikeResult struct {
	Matched bool
	Match   *db.Match
	Chat    *db.Chat
}

// SubmitLike records a directed like and promotes the pair on reciprocity.
//
// Behavior:
//   - Idempotent: re-liking the same profile never creates a second edge,
//     and a repeated reciprocal pair resolves to the existing match/chat.
//   - On reciprocity, writes the match record (audit) and provisions the
//     chat via find-or-create, in that order.
//   - Updates the recipient's Redis like counter (+1) with TTL refresh.
//   - A store failure surfaces as an error with the like not reported as
//     recorded; there is no partial-success state.
func (e *Engine) SubmitLike(ctx context.Context, sess *session.Session, recipientID string) (LikeResult, error) {
	if sess == nil || sess.UserID == "" {
		return LikeResult{}, svcErr.ErrNotAuthenticated
	}
	if recipientID == "" {
		return LikeResult{}, svcErr.InvalidArgument("recipient id is required")
	}
	if sess.UserID == recipientID {
		return LikeResult{}, svcErr.InvalidArgument("cannot like yourself")
	}

	e.appCtx.Logger.Debug("SubmitLike called", "actor", sess.UserID, "recipient", recipientID)

	if _, err := e.profiles.FindByID(ctx, recipientID); err != nil {
		return LikeResult{}, svcErr.Map(err)
	}

	if err := e.likes.Create(ctx, sess.UserID, recipientID); err != nil {
		e.appCtx.Logger.Error("failed to record like", "actor", sess.UserID, "recipient", recipientID, "err", err)
		return LikeResult{}, svcErr.Map(err)
	}

	// update cache; counter loss is tolerable, DB is the fallback
	key := e.appCtx.RedisCache.KeyForLikeCount(recipientID)
	_, _ = e.appCtx.RedisCache.Incr(ctx, key)
	_ = e.appCtx.RedisCache.RefreshTTL(ctx, key)

	// reciprocity check: does the reverse edge exist?
	mutual, err := e.likes.Exists(ctx, recipientID, sess.UserID)
	if err != nil {
		return LikeResult{}, svcErr.Map(err)
	}
	if !mutual {
		return LikeResult{Matched: false}, nil
	}

	match, created, err := e.matches.FindOrCreate(ctx, sess.UserID, recipientID)
	if err != nil {
		return LikeResult{}, svcErr.Map(err)
	}
	chat, _, err := e.chats.FindOrCreate(ctx, sess.UserID, recipientID)
	if err != nil {
		return LikeResult{}, svcErr.Map(err)
	}

	if created {
		e.appCtx.Logger.Info("new match", "user1", match.User1, "user2", match.User2, "chat", chat.ID)
	}

	return LikeResult{Matched: true, Match: &match, Chat: &chat}, nil
}

// Unlike removes the directed edge. Matches and chats already formed are a
// one-way ratchet and stay in place.
func (e *Engine) Unlike(ctx context.Context, sess *session.Session, recipientID string) error {
	if sess == nil || sess.UserID == "" {
		return svcErr.ErrNotAuthenticated
	}
	if sess.UserID == recipientID {
		return svcErr.InvalidArgument("cannot unlike yourself")
	}

	if err := e.likes.Delete(ctx, sess.UserID, recipientID); err != nil {
		return svcErr.Map(err)
	}

	key := e.appCtx.RedisCache.KeyForLikeCount(recipientID)
	_, _ = e.appCtx.RedisCache.Decr(ctx, key)
	_ = e.appCtx.RedisCache.RefreshTTL(ctx, key)

	return nil
}

// ListLikers returns profiles that liked the session user and have not been
// liked back, newest first, with cursor pagination.
func (e *Engine) ListLikers(ctx context.Context, sess *session.Session, paginationToken *string, limit int) ([]db.Like, *string, error) {
	if sess == nil || sess.UserID == "" {
		return nil, nil, svcErr.ErrNotAuthenticated
	}
	likes, next, err := e.likes.ListLikers(ctx, sess.UserID, paginationToken, limit)
	if err != nil {
		return nil, nil, svcErr.Map(err)
	}
	return likes, next, nil
}

// CountLikers returns how many users liked the session user.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:userID).
//  2. On cache miss, falls back to the DB.
//  3. On DB fetch, repopulates Redis with the standard TTL.
func (e *Engine) CountLikers(ctx context.Context, sess *session.Session) (int64, error) {
	if sess == nil || sess.UserID == "" {
		return 0, svcErr.ErrNotAuthenticated
	}

	key := e.appCtx.RedisCache.KeyForLikeCount(sess.UserID)
	if n, ok, _ := e.appCtx.RedisCache.GetCount(ctx, key); ok {
		return n, nil
	}

	count, err := e.likes.CountLikers(ctx, sess.UserID)
	if err != nil {
		return 0, svcErr.Map(err)
	}

	_ = e.appCtx.RedisCache.SetCount(ctx, key, count)

	return count, nil
}
