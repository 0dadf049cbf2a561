package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/db"
	svcErr "github.com/emberapp/ember-core/internal/errors"
	"github.com/emberapp/ember-core/internal/session"
	"github.com/emberapp/ember-core/internal/store"
)

// recentSendTTL bounds how long an authoritative id waits for its echo.
const recentSendTTL = 30 * time.Second

// Status is the client-side delivery state of a message.
// Sending and Failed are transient and never persisted.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusRead    Status = "read"
	StatusFailed  Status = "failed"
)

// Message is the pipeline's view of one message: either an optimistic
// placeholder awaiting confirmation or an authoritative row. LocalID stays
// stable across send/fail/resend so the UI keeps its identity.
type Message struct {
	LocalID   string
	ServerID  uint64
	ChatID    uint64
	SenderID  string
	Content   string
	Type      string
	MediaURL  string
	Status    Status
	CreatedAt time.Time
}

// Pipeline opens per-chat conversations.
type Pipeline struct {
	appCtx   *app.AppContext
	profiles *store.ProfileRepository
	chats    *store.ChatRepository
	messages *store.MessageRepository
}

// New creates a pipeline with dependencies from AppContext.
func New(appCtx *app.AppContext) *Pipeline {
	return &Pipeline{
		appCtx:   appCtx,
		profiles: store.NewProfileRepository(appCtx.DB, appCtx.Feed),
		chats:    store.NewChatRepository(appCtx.DB, appCtx.Feed),
		messages: store.NewMessageRepository(appCtx.DB, appCtx.Feed),
	}
}

// Connect provisions the chat for a pair directly and opens it, the entry
// point for icebreaker flows that start a conversation without waiting for
// a reciprocal like. Reconnecting resolves to the existing chat, including
// one that was provisioned by a match.
func (p *Pipeline) Connect(ctx context.Context, sess *session.Session, otherUserID string) (*Conversation, error) {
	if sess == nil || sess.UserID == "" {
		return nil, svcErr.ErrNotAuthenticated
	}
	if otherUserID == "" {
		return nil, svcErr.InvalidArgument("recipient id is required")
	}
	if otherUserID == sess.UserID {
		return nil, svcErr.InvalidArgument("cannot open a chat with yourself")
	}

	if _, err := p.profiles.FindByID(ctx, otherUserID); err != nil {
		return nil, svcErr.Map(err)
	}

	chat, created, err := p.chats.FindOrCreate(ctx, sess.UserID, otherUserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if created {
		p.appCtx.Logger.Info("chat provisioned via connect", "chat", chat.ID, "user", sess.UserID, "other", otherUserID)
	}

	return p.Open(ctx, sess, chat.ID)
}

// Open attaches to a chat: subscribes to the message changefeed, then loads
// the message snapshot. The caller must Close the conversation when leaving
// the screen.
func (p *Pipeline) Open(ctx context.Context, sess *session.Session, chatID uint64) (*Conversation, error) {
	if sess == nil || sess.UserID == "" {
		return nil, svcErr.ErrNotAuthenticated
	}

	chat, err := p.chats.FindByID(ctx, chatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrNotFound
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if chat.User1 != sess.UserID && chat.User2 != sess.UserID {
		return nil, svcErr.InvalidArgument("not a participant of this chat")
	}

	c := &Conversation{
		chatID:   chatID,
		userID:   sess.UserID,
		repo:     p.messages,
		cache:    p.appCtx,
		recent:   NewRecentSends(recentSendTTL),
		byServer: make(map[uint64]*Message),
		byLocal:  make(map[string]*Message),
		log:      p.appCtx.Logger.With("chat", chatID),
	}

	// subscribe before snapshotting: a row committed between the two would
	// otherwise land in neither source. The merge absorbs the overlap of
	// rows that show up in both.
	sub, err := p.appCtx.Feed.Subscribe(ctx, store.TableMessages, c.onEvent)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	c.sub = sub

	rows, err := p.messages.ListForChat(ctx, chatID)
	if err != nil {
		c.Close()
		return nil, svcErr.Map(err)
	}
	for _, row := range rows {
		c.applyServerRow(row)
	}

	return c, nil
}

// Conversation is an open message stream for one chat. All methods are safe
// for concurrent use with the changefeed consumer.
type Conversation struct {
	chatID uint64
	userID string
	repo   *store.MessageRepository
	cache  *app.AppContext
	recent *RecentSends
	sub    *store.Subscription
	log    *slog.Logger

	mu       sync.Mutex
	msgs     []*Message
	byServer map[uint64]*Message
	byLocal  map[string]*Message
}

// Close detaches the changefeed subscription. No event can mutate the
// conversation after Close returns.
func (c *Conversation) Close() {
	if c.sub != nil {
		_ = c.sub.Close()
		c.sub = nil
	}
}

// Messages returns the current view sorted by created_at ascending, id as
// tiebreak. Placeholders sort at their optimistic timestamp until the
// authoritative one replaces it.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = *m
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ServerID < out[j].ServerID
	})
	return out
}

// Send appends an optimistic placeholder immediately, then issues the
// authoritative insert.
//
// On success the placeholder carries the authoritative id, timestamp and
// Sent status, and the id is remembered so the stream's echo of this insert
// is absorbed. On failure the placeholder turns Failed with its content
// intact for Resend; the returned message reflects the final state either
// way.
func (c *Conversation) Send(ctx context.Context, content string) (Message, error) {
	return c.send(ctx, content, db.MessageTypeText, "")
}

// SendMedia sends a typed media message. The URI is opaque to the pipeline.
func (c *Conversation) SendMedia(ctx context.Context, mediaType, mediaURL, caption string) (Message, error) {
	switch mediaType {
	case db.MessageTypeImage, db.MessageTypeVideo, db.MessageTypeAudio, db.MessageTypeVoice:
	default:
		return Message{}, svcErr.InvalidArgument("unsupported media type")
	}
	return c.send(ctx, caption, mediaType, mediaURL)
}

func (c *Conversation) send(ctx context.Context, content, msgType, mediaURL string) (Message, error) {
	local := &Message{
		LocalID:   uuid.NewString(),
		ChatID:    c.chatID,
		SenderID:  c.userID,
		Content:   content,
		Type:      msgType,
		MediaURL:  mediaURL,
		Status:    StatusSending,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.msgs = append(c.msgs, local)
	c.byLocal[local.LocalID] = local
	c.mu.Unlock()

	return c.deliver(ctx, local)
}

// Resend re-attempts a failed send, reusing the placeholder's identity.
func (c *Conversation) Resend(ctx context.Context, localID string) (Message, error) {
	c.mu.Lock()
	local, ok := c.byLocal[localID]
	if !ok || local.Status != StatusFailed {
		c.mu.Unlock()
		return Message{}, svcErr.InvalidArgument("no failed message with that id")
	}
	local.Status = StatusSending
	c.mu.Unlock()

	return c.deliver(ctx, local)
}

// deliver runs the authoritative insert for a placeholder and reconciles
// the result.
func (c *Conversation) deliver(ctx context.Context, local *Message) (Message, error) {
	row := db.Message{
		ChatID:   c.chatID,
		SenderID: c.userID,
		Content:  local.Content,
		Type:     local.Type,
		MediaURL: local.MediaURL,
		Status:   db.MessageStatusSent,
	}

	if err := c.repo.Create(ctx, &row); err != nil {
		c.mu.Lock()
		local.Status = StatusFailed
		failed := *local
		c.mu.Unlock()
		c.log.Error("send failed", "local_id", local.LocalID, "err", err)
		return failed, svcErr.Map(err)
	}

	c.recent.Remember(row.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if echoed, ok := c.byServer[row.ID]; ok {
		// the stream echo won the race and already appended this row;
		// fold the placeholder into it and drop the extra entry
		echoed.LocalID = local.LocalID
		c.dropLocked(local)
		c.byLocal[echoed.LocalID] = echoed
		return *echoed, nil
	}

	local.ServerID = row.ID
	local.CreatedAt = row.CreatedAt
	local.Status = StatusSent
	c.byServer[row.ID] = local
	return *local, nil
}

// MarkRead advances every inbound sent message to read, in the store and in
// the local view, and zeroes the cached unread badge. Calling it with
// nothing unread is a no-op.
func (c *Conversation) MarkRead(ctx context.Context) error {
	updated, err := c.repo.MarkRead(ctx, c.chatID, c.userID)
	if err != nil {
		return svcErr.Map(err)
	}

	c.mu.Lock()
	for _, row := range updated {
		if m, ok := c.byServer[row.ID]; ok {
			m.Status = StatusRead
		}
	}
	c.mu.Unlock()

	key := c.cache.RedisCache.KeyForUnreadCount(c.chatID, c.userID)
	_ = c.cache.RedisCache.SetCount(ctx, key, 0)

	return nil
}

// onEvent merges a changefeed event into the view. Echoes of this client's
// own inserts are consumed via the recent-sends table; replays are absorbed
// by identity.
func (c *Conversation) onEvent(ev store.Event) {
	var row db.Message
	if err := ev.Decode(&row); err != nil {
		c.log.Warn("bad message event", "err", err)
		return
	}
	if row.ChatID != c.chatID {
		return
	}

	if ev.Kind == store.EventInsert && c.recent.Consume(row.ID) {
		// echo of our own insert; already applied from the insert response
		return
	}

	c.mu.Lock()
	c.applyServerRowLocked(row)
	c.mu.Unlock()
}

// applyServerRow merges an authoritative row into the view (snapshot path).
func (c *Conversation) applyServerRow(row db.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyServerRowLocked(row)
}

func (c *Conversation) applyServerRowLocked(row db.Message) {
	if m, ok := c.byServer[row.ID]; ok {
		// replay or status update; status only moves forward
		if m.Status == StatusSent && row.Status == db.MessageStatusRead {
			m.Status = StatusRead
		}
		return
	}

	m := &Message{
		LocalID:   uuid.NewString(),
		ServerID:  row.ID,
		ChatID:    row.ChatID,
		SenderID:  row.SenderID,
		Content:   row.Content,
		Type:      row.Type,
		MediaURL:  row.MediaURL,
		Status:    Status(row.Status),
		CreatedAt: row.CreatedAt,
	}
	c.msgs = append(c.msgs, m)
	c.byServer[row.ID] = m
	c.byLocal[m.LocalID] = m
}

// dropLocked removes a placeholder from the slice and indexes.
func (c *Conversation) dropLocked(local *Message) {
	delete(c.byLocal, local.LocalID)
	for i, m := range c.msgs {
		if m == local {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
			return
		}
	}
}
