package registry

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emberapp/ember-core/internal/app"
	"github.com/emberapp/ember-core/internal/db"
	svcErr "github.com/emberapp/ember-core/internal/errors"
	"github.com/emberapp/ember-core/internal/store"
)

// Registry builds and maintains the per-user conversation view: new matches
// awaiting a first message plus active chats with previews and unread
// counts, merged from an initial snapshot and streamed change events.
type Registry struct {
	appCtx   *app.AppContext
	profiles *store.ProfileRepository
	matches  *store.MatchRepository
	chats    *store.ChatRepository
	messages *store.MessageRepository
}

// New creates a registry with dependencies from AppContext.
func New(appCtx *app.AppContext) *Registry {
	return &Registry{
		appCtx:   appCtx,
		profiles: store.NewProfileRepository(appCtx.DB, appCtx.Feed),
		matches:  store.NewMatchRepository(appCtx.DB, appCtx.Feed),
		chats:    store.NewChatRepository(appCtx.DB, appCtx.Feed),
		messages: store.NewMessageRepository(appCtx.DB, appCtx.Feed),
	}
}

// BuildView fetches the snapshot state for a user: all chats (annotated
// with latest message and unread ids) and all matches not yet promoted to a
// chat. Single failed annotation steps degrade the entry rather than
// failing the whole view.
func (r *Registry) BuildView(ctx context.Context, userID string) (*View, error) {
	if userID == "" {
		return nil, svcErr.ErrNotAuthenticated
	}

	view := NewView(userID)
	if err := r.populate(ctx, view, userID); err != nil {
		return nil, err
	}
	return view, nil
}

// populate merges the snapshot state into a view: all chats (annotated with
// latest message and unread ids) and all matches not yet promoted.
func (r *Registry) populate(ctx context.Context, view *View, userID string) error {
	chats, err := r.chats.ListForUser(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	for _, c := range chats {
		view.ApplyChat(c)
		r.hydrateChat(ctx, view, c, userID)
	}

	matches, err := r.matches.ListForUser(ctx, userID)
	if err != nil {
		return svcErr.Map(err)
	}
	for _, m := range matches {
		// ApplyChat already claimed promoted pairs; the merge keeps them
		view.ApplyMatch(m)
	}

	r.annotateProfiles(ctx, view)

	return nil
}

// hydrateChat pulls the latest message and unread baseline for a chat
// entry. Best effort: on failure the entry keeps its defaults and the
// registry logs and moves on; the next event or rebuild refreshes it.
func (r *Registry) hydrateChat(ctx context.Context, view *View, c db.Chat, userID string) {
	latest, err := r.messages.LatestForChat(ctx, c.ID)
	if err != nil {
		r.appCtx.Logger.Warn("failed to load chat preview", "chat", c.ID, "err", err)
	} else if latest != nil {
		view.ApplyMessage(*latest)
	}

	unreadIDs, err := r.messages.ListUnreadIDs(ctx, c.ID, userID)
	if err != nil {
		r.appCtx.Logger.Warn("failed to load unread ids", "chat", c.ID, "err", err)
		return
	}
	view.SetUnreadBaseline(c.ID, unreadIDs)

	// keep the badge counter warm for other screens
	key := r.appCtx.RedisCache.KeyForUnreadCount(c.ID, userID)
	_ = r.appCtx.RedisCache.SetCount(ctx, key, int64(len(unreadIDs)))
}

// annotateProfiles loads the other party's profile for every entry so the
// view can render names and presence.
func (r *Registry) annotateProfiles(ctx context.Context, view *View) {
	entries := view.Entries(FilterAll, time.Now())
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.OtherUserID)
	}

	profiles, err := r.profiles.ListByIDs(ctx, ids)
	if err != nil {
		r.appCtx.Logger.Warn("failed to annotate profiles", "err", err)
		return
	}
	for _, p := range profiles {
		view.ApplyProfile(p)
	}
}

// Handle is an open, live conversation view. Events stream into the view
// until Close; Close is mandatory when the owning screen goes away.
type Handle struct {
	view *View
	subs []*store.Subscription
}

// Open attaches changefeed subscriptions for matches, chats, messages and
// profiles, then merges in the snapshot. Subscribing first means a row
// committed while the snapshot queries run arrives as an event instead of
// falling between the two sources; the idempotent merge absorbs rows seen
// by both, so the view converges to the same state regardless of how
// snapshot and stream interleave.
func (r *Registry) Open(ctx context.Context, userID string) (*Handle, error) {
	if userID == "" {
		return nil, svcErr.ErrNotAuthenticated
	}

	view := NewView(userID)
	h := &Handle{view: view}

	tables := map[string]func(store.Event){
		store.TableMatches:  func(ev store.Event) { r.onMatchEvent(ctx, view, ev) },
		store.TableChats:    func(ev store.Event) { r.onChatEvent(ctx, view, ev, userID) },
		store.TableMessages: func(ev store.Event) { r.onMessageEvent(view, ev) },
		store.TableProfiles: func(ev store.Event) { r.onProfileEvent(view, ev) },
	}
	for table, handler := range tables {
		sub, err := r.appCtx.Feed.Subscribe(ctx, table, handler)
		if err != nil {
			h.Close()
			return nil, svcErr.Map(err)
		}
		h.subs = append(h.subs, sub)
	}

	if err := r.populate(ctx, view, userID); err != nil {
		h.Close()
		return nil, err
	}

	return h, nil
}

// View returns the filtered, sorted conversation entries as of now.
func (h *Handle) View(filter Filter) []Entry {
	return h.view.Entries(filter, time.Now())
}

// Lookup exposes a single pair's entry, mainly for tests and callers that
// need to know whether a pair has been promoted.
func (h *Handle) Lookup(userA, userB string) (Entry, bool) {
	return h.view.Lookup(userA, userB)
}

// Close detaches all changefeed subscriptions. After Close returns no event
// can mutate the view.
func (h *Handle) Close() {
	for _, sub := range h.subs {
		_ = sub.Close()
	}
	h.subs = nil
}

func (r *Registry) onMatchEvent(ctx context.Context, view *View, ev store.Event) {
	var m db.Match
	if err := ev.Decode(&m); err != nil {
		r.appCtx.Logger.Warn("bad match event", "err", err)
		return
	}
	view.ApplyMatch(m)
}

func (r *Registry) onChatEvent(ctx context.Context, view *View, ev store.Event, userID string) {
	var c db.Chat
	if err := ev.Decode(&c); err != nil {
		r.appCtx.Logger.Warn("bad chat event", "err", err)
		return
	}
	if c.User1 != userID && c.User2 != userID {
		return
	}
	view.ApplyChat(c)
	// heal preview/unread in case messages raced ahead of the chat row
	r.hydrateChat(ctx, view, c, userID)
	r.annotateProfiles(ctx, view)
}

func (r *Registry) onMessageEvent(view *View, ev store.Event) {
	var m db.Message
	if err := ev.Decode(&m); err != nil {
		r.appCtx.Logger.Warn("bad message event", "err", err)
		return
	}
	view.ApplyMessage(m)
}

func (r *Registry) onProfileEvent(view *View, ev store.Event) {
	var p db.Profile
	if err := ev.Decode(&p); err != nil {
		r.appCtx.Logger.Warn("bad profile event", "err", err)
		return
	}
	view.ApplyProfile(p)
}

// ChatFor resolves the chat entry for a pair, used by callers that want to
// jump straight from a match entry into messaging once promotion happens.
func (r *Registry) ChatFor(ctx context.Context, userA, userB string) (db.Chat, error) {
	chat, err := r.chats.FindByPair(ctx, userA, userB)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Chat{}, svcErr.ErrNotFound
	}
	if err != nil {
		return db.Chat{}, svcErr.Map(err)
	}
	return chat, nil
}
