package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/emberapp/ember-core/internal/db"
	"github.com/emberapp/ember-core/internal/presence"
)

// HelloPreview is shown for a conversation that has no messages yet.
const HelloPreview = "Say hello to start a conversation!"

type EntryKind string

const (
	// KindNewMatch is a reciprocal-like pair with no chat observed yet.
	KindNewMatch EntryKind = "new_match"
	// KindChat is an active conversation.
	KindChat EntryKind = "chat"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterOnline Filter = "online"
)

// Entry is one row of the conversation view: either a "new match, say
// hello" bucket entry or a chat annotated with its latest message and
// unread count. A pair appears exactly once, keyed by its canonical pair
// key, regardless of how many sources report it.
type Entry struct {
	PairKey      string
	Kind         EntryKind
	MatchID      uint64
	ChatID       uint64
	OtherUserID  string
	Other        db.Profile
	Preview      string
	LastActivity time.Time
	Unread       int

	// ids of inbound messages still in `sent` status. Tracking the set
	// instead of a counter keeps the merge idempotent under event replays.
	unreadIDs map[uint64]struct{}
	// identity of the newest message applied, to keep preview updates
	// monotonic when events replay or arrive late
	lastMsgAt time.Time
	lastMsgID uint64
}

// View is the merged, de-duplicated conversation state for one user. All
// mutating methods are idempotent and commute, so the initial snapshot and
// streamed change events can land in any order and converge to the same
// state.
type View struct {
	mu      sync.Mutex
	userID  string
	entries map[string]*Entry
}

// NewView creates an empty view for a user.
func NewView(userID string) *View {
	return &View{
		userID:  userID,
		entries: make(map[string]*Entry),
	}
}

func pairKey(a, b string) string {
	u1, u2 := db.OrderPair(a, b)
	return u1 + "|" + u2
}

func (v *View) otherOf(u1, u2 string) string {
	if u1 == v.userID {
		return u2
	}
	return u1
}

// ApplyMatch merges a match row. A pair that already has a chat entry keeps
// it; the match is only surfaced while un-promoted.
func (v *View) ApplyMatch(m db.Match) {
	if m.User1 != v.userID && m.User2 != v.userID {
		return
	}
	key := pairKey(m.User1, m.User2)

	v.mu.Lock()
	defer v.mu.Unlock()

	if e, ok := v.entries[key]; ok {
		e.MatchID = m.ID
		return
	}
	v.entries[key] = &Entry{
		PairKey:      key,
		Kind:         KindNewMatch,
		MatchID:      m.ID,
		OtherUserID:  v.otherOf(m.User1, m.User2),
		LastActivity: m.CreatedAt,
		unreadIDs:    make(map[uint64]struct{}),
	}
}

// ApplyChat merges a chat row, promoting any match-only entry for the pair.
// Re-applying the same chat is a no-op.
func (v *View) ApplyChat(c db.Chat) {
	if c.User1 != v.userID && c.User2 != v.userID {
		return
	}
	key := pairKey(c.User1, c.User2)

	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[key]
	if !ok {
		e = &Entry{
			PairKey:     key,
			OtherUserID: v.otherOf(c.User1, c.User2),
			unreadIDs:   make(map[uint64]struct{}),
		}
		v.entries[key] = e
	}
	if e.Kind == KindChat && e.ChatID == c.ID {
		return
	}
	e.Kind = KindChat
	e.ChatID = c.ID
	if c.CreatedAt.After(e.LastActivity) {
		e.LastActivity = c.CreatedAt
	}
	if e.Preview == "" {
		e.Preview = HelloPreview
	}
}

// ApplyMessage merges a message row into its chat's entry: preview, last
// activity, unread bookkeeping. Messages for chats the view is not tracking
// are ignored; the entry is healed when the chat row itself arrives.
func (v *View) ApplyMessage(m db.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range v.entries {
		if e.Kind != KindChat || e.ChatID != m.ChatID {
			continue
		}

		// preview follows the newest message; replays and stale updates
		// must not move it backward
		if m.CreatedAt.After(e.lastMsgAt) ||
			(m.CreatedAt.Equal(e.lastMsgAt) && m.ID >= e.lastMsgID) {
			e.lastMsgAt = m.CreatedAt
			e.lastMsgID = m.ID
			e.Preview = previewText(m)
			if m.CreatedAt.After(e.LastActivity) {
				e.LastActivity = m.CreatedAt
			}
		}

		// inbound unread tracking: set semantics, not a counter
		if m.SenderID != v.userID {
			if m.Status == db.MessageStatusSent {
				e.unreadIDs[m.ID] = struct{}{}
			} else {
				delete(e.unreadIDs, m.ID)
			}
			e.Unread = len(e.unreadIDs)
		}
		return
	}
}

// ApplyProfile refreshes the cached profile annotation on any entry whose
// other party matches, keeping presence and names current.
func (v *View) ApplyProfile(p db.Profile) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range v.entries {
		if e.OtherUserID == p.ID {
			e.Other = p
		}
	}
}

// SetUnreadBaseline seeds an entry's unread set from a snapshot fetch.
func (v *View) SetUnreadBaseline(chatID uint64, unreadMessageIDs []uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range v.entries {
		if e.Kind == KindChat && e.ChatID == chatID {
			for _, id := range unreadMessageIDs {
				e.unreadIDs[id] = struct{}{}
			}
			e.Unread = len(e.unreadIDs)
			return
		}
	}
}

// Entries returns the filtered view sorted most-recently-active first.
func (v *View) Entries(filter Filter, now time.Time) []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Entry, 0, len(v.entries))
	for _, e := range v.entries {
		switch filter {
		case FilterUnread:
			if e.Unread == 0 {
				continue
			}
		case FilterOnline:
			if !presence.IsOnline(e.Other, now) {
				continue
			}
		}
		out = append(out, *e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].PairKey < out[j].PairKey
	})
	return out
}

// Lookup returns the entry for a pair, if present.
func (v *View) Lookup(userA, userB string) (Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[pairKey(userA, userB)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func previewText(m db.Message) string {
	switch m.Type {
	case db.MessageTypeImage:
		return "📷 Photo"
	case db.MessageTypeVideo:
		return "🎬 Video"
	case db.MessageTypeAudio, db.MessageTypeVoice:
		return "🎤 Voice message"
	default:
		return m.Content
	}
}
