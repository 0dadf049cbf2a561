package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberapp/ember-core/internal/db"
)

var (
	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	matchAB = db.Match{ID: 1, User1: "user-alice", User2: "user-bob", CreatedAt: baseTime}
	chatAB  = db.Chat{ID: 10, User1: "user-alice", User2: "user-bob", CreatedAt: baseTime.Add(time.Second)}
)

func entryCount(v *View) int {
	return len(v.Entries(FilterAll, baseTime))
}

func TestView_MatchThenChat(t *testing.T) {
	v := NewView("user-alice")

	v.ApplyMatch(matchAB)
	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, KindNewMatch, entries[0].Kind)
	assert.Equal(t, "user-bob", entries[0].OtherUserID)

	v.ApplyChat(chatAB)
	entries = v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1, "promotion must not duplicate the pair")
	assert.Equal(t, KindChat, entries[0].Kind)
	assert.Equal(t, HelloPreview, entries[0].Preview)
}

func TestView_ChatThenMatch(t *testing.T) {
	v := NewView("user-alice")

	// events can arrive in either order; the merged view must converge
	v.ApplyChat(chatAB)
	v.ApplyMatch(matchAB)

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, KindChat, entries[0].Kind)
}

func TestView_ReplaysAreIdempotent(t *testing.T) {
	v := NewView("user-alice")

	for i := 0; i < 3; i++ {
		v.ApplyMatch(matchAB)
		v.ApplyChat(chatAB)
	}
	assert.Equal(t, 1, entryCount(v))
}

func TestView_IgnoresOtherUsersRows(t *testing.T) {
	v := NewView("user-alice")

	v.ApplyMatch(db.Match{ID: 2, User1: "user-bob", User2: "user-carol"})
	v.ApplyChat(db.Chat{ID: 11, User1: "user-bob", User2: "user-carol"})

	assert.Equal(t, 0, entryCount(v))
}

func TestView_InboundMessageUpdatesPreviewAndUnread(t *testing.T) {
	v := NewView("user-alice")
	v.ApplyChat(chatAB)

	msg := db.Message{
		ID: 100, ChatID: 10, SenderID: "user-bob",
		Content: "Hey!", Type: db.MessageTypeText,
		Status: db.MessageStatusSent, CreatedAt: baseTime.Add(time.Minute),
	}
	v.ApplyMessage(msg)
	// replay of the same event must not double count
	v.ApplyMessage(msg)

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, "Hey!", entries[0].Preview)
	assert.Equal(t, 1, entries[0].Unread)
}

func TestView_OwnMessageDoesNotIncrementUnread(t *testing.T) {
	v := NewView("user-alice")
	v.ApplyChat(chatAB)

	v.ApplyMessage(db.Message{
		ID: 100, ChatID: 10, SenderID: "user-alice",
		Content: "Hi Bob", Status: db.MessageStatusSent,
		CreatedAt: baseTime.Add(time.Minute),
	})

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, "Hi Bob", entries[0].Preview)
	assert.Equal(t, 0, entries[0].Unread)
}

func TestView_ReadUpdateClearsUnread(t *testing.T) {
	v := NewView("user-alice")
	v.ApplyChat(chatAB)

	msg := db.Message{
		ID: 100, ChatID: 10, SenderID: "user-bob",
		Content: "Hey!", Status: db.MessageStatusSent,
		CreatedAt: baseTime.Add(time.Minute),
	}
	v.ApplyMessage(msg)

	msg.Status = db.MessageStatusRead
	v.ApplyMessage(msg)
	v.ApplyMessage(msg) // replay

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Unread)
}

func TestView_StaleMessageDoesNotMovePreviewBack(t *testing.T) {
	v := NewView("user-alice")
	v.ApplyChat(chatAB)

	v.ApplyMessage(db.Message{
		ID: 101, ChatID: 10, SenderID: "user-bob",
		Content: "newest", Status: db.MessageStatusRead,
		CreatedAt: baseTime.Add(2 * time.Minute),
	})
	v.ApplyMessage(db.Message{
		ID: 100, ChatID: 10, SenderID: "user-bob",
		Content: "older", Status: db.MessageStatusRead,
		CreatedAt: baseTime.Add(time.Minute),
	})

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, "newest", entries[0].Preview)
}

func TestView_UnreadBaselineMergesWithEvents(t *testing.T) {
	v := NewView("user-alice")
	v.ApplyChat(chatAB)

	// snapshot says 100 and 101 are unread; the stream replays 101 and
	// adds 102 — union, not sum
	v.SetUnreadBaseline(10, []uint64{100, 101})
	v.ApplyMessage(db.Message{
		ID: 101, ChatID: 10, SenderID: "user-bob",
		Status: db.MessageStatusSent, CreatedAt: baseTime.Add(time.Minute),
	})
	v.ApplyMessage(db.Message{
		ID: 102, ChatID: 10, SenderID: "user-bob",
		Status: db.MessageStatusSent, CreatedAt: baseTime.Add(2 * time.Minute),
	})

	entries := v.Entries(FilterAll, baseTime)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Unread)
}

func TestView_FiltersAndSort(t *testing.T) {
	v := NewView("user-alice")

	v.ApplyChat(chatAB)
	v.ApplyChat(db.Chat{ID: 11, User1: "user-alice", User2: "user-carol", CreatedAt: baseTime})

	// bob's chat has an unread inbound message and newer activity
	v.ApplyMessage(db.Message{
		ID: 100, ChatID: 10, SenderID: "user-bob",
		Content: "Hey!", Status: db.MessageStatusSent,
		CreatedAt: baseTime.Add(time.Hour),
	})

	// carol is online
	login := baseTime.Add(-time.Minute)
	v.ApplyProfile(db.Profile{ID: "user-carol", LastLoginAt: &login})

	all := v.Entries(FilterAll, baseTime)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(10), all[0].ChatID, "most recent activity first")

	unread := v.Entries(FilterUnread, baseTime)
	require.Len(t, unread, 1)
	assert.Equal(t, uint64(10), unread[0].ChatID)

	online := v.Entries(FilterOnline, baseTime)
	require.Len(t, online, 1)
	assert.Equal(t, "user-carol", online[0].OtherUserID)
}

func TestView_MessageForUntrackedChatIgnored(t *testing.T) {
	v := NewView("user-alice")

	v.ApplyMessage(db.Message{
		ID: 100, ChatID: 99, SenderID: "user-bob",
		Status: db.MessageStatusSent, CreatedAt: baseTime,
	})
	assert.Equal(t, 0, entryCount(v))
}
