package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message types. Media messages carry an opaque URI in MediaURL.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
	MessageTypeAudio = "audio"
	MessageTypeVoice = "voice"
)

// Persisted message statuses. Status only moves forward (sent → read).
// The transient client-side states (sending, failed) never reach the store.
const (
	MessageStatusSent = "sent"
	MessageStatusRead = "read"
)

// Profile is the identity row, one per signed-up user.
//
// The three presence timestamps (LastLoginAt, LastLogoutAt,
// SessionExpiresAt) are the only inputs to online-status derivation;
// they are stamped by the session layer on login/logout.
type Profile struct {
	ID               string `gorm:"primaryKey;size:36"`
	FullName         string `gorm:"size:128;not null"`
	Email            string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash     string `gorm:"size:255;not null"`
	Gender           string `gorm:"size:16"`
	Age              int
	Location         string `gorm:"size:128"`
	Interests        string `gorm:"size:512"` // comma-joined free text
	SelfieURL        string `gorm:"size:512"`
	LastLoginAt      *time.Time
	LastLogoutAt     *time.Time
	SessionExpiresAt *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate assigns a UUID when the caller did not pick one.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Like is a directed edge: actor liked recipient.
//
// Composite PK: (ActorID, RecipientID)
//   - At most one live edge per ordered pair; re-liking is a no-op insert.
//
// Indexes:
//   - idx_recipient_created_actor(recipient_id, created_at DESC, actor_id)
//     Optimizes "who liked me" lists with cursor pagination.
type Like struct {
	ActorID     string    `gorm:"primaryKey;size:36"`
	RecipientID string    `gorm:"primaryKey;size:36;index:idx_recipient_created_actor,priority:1"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_recipient_created_actor,priority:2,sort:desc"`
}

// Match is the audit record of a reciprocal like. User1/User2 are stored
// canonically (User1 < User2) so the unique index makes the pair a set key.
type Match struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	User1     string    `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:1"`
	User2     string    `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Chat is the conversation container for an unordered pair, canonical like
// Match. At most one chat per pair, enforced by the unique index plus
// insert-if-absent at creation time.
type Chat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	User1     string    `gorm:"size:36;not null;uniqueIndex:idx_chat_pair,priority:1"`
	User2     string    `gorm:"size:36;not null;uniqueIndex:idx_chat_pair,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Message belongs to exactly one chat. Ordering within a chat is by
// CreatedAt ascending, ID as tiebreak.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	ChatID    uint64    `gorm:"not null;index:idx_chat_created,priority:1"`
	SenderID  string    `gorm:"size:36;not null"`
	Content   string    `gorm:"type:text"`
	Type      string    `gorm:"size:16;not null;default:text"`
	Status    string    `gorm:"size:16;not null;default:sent"`
	MediaURL  string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_chat_created,priority:2"`
}

// OrderPair returns the canonical ordering for an unordered user pair.
// Match and Chat rows always store the smaller id first.
func OrderPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
