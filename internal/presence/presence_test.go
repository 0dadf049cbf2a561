package presence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/emberapp/ember-core/internal/db"
	"github.com/emberapp/ember-core/internal/presence"
)

func tp(t time.Time) *time.Time { return &t }

func TestIsOnline_SessionWindow(t *testing.T) {
	login := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := db.Profile{
		LastLoginAt:      tp(login),
		SessionExpiresAt: tp(login.Add(time.Hour)),
	}

	// inside the session window
	assert.True(t, presence.IsOnline(p, login.Add(30*time.Minute)))
	// session lapsed
	assert.False(t, presence.IsOnline(p, login.Add(2*time.Hour)))
}

func TestIsOnline_LogoutWins(t *testing.T) {
	login := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := login.Add(10 * time.Minute)

	p := db.Profile{
		LastLoginAt:  tp(login),
		LastLogoutAt: tp(login.Add(5 * time.Minute)),
	}
	assert.False(t, presence.IsOnline(p, now))

	// logging back in after the logout flips it
	p.LastLoginAt = tp(login.Add(6 * time.Minute))
	assert.True(t, presence.IsOnline(p, now))
}

func TestIsOnline_NeverLoggedIn(t *testing.T) {
	assert.False(t, presence.IsOnline(db.Profile{}, time.Now()))
}

func TestDescribeLastActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		profile db.Profile
		want    string
	}{
		{
			name:    "never active",
			profile: db.Profile{},
			want:    "offline",
		},
		{
			name: "online now",
			profile: db.Profile{
				LastLoginAt:      tp(now.Add(-5 * time.Minute)),
				SessionExpiresAt: tp(now.Add(time.Hour)),
			},
			want: "online now",
		},
		{
			name: "minutes ago",
			profile: db.Profile{
				LastLoginAt:  tp(now.Add(-45 * time.Minute)),
				LastLogoutAt: tp(now.Add(-20 * time.Minute)),
			},
			want: "20 min ago",
		},
		{
			name: "hours ago",
			profile: db.Profile{
				LastLoginAt:  tp(now.Add(-6 * time.Hour)),
				LastLogoutAt: tp(now.Add(-5 * time.Hour)),
			},
			want: "5 hours ago",
		},
		{
			name: "days ago",
			profile: db.Profile{
				LastLogoutAt: tp(now.Add(-72 * time.Hour)),
			},
			want: "3 days ago",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, presence.DescribeLastActive(tc.profile, now))
		})
	}
}

func TestLastActive_PicksLater(t *testing.T) {
	login := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logout := login.Add(time.Hour)

	p := db.Profile{LastLoginAt: tp(login), LastLogoutAt: tp(logout)}
	got := presence.LastActive(p)
	assert.NotNil(t, got)
	assert.Equal(t, logout, *got)
}
