// Package presence derives coarse online/offline status from the login,
// logout and session-expiry timestamps on a profile row. Everything here is
// a pure function over possibly-absent fields; there is no connection
// signal and nothing is cached.
package presence

import (
	"fmt"
	"time"

	"github.com/emberapp/ember-core/internal/db"
)

// IsOnline reports whether the profile counts as online at the given time.
//
// Rule: a login exists, it is newer than any logout, and the session (if it
// has an expiry) has not lapsed.
func IsOnline(p db.Profile, now time.Time) bool {
	if p.LastLoginAt == nil {
		return false
	}
	if p.LastLogoutAt != nil && !p.LastLoginAt.After(*p.LastLogoutAt) {
		return false
	}
	if p.SessionExpiresAt != nil && !p.SessionExpiresAt.After(now) {
		return false
	}
	return true
}

// LastActive returns the later of last login and last logout, or nil when
// the profile has never been active.
func LastActive(p db.Profile) *time.Time {
	switch {
	case p.LastLoginAt == nil && p.LastLogoutAt == nil:
		return nil
	case p.LastLoginAt == nil:
		return p.LastLogoutAt
	case p.LastLogoutAt == nil:
		return p.LastLoginAt
	case p.LastLogoutAt.After(*p.LastLoginAt):
		return p.LastLogoutAt
	default:
		return p.LastLoginAt
	}
}

// DescribeLastActive produces the presentational bucket for a profile:
// "online now", "N min ago", "N hours ago", "N days ago", or "offline" for
// a profile that was never active.
func DescribeLastActive(p db.Profile, now time.Time) string {
	if IsOnline(p, now) {
		return "online now"
	}

	last := LastActive(p)
	if last == nil {
		return "offline"
	}

	elapsed := now.Sub(*last)
	switch {
	case elapsed < time.Minute:
		return "1 min ago"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d min ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(elapsed.Hours()/24))
	}
}
