package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentSends_ConsumeOnce(t *testing.T) {
	rs := NewRecentSends(time.Minute)

	rs.Remember(42)
	assert.True(t, rs.Consume(42), "first consume should hit")
	assert.False(t, rs.Consume(42), "second consume should miss")
}

func TestRecentSends_UnknownID(t *testing.T) {
	rs := NewRecentSends(time.Minute)
	assert.False(t, rs.Consume(7))
}

func TestRecentSends_Expiry(t *testing.T) {
	rs := NewRecentSends(time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rs.now = func() time.Time { return now }

	rs.Remember(1)
	rs.Remember(2)
	assert.Equal(t, 2, rs.Len())

	// past the TTL both entries are swept
	now = now.Add(2 * time.Minute)
	assert.False(t, rs.Consume(1))
	assert.Equal(t, 0, rs.Len())
}
