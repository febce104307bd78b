package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit_Enabled(t *testing.T) {
	assert.False(t, RateLimit{}.Enabled())
	assert.False(t, RateLimit{Burst: 5}.Enabled())
	assert.False(t, RateLimit{Every: time.Second}.Enabled())
	assert.True(t, RateLimit{Burst: 5, Every: time.Second}.Enabled())
}

func TestConnLimiter_Disabled(t *testing.T) {
	l := newConnLimiter(RateLimit{})
	assert.Nil(t, l)

	// nil limiter allows everything
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("conn"))
	}
	l.Forget("conn")
}

func TestConnLimiter_Burst(t *testing.T) {
	l := newConnLimiter(RateLimit{Burst: 3, Every: time.Hour})
	require.NotNil(t, l)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "frame %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("a"))

	// buckets are per connection
	assert.True(t, l.Allow("b"))
}

func TestConnLimiter_Forget(t *testing.T) {
	l := newConnLimiter(RateLimit{Burst: 1, Every: time.Hour})

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	l.Forget("a")
	assert.True(t, l.Allow("a"))

	l.Forget("a")
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.buckets)
}
