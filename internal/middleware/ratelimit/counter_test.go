package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCounter_FixedWindow(t *testing.T) {
	c := NewMemoryCounter(time.Hour)
	defer c.Stop()

	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		ok, err := c.Increment(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}
	ok, _ := c.Increment(ctx, "k", 3, time.Minute)
	assert.False(t, ok)

	// other keys are independent
	ok, _ = c.Increment(ctx, "other", 3, time.Minute)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = c.Increment(ctx, "k", 3, time.Minute)
	assert.True(t, ok)
}

func TestMemoryCounter_Cleanup(t *testing.T) {
	c := NewMemoryCounter(time.Hour)
	defer c.Stop()

	now := time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _ = c.Increment(context.Background(), "a", 1, time.Second)
	_, _ = c.Increment(context.Background(), "b", 1, time.Hour)
	assert.Equal(t, 2, c.ActiveKeys())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.cleanupExpired())
	assert.Equal(t, 1, c.ActiveKeys())
}

func TestMemoryCounter_CanceledContext(t *testing.T) {
	c := NewMemoryCounter(time.Hour)
	defer c.Stop()
	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Increment(ctx, "k", 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildKey(t *testing.T) {
	tests := []struct {
		parts KeyParts
		want  string
	}{
		{KeyParts{Scope: "tx.create"}, "butce:rl|tx.create"},
		{KeyParts{Scope: "tx.create", UserID: "42"}, "butce:rl|tx.create|u:42"},
		{KeyParts{Scope: "tx.create", IP: "1.2.3.4"}, "butce:rl|tx.create|ip:1.2.3.4"},
		{KeyParts{Scope: "tx.create", UserID: "42", IP: "1.2.3.4"}, "butce:rl|tx.create|u:42|ip:1.2.3.4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BuildKey(tt.parts))
		assert.Equal(t, BuildKey(tt.parts), BuildKey(tt.parts))
	}
}

func TestBuildKeyLength(t *testing.T) {
	worst := KeyParts{
		Scope:  strings.Repeat("s", 120),
		UserID: strings.Repeat("ğ", 80),
		IP:     strings.Repeat("f", 300),
	}
	key := BuildKey(worst)
	assert.LessOrEqual(t, len(key), MaxKeyLength)
	assert.True(t, utf8.ValidString(key))
	assert.Equal(t, key, BuildKey(worst))
}

func TestClientIP(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, ClientIP(h))

	h.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(h))

	h.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(h))

	h.Set("X-Forwarded-For", " , 10.0.0.1")
	assert.Equal(t, "198.51.100.2", ClientIP(h))
}

func TestRequestIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:51234"
	assert.Equal(t, "192.0.2.10", RequestIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", RequestIP(r))
}
