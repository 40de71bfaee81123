package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Now()
	c := newTTLCache[int](30 * time.Second)
	c.now = func() time.Time { return now }

	c.Set("tok", 42)

	got, ok := c.Get("tok")
	assert.True(t, ok)
	assert.Equal(t, 42, got)

	now = now.Add(29 * time.Second)
	_, ok = c.Get("tok")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get("tok")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheMiss(t *testing.T) {
	c := newTTLCache[string](time.Second)
	_, ok := c.Get("absent")
	assert.False(t, ok)
}
