package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
)

func TestProfileResolverCacheRoundTrip(t *testing.T) {
	c := NewProfileResolverCache()

	_, ok := c.GetProfile("jordan lee")
	assert.False(t, ok)

	c.SetProfile("jordan lee", profiledomain.BillingProfile{ID: 1, StudentName: "Jordan Lee"})
	got, ok := c.GetProfile("Jordan Lee")
	assert.True(t, ok)
	assert.Equal(t, "Jordan Lee", got.StudentName)

	c.Invalidate("JORDAN LEE")
	_, ok = c.GetProfile("jordan lee")
	assert.False(t, ok)
}

func TestProfileResolverCacheSkipsZeroID(t *testing.T) {
	c := NewProfileResolverCache()

	c.SetProfile("jordan lee", profiledomain.BillingProfile{})
	_, ok := c.GetProfile("jordan lee")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 10*time.Millisecond)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}
