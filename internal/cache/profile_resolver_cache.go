package cache

import (
	"strings"
	"time"

	profiledomain "github.com/wunderling/tutorledger/internal/profile/domain"
)

// Profile lookups stay hot for the webhook burst that follows a calendar
// sync, but edits from the review UI must land quickly.
const defaultProfileTTL = 45 * time.Second

// ProfileResolverCache stores hot-path billing profile lookups for
// webhook ingest.
type ProfileResolverCache interface {
	GetProfile(canonicalName string) (profiledomain.BillingProfile, bool)
	SetProfile(canonicalName string, profile profiledomain.BillingProfile)
	Invalidate(canonicalName string)
}

type profileResolverCache struct {
	profiles   Cache[string, profiledomain.BillingProfile]
	profileTTL time.Duration
}

// NewProfileResolverCache returns an in-memory cache tuned for calendar
// webhook ingest.
func NewProfileResolverCache() ProfileResolverCache {
	return &profileResolverCache{
		profiles:   NewTTLCache[string, profiledomain.BillingProfile](),
		profileTTL: defaultProfileTTL,
	}
}

func (c *profileResolverCache) GetProfile(canonicalName string) (profiledomain.BillingProfile, bool) {
	return c.profiles.Get(cacheKey(canonicalName))
}

func (c *profileResolverCache) SetProfile(canonicalName string, profile profiledomain.BillingProfile) {
	if profile.ID == 0 {
		return
	}
	c.profiles.Set(cacheKey(canonicalName), profile, c.profileTTL)
}

func (c *profileResolverCache) Invalidate(canonicalName string) {
	c.profiles.Delete(cacheKey(canonicalName))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
