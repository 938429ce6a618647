package offlinecache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ExpirationPolicy decides whether stored records are still valid.
// The zero value uses the wall clock.
type ExpirationPolicy struct {
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// IsValid reports whether a record stored at the given time is still within
// its max age. A zero maxAge means the record never expires; a negative one
// that nothing is valid.
func (p ExpirationPolicy) IsValid(storedAt time.Time, maxAge time.Duration) bool {
	if maxAge == 0 {
		return true
	}
	if maxAge < 0 {
		return false
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().Sub(storedAt) <= maxAge
}

// ResolveMaxAge returns the max age to apply for a request: a request-supplied
// Cache-Control max-age directive wins, otherwise the given fallback.
func ResolveMaxAge(r *http.Request, fallback time.Duration) time.Duration {
	cc := ParseCacheControl(r.Header.Get("Cache-Control"))
	if val, ok := cc.Get("max-age"); ok {
		if secs, err := strconv.Atoi(val); err == nil && secs >= 0 {
			if secs == 0 {
				// a zero directive means "do not reuse", not "no limit"
				return -1
			}
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// CacheControl holds the directives of a Cache-Control header value.
type CacheControl struct {
	m map[string]string
}

func (c CacheControl) Get(directive string) (string, bool) {
	val, ok := c.m[directive]
	return val, ok
}

func ParseCacheControl(header string) CacheControl {
	m := make(map[string]string)
	for _, directive := range strings.Split(header, ",") {
		directive = strings.TrimSpace(directive)
		if directive == "" {
			continue
		}
		parts := strings.SplitN(directive, "=", 2)
		var val string
		if len(parts) > 1 {
			val = parts[1]
		}
		m[strings.ToLower(parts[0])] = val
	}
	return CacheControl{m}
}
