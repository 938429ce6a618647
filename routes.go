package offlinecache

import (
	"net/http"
	"regexp"
	"time"
)

// StrategyName identifies one of the fixed caching strategies.
type StrategyName string

const (
	NetworkOnly          StrategyName = "network-only"
	CacheOnly            StrategyName = "cache-only"
	CacheFirst           StrategyName = "cache-first"
	NetworkFirst         StrategyName = "network-first"
	StaleWhileRevalidate StrategyName = "stale-while-revalidate"
)

// RuleConfig is the per-rule cache configuration.
// Values are constants fixed at construction, never mutated at runtime.
type RuleConfig struct {
	// CacheName is the bucket the rule's records are stored under.
	CacheName string
	// MaxAge is the default record lifetime; a request Cache-Control
	// max-age directive overrides it.
	MaxAge time.Duration
	// MaxEntries caps the bucket's entry count; the store evicts
	// oldest-first past the cap. Zero means unbounded.
	MaxEntries int
	// NetworkTimeout bounds the live fetch. Zero means no bound.
	NetworkTimeout time.Duration
}

// Rule maps matching requests to a strategy.
type Rule struct {
	// Method restricts the rule to one request method; empty matches GET.
	Method   string
	Pattern  *regexp.Regexp
	Strategy StrategyName
	RuleConfig
}

func (r Rule) matches(req *http.Request) bool {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Method != method {
		return false
	}
	return r.Pattern.MatchString(req.URL.String())
}

// Rules is the ordered route table. The first matching rule wins, so order
// is part of the configuration.
type Rules []Rule

func (rs Rules) find(req *http.Request) (Rule, bool) {
	for _, rule := range rs {
		if rule.matches(req) {
			return rule, true
		}
	}
	return Rule{}, false
}

const oneDay = 24 * time.Hour

// DefaultRules returns the route table for a single-page app: one
// Network-First rule per static asset class plus the mutation-style data
// endpoint. The dataEndpoint pattern identifies the app's single POST
// query endpoint.
func DefaultRules(dataEndpoint *regexp.Regexp) Rules {
	return Rules{
		{
			Method:   http.MethodPost,
			Pattern:  dataEndpoint,
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName: "post-responses",
				MaxAge:    oneDay,
			},
		},
		{
			Pattern:  regexp.MustCompile(`^https?://[^/?]+/$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "start-url",
				MaxAge:     oneDay,
				MaxEntries: 1,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)^https://fonts\.(?:googleapis|gstatic)\.com/.*`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "google-fonts",
				MaxAge:     365 * oneDay,
				MaxEntries: 4,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\.(?:eot|otf|ttc|ttf|woff|woff2|font\.css)$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "static-font-assets",
				MaxAge:     7 * oneDay,
				MaxEntries: 4,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\.(?:jpg|jpeg|gif|png|svg|ico|webp)$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "static-image-assets",
				MaxAge:     oneDay,
				MaxEntries: 64,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\.js$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "static-js-assets",
				MaxAge:     oneDay,
				MaxEntries: 32,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\.(?:css|less)$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "static-style-assets",
				MaxAge:     oneDay,
				MaxEntries: 32,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)\.(?:json|xml|csv)$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:  "static-data-assets",
				MaxAge:     oneDay,
				MaxEntries: 32,
			},
		},
		{
			Pattern:  regexp.MustCompile(`(?i)/api/.*$`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:      "apis",
				MaxAge:         oneDay,
				MaxEntries:     32,
				NetworkTimeout: 3 * time.Second,
			},
		},
		{
			Pattern:  regexp.MustCompile(`.*`),
			Strategy: NetworkFirst,
			RuleConfig: RuleConfig{
				CacheName:      "others",
				MaxAge:         oneDay,
				MaxEntries:     32,
				NetworkTimeout: 10 * time.Second,
			},
		},
	}
}
