// Package offlinecache keeps an application usable when the network is not.
//
// A Controller intercepts outgoing HTTP requests and answers each one from a
// durable local store, the live network, or both, according to an ordered
// route table of caching strategies. When neither the network nor the store
// can answer, a precached offline fallback document is served for
// navigational requests so the caller always gets a coherent response.
package offlinecache

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/always-cache/offline-cache/cache"
	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	// Storage for cache records. Required.
	// The store is owned by the controller: opened once at construction,
	// never implicitly reopened.
	Cache cache.Provider
	// Network access. Defaults to a plain http.Client that does not follow
	// redirects.
	Fetcher Fetcher
	// The ordered route table. First match wins.
	Rules Rules
	// Strategy for requests no rule matches. Defaults to NetworkFirst.
	DefaultStrategy StrategyName
	// Key derivation. The zero value hashes the "submit" variables field.
	Keyer cachekey.Keyer
	// Assets stored before the controller starts serving (see Activate).
	Precache Manifest
	// URL of the precached offline fallback document.
	FallbackURL string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Controller is the entry point for every outgoing request.
type Controller struct {
	engine      engine
	rules       Rules
	defaultRule Rule
	manifest    Manifest
	fallbackURL string
	log         zerolog.Logger
}

// New creates the controller with the given configuration.
// Call Activate before serving to populate the precache.
func New(config Config) *Controller {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		client := &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		fetcher = FetcherFunc(client.Do)
	}

	keyer := config.Keyer
	if keyer.Field == "" {
		keyer.Field = cachekey.NewKeyer().Field
	}

	defaultStrategy := config.DefaultStrategy
	if defaultStrategy == "" {
		defaultStrategy = NetworkFirst
	}

	return &Controller{
		engine: engine{
			store:   config.Cache,
			keyer:   keyer,
			fetcher: fetcher,
			log:     logger,
		},
		rules: config.Rules,
		defaultRule: Rule{
			Strategy: defaultStrategy,
			RuleConfig: RuleConfig{
				CacheName: "default",
				MaxAge:    oneDay,
			},
		},
		manifest:    config.Precache,
		fallbackURL: config.FallbackURL,
		log:         logger,
	}
}

// Handle answers the request with the strategy selected by the route table.
// It always answers: on total failure (no network, no usable record) it
// serves the precached fallback document for navigational requests and a
// generic network-error response for everything else.
func (c *Controller) Handle(r *http.Request) (res *http.Response, err error) {
	log := c.log.With().
		Str("req", uuid.NewString()).
		Str("url", r.URL.String()).
		Logger()
	defer func() {
		if p := recover(); p != nil {
			log.WithLevel(zerolog.PanicLevel).Interface("error", p).Msg("Panic in request handler")
			res, err = c.catchHandler(r, log)
		}
	}()

	rule, ok := c.rules.find(r)
	if !ok {
		rule = c.defaultRule
	}
	log.Trace().
		Str("cache", rule.CacheName).
		Str("strategy", string(rule.Strategy)).
		Msgf("Incoming request: %s %s", r.Method, r.URL.Path)

	eng := c.engine
	eng.log = log
	res, err = eng.do(rule.Strategy, r, rule)
	if err != nil {
		log.Debug().Err(err).Msg("Strategy failed, serving fallback")
		return c.catchHandler(r, log)
	}
	return res, nil
}

// catchHandler produces the degraded response of last resort.
func (c *Controller) catchHandler(r *http.Request, log zerolog.Logger) (*http.Response, error) {
	switch destination(r) {
	case "document", "image", "font":
		if res, err := c.MatchPrecache(c.fallbackURL); err == nil {
			return res, nil
		} else {
			log.Warn().Err(err).Msg("Could not serve fallback document")
		}
	}
	return errorResponse(), nil
}

// destination classifies what the request is for, the stand-in for a fetch
// request's destination: the Sec-Fetch-Dest header when the caller sets it,
// otherwise Accept-header and URL-extension heuristics.
func destination(r *http.Request) string {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return "document"
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(r.URL.Path), ".")) {
	case "jpg", "jpeg", "gif", "png", "svg", "ico", "webp":
		return "image"
	case "eot", "otf", "ttc", "ttf", "woff", "woff2":
		return "font"
	case "html", "htm":
		return "document"
	}
	return ""
}

func errorResponse() *http.Response {
	body := "network error"
	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
