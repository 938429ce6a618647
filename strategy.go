package offlinecache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/always-cache/offline-cache/cache"
	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	respcodec "github.com/always-cache/offline-cache/pkg/response-codec"

	"github.com/rs/zerolog"
)

// ErrCacheMiss is returned when a strategy needs a stored record and none
// (or only an expired one) exists.
var ErrCacheMiss = fmt.Errorf("no valid cached response")

// Fetcher issues a live network request.
type Fetcher interface {
	Fetch(r *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(r *http.Request) (*http.Response, error)

func (f FetcherFunc) Fetch(r *http.Request) (*http.Response, error) {
	return f(r)
}

// engine combines store lookups and live fetches according to a strategy.
// All strategies resolve to either a response or an error value; network and
// store failures never escape as panics.
type engine struct {
	store   cache.Provider
	keyer   cachekey.Keyer
	expiry  ExpirationPolicy
	fetcher Fetcher
	log     zerolog.Logger
}

// do runs the named strategy for the request under the given rule.
func (e *engine) do(name StrategyName, r *http.Request, rule Rule) (*http.Response, error) {
	key, err := e.keyer.DeriveKey(r)
	if err != nil {
		// not cacheable, degrade to a direct network pass-through
		e.log.Debug().Err(err).Msg("Request not cacheable")
		return e.fetch(r, rule)
	}
	log := e.log.With().Str("key", key.Value).Str("strategy", string(name)).Logger()

	switch name {
	case NetworkOnly:
		return e.fetchAndStore(key, r, rule)
	case CacheOnly:
		if cached, ok := e.lookup(key, r, rule); ok {
			return cached, nil
		}
		return nil, ErrCacheMiss
	case CacheFirst:
		if cached, ok := e.lookup(key, r, rule); ok {
			log.Trace().Msg("Serving from cache")
			return cached, nil
		}
		return e.fetchAndStore(key, r, rule)
	case StaleWhileRevalidate:
		if cached, ok := e.lookup(key, r, rule); ok {
			e.revalidateInBackground(key, r, rule)
			log.Trace().Msg("Serving stale, revalidating in background")
			return cached, nil
		}
		return e.fetchAndStore(key, r, rule)
	default: // NetworkFirst
		// the store read happens before the fetch, never after
		cached, ok := e.lookup(key, r, rule)
		res, err := e.fetchAndStore(key, r, rule)
		if err == nil {
			return res, nil
		}
		if ok {
			log.Debug().Err(err).Msg("Network failed, falling back to cache")
			return cached, nil
		}
		return nil, err
	}
}

// lookup reads the stored record for the key and returns the decoded
// response if the record exists and is still valid. Store errors are treated
// as a miss.
func (e *engine) lookup(key cachekey.Key, r *http.Request, rule Rule) (*http.Response, bool) {
	bytes, ok, err := e.store.Get(storeKey(rule, key))
	if err != nil {
		e.log.Warn().Err(err).Str("key", key.Value).Msg("Could not read from cache")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	maxAge := ResolveMaxAge(r, rule.MaxAge)

	if key.FromPayload {
		entry, err := respcodec.BytesToEntry(bytes)
		if err != nil {
			e.log.Warn().Err(err).Str("key", key.Value).Msg("Could not decode cache record")
			return nil, false
		}
		if !e.expiry.IsValid(time.UnixMilli(entry.Timestamp), maxAge) {
			e.log.Trace().Str("key", key.Value).Msg("Cache record expired")
			return nil, false
		}
		return respcodec.Decode(entry.Response), true
	}

	tRes, err := respcodec.BytesToResponse(bytes)
	if err != nil {
		e.log.Warn().Err(err).Str("key", key.Value).Msg("Could not decode cache record")
		return nil, false
	}
	if !e.expiry.IsValid(tRes.StoredAt, maxAge) {
		e.log.Trace().Str("key", key.Value).Msg("Cache record expired")
		return nil, false
	}
	return tRes.Response, true
}

// fetchAndStore fetches the request live and, on success, writes the
// response to the store before returning it. A failed write never fails the
// request.
func (e *engine) fetchAndStore(key cachekey.Key, r *http.Request, rule Rule) (*http.Response, error) {
	res, err := e.fetch(r, rule)
	if err != nil {
		return nil, err
	}
	e.save(key, res, rule)
	return res, nil
}

// fetch performs the live network call, bounded by the rule's timeout.
func (e *engine) fetch(r *http.Request, rule Rule) (*http.Response, error) {
	req, err := respcodec.CloneRequest(r)
	if err != nil {
		return nil, err
	}
	if rule.NetworkTimeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), rule.NetworkTimeout)
		defer cancel()
		req = req.WithContext(ctx)
		res, err := e.fetcher.Fetch(req)
		if err != nil {
			return nil, err
		}
		// buffer the body while the timeout still applies,
		// so that a stalled body read cannot stall the caller either
		if err := bufferBody(res); err != nil {
			return nil, err
		}
		return res, nil
	}
	return e.fetcher.Fetch(req)
}

func bufferBody(res *http.Response) error {
	if res.Body == nil {
		return nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return nil
}

// save writes the response to the store, best effort. Only successful
// responses are stored; payload traffic additionally requires a JSON body.
func (e *engine) save(key cachekey.Key, res *http.Response, rule Rule) {
	if res.StatusCode != http.StatusOK {
		return
	}
	log := e.log.With().Str("key", key.Value).Str("cache", rule.CacheName).Logger()

	snapshot, err := respcodec.CloneResponse(res)
	if err != nil {
		log.Warn().Err(err).Msg("Could not snapshot response for caching")
		return
	}

	var bytes []byte
	if key.FromPayload {
		serialized, err := respcodec.Encode(snapshot)
		if err != nil {
			log.Debug().Err(err).Msg("Response not storable")
			return
		}
		bytes, err = respcodec.EntryToBytes(respcodec.Entry{
			Key:       key.Value,
			Query:     key.Query,
			Response:  serialized,
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Could not encode cache record")
			return
		}
	} else {
		bytes, err = respcodec.ResponseToBytes(respcodec.TimedResponse{
			Response: snapshot,
			StoredAt: time.Now(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Could not encode cache record")
			return
		}
	}

	if err := e.store.Put(storeKey(rule, key), bytes); err != nil {
		log.Warn().Err(err).Msg("Could not write to cache")
		return
	}
	if err := e.store.Trim(rule.CacheName+":", rule.MaxEntries); err != nil {
		log.Warn().Err(err).Msg("Could not trim cache")
	}
	log.Trace().Msg("Cache write")
}

// revalidateInBackground refreshes the stored record as a detached task.
// Its outcome is never awaited by the caller: a failure is logged and
// swallowed, and the write may land after the stale response has already
// been returned.
func (e *engine) revalidateInBackground(key cachekey.Key, r *http.Request, rule Rule) {
	req, err := respcodec.CloneRequest(r)
	if err != nil {
		e.log.Warn().Err(err).Msg("Could not snapshot request for revalidation")
		return
	}
	req = req.WithContext(context.WithoutCancel(r.Context()))
	go func() {
		res, err := e.fetchAndStore(key, req, rule)
		if err != nil {
			e.log.Debug().Err(err).Str("key", key.Value).Msg("Background revalidation failed")
			return
		}
		res.Body.Close()
	}()
}

func storeKey(rule Rule, key cachekey.Key) string {
	return rule.CacheName + ":" + key.Value
}
