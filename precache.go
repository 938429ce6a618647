package offlinecache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	respcodec "github.com/always-cache/offline-cache/pkg/response-codec"
)

// ManifestEntry is one (URL, content revision) pair from the build pipeline.
type ManifestEntry struct {
	URL      string `yaml:"url"`
	Revision string `yaml:"revision"`
}

// Manifest lists the assets guaranteed to be stored before the controller
// starts serving, including the offline fallback document.
type Manifest []ManifestEntry

const precachePrefix = "precache:"

func precacheKey(e ManifestEntry) string {
	return precachePrefix + e.URL + "\t" + e.Revision
}

// Activate populates the precache and takes over serving: every manifest
// entry not already stored under its current revision is fetched and stored,
// and entries whose revision has left the manifest are purged. It must run to
// completion before the controller answers requests; once it returns, the new
// rules apply immediately to all traffic, with no handoff period.
func (c *Controller) Activate(ctx context.Context) error {
	current := make(map[string]bool, len(c.manifest))
	for _, entry := range c.manifest {
		current[precacheKey(entry)] = true
	}

	// drop outdated revisions first so a failed fetch below
	// cannot leave both generations behind
	outdated := make([]string, 0)
	c.engine.store.Keys(precachePrefix, func(key string) {
		if !current[key] {
			outdated = append(outdated, key)
		}
	})
	for _, key := range outdated {
		c.log.Debug().Str("key", key).Msg("Purging outdated precache entry")
		c.engine.store.Purge(key)
	}

	for _, entry := range c.manifest {
		key := precacheKey(entry)
		if c.engine.store.Has(key) {
			continue
		}
		if err := c.precacheOne(ctx, entry); err != nil {
			return fmt.Errorf("precaching %s: %w", entry.URL, err)
		}
	}
	c.log.Info().Int("entries", len(c.manifest)).Msg("Precache activated")
	return nil
}

func (c *Controller) precacheOne(ctx context.Context, entry ManifestEntry) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, nil)
	if err != nil {
		return err
	}
	res, err := c.engine.fetcher.Fetch(req)
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	if err := bufferBody(res); err != nil {
		return err
	}
	bytes, err := respcodec.ResponseToBytes(respcodec.TimedResponse{
		Response: res,
		StoredAt: time.Now(),
	})
	if err != nil {
		return err
	}
	return c.engine.store.Put(precacheKey(entry), bytes)
}

// MatchPrecache returns the precached response for the given URL, whatever
// its stored revision. Precached entries do not expire; they are replaced on
// the next activation.
func (c *Controller) MatchPrecache(url string) (*http.Response, error) {
	var key string
	c.engine.store.Keys(precachePrefix+url+"\t", func(k string) {
		if key == "" {
			key = k
		}
	})
	if key == "" {
		return nil, fmt.Errorf("no precached response for %s", url)
	}
	bytes, ok, err := c.engine.store.Get(key)
	if err != nil || !ok {
		return nil, fmt.Errorf("no precached response for %s", url)
	}
	tRes, err := respcodec.BytesToResponse(bytes)
	if err != nil {
		return nil, err
	}
	return tRes.Response, nil
}
