// Package session maintains in-process running totals per active
// session, seeded from the store so a restart that loses the cache
// still reconstructs correct totals.
package session

import (
	"sync"

	"github.com/ccmeter/ccmeter/internal/model"
)

// Querier is the slice of the store the cache needs for seeding.
type Querier interface {
	QueryBySession(sessionID string) ([]model.UsageRecord, error)
}

// Cache is the per-session stats cache. Entries are created lazily and
// live for the process lifetime; the session count is bounded by
// interactive use. All access is serialized by one mutex since the
// host may deliver events and invoke queries on independent
// schedulers.
type Cache struct {
	mu       sync.Mutex
	store    Querier
	sessions map[string]*model.SessionStats
	seeded   map[string]bool
}

// NewCache returns an empty cache backed by the store.
func NewCache(store Querier) *Cache {
	return &Cache{
		store:    store,
		sessions: make(map[string]*model.SessionStats),
		seeded:   make(map[string]bool),
	}
}

// Ensure seeds the entry for a session from the store when there is no
// in-memory entry yet, or only an empty one. Called before the current
// record is persisted so the fold and the subsequent Add never double
// count.
func (c *Cache) Ensure(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ensureLocked(sessionID)
	return err
}

func (c *Cache) ensureLocked(sessionID string) (*model.SessionStats, error) {
	if stats, ok := c.sessions[sessionID]; ok && c.seeded[sessionID] && !stats.Empty() {
		return stats, nil
	}

	records, err := c.store.QueryBySession(sessionID)
	if err != nil {
		// Keep whatever entry exists so incremental adds still show,
		// but leave it unseeded so the next access retries the fold.
		stats, ok := c.sessions[sessionID]
		if !ok {
			stats = model.NewSessionStats(sessionID)
			c.sessions[sessionID] = stats
		}
		c.seeded[sessionID] = false
		return stats, err
	}

	// The store is the source of truth for rebuilds: replace the entry
	// rather than folding into it, so records already added after a
	// failed seed are not counted twice.
	stats := model.NewSessionStats(sessionID)
	for _, r := range records {
		stats.AddRecord(r)
	}
	c.sessions[sessionID] = stats
	c.seeded[sessionID] = true
	return stats, nil
}

// Add folds one freshly ingested record into the session's totals. The
// entry is created if missing so a failed store write still keeps the
// user-visible running total consistent.
func (c *Cache) Add(r model.UsageRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.sessions[r.SessionID]
	if !ok {
		stats = model.NewSessionStats(r.SessionID)
		c.sessions[r.SessionID] = stats
	}
	stats.AddRecord(r)
}

// Get returns a snapshot of the session's stats, rebuilding from the
// store when the cache is cold. The copy keeps callers from racing the
// ingest path on the shared entry.
func (c *Cache) Get(sessionID string) (model.SessionStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, err := c.ensureLocked(sessionID)
	if err != nil {
		return model.SessionStats{}, err
	}
	return snapshot(stats), nil
}

func snapshot(src *model.SessionStats) model.SessionStats {
	dst := *src
	dst.ByModel = make(map[string]*model.ModelStats, len(src.ByModel))
	for name, ms := range src.ByModel {
		copied := *ms
		dst.ByModel[name] = &copied
	}
	return dst
}
