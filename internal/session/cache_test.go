package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccmeter/ccmeter/internal/model"
)

type fakeStore struct {
	records map[string][]model.UsageRecord
	err     error
	queries int
}

func (f *fakeStore) QueryBySession(sessionID string) ([]model.UsageRecord, error) {
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	return f.records[sessionID], nil
}

func rec(sessionID string, input int64, cost model.Cost) model.UsageRecord {
	return model.UsageRecord{
		SessionID: sessionID,
		Model:     "anthropic/claude-sonnet-4-5",
		Usage:     model.TokenUsage{InputTokens: input},
		Cost:      cost,
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestGetSeedsFromStore(t *testing.T) {
	fs := &fakeStore{records: map[string][]model.UsageRecord{
		"ses_1": {
			rec("ses_1", 1000, model.KnownCost(0.01)),
			rec("ses_1", 2000, model.UnknownCost()),
		},
	}}
	c := NewCache(fs)

	stats, err := c.Get("ses_1")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), stats.TotalUsage.InputTokens)
	assert.Equal(t, 2, stats.MessageCount)
	assert.Equal(t, 0.01, stats.TotalCost.USD)
}

func TestGetDoesNotReseedWarmEntry(t *testing.T) {
	fs := &fakeStore{records: map[string][]model.UsageRecord{
		"ses_1": {rec("ses_1", 1000, model.KnownCost(0.01))},
	}}
	c := NewCache(fs)

	_, err := c.Get("ses_1")
	require.NoError(t, err)
	_, err = c.Get("ses_1")
	require.NoError(t, err)
	assert.Equal(t, 1, fs.queries, "a warm non-empty entry is served from memory")
}

func TestEnsureThenAddDoesNotDoubleCount(t *testing.T) {
	fs := &fakeStore{records: map[string][]model.UsageRecord{
		"ses_1": {rec("ses_1", 1000, model.KnownCost(0.01))},
	}}
	c := NewCache(fs)

	// Ingest order: seed before the new record is persisted, then Add it.
	require.NoError(t, c.Ensure("ses_1"))
	c.Add(rec("ses_1", 500, model.KnownCost(0.005)))

	stats, err := c.Get("ses_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), stats.TotalUsage.InputTokens)
	assert.Equal(t, 2, stats.MessageCount)
	assert.InDelta(t, 0.015, stats.TotalCost.USD, 1e-9)
}

func TestAddWithoutEntrySurvivesStoreFailure(t *testing.T) {
	fs := &fakeStore{err: errors.New("disk gone")}
	c := NewCache(fs)

	// Write path keeps the live total even when durability failed.
	c.Add(rec("ses_1", 700, model.UnknownCost()))

	c.mu.Lock()
	stats := c.sessions["ses_1"]
	c.mu.Unlock()
	require.NotNil(t, stats)
	assert.Equal(t, int64(700), stats.TotalUsage.InputTokens)
}

func TestGetRetriesSeedAfterStoreFailure(t *testing.T) {
	history := rec("ses_1", 1000, model.KnownCost(0.01))
	fs := &fakeStore{
		err:     errors.New("database is locked"),
		records: map[string][]model.UsageRecord{"ses_1": {history}},
	}
	c := NewCache(fs)

	// Ingest path while the store is unreadable: the seed fails but the
	// fresh record still lands in memory.
	require.Error(t, c.Ensure("ses_1"))
	fresh := rec("ses_1", 500, model.KnownCost(0.005))
	c.Add(fresh)

	// Once the store recovers, the next read must fold in the history
	// the failed seed missed instead of serving the partial entry.
	fs.err = nil
	fs.records["ses_1"] = append(fs.records["ses_1"], fresh)

	stats, err := c.Get("ses_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), stats.TotalUsage.InputTokens)
	assert.Equal(t, 2, stats.MessageCount)
	assert.InDelta(t, 0.015, stats.TotalCost.USD, 1e-9)
}

func TestRebuildMatchesIncrementalTotals(t *testing.T) {
	records := []model.UsageRecord{
		rec("ses_1", 100, model.KnownCost(0.001)),
		rec("ses_1", 200, model.UnknownCost()),
		rec("ses_1", 300, model.KnownCost(0.003)),
	}
	fs := &fakeStore{records: map[string][]model.UsageRecord{"ses_1": records}}

	// Incremental path.
	warm := NewCache(&fakeStore{})
	require.NoError(t, warm.Ensure("ses_1"))
	for _, r := range records {
		warm.Add(r)
	}
	warmStats, err := warm.Get("ses_1")
	require.NoError(t, err)

	// Cold rebuild after simulated cache loss.
	cold := NewCache(fs)
	coldStats, err := cold.Get("ses_1")
	require.NoError(t, err)

	assert.Equal(t, warmStats.TotalUsage, coldStats.TotalUsage)
	assert.Equal(t, warmStats.TotalCost, coldStats.TotalCost)
	assert.Equal(t, warmStats.MessageCount, coldStats.MessageCount)
}

func TestGetReturnsSnapshot(t *testing.T) {
	fs := &fakeStore{records: map[string][]model.UsageRecord{
		"ses_1": {rec("ses_1", 1000, model.KnownCost(0.01))},
	}}
	c := NewCache(fs)

	stats, err := c.Get("ses_1")
	require.NoError(t, err)
	stats.ByModel["anthropic/claude-sonnet-4-5"].Usage.InputTokens = 0

	again, err := c.Get("ses_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), again.ByModel["anthropic/claude-sonnet-4-5"].Usage.InputTokens)
}
