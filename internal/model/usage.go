package model

import (
	"strings"
	"time"
)

// UsageRecord is a single persisted usage entry for one completed
// assistant message. Records are write-once: token counts and cost are
// never mutated after insert.
type UsageRecord struct {
	ID        string
	SessionID string
	MessageID string
	Model     string
	Usage     TokenUsage
	Cost      Cost
	CreatedAt time.Time
	MachineID string
}

// Provider returns the provider portion of the record's model
// identifier ("anthropic/claude-sonnet-4-5" -> "anthropic"), or
// "unknown" when the identifier carries no provider prefix.
func (r UsageRecord) Provider() string {
	return ProviderOf(r.Model)
}

// ProviderOf extracts the provider from a provider/model identifier.
func ProviderOf(model string) string {
	if i := strings.Index(model, "/"); i > 0 {
		return model[:i]
	}
	return "unknown"
}

// TokenUsage contains token counts from a single API response.
type TokenUsage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
}

// Total returns the sum of all four token categories.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}

// Cost is a monetary amount that may be unknown. Unknown is distinct
// from zero: a record priced at $0.00 has Known=true, while a record
// with no resolvable pricing has Known=false. Mirrors the sql.Null*
// convention.
type Cost struct {
	USD   float64
	Known bool
}

// KnownCost returns a resolved cost amount.
func KnownCost(usd float64) Cost {
	return Cost{USD: usd, Known: true}
}

// UnknownCost returns the absent-cost value.
func UnknownCost() Cost {
	return Cost{}
}

// Plus folds another cost into this one. Unknown contributions leave
// the sum untouched; the result stays unknown only if every
// contribution was unknown.
func (c Cost) Plus(other Cost) Cost {
	if !other.Known {
		return c
	}
	return Cost{USD: c.USD + other.USD, Known: true}
}

// RateCard holds per-model prices in USD per one million tokens, one
// rate per token category.
type RateCard struct {
	InputPerMTok      float64 `yaml:"input"`
	OutputPerMTok     float64 `yaml:"output"`
	CacheReadPerMTok  float64 `yaml:"cache_read"`
	CacheWritePerMTok float64 `yaml:"cache_write"`
}

// ModelStats is a per-model slice of an aggregate: token counts plus
// the running cost of records attributed to that model. The cost is
// unknown only if every contributing record had an unknown cost.
type ModelStats struct {
	Usage TokenUsage
	Cost  Cost
}

// SessionStats are the running totals for one session. Derived state:
// fully recomputable by folding the stored records for the session.
type SessionStats struct {
	SessionID    string
	TotalUsage   TokenUsage
	TotalCost    Cost
	MessageCount int
	StartedAt    time.Time
	ByModel      map[string]*ModelStats
}

// NewSessionStats returns an empty stats entry for a session.
func NewSessionStats(sessionID string) *SessionStats {
	return &SessionStats{
		SessionID: sessionID,
		ByModel:   make(map[string]*ModelStats),
	}
}

// AddRecord folds one record into the running totals. Token sums add
// directly; the cost sum only advances for records with a known cost.
func (s *SessionStats) AddRecord(r UsageRecord) {
	s.TotalUsage.Add(r.Usage)
	s.TotalCost = s.TotalCost.Plus(r.Cost)
	s.MessageCount++
	if s.StartedAt.IsZero() || r.CreatedAt.Before(s.StartedAt) {
		s.StartedAt = r.CreatedAt
	}

	ms, ok := s.ByModel[r.Model]
	if !ok {
		ms = &ModelStats{}
		s.ByModel[r.Model] = ms
	}
	ms.Usage.Add(r.Usage)
	ms.Cost = ms.Cost.Plus(r.Cost)
}

// Empty reports whether the entry has seen no records yet.
func (s *SessionStats) Empty() bool {
	return s.MessageCount == 0
}

// AggregateStats is the result of a time-windowed rollup. Unlike
// SessionStats the cost total is always presented as a number: a
// window where no record has a known cost reports zero.
type AggregateStats struct {
	TotalUsage   TokenUsage
	TotalCost    float64
	SessionCount int
	MessageCount int
	ByModel      map[string]*ModelStats
}

// NewAggregateStats returns an empty rollup.
func NewAggregateStats() *AggregateStats {
	return &AggregateStats{ByModel: make(map[string]*ModelStats)}
}

// AddRecord folds one record into the rollup.
func (a *AggregateStats) AddRecord(r UsageRecord) {
	a.TotalUsage.Add(r.Usage)
	if r.Cost.Known {
		a.TotalCost += r.Cost.USD
	}
	a.MessageCount++

	ms, ok := a.ByModel[r.Model]
	if !ok {
		ms = &ModelStats{}
		a.ByModel[r.Model] = ms
	}
	ms.Usage.Add(r.Usage)
	ms.Cost = ms.Cost.Plus(r.Cost)
}
