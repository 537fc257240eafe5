package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ccmeter/ccmeter/internal/model"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-4500, "-4,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.n))
	}
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "unknown", FormatCost(model.UnknownCost()))
	assert.Equal(t, "$0.0000", FormatCost(model.KnownCost(0)))
	assert.Equal(t, "$1.2346", FormatCost(model.KnownCost(1.23456)))
}

func TestShortenModel(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"anthropic/claude-sonnet-4-5-20250929", "sonnet-4-5"},
		{"claude-sonnet-4-5", "sonnet-4-5"},
		{"claude-opus-4-20250514", "opus-4"},
		{"openai/gpt-5", "gpt-5"},
		{"local-model", "local-model"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShortenModel(tt.name))
	}
}

func sessionStats() model.SessionStats {
	s := model.NewSessionStats("ses_1")
	s.AddRecord(model.UsageRecord{
		SessionID: "ses_1",
		Model:     "anthropic/claude-sonnet-4-5",
		Usage:     model.TokenUsage{InputTokens: 1000, OutputTokens: 500, CacheReadTokens: 200},
		Cost:      model.KnownCost(0.01),
		CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	return *s
}

func TestSessionEmptyState(t *testing.T) {
	out := Session(*model.NewSessionStats("ses_1"), false)
	assert.Equal(t, "No usage recorded for this session yet.\n", out)
}

func TestSessionCompact(t *testing.T) {
	out := Session(sessionStats(), false)

	assert.Contains(t, out, "Session ses_1")
	assert.Contains(t, out, "Messages: 1")
	assert.Contains(t, out, "1,700")
	assert.Contains(t, out, "$0.0100")
	assert.NotContains(t, out, "Cache Read", "compact layout omits the category breakdown")
}

func TestSessionVerbose(t *testing.T) {
	out := Session(sessionStats(), true)

	assert.Contains(t, out, "Cache Read:")
	assert.Contains(t, out, "Cache Write:")
	assert.Contains(t, out, "sonnet-4-5", "model breakdown uses shortened names")
}

func TestSessionUnknownCost(t *testing.T) {
	s := model.NewSessionStats("ses_1")
	s.AddRecord(model.UsageRecord{
		SessionID: "ses_1",
		Model:     "local-model",
		Usage:     model.TokenUsage{InputTokens: 10},
		Cost:      model.UnknownCost(),
	})

	out := Session(*s, false)
	assert.Contains(t, out, "Cost: unknown")
}

func TestGlobalEmptyState(t *testing.T) {
	rows := []PeriodRow{{Label: "Today", Stats: model.NewAggregateStats()}}
	assert.Equal(t, "No usage recorded yet.\n", Global(rows, false))
}

func globalRows() []PeriodRow {
	today := model.NewAggregateStats()
	today.AddRecord(model.UsageRecord{
		SessionID: "ses_1",
		Model:     "anthropic/claude-sonnet-4-5",
		Usage:     model.TokenUsage{InputTokens: 1000, OutputTokens: 500},
		Cost:      model.KnownCost(0.01),
	})
	today.SessionCount = 1

	week := model.NewAggregateStats()
	week.AddRecord(model.UsageRecord{
		SessionID: "ses_1",
		Model:     "anthropic/claude-sonnet-4-5",
		Usage:     model.TokenUsage{InputTokens: 3000, OutputTokens: 1500},
		Cost:      model.KnownCost(0.03),
	})
	week.SessionCount = 2

	return []PeriodRow{
		{Label: "Today", Stats: today},
		{Label: "This Week", Stats: week},
	}
}

func TestGlobalCompact(t *testing.T) {
	out := Global(globalRows(), false)

	assert.Contains(t, out, "Today")
	assert.Contains(t, out, "This Week")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "4,500")
	assert.NotContains(t, out, "Sessions")
}

func TestGlobalVerbose(t *testing.T) {
	out := Global(globalRows(), true)

	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[0], "Sessions")
	assert.Contains(t, lines[0], "Cache Read")
	assert.Contains(t, out, "sonnet-4-5")
}

func TestGlobalVerboseBreakdownCountsNestedWindowsOnce(t *testing.T) {
	// A record landing today is also part of this week and this month,
	// so every row holds the same single record. The per-model breakdown
	// must reflect it once, not once per row.
	rec := model.UsageRecord{
		SessionID: "ses_1",
		Model:     "anthropic/claude-sonnet-4-5",
		Usage:     model.TokenUsage{InputTokens: 1000, OutputTokens: 500},
		Cost:      model.KnownCost(0.01),
	}
	var rows []PeriodRow
	for _, label := range []string{"Today", "This Week", "This Month"} {
		stats := model.NewAggregateStats()
		stats.AddRecord(rec)
		stats.SessionCount = 1
		rows = append(rows, PeriodRow{Label: label, Stats: stats})
	}

	out := Global(rows, true)

	breakdown := out[strings.Index(out, "\nModel"):]
	assert.Contains(t, breakdown, "1,500")
	assert.Contains(t, breakdown, "$0.0100")
	assert.NotContains(t, breakdown, "4,500")
	assert.NotContains(t, breakdown, "$0.0300")
}
