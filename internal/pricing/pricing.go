// Package pricing resolves model identifiers to rate cards and turns
// token counts into monetary cost.
package pricing

import (
	"sort"
	"strings"

	"github.com/ccmeter/ccmeter/internal/model"
)

const tokensPerMillion = 1_000_000

// Defaults returns the built-in rate table, USD per one million
// tokens. Keys are bare model names; provider-qualified identifiers
// from events match via the suffix rule in Resolve.
func Defaults() map[string]model.RateCard {
	return map[string]model.RateCard{
		// Opus 4.5
		"claude-opus-4-5": {
			InputPerMTok:      5.00,
			OutputPerMTok:     25.00,
			CacheReadPerMTok:  0.50,
			CacheWritePerMTok: 6.25,
		},
		// Opus 4.1
		"claude-opus-4-1": {
			InputPerMTok:      15.00,
			OutputPerMTok:     75.00,
			CacheReadPerMTok:  1.50,
			CacheWritePerMTok: 18.75,
		},
		// Opus 4
		"claude-opus-4-20250514": {
			InputPerMTok:      15.00,
			OutputPerMTok:     75.00,
			CacheReadPerMTok:  1.50,
			CacheWritePerMTok: 18.75,
		},
		// Sonnet 4.5
		"claude-sonnet-4-5": {
			InputPerMTok:      3.00,
			OutputPerMTok:     15.00,
			CacheReadPerMTok:  0.30,
			CacheWritePerMTok: 3.75,
		},
		// Sonnet 4
		"claude-sonnet-4-20250514": {
			InputPerMTok:      3.00,
			OutputPerMTok:     15.00,
			CacheReadPerMTok:  0.30,
			CacheWritePerMTok: 3.75,
		},
		// Sonnet 3.7
		"claude-3-7-sonnet-20250219": {
			InputPerMTok:      3.00,
			OutputPerMTok:     15.00,
			CacheReadPerMTok:  0.30,
			CacheWritePerMTok: 3.75,
		},
		// Haiku 4.5
		"claude-haiku-4-5": {
			InputPerMTok:      1.00,
			OutputPerMTok:     5.00,
			CacheReadPerMTok:  0.10,
			CacheWritePerMTok: 1.25,
		},
		// Haiku 3.5
		"claude-3-5-haiku-20241022": {
			InputPerMTok:      0.80,
			OutputPerMTok:     4.00,
			CacheReadPerMTok:  0.08,
			CacheWritePerMTok: 1.00,
		},
	}
}

// Resolve maps a model identifier to a rate card. Overrides are
// applied on top of the defaults entry-by-entry, so configuring one
// model replaces only that model's card. Lookup is exact first, then
// by bare model name: the provider prefix is stripped from the
// incoming identifier and the merged keys are scanned for one whose
// own suffix-after-"/" (or full key) equals the stripped name. No
// casing or whitespace normalization is performed.
func Resolve(modelID string, overrides, defaults map[string]model.RateCard) (model.RateCard, bool) {
	merged := make(map[string]model.RateCard, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	if card, ok := merged[modelID]; ok {
		return card, true
	}

	stripped := bareName(modelID)
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	// Sorted scan keeps "first match" deterministic.
	sort.Strings(keys)
	for _, k := range keys {
		if k == stripped || bareName(k) == stripped {
			return merged[k], true
		}
	}

	return model.RateCard{}, false
}

// bareName returns the substring after the last "/".
func bareName(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// CostOf computes the monetary cost of a usage sample. Precedence is
// strict: a resolved rate card always wins, even when the computed
// amount is zero and even when the host supplied its own cost; a
// strictly positive fallback is used verbatim when no card resolved;
// otherwise the cost is unknown. A zero fallback counts as absent.
func CostOf(usage model.TokenUsage, card model.RateCard, haveCard bool, fallbackUSD float64) model.Cost {
	if haveCard {
		usd := float64(usage.InputTokens)*card.InputPerMTok/tokensPerMillion +
			float64(usage.OutputTokens)*card.OutputPerMTok/tokensPerMillion +
			float64(usage.CacheReadTokens)*card.CacheReadPerMTok/tokensPerMillion +
			float64(usage.CacheWriteTokens)*card.CacheWritePerMTok/tokensPerMillion
		return model.KnownCost(usd)
	}
	if fallbackUSD > 0 {
		return model.KnownCost(fallbackUSD)
	}
	return model.UnknownCost()
}
