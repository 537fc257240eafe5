// Package report renders usage statistics as text tables for the
// host's command surface.
package report

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ccmeter/ccmeter/internal/model"
)

// PeriodRow is one line of a global usage report.
type PeriodRow struct {
	Label string
	Stats *model.AggregateStats
}

// FormatNumber formats a number with thousand separators.
func FormatNumber(n int64) string {
	if n == 0 {
		return "0"
	}

	str := fmt.Sprintf("%d", n)
	negative := n < 0
	if negative {
		str = str[1:]
	}

	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}

	if negative {
		return "-" + result
	}
	return result
}

// FormatUSD formats a dollar amount.
func FormatUSD(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

// FormatCost formats a possibly-unknown cost.
func FormatCost(c model.Cost) string {
	if !c.Known {
		return "unknown"
	}
	return FormatUSD(c.USD)
}

var (
	datedModelRe = regexp.MustCompile(`^claude-(\w+)-([\d-]+)-(\d{8})$`)
	bareModelRe  = regexp.MustCompile(`^claude-(\w+)-([\d-]+)$`)
)

// ShortenModel converts full model identifiers to short form:
// anthropic/claude-sonnet-4-5-20250929 -> sonnet-4-5.
func ShortenModel(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if m := datedModelRe.FindStringSubmatch(name); m != nil {
		return fmt.Sprintf("%s-%s", m[1], m[2])
	}
	if m := bareModelRe.FindStringSubmatch(name); m != nil {
		return fmt.Sprintf("%s-%s", m[1], m[2])
	}
	return name
}

// Session renders the current-session report. Verbose adds the cache
// token categories and a per-model breakdown.
func Session(stats model.SessionStats, verbose bool) string {
	if stats.MessageCount == 0 {
		return "No usage recorded for this session yet.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\n", stats.SessionID)
	if !stats.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started: %s\n", stats.StartedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "Messages: %d   Tokens: %s   Cost: %s\n",
		stats.MessageCount,
		FormatNumber(stats.TotalUsage.Total()),
		FormatCost(stats.TotalCost))

	if !verbose {
		return b.String()
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  %-14s %s\n", "Input:", FormatNumber(stats.TotalUsage.InputTokens))
	fmt.Fprintf(&b, "  %-14s %s\n", "Output:", FormatNumber(stats.TotalUsage.OutputTokens))
	fmt.Fprintf(&b, "  %-14s %s\n", "Cache Read:", FormatNumber(stats.TotalUsage.CacheReadTokens))
	fmt.Fprintf(&b, "  %-14s %s\n", "Cache Write:", FormatNumber(stats.TotalUsage.CacheWriteTokens))

	writeModelBreakdown(&b, stats.ByModel)
	return b.String()
}

// Global renders the multi-period report. Verbose switches from the
// compact two-column layout to the full token breakdown per period.
func Global(rows []PeriodRow, verbose bool) string {
	hasData := false
	for _, row := range rows {
		if row.Stats != nil && row.Stats.MessageCount > 0 {
			hasData = true
			break
		}
	}
	if !hasData {
		return "No usage recorded yet.\n"
	}

	labelWidth := len("Period")
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
	}

	var b strings.Builder

	if verbose {
		fmt.Fprintf(&b, "%-*s  %12s  %12s  %12s  %12s  %8s  %8s  %10s\n",
			labelWidth, "Period", "Input", "Output", "Cache Read", "Cache Write", "Sessions", "Msgs", "Cost")
		b.WriteString(strings.Repeat("─", labelWidth+2+12+2+12+2+12+2+12+2+8+2+8+2+10) + "\n")
		for _, row := range rows {
			s := row.Stats
			fmt.Fprintf(&b, "%-*s  %12s  %12s  %12s  %12s  %8d  %8d  %10s\n",
				labelWidth, row.Label,
				FormatNumber(s.TotalUsage.InputTokens),
				FormatNumber(s.TotalUsage.OutputTokens),
				FormatNumber(s.TotalUsage.CacheReadTokens),
				FormatNumber(s.TotalUsage.CacheWriteTokens),
				s.SessionCount,
				s.MessageCount,
				FormatUSD(s.TotalCost))
		}

		// The windows nest (today within this week within this month
		// and so on), so summing across rows would count each record
		// once per row. The widest window present already holds every
		// record of the narrower ones exactly once.
		widest := rows[len(rows)-1].Stats
		writeModelBreakdown(&b, widest.ByModel)
	} else {
		fmt.Fprintf(&b, "%-*s  %14s  %10s\n", labelWidth, "Period", "Tokens", "Cost")
		b.WriteString(strings.Repeat("─", labelWidth+2+14+2+10) + "\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "%-*s  %14s  %10s\n",
				labelWidth, row.Label,
				FormatNumber(row.Stats.TotalUsage.Total()),
				FormatUSD(row.Stats.TotalCost))
		}
	}

	return b.String()
}

func writeModelBreakdown(b *strings.Builder, byModel map[string]*model.ModelStats) {
	if len(byModel) == 0 {
		return
	}

	names := make([]string, 0, len(byModel))
	for name := range byModel {
		names = append(names, name)
	}
	sort.Strings(names)

	width := len("Model")
	for _, name := range names {
		if short := ShortenModel(name); len(short) > width {
			width = len(short)
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(b, "%-*s  %14s  %10s\n", width, "Model", "Tokens", "Cost")
	b.WriteString(strings.Repeat("─", width+2+14+2+10) + "\n")
	for _, name := range names {
		ms := byModel[name]
		fmt.Fprintf(b, "%-*s  %14s  %10s\n",
			width, ShortenModel(name),
			FormatNumber(ms.Usage.Total()),
			FormatCost(ms.Cost))
	}
}
