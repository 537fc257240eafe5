// Package tracker wires the ingestion and query paths: lifecycle
// events in, durable deduplicated records and text reports out.
package tracker

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ccmeter/ccmeter/internal/config"
	"github.com/ccmeter/ccmeter/internal/event"
	"github.com/ccmeter/ccmeter/internal/model"
	"github.com/ccmeter/ccmeter/internal/notify"
	"github.com/ccmeter/ccmeter/internal/period"
	"github.com/ccmeter/ccmeter/internal/pricing"
	"github.com/ccmeter/ccmeter/internal/report"
	"github.com/ccmeter/ccmeter/internal/session"
)

// Store is the persistence surface the tracker depends on.
type Store interface {
	Insert(r model.UsageRecord) error
	Exists(messageID string) (bool, error)
	QueryBySession(sessionID string) ([]model.UsageRecord, error)
	QueryByRange(machineID string, start, end time.Time, modelSubstring string) ([]model.UsageRecord, int, error)
}

// failureNoticeInterval bounds how often storage failures reach the UI.
const failureNoticeInterval = time.Minute

// Tracker is the ingestion-and-aggregation engine. Events are handled
// to completion one at a time; query methods may run concurrently with
// ingestion.
type Tracker struct {
	store     Store
	cache     *session.Cache
	agg       *period.Aggregator
	trigger   *notify.Trigger
	notifier  notify.Notifier
	failures  notify.Notifier
	overrides map[string]model.RateCard
	defaults  map[string]model.RateCard
	machineID string
	logger    *slog.Logger

	now func() time.Time
}

// New builds a tracker from resolved configuration.
func New(cfg *config.Config, st Store, notifier notify.Notifier, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:     st,
		cache:     session.NewCache(st),
		agg:       period.New(st, cfg.MachineID),
		trigger:   notify.NewTrigger(cfg.Notifications.Policy()),
		notifier:  notifier,
		failures:  notify.NewThrottled(notifier, failureNoticeInterval),
		overrides: cfg.Pricing,
		defaults:  pricing.Defaults(),
		machineID: cfg.MachineID,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent runs the full ingest path for one lifecycle event
// payload. Returns true when a new record was ingested; malformed
// events and replays of already-stored messages return false silently.
// A failed write is surfaced as a notification while the in-memory
// session totals are still updated, so the live running total stays
// consistent even when durability was not achieved.
func (t *Tracker) HandleEvent(data []byte) bool {
	completion, ok := event.Parse(data)
	if !ok {
		return false
	}

	stored, err := t.store.Exists(completion.MessageID)
	if err != nil {
		t.logger.Error("dedup check failed", "message_id", completion.MessageID, "error", err)
	}
	if stored {
		return false
	}

	card, haveCard := pricing.Resolve(completion.Model, t.overrides, t.defaults)
	cost := pricing.CostOf(completion.Usage, card, haveCard, completion.CostUSD)

	record := model.UsageRecord{
		SessionID: completion.SessionID,
		MessageID: completion.MessageID,
		Model:     completion.Model,
		Usage:     completion.Usage,
		Cost:      cost,
		CreatedAt: t.now(),
		MachineID: t.machineID,
	}

	// Seed before the insert so the fold and the Add below cannot
	// count the new record twice.
	if err := t.cache.Ensure(record.SessionID); err != nil {
		t.logger.Error("session seed failed", "session_id", record.SessionID, "error", err)
	}

	if err := t.store.Insert(record); err != nil {
		t.logger.Error("usage record not persisted", "message_id", record.MessageID, "error", err)
		t.failures.Notify(notify.SeverityError, "Usage record could not be saved; running totals may not survive a restart.")
	}
	t.cache.Add(record)

	t.trigger.Observe(record.Cost)
	if t.trigger.ShouldFire() {
		t.notifier.Notify(notify.SeverityInfo, t.checkpointMessage())
		t.trigger.Reset()
	}

	return true
}

// HandleStream ingests newline-delimited event payloads until the
// reader is exhausted, handling each event to completion before the
// next. Blank lines are skipped. Returns the number of new records
// ingested; notification thresholds accumulate across the whole
// stream, so triggers that need more than one message can fire.
func (t *Tracker) HandleStream(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)

	// Large assistant turns can carry long payload lines.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	ingested := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if t.HandleEvent(line) {
			ingested++
		}
	}
	if err := scanner.Err(); err != nil {
		return ingested, fmt.Errorf("failed to read event stream: %w", err)
	}
	return ingested, nil
}

func (t *Tracker) checkpointMessage() string {
	messages, costUSD, elapsed := t.trigger.Snapshot()
	return fmt.Sprintf("Usage checkpoint: %d messages, $%.2f over %s.",
		messages, costUSD, elapsed.Round(time.Minute))
}

// SessionReport renders the current-session usage report.
func (t *Tracker) SessionReport(sessionID string, verbose bool) (string, error) {
	stats, err := t.cache.Get(sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load session stats: %w", err)
	}
	return report.Session(stats, verbose), nil
}

// GlobalOptions select the periods and filters of a global report.
type GlobalOptions struct {
	Verbose        bool
	IncludeYear    bool
	IncludeAllTime bool
	ModelFilter    string
}

// GlobalReport renders rollups for today, this week, and this month,
// plus the optional year and all-time rows.
func (t *Tracker) GlobalReport(opts GlobalOptions) (string, error) {
	windows := []period.Window{period.Day, period.Week, period.Month}
	if opts.IncludeYear {
		windows = append(windows, period.Year)
	}
	if opts.IncludeAllTime {
		windows = append(windows, period.AllTime)
	}

	rows := make([]report.PeriodRow, 0, len(windows))
	for _, w := range windows {
		stats, err := t.agg.Aggregate(w, opts.ModelFilter)
		if err != nil {
			return "", fmt.Errorf("failed to aggregate %s: %w", w, err)
		}
		rows = append(rows, report.PeriodRow{Label: w.String(), Stats: stats})
	}

	return report.Global(rows, opts.Verbose), nil
}
