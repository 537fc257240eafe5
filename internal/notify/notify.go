// Package notify decides when usage thresholds have been crossed and
// carries short messages to the host UI.
package notify

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/ccmeter/ccmeter/internal/model"
)

// Mode selects which threshold a policy watches. Modes are mutually
// exclusive: exactly one is active in an enabled policy.
type Mode string

const (
	ModeMessages Mode = "messages"
	ModeCost     Mode = "cost"
	ModeTime     Mode = "time"
)

// Policy is the resolved notification policy.
type Policy struct {
	Enabled          bool
	Mode             Mode
	MessageThreshold int
	CostThresholdUSD float64
	TimeThreshold    time.Duration
}

// Severity tags an outbound notification.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Notifier delivers a short text message to the host UI.
type Notifier interface {
	Notify(severity Severity, message string)
}

// Trigger tracks messages, cost, and elapsed time since the last
// reset. Not safe for concurrent use; the ingest path drives it
// sequentially.
type Trigger struct {
	policy   Policy
	messages int
	costUSD  float64
	since    time.Time

	now func() time.Time // stubbed in tests
}

// NewTrigger returns a trigger with all counters at zero and the
// elapsed-time clock started.
func NewTrigger(policy Policy) *Trigger {
	t := &Trigger{policy: policy, now: time.Now}
	t.since = t.now()
	return t
}

// Observe folds one ingested record into the counters. Unknown costs
// advance the message counter but not the cost counter.
func (t *Trigger) Observe(cost model.Cost) {
	t.messages++
	if cost.Known {
		t.costUSD += cost.USD
	}
}

// ShouldFire reports whether the active threshold has been crossed.
// A disabled policy never fires.
func (t *Trigger) ShouldFire() bool {
	if !t.policy.Enabled {
		return false
	}
	switch t.policy.Mode {
	case ModeMessages:
		return t.policy.MessageThreshold > 0 && t.messages >= t.policy.MessageThreshold
	case ModeCost:
		return t.policy.CostThresholdUSD > 0 && t.costUSD >= t.policy.CostThresholdUSD
	case ModeTime:
		return t.policy.TimeThreshold > 0 && t.now().Sub(t.since) >= t.policy.TimeThreshold
	}
	return false
}

// Snapshot returns the counters accumulated since the last reset.
func (t *Trigger) Snapshot() (messages int, costUSD float64, elapsed time.Duration) {
	return t.messages, t.costUSD, t.now().Sub(t.since)
}

// Reset clears all three counters, regardless of which mode fired.
func (t *Trigger) Reset() {
	t.messages = 0
	t.costUSD = 0
	t.since = t.now()
}

// Throttled wraps a notifier with a rate limit so repeated failures
// (for example a persistently broken disk) do not flood the UI.
type Throttled struct {
	inner   Notifier
	limiter *rate.Limiter
}

// NewThrottled allows at most one notification per interval, with a
// burst of one.
func NewThrottled(inner Notifier, interval time.Duration) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Notify forwards the message unless the limit is exhausted.
func (t *Throttled) Notify(severity Severity, message string) {
	if t.limiter.Allow() {
		t.inner.Notify(severity, message)
	}
}
