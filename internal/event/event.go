// Package event decodes message-completion notifications from the
// host runtime into a canonical form the ingestion path can consume.
package event

import (
	"encoding/json"
	"time"

	"github.com/ccmeter/ccmeter/internal/model"
)

// ModelRef is the model identification carried by a host event. Hosts
// send either a flat string ("anthropic/claude-sonnet-4-5") or a
// structured provider+model pair; both decode into this union.
type ModelRef struct {
	Flat       string
	ProviderID string
	ModelID    string
}

// UnmarshalJSON accepts both wire shapes.
func (m *ModelRef) UnmarshalJSON(data []byte) error {
	var flat string
	if err := json.Unmarshal(data, &flat); err == nil {
		*m = ModelRef{Flat: flat}
		return nil
	}

	var structured struct {
		ProviderID string `json:"providerID"`
		ModelID    string `json:"modelID"`
	}
	if err := json.Unmarshal(data, &structured); err != nil {
		return err
	}
	*m = ModelRef{ProviderID: structured.ProviderID, ModelID: structured.ModelID}
	return nil
}

// Canonical normalizes the union to a single provider/model string.
// A flat value is passed through as-is; downstream provider derivation
// handles flat names without a separator.
func (m ModelRef) Canonical() string {
	if m.Flat != "" {
		return m.Flat
	}
	if m.ProviderID != "" && m.ModelID != "" {
		return m.ProviderID + "/" + m.ModelID
	}
	return m.ModelID
}

// rawEvent mirrors the host's lifecycle event JSON.
type rawEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Message   struct {
		ID    string   `json:"id"`
		Role  string   `json:"role"`
		Model ModelRef `json:"model"`
		Cost  float64  `json:"cost"`
		Time  struct {
			Completed int64 `json:"completed"` // Unix milliseconds, 0 while streaming
		} `json:"time"`
		Tokens struct {
			Input  int64 `json:"input"`
			Output int64 `json:"output"`
			Cache  struct {
				Read  int64 `json:"read"`
				Write int64 `json:"write"`
			} `json:"cache"`
		} `json:"tokens"`
	} `json:"message"`
}

// Completion is a normalized, validated message-completion event.
type Completion struct {
	SessionID   string
	MessageID   string
	Model       string
	Usage       model.TokenUsage
	CostUSD     float64 // host-supplied fallback cost, 0 when absent
	CompletedAt time.Time
}

// Parse decodes a lifecycle event payload. ok is false for events the
// engine must ignore: undecodable JSON, non-assistant messages,
// messages still streaming, and messages without token data. Malformed
// events are not errors.
func Parse(data []byte) (Completion, bool) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Completion{}, false
	}

	msg := raw.Message
	if msg.Role != "assistant" || msg.ID == "" || raw.SessionID == "" {
		return Completion{}, false
	}
	if msg.Time.Completed == 0 {
		return Completion{}, false
	}
	if msg.Tokens.Input == 0 && msg.Tokens.Output == 0 {
		return Completion{}, false
	}

	return Completion{
		SessionID: raw.SessionID,
		MessageID: msg.ID,
		Model:     msg.Model.Canonical(),
		Usage: model.TokenUsage{
			InputTokens:      msg.Tokens.Input,
			OutputTokens:     msg.Tokens.Output,
			CacheReadTokens:  msg.Tokens.Cache.Read,
			CacheWriteTokens: msg.Tokens.Cache.Write,
		},
		CostUSD:     msg.Cost,
		CompletedAt: time.UnixMilli(msg.Time.Completed),
	}, true
}
