package wise

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dvloznov/dapfinance/internal/pipeline"
	"github.com/shopspring/decimal"
)

// WebhookPayload is a balance event delivered by Wise.
type WebhookPayload struct {
	EventType     string      `json:"event_type"`
	SchemaVersion string      `json:"schema_version"`
	SentAt        string      `json:"sent_at"`
	Data          WebhookData `json:"data"`
}

// WebhookData holds the balance movement. Amount is null-aware so that an
// absent amount is told apart from zero.
type WebhookData struct {
	Resource        Resource            `json:"resource"`
	Amount          decimal.NullDecimal `json:"amount"`
	Currency        string              `json:"currency"`
	Description     string              `json:"description"`
	Date            string              `json:"date"`
	ReferenceNumber string              `json:"referenceNumber"`
}

// Resource identifies the Wise object the event is about.
type Resource struct {
	ID        FlexibleID `json:"id"`
	ProfileID FlexibleID `json:"profile_id"`
	Type      string     `json:"type"`
}

// FlexibleID accepts a JSON number or string.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// ParseWebhookPayload decodes a raw webhook body into an ingestion event.
// A payload without an amount is rejected with pipeline.ErrInvalidEvent.
func ParseWebhookPayload(body []byte) (pipeline.WebhookEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pipeline.WebhookEvent{}, fmt.Errorf("ParseWebhookPayload: %w", err)
	}

	d := payload.Data
	if !d.Amount.Valid {
		return pipeline.WebhookEvent{}, fmt.Errorf("ParseWebhookPayload: %w: missing amount", pipeline.ErrInvalidEvent)
	}
	return pipeline.WebhookEvent{
		ResourceID:  string(d.Resource.ID),
		Amount:      d.Amount.Decimal,
		Currency:    d.Currency,
		Description: d.Description,
		Date:        d.Date,
		Reference:   d.ReferenceNumber,
	}, nil
}
