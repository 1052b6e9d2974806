package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"kakei/internal/core"
)

const (
	EventPaymentRecorded = "payment.recorded"
	EventPaymentDeleted  = "payment.deleted"
)

// PaymentEvent announces a committed ledger change. It carries the full
// payment snapshot because a deleted payment can no longer be read back.
type PaymentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Amount    int64     `json:"amount"`
	Date      time.Time `json:"date"`
	YearMonth string    `json:"year_month"`
	Timestamp time.Time `json:"timestamp"`
}

func newPaymentEvent(eventType string, p core.Payment) *PaymentEvent {
	return &PaymentEvent{
		Type:      eventType,
		PaymentID: p.ID,
		UserID:    p.UserID,
		Category:  string(p.Category),
		Content:   p.Content,
		Amount:    int64(p.Amount),
		Date:      p.Date,
		YearMonth: p.YearMonth,
		Timestamp: time.Now(),
	}
}

// NewPaymentRecorded builds the event for a newly committed payment.
func NewPaymentRecorded(p core.Payment) *PaymentEvent {
	return newPaymentEvent(EventPaymentRecorded, p)
}

// NewPaymentDeleted builds the event for a deleted payment.
func NewPaymentDeleted(p core.Payment) *PaymentEvent {
	return newPaymentEvent(EventPaymentDeleted, p)
}

// Payment rebuilds the payment snapshot carried by the event.
func (e *PaymentEvent) Payment() core.Payment {
	return core.Payment{
		ID:        e.PaymentID,
		UserID:    e.UserID,
		Category:  core.Category(e.Category),
		Content:   e.Content,
		Amount:    core.Yen(e.Amount),
		Date:      e.Date.In(core.Tokyo),
		YearMonth: e.YearMonth,
	}
}

// ToJSON converts the event to JSON bytes
func (e *PaymentEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PaymentEventFromJSON decodes and checks an event body.
func PaymentEventFromJSON(data []byte) (*PaymentEvent, error) {
	var e PaymentEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventPaymentRecorded, EventPaymentDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.PaymentID == "" {
		return nil, fmt.Errorf("event without payment id")
	}
	return &e, nil
}
