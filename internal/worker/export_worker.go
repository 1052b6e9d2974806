// Package worker turns payment events into spreadsheet export rows.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kakei/internal/amqp"
	"kakei/internal/cache"
	"kakei/internal/sheets"
)

const (
	seenEventsSize = 10_000
	seenEventsTTL  = 24 * time.Hour
)

// ExportWorker appends one row per recorded payment and one reversal row per
// deleted payment.
type ExportWorker struct {
	rows sheets.RowAppender
	seen *cache.LRUCache[string]
}

func NewExportWorker(rows sheets.RowAppender) *ExportWorker {
	return &ExportWorker{
		rows: rows,
		seen: cache.NewLRUCache[string](seenEventsSize, seenEventsTTL),
	}
}

// Seen exposes the redelivery cache so its expired entries can be purged.
func (w *ExportWorker) Seen() cache.Cleaner {
	return w.seen
}

// HandlePaymentEvent exports a single event. Redeliveries of an event that
// was already exported are acknowledged without writing a second row.
func (w *ExportWorker) HandlePaymentEvent(ctx context.Context, event *amqp.PaymentEvent) error {
	key := event.Type + ":" + event.PaymentID
	if !w.seen.SetIfAbsent(key, "") {
		slog.InfoContext(ctx, "Skipping already exported event",
			"component", "worker",
			"event_type", event.Type,
			"payment_id", event.PaymentID)
		return nil
	}

	row := sheets.NewRow(event.Payment(), event.Type == amqp.EventPaymentDeleted)
	ref, err := w.rows.AppendRow(ctx, row)
	if err != nil {
		w.seen.Delete(key)
		return fmt.Errorf("export %s %s: %w", event.Type, event.PaymentID, err)
	}
	w.seen.Set(key, ref)

	slog.InfoContext(ctx, "Payment event exported",
		"component", "worker",
		"event_type", event.Type,
		"payment_id", event.PaymentID,
		"year_month", row.YearMonth,
		"amount", row.Amount,
		"ref", ref)
	return nil
}
