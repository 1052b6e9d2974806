package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kakei/internal/amqp"
	"kakei/internal/core"
	"kakei/internal/storage"
)

// Ledger is the transactional store behind the coordinator.
type Ledger interface {
	WithTx(ctx context.Context, fn func(q *storage.Queries) error) error
	GetPayment(ctx context.Context, userID, id string) (core.Payment, error)
	ListPaymentsBetween(ctx context.Context, userID string, from, to time.Time, limit int) ([]core.Payment, error)
	GetSummary(ctx context.Context, userID, yearMonth string) (core.MonthlySummary, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher receives committed ledger changes.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event *amqp.PaymentEvent) error
	Close() error
}

// PaymentService records and deletes payments, keeping the monthly summary
// in step with the ledger inside one transaction per call. Events are
// published after commit on a best-effort basis.
type PaymentService struct {
	ledger    Ledger
	publisher EventPublisher
	now       func() time.Time
}

func NewPaymentService(ledger Ledger, publisher EventPublisher) *PaymentService {
	return &PaymentService{
		ledger:    ledger,
		publisher: publisher,
		now:       time.Now,
	}
}

// Record inserts the payment and adds it to its month's summary. Both
// happen or neither does.
func (s *PaymentService) Record(ctx context.Context, np core.NewPayment) (core.Payment, error) {
	if err := np.Validate(); err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}

	var payment core.Payment
	err := s.ledger.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if payment, err = q.InsertPayment(ctx, np); err != nil {
			return err
		}
		return q.ApplySummaryDelta(ctx, core.RecordDelta(payment, s.now()))
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("record payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"payment_id", payment.ID,
		"user_id", payment.UserID,
		"category", string(payment.Category),
		"amount", int64(payment.Amount),
		"year_month", payment.YearMonth)

	s.publish(ctx, amqp.NewPaymentRecorded(payment))
	return payment, nil
}

// Delete removes the payment and subtracts it from the summary of its
// stored year-month. A missing payment fails with core.ErrPaymentNotFound
// and changes nothing.
func (s *PaymentService) Delete(ctx context.Context, userID, paymentID string) (core.Payment, error) {
	var payment core.Payment
	err := s.ledger.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if payment, err = q.DeletePayment(ctx, userID, paymentID); err != nil {
			return err
		}
		return q.ApplySummaryDelta(ctx, core.RemovalDelta(payment, s.now()))
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("delete payment %s: %w", paymentID, err)
	}

	slog.InfoContext(ctx, "Payment deleted",
		"payment_id", payment.ID,
		"user_id", payment.UserID,
		"amount", int64(payment.Amount),
		"year_month", payment.YearMonth)

	s.publish(ctx, amqp.NewPaymentDeleted(payment))
	return payment, nil
}

// Payment looks up one of the user's payments.
func (s *PaymentService) Payment(ctx context.Context, userID, paymentID string) (core.Payment, error) {
	p, err := s.ledger.GetPayment(ctx, userID, paymentID)
	if err != nil && !errors.Is(err, core.ErrPaymentNotFound) {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, err
}

// MonthlySummary returns the user's aggregate for yearMonth, all-zero when
// nothing was recorded.
func (s *PaymentService) MonthlySummary(ctx context.Context, userID, yearMonth string) (core.MonthlySummary, error) {
	summary, err := s.ledger.GetSummary(ctx, userID, yearMonth)
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("get monthly summary: %w", err)
	}
	return summary, nil
}

// WeekPayments lists the payments of the calendar week containing now,
// newest first, capped at core.WeekListLimit.
func (s *PaymentService) WeekPayments(ctx context.Context, userID string, now time.Time) ([]core.Payment, error) {
	from, to := core.WeekRange(now)
	payments, err := s.ledger.ListPaymentsBetween(ctx, userID, from, to, core.WeekListLimit)
	if err != nil {
		return nil, fmt.Errorf("list week payments: %w", err)
	}
	return payments, nil
}

// Ping reports whether the ledger is reachable.
func (s *PaymentService) Ping(ctx context.Context) error {
	return s.ledger.Ping(ctx)
}

func (s *PaymentService) publish(ctx context.Context, event *amqp.PaymentEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping payment event", "type", event.Type)
		return
	}
	// already committed; a failed publish is only logged
	if err := s.publisher.PublishPaymentEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment event",
			"type", event.Type,
			"payment_id", event.PaymentID,
			"error", err)
	}
}

// Close closes both the ledger and the publisher
func (s *PaymentService) Close() error {
	var errs []error

	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close payment service: %w", errors.Join(errs...))
	}

	return nil
}
