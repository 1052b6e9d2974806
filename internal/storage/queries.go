package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kakei/internal/core"

	"github.com/google/uuid"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds every statement the ledger runs. Bound to a *sql.Tx it is
// the unit of work handed out by SQLiteRepository.WithTx.
type Queries struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Queries {
	return &Queries{db: db, now: time.Now}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, now: q.now}
}

const paymentColumns = `id, user_id, category, content, amount, paid_at, year_month, created_at, updated_at`

const insertPayment = `
INSERT INTO payments (` + paymentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertPayment stores a new payment, assigning its ID, YearMonth and
// timestamps.
func (q *Queries) InsertPayment(ctx context.Context, p core.NewPayment) (core.Payment, error) {
	now := q.now()
	payment := core.Payment{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Category:  p.Category,
		Content:   p.Content,
		Amount:    p.Amount,
		Date:      p.Date.In(core.Tokyo),
		YearMonth: core.YearMonthOf(p.Date),
		CreatedAt: now.In(core.Tokyo),
		UpdatedAt: now.In(core.Tokyo),
	}

	_, err := q.db.ExecContext(ctx, insertPayment,
		payment.ID,
		payment.UserID,
		string(payment.Category),
		payment.Content,
		int64(payment.Amount),
		payment.Date.UnixMilli(),
		payment.YearMonth,
		now.UnixMilli(),
		now.UnixMilli(),
	)
	if err != nil {
		return core.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

const getPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = ? AND id = ?`

// GetPayment returns core.ErrPaymentNotFound when the user owns no payment
// with that id.
func (q *Queries) GetPayment(ctx context.Context, userID, id string) (core.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx, getPayment, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

const deletePayment = `DELETE FROM payments WHERE user_id = ? AND id = ? RETURNING ` + paymentColumns

// DeletePayment removes the payment and returns it as it was stored. A
// second delete of the same id yields core.ErrPaymentNotFound.
func (q *Queries) DeletePayment(ctx context.Context, userID, id string) (core.Payment, error) {
	p, err := scanPayment(q.db.QueryRowContext(ctx, deletePayment, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("delete payment: %w", err)
	}
	return p, nil
}

const listPaymentsBetween = `
SELECT ` + paymentColumns + `
FROM payments
WHERE user_id = ? AND paid_at >= ? AND paid_at < ?
ORDER BY paid_at DESC, created_at DESC
LIMIT ?`

// ListPaymentsBetween returns the user's payments dated in [from, to),
// newest first.
func (q *Queries) ListPaymentsBetween(ctx context.Context, userID string, from, to time.Time, limit int) ([]core.Payment, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentsBetween, userID, from.UnixMilli(), to.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

const applySummaryDelta = `
INSERT INTO monthly_summaries
    (user_id, year_month, total_amount, food_total, daily_goods_total, other_total, record_count, last_updated)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, year_month) DO UPDATE SET
    total_amount      = total_amount + excluded.total_amount,
    food_total        = food_total + excluded.food_total,
    daily_goods_total = daily_goods_total + excluded.daily_goods_total,
    other_total       = other_total + excluded.other_total,
    record_count      = record_count + excluded.record_count,
    last_updated      = excluded.last_updated`

// ApplySummaryDelta adds d to the summary row, creating it when missing.
// The increment happens inside the statement, never as read-modify-write.
func (q *Queries) ApplySummaryDelta(ctx context.Context, d core.SummaryDelta) error {
	var food, daily, other core.Yen
	switch d.Category {
	case core.CategoryFood:
		food = d.Amount
	case core.CategoryDailyGoods:
		daily = d.Amount
	case core.CategoryOther:
		other = d.Amount
	default:
		return fmt.Errorf("apply summary delta: %w", core.ErrInvalidCategory)
	}

	_, err := q.db.ExecContext(ctx, applySummaryDelta,
		d.UserID,
		d.YearMonth,
		int64(d.Amount),
		int64(food),
		int64(daily),
		int64(other),
		d.Count,
		d.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("apply summary delta: %w", err)
	}
	return nil
}

const getSummary = `
SELECT total_amount, food_total, daily_goods_total, other_total, record_count, last_updated
FROM monthly_summaries
WHERE user_id = ? AND year_month = ?`

// GetSummary returns the stored summary, or the all-zero summary when the
// month has never been touched.
func (q *Queries) GetSummary(ctx context.Context, userID, yearMonth string) (core.MonthlySummary, error) {
	var total, food, daily, other, count, updated int64
	err := q.db.QueryRowContext(ctx, getSummary, userID, yearMonth).
		Scan(&total, &food, &daily, &other, &count, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EmptySummary(userID, yearMonth), nil
	}
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("get summary: %w", err)
	}

	s := core.EmptySummary(userID, yearMonth)
	s.TotalAmount = core.Yen(total)
	s.CategoryTotals[core.CategoryFood] = core.Yen(food)
	s.CategoryTotals[core.CategoryDailyGoods] = core.Yen(daily)
	s.CategoryTotals[core.CategoryOther] = core.Yen(other)
	s.RecordCount = count
	s.LastUpdated = time.UnixMilli(updated).In(core.Tokyo)
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (core.Payment, error) {
	var p core.Payment
	var category string
	var amount, paidAt, created, upd int64
	if err := row.Scan(&p.ID, &p.UserID, &category, &p.Content, &amount, &paidAt, &p.YearMonth, &created, &upd); err != nil {
		return core.Payment{}, err
	}
	p.Category = core.Category(category)
	p.Amount = core.Yen(amount)
	p.Date = time.UnixMilli(paidAt).In(core.Tokyo)
	p.CreatedAt = time.UnixMilli(created).In(core.Tokyo)
	p.UpdatedAt = time.UnixMilli(upd).In(core.Tokyo)
	return p, nil
}
