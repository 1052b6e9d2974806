package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakei/internal/core"
)

type EventKind string

const (
	KindText     EventKind = "text"
	KindPostback EventKind = "postback"
)

// Event is one inbound user interaction, already authenticated.
type Event struct {
	UserID         string
	Kind           EventKind
	Text           string
	ActionToken    string
	ClientDatetime string
}

// Payments is the recording coordinator as seen by the conversation.
type Payments interface {
	Record(ctx context.Context, np core.NewPayment) (core.Payment, error)
	Delete(ctx context.Context, userID, paymentID string) (core.Payment, error)
	Payment(ctx context.Context, userID, paymentID string) (core.Payment, error)
	MonthlySummary(ctx context.Context, userID, yearMonth string) (core.MonthlySummary, error)
	WeekPayments(ctx context.Context, userID string, now time.Time) ([]core.Payment, error)
}

// Machine maps an event to the next reply. It holds no per-user state.
type Machine struct {
	payments Payments
	now      func() time.Time
}

func NewMachine(payments Payments, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{payments: payments, now: now}
}

// Handle always returns a reply for the user. The error, when set, is for
// the caller to log: ErrProtocol and ErrInvalidToken for bad tokens,
// anything else for a failed store operation.
func (m *Machine) Handle(ctx context.Context, ev Event) (Reply, error) {
	if ev.UserID == "" {
		return TextReply{Message: msgGenericFailure}, fmt.Errorf("%w: event without user", ErrProtocol)
	}

	switch ev.Kind {
	case KindText:
		return m.handleText(ev.Text)
	case KindPostback:
		intent, err := Decode(ev.ActionToken)
		if err != nil {
			return TextReply{Message: msgGenericFailure}, err
		}
		return m.dispatch(ctx, ev, intent)
	default:
		return TextReply{Message: msgGenericFailure}, fmt.Errorf("%w: unknown event kind %q", ErrProtocol, ev.Kind)
	}
}

func (m *Machine) dispatch(ctx context.Context, ev Event, intent Intent) (Reply, error) {
	switch in := intent.(type) {
	case SelectCategory:
		return m.dateChoice(in.Entry, in.Category, "")
	case RecordToday:
		return m.record(ctx, ev.UserID, in.Entry, in.Category, m.now())
	case SelectDate:
		date, err := core.ValidatePaymentDate(ev.ClientDatetime, m.now())
		if err != nil {
			return m.dateChoice(in.Entry, in.Category, msgDateRange)
		}
		return m.record(ctx, ev.UserID, in.Entry, in.Category, date)
	case CurrentMonthSummary:
		return m.summary(ctx, ev.UserID, core.YearMonthOf(m.now()))
	case LastMonthSummary:
		return m.summary(ctx, ev.UserID, core.PreviousYearMonth(m.now()))
	case ViewWeekPayments:
		return m.week(ctx, ev.UserID)
	case HowToUse:
		return TextReply{Message: msgHowToUse}, nil
	case PaymentDetail:
		return m.detail(ctx, ev.UserID, in.PaymentID)
	case DeletePayment:
		return m.confirmDelete(ctx, ev.UserID, in.PaymentID)
	case ConfirmDelete:
		return m.delete(ctx, ev.UserID, in.PaymentID)
	case CancelDelete:
		return TextReply{Message: msgDeleteCanceled}, nil
	default:
		return TextReply{Message: msgGenericFailure}, fmt.Errorf("%w: unhandled intent %T", ErrProtocol, intent)
	}
}

func (m *Machine) handleText(text string) (Reply, error) {
	entry, err := core.ParseEntry(text)
	switch {
	case errors.Is(err, core.ErrInvalidAmount):
		return TextReply{Message: msgAmountRange}, nil
	case errors.Is(err, core.ErrContentTooLong):
		return TextReply{Message: msgContentTooLong}, nil
	case err != nil:
		return TextReply{Message: msgEntryGuide}, nil
	}

	options := make([]Option, 0, len(core.Categories))
	for _, c := range core.Categories {
		token, err := entryToken(ActionSelectCategory, entry, c).Encode()
		if err != nil {
			return TextReply{Message: msgContentTooLong}, nil
		}
		options = append(options, Option{Label: c.Label(), Token: token})
	}
	return CategoryChoice{
		Prompt:  fmt.Sprintf("%s %s円\n%s", entry.Content, entry.Amount, msgSelectCategory),
		Entry:   entry,
		Options: options,
	}, nil
}

func (m *Machine) dateChoice(entry core.Entry, category core.Category, notice string) (Reply, error) {
	today, err := entryToken(ActionRecordToday, entry, category).Encode()
	if err != nil {
		return TextReply{Message: msgGenericFailure}, err
	}
	pick, err := entryToken(ActionSelectDate, entry, category).Encode()
	if err != nil {
		return TextReply{Message: msgGenericFailure}, err
	}

	now := m.now().In(core.Tokyo)
	earliest, latest := core.PaymentWindow(now)
	return DateChoice{
		Prompt: msgSelectDate,
		Notice: notice,
		Today:  Option{Label: msgToday, Token: today},
		Pick: DatePick{
			Label:   msgPickDate,
			Token:   pick,
			Initial: now.Format(core.PickerLayout),
			Min:     earliest.Format(core.PickerLayout),
			Max:     latest.Format(core.PickerLayout),
		},
	}, nil
}

func (m *Machine) record(ctx context.Context, userID string, entry core.Entry, category core.Category, date time.Time) (Reply, error) {
	payment, err := m.payments.Record(ctx, core.NewPayment{
		UserID:   userID,
		Category: category,
		Content:  entry.Content,
		Amount:   entry.Amount,
		Date:     date,
	})
	if err != nil {
		return TextReply{Message: msgRecordFailed}, err
	}

	summary, err := m.payments.MonthlySummary(ctx, userID, payment.YearMonth)
	if err != nil {
		// the payment is stored; only the total is missing
		return TextReply{Message: fmt.Sprintf("記録したよ！\n%s： %s %s円", category.Label(), entry.Content, entry.Amount)}, err
	}
	return Recorded{Payment: payment, MonthTotal: summary.TotalAmount}, nil
}

func (m *Machine) summary(ctx context.Context, userID, yearMonth string) (Reply, error) {
	summary, err := m.payments.MonthlySummary(ctx, userID, yearMonth)
	if err != nil {
		return TextReply{Message: msgSummaryFailed}, err
	}
	return SummaryReply{Summary: summary}, nil
}

func (m *Machine) week(ctx context.Context, userID string) (Reply, error) {
	payments, err := m.payments.WeekPayments(ctx, userID, m.now())
	if err != nil {
		return TextReply{Message: msgSummaryFailed}, err
	}
	if len(payments) == 0 {
		return TextReply{Message: msgNoWeekPayments}, nil
	}

	items := make([]Option, 0, len(payments))
	for _, p := range payments {
		token, err := paymentToken(ActionPaymentDetail, p.ID).Encode()
		if err != nil {
			return TextReply{Message: msgGenericFailure}, err
		}
		items = append(items, Option{Label: itemLabel(p), Token: token})
	}
	return PaymentList{Title: msgWeekTitle, Items: items}, nil
}

// lookup resolves a payment reference. A nil reply means the payment
// exists; otherwise the reply is what the user should see.
func (m *Machine) lookup(ctx context.Context, userID, paymentID string) (core.Payment, Reply, error) {
	p, err := m.payments.Payment(ctx, userID, paymentID)
	if errors.Is(err, core.ErrPaymentNotFound) {
		return core.Payment{}, TextReply{Message: msgAlreadyDeleted}, nil
	}
	if err != nil {
		return core.Payment{}, TextReply{Message: msgGenericFailure}, err
	}
	return p, nil, nil
}

func (m *Machine) detail(ctx context.Context, userID, paymentID string) (Reply, error) {
	p, reply, err := m.lookup(ctx, userID, paymentID)
	if reply != nil {
		return reply, err
	}
	token, err := paymentToken(ActionDeletePayment, p.ID).Encode()
	if err != nil {
		return TextReply{Message: msgGenericFailure}, err
	}
	return PaymentDetailReply{Payment: p, Delete: Option{Label: msgDeleteButton, Token: token}}, nil
}

func (m *Machine) confirmDelete(ctx context.Context, userID, paymentID string) (Reply, error) {
	p, reply, err := m.lookup(ctx, userID, paymentID)
	if reply != nil {
		return reply, err
	}
	confirm, err := paymentToken(ActionConfirmDelete, p.ID).Encode()
	if err != nil {
		return TextReply{Message: msgGenericFailure}, err
	}
	cancel, err := paymentToken(ActionCancelDelete, p.ID).Encode()
	if err != nil {
		return TextReply{Message: msgGenericFailure}, err
	}
	return DeleteConfirmation{
		Prompt:  msgConfirmDelete,
		Confirm: Option{Label: msgYes, Token: confirm},
		Cancel:  Option{Label: msgNo, Token: cancel},
	}, nil
}

func (m *Machine) delete(ctx context.Context, userID, paymentID string) (Reply, error) {
	if _, reply, err := m.lookup(ctx, userID, paymentID); reply != nil {
		return reply, err
	}

	deleted, err := m.payments.Delete(ctx, userID, paymentID)
	if errors.Is(err, core.ErrPaymentNotFound) {
		// lost the race to a concurrent confirmation
		return TextReply{Message: msgAlreadyDeleted}, nil
	}
	if err != nil {
		return TextReply{Message: msgDeleteFailed}, err
	}

	summary, err := m.payments.MonthlySummary(ctx, userID, deleted.YearMonth)
	if err != nil {
		return TextReply{Message: fmt.Sprintf("削除したよ！\n%s： %s %s円", deleted.Category.Label(), deleted.Content, deleted.Amount)}, err
	}
	return Deleted{Payment: deleted, MonthTotal: summary.TotalAmount}, nil
}
