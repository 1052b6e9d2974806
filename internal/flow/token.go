// Package flow drives the recording conversation without server-side
// session state. Every button carries an action token; the bot answers an
// inbound event by decoding the token, re-validating what it carries and
// producing the next reply.
package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"kakei/internal/core"

	"github.com/google/uuid"
)

type Action string

const (
	ActionSelectCategory      Action = "SELECT_CATEGORY"
	ActionRecordToday         Action = "RECORD_TODAY"
	ActionSelectDate          Action = "SELECT_DATE"
	ActionCurrentMonthSummary Action = "CURRENT_MONTH_SUMMARY"
	ActionLastMonthSummary    Action = "LAST_MONTH_SUMMARY"
	ActionViewWeekPayments    Action = "VIEW_WEEK_PAYMENTS"
	ActionHowToUse            Action = "HOW_TO_USE"
	ActionPaymentDetail       Action = "PAYMENT_DETAIL"
	ActionDeletePayment       Action = "DELETE_PAYMENT"
	ActionConfirmDelete       Action = "CONFIRM_DELETE"
	ActionCancelDelete        Action = "CANCEL_DELETE"
)

// MaxTokenBytes is the postback data limit of the chat platform.
const MaxTokenBytes = 300

// ErrProtocol marks a token that is not JSON or names an unknown action.
// ErrInvalidToken marks a known action whose fields are missing or out of
// range.
var (
	ErrProtocol     = errors.New("protocol violation")
	ErrInvalidToken = errors.New("invalid token fields")
	ErrTokenTooLong = errors.New("token exceeds postback limit")
)

// Token is the wire form of an action token.
type Token struct {
	Action    Action `json:"action"`
	Content   string `json:"content,omitempty"`
	Amount    int64  `json:"amount,omitempty"`
	Category  string `json:"category,omitempty"`
	PaymentID string `json:"paymentId,omitempty"`
}

// Encode renders the token as compact JSON.
func (t Token) Encode() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(t); err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	data := strings.TrimSuffix(buf.String(), "\n")
	if len(data) > MaxTokenBytes {
		return "", ErrTokenTooLong
	}
	return data, nil
}

func entryToken(action Action, e core.Entry, c core.Category) Token {
	return Token{Action: action, Content: e.Content, Amount: int64(e.Amount), Category: string(c)}
}

func paymentToken(action Action, paymentID string) Token {
	return Token{Action: action, PaymentID: paymentID}
}

// Intent is a decoded, validated token. The concrete types below are the
// only implementations.
type Intent interface {
	Action() Action
}

type (
	// SelectCategory: a category button was tapped for an entry.
	SelectCategory struct {
		Entry    core.Entry
		Category core.Category
	}
	RecordToday struct {
		Entry    core.Entry
		Category core.Category
	}
	// SelectDate arrives with the picked datetime in Event.ClientDatetime.
	SelectDate struct {
		Entry    core.Entry
		Category core.Category
	}
	CurrentMonthSummary struct{}
	LastMonthSummary    struct{}
	ViewWeekPayments    struct{}
	HowToUse            struct{}
	PaymentDetail       struct{ PaymentID string }
	DeletePayment       struct{ PaymentID string }
	ConfirmDelete       struct{ PaymentID string }
	CancelDelete        struct{}
)

func (SelectCategory) Action() Action { return ActionSelectCategory }
func (RecordToday) Action() Action { return ActionRecordToday }
func (SelectDate) Action() Action { return ActionSelectDate }
func (CurrentMonthSummary) Action() Action { return ActionCurrentMonthSummary }
func (LastMonthSummary) Action() Action { return ActionLastMonthSummary }
func (ViewWeekPayments) Action() Action { return ActionViewWeekPayments }
func (HowToUse) Action() Action { return ActionHowToUse }
func (PaymentDetail) Action() Action { return ActionPaymentDetail }
func (DeletePayment) Action() Action { return ActionDeletePayment }
func (ConfirmDelete) Action() Action { return ActionConfirmDelete }
func (CancelDelete) Action() Action { return ActionCancelDelete }

// Decode parses and validates a token. Every field an action needs is
// checked again here, since the client echoes tokens back unverified.
func Decode(data string) (Intent, error) {
	var t Token
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch t.Action {
	case ActionSelectCategory:
		e, c, err := t.entry()
		return SelectCategory{Entry: e, Category: c}, err
	case ActionRecordToday:
		e, c, err := t.entry()
		return RecordToday{Entry: e, Category: c}, err
	case ActionSelectDate:
		e, c, err := t.entry()
		return SelectDate{Entry: e, Category: c}, err
	case ActionCurrentMonthSummary:
		return CurrentMonthSummary{}, nil
	case ActionLastMonthSummary:
		return LastMonthSummary{}, nil
	case ActionViewWeekPayments:
		return ViewWeekPayments{}, nil
	case ActionHowToUse:
		return HowToUse{}, nil
	case ActionPaymentDetail:
		id, err := t.paymentID()
		return PaymentDetail{PaymentID: id}, err
	case ActionDeletePayment:
		id, err := t.paymentID()
		return DeletePayment{PaymentID: id}, err
	case ActionConfirmDelete:
		id, err := t.paymentID()
		return ConfirmDelete{PaymentID: id}, err
	case ActionCancelDelete:
		return CancelDelete{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing action", ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrProtocol, t.Action)
	}
}

func (t Token) entry() (core.Entry, core.Category, error) {
	if strings.TrimSpace(t.Content) == "" || t.Amount == 0 || t.Category == "" {
		return core.Entry{}, "", fmt.Errorf("%w: %s requires content, amount and category", ErrInvalidToken, t.Action)
	}
	if err := core.ValidateContent(t.Content); err != nil {
		return core.Entry{}, "", fmt.Errorf("%w: content: %v", ErrInvalidToken, err)
	}
	amount := core.Yen(t.Amount)
	if err := amount.Validate(); err != nil {
		return core.Entry{}, "", fmt.Errorf("%w: amount %d: %v", ErrInvalidToken, t.Amount, err)
	}
	category, err := core.ParseCategory(t.Category)
	if err != nil {
		return core.Entry{}, "", fmt.Errorf("%w: category %q", ErrInvalidToken, t.Category)
	}
	return core.Entry{Content: strings.TrimSpace(t.Content), Amount: amount}, category, nil
}

func (t Token) paymentID() (string, error) {
	if t.PaymentID == "" {
		return "", fmt.Errorf("%w: %s requires paymentId", ErrInvalidToken, t.Action)
	}
	if _, err := uuid.Parse(t.PaymentID); err != nil {
		return "", fmt.Errorf("%w: paymentId %q", ErrInvalidToken, t.PaymentID)
	}
	return t.PaymentID, nil
}
