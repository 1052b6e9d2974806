package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	CategoryFood       Category = "FOOD"
	CategoryDailyGoods Category = "DAILY_GOODS"
	CategoryOther      Category = "OTHER"
)

// MaxContentRunes bounds the free-text description so that an entry still
// fits inside a postback payload.
const MaxContentRunes = 50

type (
	Category string

	// Payment is one recorded spending event. YearMonth is derived once at
	// creation (Asia/Tokyo) and never recomputed.
	Payment struct {
		ID        string
		UserID    string
		Category  Category
		Content   string
		Amount    Yen
		Date      time.Time
		YearMonth string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// NewPayment carries what the caller supplies when recording.
	NewPayment struct {
		UserID   string
		Category Category
		Content  string
		Amount   Yen
		Date     time.Time
	}
)

// Categories lists every category in display order.
var Categories = []Category{CategoryFood, CategoryDailyGoods, CategoryOther}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyContent     = errors.New("empty content")
	ErrContentTooLong   = errors.New("content too long")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrEmptyUser        = errors.New("empty user id")
	ErrInvalidDate      = errors.New("invalid date")
	ErrDateOutOfRange   = errors.New("date out of range")
	ErrUnparseableEntry = errors.New("unparseable entry")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryDailyGoods, CategoryOther:
		return true
	}
	return false
}

// Label returns the display name shown to users.
func (c Category) Label() string {
	switch c {
	case CategoryFood:
		return "食費"
	case CategoryDailyGoods:
		return "日用品"
	case CategoryOther:
		return "その他"
	}
	return string(c)
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// ValidateContent checks a payment description.
func ValidateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentRunes {
		return ErrContentTooLong
	}
	return nil
}

func (p NewPayment) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyUser
	}
	if err := ValidateContent(p.Content); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if !p.Category.Valid() {
		return ErrInvalidCategory
	}
	if p.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}
