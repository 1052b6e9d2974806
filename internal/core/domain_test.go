package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCategoryValid(t *testing.T) {
	cases := []struct {
		c  Category
		ok bool
	}{
		{CategoryFood, true},
		{CategoryDailyGoods, true},
		{CategoryOther, true},
		{Category("food"), false},
		{Category(""), false},
	}
	for _, tc := range cases {
		if got := tc.c.Valid(); got != tc.ok {
			t.Fatalf("%q expected valid=%v, got %v", tc.c, tc.ok, got)
		}
	}
}

func TestCategoryLabel(t *testing.T) {
	if CategoryFood.Label() != "食費" || CategoryDailyGoods.Label() != "日用品" || CategoryOther.Label() != "その他" {
		t.Fatalf("unexpected labels: %s %s %s", CategoryFood.Label(), CategoryDailyGoods.Label(), CategoryOther.Label())
	}
}

func TestParseCategory(t *testing.T) {
	if c, err := ParseCategory("DAILY_GOODS"); err != nil || c != CategoryDailyGoods {
		t.Fatalf("expected DAILY_GOODS, got %q (err=%v)", c, err)
	}
	if _, err := ParseCategory("TRAVEL"); !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestNewPaymentValidate(t *testing.T) {
	good := NewPayment{
		UserID:   "U1",
		Category: CategoryFood,
		Content:  "ランチ",
		Amount:   1200,
		Date:     time.Date(2024, 1, 15, 12, 0, 0, 0, Tokyo),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*NewPayment)
		want   error
	}{
		{"empty user", func(p *NewPayment) { p.UserID = " " }, ErrEmptyUser},
		{"empty content", func(p *NewPayment) { p.Content = "" }, ErrEmptyContent},
		{"long content", func(p *NewPayment) { p.Content = strings.Repeat("あ", MaxContentRunes+1) }, ErrContentTooLong},
		{"zero amount", func(p *NewPayment) { p.Amount = 0 }, ErrInvalidAmount},
		{"too large amount", func(p *NewPayment) { p.Amount = MaxAmount + 1 }, ErrInvalidAmount},
		{"bad category", func(p *NewPayment) { p.Category = "TRAVEL" }, ErrInvalidCategory},
		{"zero date", func(p *NewPayment) { p.Date = time.Time{} }, ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestContentAtLimitIsAccepted(t *testing.T) {
	if err := ValidateContent(strings.Repeat("あ", MaxContentRunes)); err != nil {
		t.Fatalf("expected ok at limit, got %v", err)
	}
}

func TestSummaryDeltas(t *testing.T) {
	at := time.Date(2024, 1, 15, 12, 0, 0, 0, Tokyo)
	p := Payment{UserID: "U1", Category: CategoryDailyGoods, Amount: 800, YearMonth: "2024-01"}

	rec := RecordDelta(p, at)
	if rec.Amount != 800 || rec.Count != 1 || rec.YearMonth != "2024-01" || rec.Category != CategoryDailyGoods {
		t.Fatalf("unexpected record delta: %+v", rec)
	}
	rem := RemovalDelta(p, at)
	if rem.Amount != -800 || rem.Count != -1 || rem.YearMonth != "2024-01" {
		t.Fatalf("unexpected removal delta: %+v", rem)
	}
}

func TestEmptySummaryHasAllCategories(t *testing.T) {
	s := EmptySummary("U1", "2024-01")
	if len(s.CategoryTotals) != len(Categories) {
		t.Fatalf("expected %d categories, got %d", len(Categories), len(s.CategoryTotals))
	}
	for _, c := range Categories {
		if v, ok := s.CategoryTotals[c]; !ok || v != 0 {
			t.Fatalf("category %s: expected 0 present, got %d (present=%v)", c, v, ok)
		}
	}
	if !s.Consistent() {
		t.Fatalf("empty summary should be consistent")
	}
}
