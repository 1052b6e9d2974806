package core

import "time"

// MonthlySummary is the running aggregate of one user's payments in one
// year-month. A missing row is read as EmptySummary.
type MonthlySummary struct {
	UserID         string
	YearMonth      string
	TotalAmount    Yen
	CategoryTotals map[Category]Yen
	RecordCount    int64
	LastUpdated    time.Time
}

// SummaryDelta is the signed change one ledger mutation applies to a summary.
type SummaryDelta struct {
	UserID    string
	YearMonth string
	Category  Category
	Amount    Yen
	Count     int64
	At        time.Time
}

// EmptySummary returns the all-zero summary with every category present.
func EmptySummary(userID, yearMonth string) MonthlySummary {
	totals := make(map[Category]Yen, len(Categories))
	for _, c := range Categories {
		totals[c] = 0
	}
	return MonthlySummary{
		UserID:         userID,
		YearMonth:      yearMonth,
		CategoryTotals: totals,
	}
}

// RecordDelta is the delta of inserting p.
func RecordDelta(p Payment, at time.Time) SummaryDelta {
	return SummaryDelta{
		UserID:    p.UserID,
		YearMonth: p.YearMonth,
		Category:  p.Category,
		Amount:    p.Amount,
		Count:     1,
		At:        at,
	}
}

// RemovalDelta is the delta of deleting p. It uses the stored YearMonth.
func RemovalDelta(p Payment, at time.Time) SummaryDelta {
	return SummaryDelta{
		UserID:    p.UserID,
		YearMonth: p.YearMonth,
		Category:  p.Category,
		Amount:    -p.Amount,
		Count:     -1,
		At:        at,
	}
}

// Consistent reports whether the total equals the sum of category totals.
func (s MonthlySummary) Consistent() bool {
	var sum Yen
	for _, v := range s.CategoryTotals {
		sum += v
	}
	return sum == s.TotalAmount
}
