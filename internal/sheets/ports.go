// Package sheets defines the spreadsheet export sink fed by the worker.
package sheets

import (
	"context"

	"kakei/internal/core"
)

// Header is the first row of an export sheet.
var Header = []any{"date", "year_month", "user_id", "category", "content", "amount"}

// Row is one exported ledger movement. Deletions are exported as a reversal
// row with a negative amount so sums over the sheet match the ledger.
type Row struct {
	Date      string
	YearMonth string
	UserID    string
	Category  string
	Content   string
	Amount    int64
}

// NewRow builds the export row for p. reversal negates the amount.
func NewRow(p core.Payment, reversal bool) Row {
	amount := int64(p.Amount)
	if reversal {
		amount = -amount
	}
	return Row{
		Date:      p.Date.In(core.Tokyo).Format("2006-01-02"),
		YearMonth: p.YearMonth,
		UserID:    p.UserID,
		Category:  p.Category.Label(),
		Content:   p.Content,
		Amount:    amount,
	}
}

// Values returns the row in column order.
func (r Row) Values() []any {
	return []any{r.Date, r.YearMonth, r.UserID, r.Category, r.Content, r.Amount}
}

// RowAppender appends export rows and returns a reference to where each
// row landed.
type RowAppender interface {
	AppendRow(ctx context.Context, row Row) (ref string, err error)
}
