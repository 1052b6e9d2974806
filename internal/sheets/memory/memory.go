package memory

import (
	"context"
	"fmt"
	"sync"

	"kakei/internal/sheets"
)

// Store is an in-process export sink, used when no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows []sheets.Row
}

var _ sheets.RowAppender = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendRow stores the row and returns a synthetic row reference.
func (s *Store) AppendRow(_ context.Context, row sheets.Row) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.Row(nil), s.rows...)
}

// Total sums the amount column for one user and month.
func (s *Store) Total(userID, yearMonth string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.rows {
		if r.UserID == userID && r.YearMonth == yearMonth {
			total += r.Amount
		}
	}
	return total
}
