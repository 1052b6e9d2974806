// Package core provides the payment domain: categories, yen amounts,
// free-text entry parsing, the monthly aggregate and the Asia/Tokyo
// calendar rules used for dating payments.
package core

import (
	"strconv"
	"strings"
)

const (
	MinAmount Yen = 1
	MaxAmount Yen = 1_000_000
)

// Yen is a whole-yen amount. Signed so that summary deltas can subtract.
type Yen int64

// Validate enforces 0 < amount <= MaxAmount.
func (y Yen) Validate() error {
	if y < MinAmount || y > MaxAmount {
		return ErrInvalidAmount
	}
	return nil
}

// String formats the amount with thousands separators, e.g. "12,345".
func (y Yen) String() string {
	n := int64(y)
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ParseAmount reads a user-typed amount. Commas and the 円 suffix are
// ignored; anything else that is not an ASCII digit makes the text
// unparseable. A well-formed number outside the allowed range yields
// ErrInvalidAmount.
func ParseAmount(s string) (Yen, error) {
	cleaned := strings.NewReplacer(",", "", "，", "", "円", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, ErrUnparseableEntry
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return 0, ErrUnparseableEntry
		}
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		// only digits remain, so the sole failure is overflow
		return 0, ErrInvalidAmount
	}
	amount := Yen(n)
	if err := amount.Validate(); err != nil {
		return 0, err
	}
	return amount, nil
}
