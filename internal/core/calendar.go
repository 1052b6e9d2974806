package core

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	YearMonthLayout = "2006-01"
	// PickerLayout is the datetime format produced by the chat date picker.
	PickerLayout = "2006-01-02T15:04"

	// PaymentWindowDays is how far back a payment may be dated.
	PaymentWindowDays = 30
	// WeekListLimit caps the weekly payment listing.
	WeekListLimit = 25
)

// Tokyo is the zone every calendar decision is made in.
var Tokyo = loadTokyo()

func loadTokyo() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// YearMonthOf returns the YYYY-MM key of t in Asia/Tokyo.
func YearMonthOf(t time.Time) string {
	return t.In(Tokyo).Format(YearMonthLayout)
}

// PreviousYearMonth returns the YYYY-MM key of the month before now.
func PreviousYearMonth(now time.Time) string {
	local := now.In(Tokyo)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, Tokyo)
	return first.AddDate(0, -1, 0).Format(YearMonthLayout)
}

// MonthLabel renders a YYYY-MM key as "2024年1月". Unknown input is returned as-is.
func MonthLabel(yearMonth string) string {
	t, err := time.ParseInLocation(YearMonthLayout, yearMonth, Tokyo)
	if err != nil {
		return yearMonth
	}
	return fmt.Sprintf("%d年%d月", t.Year(), int(t.Month()))
}

// ShortMonthLabel renders a YYYY-MM key as "1月".
func ShortMonthLabel(yearMonth string) string {
	t, err := time.ParseInLocation(YearMonthLayout, yearMonth, Tokyo)
	if err != nil {
		return yearMonth
	}
	return fmt.Sprintf("%d月", int(t.Month()))
}

// StartOfDay truncates t to midnight in Asia/Tokyo.
func StartOfDay(t time.Time) time.Time {
	local := t.In(Tokyo)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Tokyo)
}

// PaymentWindow returns the earliest and latest instants a payment may be
// dated at: midnight PaymentWindowDays days ago and the end of today.
func PaymentWindow(now time.Time) (time.Time, time.Time) {
	today := StartOfDay(now)
	earliest := today.AddDate(0, 0, -PaymentWindowDays)
	latest := today.AddDate(0, 0, 1).Add(-time.Minute)
	return earliest, latest
}

var dateLayouts = []string{
	PickerLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate reads a client-supplied date. Zone-less layouts are
// interpreted in Asia/Tokyo.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(Tokyo), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, Tokyo); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ValidatePaymentDate accepts raw when it parses and its Tokyo calendar day
// lies within [today-30, today], both ends inclusive regardless of the time
// of day.
func ValidatePaymentDate(raw string, now time.Time) (time.Time, error) {
	t, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	day := StartOfDay(t)
	today := StartOfDay(now)
	if day.After(today) || day.Before(today.AddDate(0, 0, -PaymentWindowDays)) {
		return time.Time{}, ErrDateOutOfRange
	}
	return t, nil
}

// WeekRange returns [start, end) of the Sunday-started calendar week
// containing now in Asia/Tokyo.
func WeekRange(now time.Time) (time.Time, time.Time) {
	today := StartOfDay(now)
	start := today.AddDate(0, 0, -int(today.Weekday()))
	return start, start.AddDate(0, 0, 7)
}
