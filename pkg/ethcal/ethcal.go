// Package ethcal renders Gregorian dates in the simplified Ethiopian calendar
// notation printed on civil registry certificates.
//
// The conversion is the registry's long-standing approximation: the year is the
// Gregorian year minus eight and month/day are carried over unchanged. It is not
// astronomically exact and must not be used for date arithmetic.
package ethcal

import (
	"fmt"
	"time"
)

// YearOffset is the number of years subtracted from the Gregorian year.
const YearOffset = 8

var monthNames = [13]string{
	"መስከረም", "ጥቅምት", "ኅዳር", "ታኅሣሥ", "ጥር", "የካቲት",
	"መጋቢት", "ሚያዝያ", "ግንቦት", "ሰኔ", "ሐምሌ", "ነሐሴ", "ጳጉሜ",
}

// Year returns the approximate Ethiopian year for t.
func Year(t time.Time) int {
	return t.Year() - YearOffset
}

// MonthName returns the Amharic month name for a 1-based month index.
func MonthName(month int) string {
	if month < 1 || month > len(monthNames) {
		return "Unknown"
	}
	return monthNames[month-1]
}

// Format renders t as "<year> <month name> <day>".
func Format(t time.Time) string {
	return fmt.Sprintf("%d %s %d", Year(t), MonthName(int(t.Month())), t.Day())
}

// Numeric renders t as "DD/MM/YYYY E.C." for output that cannot carry Ethiopic script.
func Numeric(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%d E.C.", t.Day(), int(t.Month()), Year(t))
}
