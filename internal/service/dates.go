package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/pkg/ethcal"
)

// DateLayout is the only accepted wire format for calendar dates.
const DateLayout = "2006-01-02"

// DateParseError reports a value that is not a YYYY-MM-DD date.
type DateParseError struct {
	Value string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", e.Value)
}

// ParseDate parses a YYYY-MM-DD string. Callers decide whether a failure is fatal.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, &DateParseError{Value: raw}
	}
	// Accept full timestamps by keeping their date part.
	if len(value) > len(DateLayout) && value[len(DateLayout)] == 'T' {
		value = value[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &DateParseError{Value: raw}
	}
	return t, nil
}

// documentDate reads a date field. ok is false when the field is absent or unparseable.
func documentDate(doc models.Document, field string) (time.Time, bool) {
	switch v := doc[field].(type) {
	case string:
		t, err := ParseDate(v)
		return t, err == nil
	case time.Time:
		return v, true
	}
	return time.Time{}, false
}

// AgeInYears returns completed years between birth and event.
func AgeInYears(birth, event time.Time) int {
	years := event.Year() - birth.Year()
	if event.Month() < birth.Month() || (event.Month() == birth.Month() && event.Day() < birth.Day()) {
		years--
	}
	return years
}

func ageDerivation(birthField, eventField string) func(models.Document) (interface{}, bool) {
	return func(doc models.Document) (interface{}, bool) {
		birth, ok := documentDate(doc, birthField)
		if !ok {
			return nil, false
		}
		event, ok := documentDate(doc, eventField)
		if !ok {
			return nil, false
		}
		return AgeInYears(birth, event), true
	}
}

func ethiopianDerivation(field string) func(models.Document) (interface{}, bool) {
	return func(doc models.Document) (interface{}, bool) {
		t, ok := documentDate(doc, field)
		if !ok {
			return nil, false
		}
		return ethcal.Format(t), true
	}
}
