package repository

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// Filter is a store independent query expression. A nil Filter matches every document.
type Filter interface {
	filter()
}

// Eq matches documents whose field equals Value. A nil Value matches missing fields.
type Eq struct {
	Field string
	Value interface{}
}

// Contains matches a case-insensitive substring of a string field.
type Contains struct {
	Field     string
	Substring string
}

// Range matches values within the inclusive bounds. Nil bounds are open.
type Range struct {
	Field string
	Gte   interface{}
	Lte   interface{}
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

// MatchNone matches no document.
type MatchNone struct{}

func (Eq) filter()        {}
func (Contains) filter()  {}
func (Range) filter()     {}
func (And) filter()       {}
func (Or) filter()        {}
func (MatchNone) filter() {}

// ByID matches the document with the given identifier.
func ByID(id string) Filter {
	return Eq{Field: models.FieldID, Value: id}
}

// AllOf combines filters with AND, dropping nil entries.
func AllOf(filters ...Filter) Filter {
	out := make(And, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			continue
		}
		if nested, ok := f.(And); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, f)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Sort orders results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// FindOptions controls ordering and windowing of Find.
type FindOptions struct {
	Sort  []Sort
	Skip  int
	Limit int
}

// Match evaluates a filter against a document in memory.
func Match(doc models.Document, f Filter) bool {
	switch typed := f.(type) {
	case nil:
		return true
	case Eq:
		v, ok := doc[typed.Field]
		if typed.Value == nil {
			return !ok || v == nil
		}
		return ok && ValuesEqual(v, typed.Value)
	case Contains:
		s, ok := doc[typed.Field].(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(typed.Substring))
	case Range:
		v, ok := doc[typed.Field]
		if !ok || v == nil {
			return false
		}
		if typed.Gte != nil {
			if c, ok := compareValues(v, typed.Gte); !ok || c < 0 {
				return false
			}
		}
		if typed.Lte != nil {
			if c, ok := compareValues(v, typed.Lte); !ok || c > 0 {
				return false
			}
		}
		return true
	case And:
		for _, child := range typed {
			if !Match(doc, child) {
				return false
			}
		}
		return true
	case Or:
		for _, child := range typed {
			if Match(doc, child) {
				return true
			}
		}
		return false
	case MatchNone:
		return false
	}
	return false
}

// ValuesEqual compares two stored values by value, treating all numeric types alike.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := models.ToFloat(a); ok {
		fb, ok := models.ToFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

// compareValues orders two scalar values of compatible kinds.
func compareValues(a, b interface{}) (int, bool) {
	if fa, ok := models.ToFloat(a); ok {
		fb, ok := models.ToFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	ta, aIsTime := asTime(a)
	tb, bIsTime := asTime(b)
	if aIsTime && bIsTime {
		return ta.Compare(tb), true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func normalizeValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case models.Document:
		return normalizeValue(map[string]interface{}(typed))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			out[k] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = item
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = normalizeValue(item)
		}
		return out
	}
	if f, ok := models.ToFloat(v); ok {
		return f
	}
	return v
}

func validField(name string) error {
	if name == "" {
		return fmt.Errorf("empty field name")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid field name %q", name)
		}
	}
	return nil
}
