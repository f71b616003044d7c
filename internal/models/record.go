package models

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// RecordType identifies one of the four vital event kinds.
type RecordType string

const (
	RecordBirth    RecordType = "birth"
	RecordDeath    RecordType = "death"
	RecordMarriage RecordType = "marriage"
	RecordDivorce  RecordType = "divorce"
)

// RecordTypes lists every record type in a stable order.
var RecordTypes = []RecordType{RecordBirth, RecordDeath, RecordMarriage, RecordDivorce}

// Valid reports whether the record type is known.
func (t RecordType) Valid() bool {
	switch t {
	case RecordBirth, RecordDeath, RecordMarriage, RecordDivorce:
		return true
	}
	return false
}

// RecordStatus is the workflow state of a vital record.
type RecordStatus string

const (
	StatusDraft     RecordStatus = "draft"
	StatusSubmitted RecordStatus = "submitted"
	StatusApproved  RecordStatus = "approved"
	StatusRejected  RecordStatus = "rejected"
)

// Valid reports whether the status is one of the workflow states.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// System managed record fields.
const (
	FieldID                = "_id"
	FieldVersion           = "version"
	FieldCertificateNumber = "certificate_number"
	FieldStatus            = "status"
	FieldRegisteredBy      = "registered_by"
	FieldRegisteredByName  = "registered_by_name"
	FieldApprovedBy        = "approved_by"
	FieldApprovedAt        = "approved_at"
	FieldRejectedBy        = "rejected_by"
	FieldRejectedAt        = "rejected_at"
	FieldRejectionReason   = "rejection_reason"
	FieldQualityScore      = "data_quality_score"
	FieldWarnings          = "validation_warnings"
	FieldCreatedAt         = "created_at"
	FieldUpdatedAt         = "updated_at"
)

// Document is a schemaless stored document. Values decoded by different stores
// vary in concrete type, so readers go through the typed accessors.
type Document map[string]interface{}

// ID returns the document identifier.
func (d Document) ID() string {
	return d.String(FieldID)
}

// String returns the value for key as a string, or "" when absent.
func (d Document) String(key string) string {
	switch v := d[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	}
	return ""
}

// Int returns the value for key as an int and whether it was numeric.
func (d Document) Int(key string) (int, bool) {
	f, ok := ToFloat(d[key])
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Time returns the value for key as a time and whether it could be read.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// Status returns the record workflow status.
func (d Document) Status() RecordStatus {
	return RecordStatus(d.String(FieldStatus))
}

// Clone returns a shallow copy with nested maps and slices copied.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case Document:
		return typed.Clone()
	case map[string]interface{}:
		return map[string]interface{}(Document(typed).Clone())
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	}
	return v
}

// ToFloat converts any numeric representation to float64.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
