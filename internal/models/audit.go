package models

import "time"

// AuditAction enumerates mutating actions recorded against vital records.
type AuditAction string

const (
	AuditActionCreate       AuditAction = "create"
	AuditActionUpdate       AuditAction = "update"
	AuditActionDelete       AuditAction = "delete"
	AuditActionApprove      AuditAction = "approve"
	AuditActionReject       AuditAction = "reject"
	AuditActionStatusChange AuditAction = "status_change"
)

// Valid reports whether the action is known.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete,
		AuditActionApprove, AuditActionReject, AuditActionStatusChange:
		return true
	}
	return false
}

// FieldChange is the old and new value of one field.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// ChangeSet maps field names to their change.
type ChangeSet map[string]FieldChange

// AuditLog is an immutable audit trail entry for one action on one record.
type AuditLog struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	UserName   string      `json:"user_name,omitempty"`
	Action     AuditAction `json:"action"`
	RecordType RecordType  `json:"record_type"`
	RecordID   string      `json:"record_id"`
	Summary    string      `json:"changes_summary"`
	Changes    ChangeSet   `json:"changes,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	Action     AuditAction
	RecordType RecordType
	RecordID   string
	UserID     string
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}
