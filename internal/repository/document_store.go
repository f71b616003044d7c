package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// Collection names.
const (
	CollectionUsers           = "users"
	CollectionBirthRecords    = "birth_records"
	CollectionDeathRecords    = "death_records"
	CollectionMarriageRecords = "marriage_records"
	CollectionDivorceRecords  = "divorce_records"
	CollectionAuditLogs       = "audit_logs"
)

var (
	// ErrNotFound is returned when no document matches a lookup.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateKey is returned when an insert or update violates a unique field.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DuplicateKeyError names the unique field that was violated.
type DuplicateKeyError struct {
	Collection string
	Field      string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key on %s.%s", e.Collection, e.Field)
}

// Is lets errors.Is match ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// DocumentStore is the document persistence contract. Implementations guarantee
// single-document atomicity only.
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Filter) (models.Document, error)
	Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]models.Document, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	InsertOne(ctx context.Context, collection string, doc models.Document) error
	// UpdateOne merges set into the first document matching filter and reports whether one matched.
	UpdateOne(ctx context.Context, collection string, filter Filter, set models.Document) (bool, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)
}

// UniqueFields lists the fields each collection keeps unique when present.
var UniqueFields = map[string][]string{
	CollectionUsers:           {"email", "badge_number"},
	CollectionBirthRecords:    {models.FieldCertificateNumber},
	CollectionDeathRecords:    {models.FieldCertificateNumber},
	CollectionMarriageRecords: {models.FieldCertificateNumber},
	CollectionDivorceRecords:  {models.FieldCertificateNumber},
	CollectionAuditLogs:       nil,
}

// RecordCollection maps a record type to its collection.
func RecordCollection(t models.RecordType) string {
	switch t {
	case models.RecordBirth:
		return CollectionBirthRecords
	case models.RecordDeath:
		return CollectionDeathRecords
	case models.RecordMarriage:
		return CollectionMarriageRecords
	case models.RecordDivorce:
		return CollectionDivorceRecords
	}
	return ""
}

func uniqueIndexName(field string) string {
	return field + "_unique"
}
