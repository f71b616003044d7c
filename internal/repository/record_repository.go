package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// RecordRepository stores vital records of every type, one collection per type.
type RecordRepository struct {
	store DocumentStore
}

// NewRecordRepository creates a record repository on top of a document store.
func NewRecordRepository(store DocumentStore) *RecordRepository {
	return &RecordRepository{store: store}
}

// FindByID loads one record.
func (r *RecordRepository) FindByID(ctx context.Context, recordType models.RecordType, id string) (models.Document, error) {
	return r.FindOne(ctx, recordType, ByID(id))
}

// FindOne loads the first record matching filter.
func (r *RecordRepository) FindOne(ctx context.Context, recordType models.RecordType, filter Filter) (models.Document, error) {
	collection, err := collectionFor(recordType)
	if err != nil {
		return nil, err
	}
	doc, err := r.store.FindOne(ctx, collection, filter)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s record: %w", recordType, err)
	}
	return doc, nil
}

// Find lists records matching filter.
func (r *RecordRepository) Find(ctx context.Context, recordType models.RecordType, filter Filter, opts FindOptions) ([]models.Document, error) {
	collection, err := collectionFor(recordType)
	if err != nil {
		return nil, err
	}
	docs, err := r.store.Find(ctx, collection, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", recordType, err)
	}
	return docs, nil
}

// Count counts records matching filter.
func (r *RecordRepository) Count(ctx context.Context, recordType models.RecordType, filter Filter) (int, error) {
	collection, err := collectionFor(recordType)
	if err != nil {
		return 0, err
	}
	total, err := r.store.Count(ctx, collection, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s records: %w", recordType, err)
	}
	return total, nil
}

// Insert stores a new record. Certificate number collisions surface as *DuplicateKeyError.
func (r *RecordRepository) Insert(ctx context.Context, recordType models.RecordType, doc models.Document) error {
	collection, err := collectionFor(recordType)
	if err != nil {
		return err
	}
	if err := r.store.InsertOne(ctx, collection, doc); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("insert %s record: %w", recordType, err)
	}
	return nil
}

// UpdateIfVersion applies set only when the stored version still equals version.
// It reports false when the record changed or vanished since it was read.
// Version 0 matches documents written before versioning existed.
func (r *RecordRepository) UpdateIfVersion(ctx context.Context, recordType models.RecordType, id string, version int, set models.Document) (bool, error) {
	collection, err := collectionFor(recordType)
	if err != nil {
		return false, err
	}
	current := Eq{Field: models.FieldVersion, Value: version}
	if version == 0 {
		current.Value = nil
	}
	matched, err := r.store.UpdateOne(ctx, collection, And{ByID(id), current}, set)
	if err != nil {
		return false, fmt.Errorf("update %s record: %w", recordType, err)
	}
	return matched, nil
}

// Delete removes a record.
func (r *RecordRepository) Delete(ctx context.Context, recordType models.RecordType, id string) error {
	collection, err := collectionFor(recordType)
	if err != nil {
		return err
	}
	deleted, err := r.store.DeleteOne(ctx, collection, ByID(id))
	if err != nil {
		return fmt.Errorf("delete %s record: %w", recordType, err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func collectionFor(recordType models.RecordType) (string, error) {
	collection := RecordCollection(recordType)
	if collection == "" {
		return "", fmt.Errorf("unknown record type %q", recordType)
	}
	return collection, nil
}
