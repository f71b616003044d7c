package service

import (
	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
)

// ChangeTracker computes field level deltas between a stored record and an update payload.
type ChangeTracker struct{}

// NewChangeTracker constructs a ChangeTracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{}
}

// Diff compares every allowlisted field present in payload against stored and
// returns the changes plus the changed names in allowlist order. Fields outside
// the allowlist are ignored. When a source of a derived field changed, the
// derived field is recomputed and always included, set to nil if it can no
// longer be computed.
func (t *ChangeTracker) Diff(stored, payload models.Document, allowlist []string, derived []DerivedField) (models.ChangeSet, []string) {
	changes := make(models.ChangeSet)
	names := make([]string, 0)
	for _, field := range allowlist {
		next, ok := payload[field]
		if !ok {
			continue
		}
		prev := stored[field]
		if repository.ValuesEqual(prev, next) {
			continue
		}
		changes[field] = models.FieldChange{Old: prev, New: next}
		names = append(names, field)
	}
	if len(changes) == 0 {
		return changes, names
	}

	merged := stored.Clone()
	for field, change := range changes {
		merged[field] = change.New
	}
	for _, d := range derived {
		if !anyChanged(changes, d.Sources) {
			continue
		}
		value, ok := d.Compute(merged)
		if !ok {
			value = nil
		}
		merged[d.Field] = value
		changes[d.Field] = models.FieldChange{Old: stored[d.Field], New: value}
		names = append(names, d.Field)
	}
	return changes, names
}

// DiffRecord diffs using the descriptor's allowlist and derived rules.
func (t *ChangeTracker) DiffRecord(desc *RecordDescriptor, stored, payload models.Document) (models.ChangeSet, []string) {
	return t.Diff(stored, payload, desc.Fields, desc.Derived)
}

// SetFromChanges builds the persisted update delta from a change set.
func SetFromChanges(changes models.ChangeSet) models.Document {
	set := make(models.Document, len(changes))
	for field, change := range changes {
		set[field] = change.New
	}
	return set
}

func anyChanged(changes models.ChangeSet, fields []string) bool {
	for _, f := range fields {
		if _, ok := changes[f]; ok {
			return true
		}
	}
	return false
}
