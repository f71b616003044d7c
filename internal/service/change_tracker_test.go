package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

func TestChangeTrackerDiff(t *testing.T) {
	tracker := NewChangeTracker()
	stored := models.Document{"a": "x", "b": 2, "c": nil}
	payload := models.Document{"a": "y", "b": 2.0, "c": nil, "z": "ignored"}

	changes, names := tracker.Diff(stored, payload, []string{"a", "b", "c"}, nil)
	assert.Equal(t, models.ChangeSet{"a": {Old: "x", New: "y"}}, changes)
	assert.Equal(t, []string{"a"}, names)
}

func TestChangeTrackerDiffIsIdempotent(t *testing.T) {
	tracker := NewChangeTracker()
	stored := models.Document{"child_gender": "male", "date_of_birth": "2023-05-10"}
	payload := models.Document{"child_gender": "female"}
	desc := birthDescriptor()

	changes, _ := tracker.DiffRecord(desc, stored, payload)
	applied := stored.Clone()
	for field, value := range SetFromChanges(changes) {
		applied[field] = value
	}

	again, names := tracker.DiffRecord(desc, applied, payload)
	assert.Empty(t, again)
	assert.Empty(t, names)
}

func TestChangeTrackerDerivedFields(t *testing.T) {
	tracker := NewChangeTracker()
	desc := deathDescriptor()
	stored := models.Document{
		"date_of_birth": "1990-01-01",
		"date_of_death": "2020-06-15",
		"age_at_death":  30,
	}

	changes, names := tracker.DiffRecord(desc, stored, models.Document{"date_of_death": "2021-06-15"})
	assert.Equal(t, models.FieldChange{Old: 30, New: 31}, changes["age_at_death"])
	assert.Contains(t, changes, "ethiopian_date_of_death")
	assert.Equal(t, "date_of_death", names[0])

	changes, _ = tracker.DiffRecord(desc, stored, models.Document{"date_of_birth": nil})
	assert.Equal(t, models.FieldChange{Old: 30, New: nil}, changes["age_at_death"])

	changes, _ = tracker.DiffRecord(desc, stored, models.Document{"cause_of_death": "malaria"})
	assert.NotContains(t, changes, "age_at_death")
}

func TestUpdateSummary(t *testing.T) {
	assert.Equal(t, "Updated: child_gender", UpdateSummary([]string{"child_gender"}))
	assert.Equal(t, "Updated 5 fields: a, b, c and 2 more", UpdateSummary([]string{"a", "b", "c", "d", "e"}))
}
