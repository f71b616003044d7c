package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/models"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

func TestRecordLifecyclePlan(t *testing.T) {
	lifecycle := NewRecordLifecycle()
	officer := models.Actor{ID: "o1", Role: models.RoleVMSOfficer}
	clerk := models.Actor{ID: "c1", Role: models.RoleClerk}

	cases := []struct {
		name    string
		actor   models.Actor
		from    models.RecordStatus
		to      models.RecordStatus
		wantErr *appErrors.Error
		action  models.AuditAction
	}{
		{"submit draft", clerk, models.StatusDraft, models.StatusSubmitted, nil, models.AuditActionStatusChange},
		{"missing status counts as draft", clerk, "", models.StatusSubmitted, nil, models.AuditActionStatusChange},
		{"reject draft", officer, models.StatusDraft, models.StatusRejected, nil, models.AuditActionReject},
		{"approve submitted", officer, models.StatusSubmitted, models.StatusApproved, nil, models.AuditActionApprove},
		{"clerk cannot approve", clerk, models.StatusSubmitted, models.StatusApproved, appErrors.ErrForbidden, ""},
		{"clerk approving draft is forbidden first", clerk, models.StatusDraft, models.StatusApproved, appErrors.ErrForbidden, ""},
		{"approve draft", officer, models.StatusDraft, models.StatusApproved, appErrors.ErrInvalidTransition, ""},
		{"approved is terminal", officer, models.StatusApproved, models.StatusRejected, appErrors.ErrInvalidTransition, ""},
		{"rejected is terminal", officer, models.StatusRejected, models.StatusSubmitted, appErrors.ErrInvalidTransition, ""},
		{"back to draft", officer, models.StatusSubmitted, models.StatusDraft, appErrors.ErrInvalidTransition, ""},
		{"unknown target", officer, models.StatusDraft, "archived", appErrors.ErrValidation, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record := models.Document{}
			if tc.from != "" {
				record[models.FieldStatus] = string(tc.from)
			}
			plan, err := lifecycle.Plan(tc.actor, record, tc.to, "reason")
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.action, plan.Action)
			assert.Equal(t, string(tc.to), plan.Set[models.FieldStatus])
		})
	}
}

func TestRecordLifecycleStampsMetadata(t *testing.T) {
	lifecycle := NewRecordLifecycle()
	officer := models.Actor{ID: "o1", Role: models.RoleVMSOfficer}

	plan, err := lifecycle.Plan(officer, models.Document{models.FieldStatus: "submitted"}, models.StatusRejected, "blurry scan")
	require.NoError(t, err)
	assert.Equal(t, "o1", plan.Set[models.FieldRejectedBy])
	assert.Equal(t, "blurry scan", plan.Set[models.FieldRejectionReason])
	assert.Contains(t, plan.Set, models.FieldRejectedAt)
	assert.Equal(t, "Changed status to rejected - Reason: blurry scan", plan.Summary)
	assert.Equal(t, models.ChangeSet{"status": {Old: "submitted", New: "rejected"}}, plan.Changes)

	plan, err = lifecycle.Plan(officer, models.Document{models.FieldStatus: "submitted"}, models.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, "o1", plan.Set[models.FieldApprovedBy])
	assert.Contains(t, plan.Set, models.FieldApprovedAt)
	assert.NotContains(t, plan.Set, models.FieldRejectionReason)
}
