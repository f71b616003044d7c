package service

import (
	"time"

	"github.com/noah-isme/civil-registry-api/internal/models"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

// legalTransitions lists the allowed source states for each target state.
// approved and rejected are terminal.
var legalTransitions = map[models.RecordStatus][]models.RecordStatus{
	models.StatusSubmitted: {models.StatusDraft},
	models.StatusApproved:  {models.StatusSubmitted},
	models.StatusRejected:  {models.StatusDraft, models.StatusSubmitted},
}

// Transition is the planned effect of a status change.
type Transition struct {
	From    models.RecordStatus
	To      models.RecordStatus
	Action  models.AuditAction
	Set     models.Document
	Summary string
	Changes models.ChangeSet
}

// RecordLifecycle validates status transitions and stamps workflow metadata.
type RecordLifecycle struct {
	now func() time.Time
}

// NewRecordLifecycle constructs a RecordLifecycle.
func NewRecordLifecycle() *RecordLifecycle {
	return &RecordLifecycle{now: time.Now}
}

// Plan checks the transition of record to target by actor and returns the fields to write.
// Callers must already have confirmed the actor may modify the record.
func (l *RecordLifecycle) Plan(actor models.Actor, record models.Document, target models.RecordStatus, reason string) (*Transition, error) {
	if !target.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid status: must be one of draft, submitted, approved, rejected")
	}
	if target == models.StatusApproved && !actor.HasRole(models.RoleAdmin, models.RoleVMSOfficer) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and VMS officers can approve records")
	}

	current := record.Status()
	if current == "" {
		current = models.StatusDraft
	}
	if !transitionAllowed(current, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot change status from "+string(current)+" to "+string(target))
	}

	now := l.now().UTC()
	set := models.Document{
		models.FieldStatus:    string(target),
		models.FieldUpdatedAt: now,
	}
	action := models.AuditActionStatusChange
	switch target {
	case models.StatusApproved:
		action = models.AuditActionApprove
		set[models.FieldApprovedBy] = actor.ID
		set[models.FieldApprovedAt] = now
	case models.StatusRejected:
		action = models.AuditActionReject
		set[models.FieldRejectedBy] = actor.ID
		set[models.FieldRejectedAt] = now
		set[models.FieldRejectionReason] = reason
	}

	return &Transition{
		From:    current,
		To:      target,
		Action:  action,
		Set:     set,
		Summary: StatusSummary(target, reason),
		Changes: models.ChangeSet{models.FieldStatus: {Old: string(current), New: string(target)}},
	}, nil
}

func transitionAllowed(from, to models.RecordStatus) bool {
	for _, allowed := range legalTransitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}
