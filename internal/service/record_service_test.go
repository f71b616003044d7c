package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

type recordFixture struct {
	service *RecordService
	store   *repository.MemoryStore
	records *repository.RecordRepository
	audit   *repository.AuditRepository
}

func newRecordFixture(t *testing.T) *recordFixture {
	t.Helper()
	store := repository.NewMemoryStore(nil)
	records := repository.NewRecordRepository(store)
	auditRepo := repository.NewAuditRepository(store)
	users := repository.NewUserRepository(store)
	audit := NewAuditService(auditRepo, nil, zap.NewNop(), AuditConfig{Retries: 1})
	audit.now = tickingClock()
	for _, actor := range []models.Actor{adminActor, officerActor, clerkActor} {
		require.NoError(t, users.Create(context.Background(), &models.User{
			ID: actor.ID, Email: actor.ID + "@registry.test", FullName: actor.FullName, Role: actor.Role, Active: true,
		}))
	}
	svc := NewRecordService(
		DefaultDescriptors(),
		records,
		users,
		NewCertificateAllocator(repository.NewMemorySequence()),
		NewFieldValidator(records, nil, zap.NewNop()),
		audit,
		zap.NewNop(),
		RecordServiceConfig{},
	)
	return &recordFixture{service: svc, store: store, records: records, audit: auditRepo}
}

// tickingClock advances one second per call so audit entries order deterministically.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func (f *recordFixture) auditEntries(t *testing.T, recordID string) []models.AuditLog {
	t.Helper()
	logs, _, err := f.audit.List(context.Background(), models.AuditLogFilter{RecordID: recordID, PerPage: 50})
	require.NoError(t, err)
	return logs
}

var (
	adminActor   = models.Actor{ID: "admin-1", FullName: "Admin User", Role: models.RoleAdmin}
	officerActor = models.Actor{ID: "officer-1", FullName: "Officer One", Role: models.RoleVMSOfficer, Region: "OROMIA", Woreda: "03"}
	clerkActor   = models.Actor{ID: "clerk-1", FullName: "Clerk One", Role: models.RoleClerk, Region: "OROMIA", Woreda: "03"}
)

func birthPayload() map[string]interface{} {
	return map[string]interface{}{
		"child_first_name":  "Abel",
		"child_father_name": "Tesfaye",
		"child_gender":      "male",
		"date_of_birth":     "2023-05-10",
	}
}

func TestRecordServiceCreateBirth(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	doc, result, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	require.True(t, result.Valid)

	assert.Equal(t, string(models.StatusDraft), doc.String(models.FieldStatus))
	assert.Regexp(t, regexp.MustCompile(`^BR/OROMIA/03/\d{4}/00001$`), doc.String(models.FieldCertificateNumber))
	assert.Equal(t, "OROMIA", doc.String("birth_region"))
	assert.Equal(t, "Ethiopian", doc.String("father_nationality"))
	assert.Equal(t, "hospital", doc.String("place_of_birth_type"))
	assert.NotEmpty(t, doc.String("ethiopian_date_of_birth"))
	assert.Equal(t, clerkActor.ID, doc.String(models.FieldRegisteredBy))
	assert.Equal(t, clerkActor.FullName, doc.String(models.FieldRegisteredByName))
	assert.NotEmpty(t, doc.String("id"))
	assert.NotContains(t, doc, models.FieldID)
	assert.NotContains(t, doc, models.FieldVersion)

	logs := f.auditEntries(t, doc.String("id"))
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionCreate, logs[0].Action)
	assert.Equal(t, "Created birth record for Abel Tesfaye", logs[0].Summary)
}

func TestRecordServiceCreateAllocatesSequentialNumbers(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	first, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	payload := birthPayload()
	payload["child_first_name"] = "Liya"
	second, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(first.String(models.FieldCertificateNumber), "/00001"))
	assert.True(t, strings.HasSuffix(second.String(models.FieldCertificateNumber), "/00002"))
}

func TestRecordServiceCreateConcurrentNumbersAreUnique(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{})
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := birthPayload()
			payload["child_first_name"] = "Child" + strings.Repeat("x", i+1)
			doc, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[doc.String(models.FieldCertificateNumber)] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, numbers, 20)
}

func TestRecordServiceCreateReallocatesOnCollision(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	seq := repository.NewMemorySequence()
	f.service.allocator = NewCertificateAllocator(seq)
	first, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	// A restarted counter hands out an already used number first.
	f.service.allocator = NewCertificateAllocator(repository.NewMemorySequence())
	payload := birthPayload()
	payload["child_first_name"] = "Liya"
	second, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
	require.NoError(t, err)
	assert.NotEqual(t, first.String(models.FieldCertificateNumber), second.String(models.FieldCertificateNumber))
}

func TestRecordServiceCreateMissingRequiredField(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	payload := birthPayload()
	delete(payload, "child_first_name")
	doc, result, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
	require.Error(t, err)
	assert.Nil(t, doc)
	require.NotNil(t, result)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "child_first_name", result.Errors[0].Field)

	var failure *ValidationFailure
	assert.True(t, errors.As(err, &failure))

	count, err := f.records.Count(ctx, models.RecordBirth, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordServiceCreateDeathDerivesAge(t *testing.T) {
	f := newRecordFixture(t)
	doc, _, err := f.service.Create(context.Background(), officerActor, models.RecordDeath, map[string]interface{}{
		"deceased_first_name":  "Almaz",
		"deceased_father_name": "Bekele",
		"deceased_gender":      "Female",
		"date_of_birth":        "1990-01-01",
		"date_of_death":        "2020-06-15",
	})
	require.NoError(t, err)
	age, ok := doc.Int("age_at_death")
	require.True(t, ok)
	assert.Equal(t, 30, age)
	assert.Equal(t, "female", doc.String("deceased_gender"))
	assert.Regexp(t, `^DR/OROMIA/03/`, doc.String(models.FieldCertificateNumber))
}

func TestRecordServiceCreateDuplicateWarns(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	_, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	_, result, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[len(result.Warnings)-1], "possible duplicate")
}

func TestRecordServiceUpdateKeepsDuplicateWarning(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	first, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	second, result, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	createdScore := result.QualityScore

	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, second.String("id"), map[string]interface{}{
		"time_of_birth": "08:30",
	})
	require.NoError(t, err)

	stored, err := f.records.FindByID(ctx, models.RecordBirth, second.String("id"))
	require.NoError(t, err)
	warnings, _ := stored[models.FieldWarnings].([]string)
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], first.String(models.FieldCertificateNumber))
	score, ok := models.ToFloat(stored[models.FieldQualityScore])
	require.True(t, ok)
	assert.Less(t, score-createdScore, warningPenalty-0.001)
}

func TestRecordServiceCertificateUsesRegistrarJurisdiction(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	payload := birthPayload()
	payload["birth_region"] = "AMHARA"
	payload["birth_woreda"] = "7"
	doc, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
	require.NoError(t, err)
	assert.Regexp(t, `^BR/OROMIA/03/\d{4}/00001$`, doc.String(models.FieldCertificateNumber))
	assert.Equal(t, "AMHARA", doc.String("birth_region"))

	doc, _, err = f.service.Create(ctx, adminActor, models.RecordBirth, payload)
	require.NoError(t, err)
	assert.Regexp(t, `^BR/AD/01/\d{4}/00001$`, doc.String(models.FieldCertificateNumber))
}

func TestRecordServiceNormalisesDates(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	payload := birthPayload()
	payload["date_of_birth"] = "2023-05-10T00:00:00Z"
	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
	require.NoError(t, err)
	assert.Equal(t, "2023-05-10", created.String("date_of_birth"))

	docs, _, err := f.service.List(ctx, adminActor, models.RecordBirth, RecordQuery{DateFrom: "2023-05-10", DateTo: "2023-05-10"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, created.String("id"), docs[0].String("id"))

	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, created.String("id"), map[string]interface{}{
		"date_of_birth": "2023-05-10T00:00:00Z",
	})
	assert.True(t, errors.Is(err, appErrors.ErrNoChanges))
}

func TestRecordServiceUpdateTracksChanges(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	id := created.String("id")

	updated, changes, err := f.service.Update(ctx, clerkActor, models.RecordBirth, id, map[string]interface{}{
		"child_gender": "female",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeSet{"child_gender": {Old: "male", New: "female"}}, changes)
	assert.Equal(t, "female", updated.String("child_gender"))

	stored, err := f.records.FindByID(ctx, models.RecordBirth, id)
	require.NoError(t, err)
	version, _ := stored.Int(models.FieldVersion)
	assert.Equal(t, 2, version)

	logs := f.auditEntries(t, id)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionUpdate, logs[0].Action)
	assert.Contains(t, logs[0].Summary, "child_gender")
	assert.Equal(t, changes, logs[0].Changes)
}

func TestRecordServiceUpdateIgnoresFieldsOutsideAllowlist(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	id := created.String("id")

	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, id, map[string]interface{}{
		"status":             "approved",
		"certificate_number": "BR/X/01/2016/99999",
		"registered_by":      "someone-else",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoChanges))

	stored, err := f.records.FindByID(ctx, models.RecordBirth, id)
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusDraft), stored.String(models.FieldStatus))
	assert.Equal(t, created.String(models.FieldCertificateNumber), stored.String(models.FieldCertificateNumber))
	assert.Equal(t, clerkActor.ID, stored.String(models.FieldRegisteredBy))
}

func TestRecordServiceUpdateSameValuesIsNoChange(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, created.String("id"), birthPayload())
	assert.True(t, errors.Is(err, appErrors.ErrNoChanges))
	assert.Len(t, f.auditEntries(t, created.String("id")), 1)
}

func TestRecordServiceUpdateRecomputesDerivedFields(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, officerActor, models.RecordDeath, map[string]interface{}{
		"deceased_first_name":  "Almaz",
		"deceased_father_name": "Bekele",
		"deceased_gender":      "female",
		"date_of_birth":        "1990-01-01",
		"date_of_death":        "2020-06-15",
	})
	require.NoError(t, err)

	updated, changes, err := f.service.Update(ctx, officerActor, models.RecordDeath, created.String("id"), map[string]interface{}{
		"date_of_birth": "1980-01-01",
	})
	require.NoError(t, err)
	assert.Contains(t, changes, "age_at_death")
	age, _ := updated.Int("age_at_death")
	assert.Equal(t, 40, age)

	updated, changes, err = f.service.Update(ctx, officerActor, models.RecordDeath, created.String("id"), map[string]interface{}{
		"date_of_birth": "",
	})
	require.NoError(t, err)
	assert.Nil(t, changes["age_at_death"].New)
	assert.Nil(t, updated["age_at_death"])
}

func TestRecordServiceUpdateRejectsInvalidMerge(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, created.String("id"), map[string]interface{}{
		"child_first_name": "",
	})
	var failure *ValidationFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "child_first_name", failure.Result.Errors[0].Field)
}

func TestRecordServiceUpdateRetriesOnVersionConflict(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	id := created.String("id")

	racer := &racingRepository{RecordRepository: f.records, races: 1, store: f.store}
	f.service.repo = racer

	updated, _, err := f.service.Update(ctx, clerkActor, models.RecordBirth, id, map[string]interface{}{"child_gender": "female"})
	require.NoError(t, err)
	assert.Equal(t, "female", updated.String("child_gender"))
	assert.Equal(t, "Tesfaye-Updated", updated.String("child_father_name"))

	stored, err := f.records.FindByID(ctx, models.RecordBirth, id)
	require.NoError(t, err)
	assert.Equal(t, "Tesfaye-Updated", stored.String("child_father_name"))
	assert.Equal(t, "female", stored.String("child_gender"))
}

func TestRecordServiceUpdateGivesUpAfterRetries(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	f.service.repo = &racingRepository{RecordRepository: f.records, races: 100, store: f.store}
	_, _, err = f.service.Update(ctx, clerkActor, models.RecordBirth, created.String("id"), map[string]interface{}{"child_gender": "female"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

// racingRepository bumps the stored version behind the caller's back before the
// first races conditional updates.
type racingRepository struct {
	*repository.RecordRepository
	store *repository.MemoryStore
	races int
	calls int
}

func (r *racingRepository) UpdateIfVersion(ctx context.Context, recordType models.RecordType, id string, version int, set models.Document) (bool, error) {
	if r.calls < r.races {
		r.calls++
		_, err := r.store.UpdateOne(ctx, repository.RecordCollection(recordType), repository.ByID(id), models.Document{
			models.FieldVersion: version + 1,
			"child_father_name": "Tesfaye-Updated",
		})
		if err != nil {
			return false, err
		}
	}
	return r.RecordRepository.UpdateIfVersion(ctx, recordType, id, version, set)
}

func TestRecordServiceClerkScope(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	otherClerk := models.Actor{ID: "clerk-2", FullName: "Clerk Two", Role: models.RoleClerk, Region: "AMHARA"}
	mine, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	payload := birthPayload()
	payload["child_first_name"] = "Sara"
	theirs, _, err := f.service.Create(ctx, otherClerk, models.RecordBirth, payload)
	require.NoError(t, err)

	docs, page, err := f.service.List(ctx, clerkActor, models.RecordBirth, RecordQuery{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, mine.String("id"), docs[0].String("id"))
	assert.Equal(t, 1, page.Total)

	_, err = f.service.Get(ctx, clerkActor, models.RecordBirth, theirs.String("id"))
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	all, page, err := f.service.List(ctx, models.Actor{ID: "stat", Role: models.RoleStatistician}, models.RecordBirth, RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, page.Total)
}

func TestRecordServiceListFiltersAndPaginates(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	for _, name := range []string{"Abel", "Liya", "Abebe"} {
		payload := birthPayload()
		payload["child_first_name"] = name
		_, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, payload)
		require.NoError(t, err)
	}

	docs, page, err := f.service.List(ctx, adminActor, models.RecordBirth, RecordQuery{Search: "abe"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, page.Total)

	docs, page, err = f.service.List(ctx, adminActor, models.RecordBirth, RecordQuery{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, clerkActor.FullName, docs[0].String(models.FieldRegisteredByName))
}

func TestRecordServiceTransitions(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	id := created.String("id")

	_, err = f.service.Transition(ctx, clerkActor, models.RecordBirth, id, models.StatusApproved, "")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = f.service.Transition(ctx, officerActor, models.RecordBirth, id, models.StatusApproved, "")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	submitted, err := f.service.Transition(ctx, clerkActor, models.RecordBirth, id, models.StatusSubmitted, "")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusSubmitted), submitted.String(models.FieldStatus))

	approved, err := f.service.Transition(ctx, officerActor, models.RecordBirth, id, models.StatusApproved, "")
	require.NoError(t, err)
	assert.Equal(t, string(models.StatusApproved), approved.String(models.FieldStatus))
	assert.Equal(t, officerActor.ID, approved.String(models.FieldApprovedBy))
	assert.NotEmpty(t, approved.String(models.FieldApprovedAt))
	assert.Equal(t, created.String(models.FieldCertificateNumber), approved.String(models.FieldCertificateNumber))

	_, err = f.service.Transition(ctx, officerActor, models.RecordBirth, id, models.StatusRejected, "late")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	logs := f.auditEntries(t, id)
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditActionApprove, logs[0].Action)
	assert.Equal(t, models.ChangeSet{"status": {Old: "submitted", New: "approved"}}, logs[0].Changes)
	assert.Equal(t, models.AuditActionStatusChange, logs[1].Action)
}

func TestRecordServiceReject(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	rejected, err := f.service.Transition(ctx, officerActor, models.RecordBirth, created.String("id"), models.StatusRejected, "missing documents")
	require.NoError(t, err)
	assert.Equal(t, "missing documents", rejected.String(models.FieldRejectionReason))
	assert.Equal(t, officerActor.ID, rejected.String(models.FieldRejectedBy))

	logs := f.auditEntries(t, created.String("id"))
	assert.Equal(t, "Changed status to rejected - Reason: missing documents", logs[0].Summary)
}

func TestRecordServiceDelete(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)
	id := created.String("id")

	err = f.service.Delete(ctx, officerActor, models.RecordBirth, id)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	require.NoError(t, f.service.Delete(ctx, adminActor, models.RecordBirth, id))
	_, err = f.service.Get(ctx, adminActor, models.RecordBirth, id)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	logs := f.auditEntries(t, id)
	assert.Equal(t, models.AuditActionDelete, logs[0].Action)
}

func TestRecordServiceAttachUpload(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	created, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	updated, err := f.service.AttachUpload(ctx, clerkActor, models.RecordBirth, created.String("id"), "births/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "births/photo.png", updated.String("child_photo"))
}

func TestRecordServiceExport(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	_, _, err := f.service.Create(ctx, clerkActor, models.RecordBirth, birthPayload())
	require.NoError(t, err)

	body, filename, err := f.service.Export(ctx, adminActor, models.RecordBirth, RecordQuery{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "birth_records_"))
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "certificate_number,status,child_first_name"))
	assert.Contains(t, lines[1], "Abel")
	assert.Contains(t, lines[1], clerkActor.FullName)
}

func TestCleanPayload(t *testing.T) {
	desc := birthDescriptor()
	doc := cleanPayload(desc, map[string]interface{}{
		"child_first_name": "  Abel ",
		"child_gender":     "MALE",
		"weight_kg":        "3.2",
		"birth_city":       "null",
		"mother_phone":     "",
		"status":           "approved",
	})
	assert.Equal(t, "Abel", doc["child_first_name"])
	assert.Equal(t, "male", doc["child_gender"])
	assert.Equal(t, 3.2, doc["weight_kg"])
	assert.Nil(t, doc["birth_city"])
	assert.Contains(t, doc, "mother_phone")
	assert.Nil(t, doc["mother_phone"])
	assert.NotContains(t, doc, "status")
}
