package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
	"github.com/noah-isme/civil-registry-api/pkg/export"
)

const exportRowLimit = 5000

type recordRepository interface {
	FindByID(ctx context.Context, recordType models.RecordType, id string) (models.Document, error)
	FindOne(ctx context.Context, recordType models.RecordType, filter repository.Filter) (models.Document, error)
	Find(ctx context.Context, recordType models.RecordType, filter repository.Filter, opts repository.FindOptions) ([]models.Document, error)
	Count(ctx context.Context, recordType models.RecordType, filter repository.Filter) (int, error)
	Insert(ctx context.Context, recordType models.RecordType, doc models.Document) error
	UpdateIfVersion(ctx context.Context, recordType models.RecordType, id string, version int, set models.Document) (bool, error)
	Delete(ctx context.Context, recordType models.RecordType, id string) error
}

type userNameResolver interface {
	NamesByID(ctx context.Context, ids []string) (map[string]string, error)
}

type certificateNumberAllocator interface {
	Allocate(ctx context.Context, tag, region, woreda string, year *int) (string, error)
}

type auditRecorder interface {
	Record(ctx context.Context, actor models.Actor, action models.AuditAction, recordType models.RecordType, recordID, summary string, changes models.ChangeSet)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// RecordServiceConfig tunes write retries.
type RecordServiceConfig struct {
	// UpdateRetries bounds compare-and-swap attempts when a record changes under an update.
	UpdateRetries int
	// AllocationRetries bounds certificate number re-allocation on a unique index collision.
	AllocationRetries int
}

// RecordService implements create, read, update, status and delete for every record type.
type RecordService struct {
	descriptors Descriptors
	repo        recordRepository
	users       userNameResolver
	allocator   certificateNumberAllocator
	validator   *FieldValidator
	tracker     *ChangeTracker
	lifecycle   *RecordLifecycle
	scope       *AccessScope
	audit       auditRecorder
	csv         csvRenderer
	cache       *CacheService
	logger      *zap.Logger
	config      RecordServiceConfig
	now         func() time.Time
}

// NewRecordService wires the record workflow components.
func NewRecordService(
	descriptors Descriptors,
	repo recordRepository,
	users userNameResolver,
	allocator certificateNumberAllocator,
	fieldValidator *FieldValidator,
	audit auditRecorder,
	logger *zap.Logger,
	config RecordServiceConfig,
) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if descriptors == nil {
		descriptors = DefaultDescriptors()
	}
	if fieldValidator == nil {
		fieldValidator = NewFieldValidator(repo, nil, logger)
	}
	if config.UpdateRetries < 1 {
		config.UpdateRetries = 3
	}
	if config.AllocationRetries < 1 {
		config.AllocationRetries = 3
	}
	return &RecordService{
		descriptors: descriptors,
		repo:        repo,
		users:       users,
		allocator:   allocator,
		validator:   fieldValidator,
		tracker:     NewChangeTracker(),
		lifecycle:   NewRecordLifecycle(),
		scope:       NewAccessScope(),
		audit:       audit,
		csv:         export.NewCSVExporter(),
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// UseVerificationCache sets the cache whose certificate entries are
// invalidated when a certified record changes.
func (s *RecordService) UseVerificationCache(cache *CacheService) {
	s.cache = cache
}

func (s *RecordService) invalidateCertificate(ctx context.Context, docs ...models.Document) {
	var keys []string
	for _, doc := range docs {
		if number := doc.String(models.FieldCertificateNumber); number != "" {
			keys = append(keys, VerificationCacheKey(number))
		}
	}
	s.cache.Invalidate(ctx, keys...)
}

// Descriptor returns the descriptor for recordType.
func (s *RecordService) Descriptor(recordType models.RecordType) (*RecordDescriptor, error) {
	desc, err := s.descriptors.Get(recordType)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	return desc, nil
}

// Create validates payload, assigns a certificate number and stores a draft record.
func (s *RecordService) Create(ctx context.Context, actor models.Actor, recordType models.RecordType, payload map[string]interface{}) (models.Document, *ValidationResult, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, nil, err
	}

	doc := cleanPayload(desc, payload)
	for field, value := range desc.Defaults {
		if isBlank(doc[field]) {
			doc[field] = value
		}
	}
	applyJurisdiction(desc, actor, doc)

	result := s.validator.Validate(ctx, desc, doc)
	if !result.Valid {
		return nil, result, &ValidationFailure{Result: result}
	}

	for _, derived := range desc.Derived {
		if value, ok := derived.Compute(doc); ok {
			doc[derived.Field] = value
		}
	}

	now := s.now().UTC()
	doc[models.FieldID] = uuid.NewString()
	doc[models.FieldStatus] = string(models.StatusDraft)
	doc[models.FieldRegisteredBy] = actor.ID
	doc[models.FieldQualityScore] = result.QualityScore
	doc[models.FieldWarnings] = result.Warnings
	doc[models.FieldVersion] = 1
	doc[models.FieldCreatedAt] = now
	doc[models.FieldUpdatedAt] = now

	if err := s.insertWithCertificate(ctx, desc, actor, doc); err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, actor, models.AuditActionCreate, desc.Type, doc.ID(), CreateSummary(desc, doc), nil)
	doc[models.FieldRegisteredByName] = actor.FullName
	return presentRecord(doc), result, nil
}

// insertWithCertificate numbers the record under the registering office, the
// actor's region and woreda, not the event location.
func (s *RecordService) insertWithCertificate(ctx context.Context, desc *RecordDescriptor, actor models.Actor, doc models.Document) error {
	for attempt := 1; attempt <= s.config.AllocationRetries; attempt++ {
		number, err := s.allocator.Allocate(ctx, desc.Tag, actor.Region, actor.Woreda, nil)
		if err != nil {
			return appErrors.Internal(err, "failed to allocate certificate number")
		}
		doc[models.FieldCertificateNumber] = number

		err = s.repo.Insert(ctx, desc.Type, doc)
		if err == nil {
			return nil
		}
		var dup *repository.DuplicateKeyError
		if !errors.As(err, &dup) {
			return appErrors.Internal(err, fmt.Sprintf("failed to create %s record", desc.Type))
		}
		s.logger.Warn("certificate number collision, reallocating",
			zap.String("certificate_number", number),
			zap.String("field", dup.Field),
			zap.Int("attempt", attempt),
		)
		if dup.Field == models.FieldID {
			doc[models.FieldID] = uuid.NewString()
		}
	}
	return appErrors.Clone(appErrors.ErrInternal, "failed to allocate a unique certificate number")
}

// Get loads one record the actor may access.
func (s *RecordService) Get(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (models.Document, error) {
	desc, doc, err := s.load(ctx, recordType, id)
	if err != nil {
		return nil, err
	}
	if !s.scope.CanAccess(actor, desc, doc) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	s.attachRegistrarNames(ctx, []models.Document{doc})
	return presentRecord(doc), nil
}

// List returns the scoped, filtered page of records, newest first.
func (s *RecordService) List(ctx context.Context, actor models.Actor, recordType models.RecordType, query RecordQuery) ([]models.Document, *models.Pagination, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, nil, err
	}
	query.Page, query.PerPage = normalizePage(query.Page, query.PerPage)
	filter := s.scope.QueryFilter(actor, desc, query)

	total, err := s.repo.Count(ctx, desc.Type, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, fmt.Sprintf("failed to count %s records", desc.Type))
	}
	docs, err := s.repo.Find(ctx, desc.Type, filter, repository.FindOptions{
		Sort:  []repository.Sort{{Field: models.FieldCreatedAt, Desc: true}},
		Skip:  (query.Page - 1) * query.PerPage,
		Limit: query.PerPage,
	})
	if err != nil {
		return nil, nil, appErrors.Internal(err, fmt.Sprintf("failed to list %s records", desc.Type))
	}
	s.attachRegistrarNames(ctx, docs)
	out := make([]models.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, presentRecord(doc))
	}
	return out, models.NewPagination(query.Page, query.PerPage, total), nil
}

// Update applies the allowlisted fields of payload that differ from the stored record.
// The write is a compare-and-swap on the record version; on conflict the record is
// reloaded and diffed again.
func (s *RecordService) Update(ctx context.Context, actor models.Actor, recordType models.RecordType, id string, payload map[string]interface{}) (models.Document, models.ChangeSet, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, nil, err
	}
	cleaned := cleanPayload(desc, payload)

	for attempt := 1; attempt <= s.config.UpdateRetries; attempt++ {
		_, stored, err := s.load(ctx, recordType, id)
		if err != nil {
			return nil, nil, err
		}
		if !s.scope.CanModify(actor, desc, stored) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "permission denied")
		}

		changes, names := s.tracker.DiffRecord(desc, stored, cleaned)
		if len(changes) == 0 {
			return nil, nil, appErrors.Clone(appErrors.ErrNoChanges, "no changes detected")
		}

		merged := stored.Clone()
		for field, change := range changes {
			merged[field] = change.New
		}
		result := s.validator.Revalidate(ctx, desc, merged)
		if !result.Valid {
			return nil, nil, &ValidationFailure{Result: result}
		}

		version, _ := stored.Int(models.FieldVersion)
		set := SetFromChanges(changes)
		set[models.FieldUpdatedAt] = s.now().UTC()
		set[models.FieldVersion] = version + 1
		set[models.FieldQualityScore] = result.QualityScore
		set[models.FieldWarnings] = result.Warnings

		ok, err := s.repo.UpdateIfVersion(ctx, desc.Type, id, version, set)
		if err != nil {
			return nil, nil, appErrors.Internal(err, fmt.Sprintf("failed to update %s record", desc.Type))
		}
		if !ok {
			s.logger.Info("record changed during update, retrying", zap.String("record_id", id), zap.Int("attempt", attempt))
			continue
		}

		s.audit.Record(ctx, actor, models.AuditActionUpdate, desc.Type, id, UpdateSummary(names), changes)
		for field, value := range set {
			merged[field] = value
		}
		s.invalidateCertificate(ctx, stored)
		s.attachRegistrarNames(ctx, []models.Document{merged})
		return presentRecord(merged), changes, nil
	}
	return nil, nil, appErrors.Clone(appErrors.ErrConflict, "record was modified concurrently, please retry")
}

// AttachUpload stores an uploaded file reference on the record through the update path.
func (s *RecordService) AttachUpload(ctx context.Context, actor models.Actor, recordType models.RecordType, id, reference string) (models.Document, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, err
	}
	if desc.UploadField == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record type does not accept uploads")
	}
	doc, _, err := s.Update(ctx, actor, recordType, id, map[string]interface{}{desc.UploadField: reference})
	return doc, err
}

// Transition moves the record to target, enforcing the workflow and role gates.
func (s *RecordService) Transition(ctx context.Context, actor models.Actor, recordType models.RecordType, id string, target models.RecordStatus, reason string) (models.Document, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, err
	}
	for attempt := 1; attempt <= s.config.UpdateRetries; attempt++ {
		_, stored, err := s.load(ctx, recordType, id)
		if err != nil {
			return nil, err
		}
		if !s.scope.CanModify(actor, desc, stored) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "permission denied")
		}
		plan, err := s.lifecycle.Plan(actor, stored, target, reason)
		if err != nil {
			return nil, err
		}

		version, _ := stored.Int(models.FieldVersion)
		plan.Set[models.FieldVersion] = version + 1
		ok, err := s.repo.UpdateIfVersion(ctx, desc.Type, id, version, plan.Set)
		if err != nil {
			return nil, appErrors.Internal(err, fmt.Sprintf("failed to update %s status", desc.Type))
		}
		if !ok {
			continue
		}

		s.audit.Record(ctx, actor, plan.Action, desc.Type, id, plan.Summary, plan.Changes)
		previous := stored.Clone()
		for field, value := range plan.Set {
			stored[field] = value
		}
		s.invalidateCertificate(ctx, previous, stored)
		s.attachRegistrarNames(ctx, []models.Document{stored})
		return presentRecord(stored), nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "record was modified concurrently, please retry")
}

// Delete removes a record. Only admins may delete.
func (s *RecordService) Delete(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) error {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return err
	}
	if !s.scope.CanDelete(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete records")
	}
	_, stored, err := s.load(ctx, recordType, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, desc.Type, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s record not found", desc.Type))
		}
		return appErrors.Internal(err, fmt.Sprintf("failed to delete %s record", desc.Type))
	}
	s.audit.Record(ctx, actor, models.AuditActionDelete, desc.Type, id, DeleteSummary(desc, stored), nil)
	s.invalidateCertificate(ctx, stored)
	return nil
}

// Export renders the scoped, filtered records as CSV.
func (s *RecordService) Export(ctx context.Context, actor models.Actor, recordType models.RecordType, query RecordQuery) ([]byte, string, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, "", err
	}
	filter := s.scope.QueryFilter(actor, desc, query)
	docs, err := s.repo.Find(ctx, desc.Type, filter, repository.FindOptions{
		Sort:  []repository.Sort{{Field: models.FieldCreatedAt, Desc: true}},
		Limit: exportRowLimit,
	})
	if err != nil {
		return nil, "", appErrors.Internal(err, fmt.Sprintf("failed to export %s records", desc.Type))
	}
	s.attachRegistrarNames(ctx, docs)

	headers := []string{models.FieldCertificateNumber, models.FieldStatus}
	headers = append(headers, desc.SubjectFields...)
	headers = append(headers, desc.PrimaryDate, desc.Jurisdiction.Region, desc.Jurisdiction.Woreda,
		models.FieldRegisteredByName, models.FieldCreatedAt)
	rows := make([]map[string]string, 0, len(docs))
	for _, doc := range docs {
		row := make(map[string]string, len(headers))
		for _, h := range headers {
			row[h] = doc.String(h)
		}
		rows = append(rows, row)
	}
	body, err := s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
	if err != nil {
		return nil, "", appErrors.Internal(err, "failed to render export")
	}
	filename := fmt.Sprintf("%s_records_%s.csv", desc.Type, s.now().UTC().Format("20060102"))
	return body, filename, nil
}

func (s *RecordService) load(ctx context.Context, recordType models.RecordType, id string) (*RecordDescriptor, models.Document, error) {
	desc, err := s.Descriptor(recordType)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.repo.FindByID(ctx, desc.Type, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s record not found", desc.Type))
		}
		return nil, nil, appErrors.Internal(err, fmt.Sprintf("failed to load %s record", desc.Type))
	}
	return desc, doc, nil
}

func (s *RecordService) attachRegistrarNames(ctx context.Context, docs []models.Document) {
	if s.users == nil || len(docs) == 0 {
		return
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.String(models.FieldRegisteredBy))
	}
	names, err := s.users.NamesByID(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve registrar names", zap.Error(err))
		return
	}
	for _, doc := range docs {
		if name, ok := names[doc.String(models.FieldRegisteredBy)]; ok {
			doc[models.FieldRegisteredByName] = name
		}
	}
}

// cleanPayload keeps allowlisted fields, turns "" and "null" into nil, lower cases
// enumerations and converts numeric strings for numeric fields.
func cleanPayload(desc *RecordDescriptor, payload map[string]interface{}) models.Document {
	doc := make(models.Document, len(payload))
	for key, value := range payload {
		if !desc.Allows(key) {
			continue
		}
		if s, ok := value.(string); ok {
			trimmed := strings.TrimSpace(s)
			switch {
			case trimmed == "" || strings.EqualFold(trimmed, "null"):
				value = nil
			case desc.Enums[key] != "":
				value = strings.ToLower(trimmed)
			case desc.isDate(key):
				if t, err := ParseDate(trimmed); err == nil {
					value = t.Format(DateLayout)
				} else {
					value = trimmed
				}
			case desc.isNumeric(key):
				if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
					value = f
				} else {
					value = trimmed
				}
			default:
				value = trimmed
			}
		}
		doc[key] = value
	}
	return doc
}

func applyJurisdiction(desc *RecordDescriptor, actor models.Actor, doc models.Document) {
	defaults := map[string]string{
		desc.Jurisdiction.Region: actor.Region,
		desc.Jurisdiction.Zone:   actor.Zone,
		desc.Jurisdiction.Woreda: actor.Woreda,
		desc.Jurisdiction.Kebele: actor.Kebele,
	}
	for field, value := range defaults {
		if field != "" && value != "" && isBlank(doc[field]) {
			doc[field] = value
		}
	}
}

// presentRecord exposes the document id as "id" and hides the version counter.
func presentRecord(doc models.Document) models.Document {
	out := doc.Clone()
	out["id"] = out.ID()
	delete(out, models.FieldID)
	delete(out, models.FieldVersion)
	return out
}
