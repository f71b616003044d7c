package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
	"github.com/noah-isme/civil-registry-api/pkg/jobs"
)

const summaryFieldLimit = 3

// AuditJobType identifies deferred audit writes on the retry queue.
const AuditJobType = "audit_log"

type auditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error)
}

type auditRetryQueue interface {
	Enqueue(job jobs.Job) error
}

type auditMetrics interface {
	IncRecordEvent(recordType, action string)
	IncAuditWriteFailure(recordType string)
}

// AuditConfig tunes audit write retries.
type AuditConfig struct {
	Retries int
	Backoff time.Duration
}

// AuditService appends audit entries for record mutations and serves the audit trail.
type AuditService struct {
	repo    auditRepository
	metrics auditMetrics
	logger  *zap.Logger
	config  AuditConfig
	retry   auditRetryQueue
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration)
}

// NewAuditService constructs an AuditService. metrics may be nil.
func NewAuditService(repo auditRepository, metrics auditMetrics, logger *zap.Logger, config AuditConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Retries < 1 {
		config.Retries = 1
	}
	return &AuditService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// UseRetryQueue hands entries that exhaust inline retries to queue.
func (s *AuditService) UseRetryQueue(queue auditRetryQueue) {
	s.retry = queue
}

// Record appends one entry. Failures are retried with linear backoff. When every
// attempt fails the entry is deferred to the retry queue if one is set,
// otherwise it is logged at error level and counted. The triggering business
// write stands either way.
func (s *AuditService) Record(ctx context.Context, actor models.Actor, action models.AuditAction, recordType models.RecordType, recordID, summary string, changes models.ChangeSet) {
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     actor.ID,
		UserName:   actor.FullName,
		Action:     action,
		RecordType: recordType,
		RecordID:   recordID,
		Summary:    summary,
		Changes:    changes,
		Timestamp:  s.now().UTC(),
	}
	// The business write already happened, so the entry must outlive a cancelled request.
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= s.config.Retries; attempt++ {
		if err = s.repo.Insert(ctx, entry); err == nil {
			if s.metrics != nil {
				s.metrics.IncRecordEvent(string(recordType), string(action))
			}
			return
		}
		s.logger.Warn("failed to write audit log",
			zap.Int("attempt", attempt),
			zap.String("record_id", recordID),
			zap.Error(err),
		)
		if attempt < s.config.Retries && s.config.Backoff > 0 {
			s.sleep(ctx, time.Duration(attempt)*s.config.Backoff)
		}
	}

	if s.retry != nil {
		qerr := s.retry.Enqueue(jobs.Job{ID: entry.ID, Type: AuditJobType, Payload: entry})
		if qerr == nil {
			s.logger.Warn("audit log deferred to retry queue", zap.String("audit_id", entry.ID), zap.Error(err))
			return
		}
		err = fmt.Errorf("%v; enqueue: %w", err, qerr)
	}
	s.drop(entry, err)
}

// HandleRetry is the retry queue handler for deferred audit entries.
func (s *AuditService) HandleRetry(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit job payload %T", job.Payload)
	}
	if err := s.repo.Insert(ctx, entry); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		return err
	}
	if s.metrics != nil {
		s.metrics.IncRecordEvent(string(entry.RecordType), string(entry.Action))
	}
	return nil
}

// HandleDrop accounts for a deferred entry the retry queue gave up on.
func (s *AuditService) HandleDrop(job jobs.Job, err error) {
	entry, ok := job.Payload.(*models.AuditLog)
	if !ok {
		return
	}
	s.drop(entry, err)
}

func (s *AuditService) drop(entry *models.AuditLog, err error) {
	s.logger.Error("audit log dropped",
		zap.String("audit_id", entry.ID),
		zap.String("user_id", entry.UserID),
		zap.String("action", string(entry.Action)),
		zap.String("record_type", string(entry.RecordType)),
		zap.String("record_id", entry.RecordID),
		zap.String("summary", entry.Summary),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.IncAuditWriteFailure(string(entry.RecordType))
	}
}

// List returns audit entries matching filter, newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list audit logs")
	}
	return logs, models.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CreateSummary describes a record creation.
func CreateSummary(desc *RecordDescriptor, doc models.Document) string {
	subject := desc.Subject(doc)
	if subject == "" {
		return fmt.Sprintf("Created %s record", desc.Type)
	}
	return fmt.Sprintf("Created %s record for %s", desc.Type, subject)
}

// UpdateSummary lists changed fields, truncated to the first three plus a count.
func UpdateSummary(names []string) string {
	if len(names) <= summaryFieldLimit {
		return "Updated: " + strings.Join(names, ", ")
	}
	return fmt.Sprintf("Updated %d fields: %s and %d more",
		len(names), strings.Join(names[:summaryFieldLimit], ", "), len(names)-summaryFieldLimit)
}

// StatusSummary describes a workflow transition.
func StatusSummary(status models.RecordStatus, reason string) string {
	summary := "Changed status to " + string(status)
	if status == models.StatusRejected && strings.TrimSpace(reason) != "" {
		summary += " - Reason: " + strings.TrimSpace(reason)
	}
	return summary
}

// DeleteSummary describes a record deletion.
func DeleteSummary(desc *RecordDescriptor, doc models.Document) string {
	return fmt.Sprintf("Deleted %s record %s", desc.Type, doc.String(models.FieldCertificateNumber))
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// normalizePage clamps page to >= 1 and perPage to 1..50, defaulting to 20.
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

const (
	defaultPerPage = 20
	maxPerPage     = 50
)
