package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// AuditRepository appends and reads audit log entries. Entries are never updated or deleted.
type AuditRepository struct {
	store DocumentStore
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(store DocumentStore) *AuditRepository {
	return &AuditRepository{store: store}
}

// Insert appends one entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditLog) error {
	if err := r.store.InsertOne(ctx, CollectionAuditLogs, auditToDocument(entry)); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first, with the total count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	var conditions []Filter
	if filter.Action != "" {
		conditions = append(conditions, Eq{Field: "action", Value: string(filter.Action)})
	}
	if filter.RecordType != "" {
		conditions = append(conditions, Eq{Field: "record_type", Value: string(filter.RecordType)})
	}
	if filter.RecordID != "" {
		conditions = append(conditions, Eq{Field: "record_id", Value: filter.RecordID})
	}
	if filter.UserID != "" {
		conditions = append(conditions, Eq{Field: "user_id", Value: filter.UserID})
	}
	if filter.From != nil || filter.To != nil {
		rng := Range{Field: "timestamp"}
		if filter.From != nil {
			rng.Gte = *filter.From
		}
		if filter.To != nil {
			rng.Lte = *filter.To
		}
		conditions = append(conditions, rng)
	}
	query := AllOf(conditions...)

	total, err := r.store.Count(ctx, CollectionAuditLogs, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	docs, err := r.store.Find(ctx, CollectionAuditLogs, query, FindOptions{
		Sort:  []Sort{{Field: "timestamp", Desc: true}},
		Skip:  (page - 1) * perPage,
		Limit: perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}
	logs := make([]models.AuditLog, 0, len(docs))
	for _, doc := range docs {
		logs = append(logs, auditFromDocument(doc))
	}
	return logs, total, nil
}

func auditToDocument(entry *models.AuditLog) models.Document {
	changes := make(map[string]interface{}, len(entry.Changes))
	for field, change := range entry.Changes {
		changes[field] = map[string]interface{}{"old": change.Old, "new": change.New}
	}
	return models.Document{
		models.FieldID:    entry.ID,
		"user_id":         entry.UserID,
		"user_name":       entry.UserName,
		"action":          string(entry.Action),
		"record_type":     string(entry.RecordType),
		"record_id":       entry.RecordID,
		"changes_summary": entry.Summary,
		"changes":         changes,
		"timestamp":       entry.Timestamp,
	}
}

func auditFromDocument(doc models.Document) models.AuditLog {
	entry := models.AuditLog{
		ID:         doc.ID(),
		UserID:     doc.String("user_id"),
		UserName:   doc.String("user_name"),
		Action:     models.AuditAction(doc.String("action")),
		RecordType: models.RecordType(doc.String("record_type")),
		RecordID:   doc.String("record_id"),
		Summary:    doc.String("changes_summary"),
	}
	if ts, ok := doc.Time("timestamp"); ok {
		entry.Timestamp = ts
	}
	if raw, ok := doc["changes"].(map[string]interface{}); ok && len(raw) > 0 {
		entry.Changes = make(models.ChangeSet, len(raw))
		for field, value := range raw {
			change, _ := value.(map[string]interface{})
			entry.Changes[field] = models.FieldChange{Old: change["old"], New: change["new"]}
		}
	}
	return entry
}
