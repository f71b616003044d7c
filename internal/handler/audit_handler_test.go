package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/models"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

type auditReaderStub struct {
	filter models.AuditLogFilter
}

func (s *auditReaderStub) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error) {
	s.filter = filter
	return []models.AuditLog{}, models.NewPagination(1, 20, 0), nil
}

type accessStub struct {
	err error
}

func (s accessStub) Get(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (models.Document, error) {
	return models.Document{"id": id}, s.err
}

func TestAuditHandlerListFilters(t *testing.T) {
	reader := &auditReaderStub{}
	h := NewAuditHandler(reader, accessStub{})

	c, w := newGinContext(http.MethodGet, "/api/audit-logs?action=approve&record_type=birth&user_id=u1&date_from=2024-01-01&date_to=2024-01-31&page=2", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.AuditActionApprove, reader.filter.Action)
	assert.Equal(t, models.RecordBirth, reader.filter.RecordType)
	assert.Equal(t, "u1", reader.filter.UserID)
	assert.Equal(t, 2, reader.filter.Page)
	require.NotNil(t, reader.filter.From)
	require.NotNil(t, reader.filter.To)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *reader.filter.From)
	assert.Equal(t, 31, reader.filter.To.Day())
	assert.Equal(t, 23, reader.filter.To.Hour())
}

func TestAuditHandlerListRejectsUnknownValues(t *testing.T) {
	h := NewAuditHandler(&auditReaderStub{}, accessStub{})

	for _, target := range []string{
		"/api/audit-logs?action=publish",
		"/api/audit-logs?record_type=adoption",
		"/api/audit-logs?date_from=yesterday",
	} {
		c, w := newGinContext(http.MethodGet, target, nil)
		h.List(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestAuditHandlerForRecordChecksAccess(t *testing.T) {
	reader := &auditReaderStub{}
	h := NewAuditHandler(reader, accessStub{err: appErrors.Clone(appErrors.ErrForbidden, "access denied")})

	c, w := newGinContext(http.MethodGet, "/api/audit-logs/record/birth/r1", nil)
	c.Params = gin.Params{{Key: "type", Value: "birth"}, {Key: "id", Value: "r1"}}
	withActor(c, testClerk)
	h.ForRecord(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h = NewAuditHandler(reader, accessStub{})
	c, w = newGinContext(http.MethodGet, "/api/audit-logs/record/birth/r1", nil)
	c.Params = gin.Params{{Key: "type", Value: "birth"}, {Key: "id", Value: "r1"}}
	withActor(c, testClerk)
	h.ForRecord(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", reader.filter.RecordID)
	assert.Equal(t, models.RecordBirth, reader.filter.RecordType)

	c, w = newGinContext(http.MethodGet, "/api/audit-logs/record/births/r1", nil)
	c.Params = gin.Params{{Key: "type", Value: "births"}, {Key: "id", Value: "r1"}}
	withActor(c, testClerk)
	h.ForRecord(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
