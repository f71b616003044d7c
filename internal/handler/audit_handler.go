package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civil-registry-api/internal/models"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
	"github.com/noah-isme/civil-registry-api/pkg/response"
)

type auditReader interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, *models.Pagination, error)
}

type recordAccessChecker interface {
	Get(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (models.Document, error)
}

// AuditHandler exposes the read side of the audit trail.
type AuditHandler struct {
	audit   auditReader
	records recordAccessChecker
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit auditReader, records recordAccessChecker) *AuditHandler {
	return &AuditHandler{audit: audit, records: records}
}

// List godoc
// @Summary List audit log entries
// @Description Newest first; administrators only
// @Tags Audit
// @Produce json
// @Param action query string false "Action filter"
// @Param record_type query string false "Record type filter"
// @Param user_id query string false "Acting user filter"
// @Param date_from query string false "From date (YYYY-MM-DD)"
// @Param date_to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if action := c.Query("action"); action != "" {
		filter.Action = models.AuditAction(action)
		if !filter.Action.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown audit action"))
			return
		}
	}
	if recordType := c.Query("record_type"); recordType != "" {
		filter.RecordType = models.RecordType(recordType)
		if !filter.RecordType.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown record type"))
			return
		}
	}
	filter.UserID = c.Query("user_id")
	h.respond(c, filter)
}

// ForRecord godoc
// @Summary Audit trail of one record
// @Description Available to anyone allowed to read the record
// @Tags Audit
// @Produce json
// @Param type path string true "birth, death, marriage or divorce"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/record/{type}/{id} [get]
func (h *AuditHandler) ForRecord(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	recordType := models.RecordType(c.Param("type"))
	if !recordType.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown record type"))
		return
	}
	if _, err := h.records.Get(c.Request.Context(), actor, recordType, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	filter, err := auditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.RecordType = recordType
	filter.RecordID = c.Param("id")
	h.respond(c, filter)
}

// ForUser godoc
// @Summary Audit entries made by one user
// @Description Administrators or the user themselves
// @Tags Audit
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /audit-logs/user/{id} [get]
func (h *AuditHandler) ForUser(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.UserID = c.Param("id")
	h.respond(c, filter)
}

func (h *AuditHandler) respond(c *gin.Context, filter models.AuditLogFilter) {
	entries, pagination, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

func auditFilter(c *gin.Context) (models.AuditLogFilter, error) {
	from, err := queryDate(c, "date_from", false)
	if err != nil {
		return models.AuditLogFilter{}, err
	}
	to, err := queryDate(c, "date_to", true)
	if err != nil {
		return models.AuditLogFilter{}, err
	}
	return models.AuditLogFilter{
		From:    from,
		To:      to,
		Page:    queryInt(c, "page"),
		PerPage: queryInt(c, "per_page"),
	}, nil
}
