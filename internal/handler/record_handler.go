package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/dto"
	"github.com/noah-isme/civil-registry-api/internal/middleware"
	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/service"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
	"github.com/noah-isme/civil-registry-api/pkg/response"
)

type recordService interface {
	Descriptor(recordType models.RecordType) (*service.RecordDescriptor, error)
	Create(ctx context.Context, actor models.Actor, recordType models.RecordType, payload map[string]interface{}) (models.Document, *service.ValidationResult, error)
	Get(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (models.Document, error)
	List(ctx context.Context, actor models.Actor, recordType models.RecordType, query service.RecordQuery) ([]models.Document, *models.Pagination, error)
	Update(ctx context.Context, actor models.Actor, recordType models.RecordType, id string, payload map[string]interface{}) (models.Document, models.ChangeSet, error)
	AttachUpload(ctx context.Context, actor models.Actor, recordType models.RecordType, id, reference string) (models.Document, error)
	Transition(ctx context.Context, actor models.Actor, recordType models.RecordType, id string, target models.RecordStatus, reason string) (models.Document, error)
	Delete(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) error
	Export(ctx context.Context, actor models.Actor, recordType models.RecordType, query service.RecordQuery) ([]byte, string, error)
}

type certificateIssuer interface {
	Render(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (*service.CertificateFile, error)
	IssueLink(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (*service.CertificateLink, error)
}

type uploadStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

// UploadPolicy bounds files attached to records.
type UploadPolicy struct {
	AllowedExtensions []string
	MaxBytes          int64
}

func (p UploadPolicy) allows(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, allowed := range p.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(allowed, "."), ext) {
			return true
		}
	}
	return false
}

// RecordHandler serves the uniform REST surface of every vital record type.
type RecordHandler struct {
	records      recordService
	certificates certificateIssuer
	uploads      uploadStore
	policy       UploadPolicy
	logger       *zap.Logger
	now          func() time.Time
}

// NewRecordHandler constructs a RecordHandler. certificates and uploads may be nil,
// which disables the certificate and photo endpoints.
func NewRecordHandler(records recordService, certificates certificateIssuer, uploads uploadStore, policy UploadPolicy, logger *zap.Logger) *RecordHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(policy.AllowedExtensions) == 0 {
		policy.AllowedExtensions = []string{"png", "jpg", "jpeg", "pdf", "doc", "docx"}
	}
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = 16 << 20
	}
	return &RecordHandler{records: records, certificates: certificates, uploads: uploads, policy: policy, logger: logger, now: time.Now}
}

// Create godoc
// @Summary Register a vital record
// @Description Validates, numbers and stores a new draft record
// @Tags Records
// @Accept json
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param payload body object true "Record fields"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /{record_type} [post]
func (h *RecordHandler) Create(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, invalidPayload(err, "request body must be a JSON object"))
			return
		}

		doc, result, err := h.records.Create(c.Request.Context(), actor, recordType, payload)
		if err != nil {
			response.Error(c, err)
			return
		}
		body := dto.RecordWriteResponse{Record: doc}
		if result != nil {
			body.QualityScore = result.QualityScore
			body.Warnings = result.Warnings
		}
		response.Created(c, body, fmt.Sprintf("%s record registered successfully", recordType))
	}
}

// List godoc
// @Summary List vital records
// @Description Paginated, searchable listing restricted to the caller's jurisdiction
// @Tags Records
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size (max 50)"
// @Param search query string false "Search term"
// @Param date_from query string false "Earliest event date (YYYY-MM-DD)"
// @Param date_to query string false "Latest event date (YYYY-MM-DD)"
// @Param status query string false "Workflow status"
// @Success 200 {object} response.Envelope
// @Router /{record_type} [get]
func (h *RecordHandler) List(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		query, err := h.recordQuery(c, recordType)
		if err != nil {
			response.Error(c, err)
			return
		}
		docs, pagination, err := h.records.List(c.Request.Context(), actor, recordType, query)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, docs, pagination, middleware.ExtractMeta(c))
	}
}

// Export godoc
// @Summary Export vital records as CSV
// @Tags Records
// @Produce text/csv
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param search query string false "Search term"
// @Success 200 {file} file
// @Router /{record_type}/export [get]
func (h *RecordHandler) Export(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		query, err := h.recordQuery(c, recordType)
		if err != nil {
			response.Error(c, err)
			return
		}
		body, filename, err := h.records.Export(c.Request.Context(), actor, recordType, query)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, filename, "text/csv; charset=utf-8", body)
	}
}

// Get godoc
// @Summary Get a vital record
// @Tags Records
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /{record_type}/{id} [get]
func (h *RecordHandler) Get(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		doc, err := h.records.Get(c.Request.Context(), actor, recordType, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, doc, nil)
	}
}

// Update godoc
// @Summary Update a vital record
// @Description Applies changed fields only and returns the change set
// @Tags Records
// @Accept json
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Param payload body object true "Changed fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /{record_type}/{id} [put]
func (h *RecordHandler) Update(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		var payload map[string]interface{}
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, invalidPayload(err, "request body must be a JSON object"))
			return
		}
		doc, changes, err := h.records.Update(c.Request.Context(), actor, recordType, c.Param("id"), payload)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dto.RecordUpdateResponse{Record: doc, Changes: changes}, nil)
	}
}

// UpdateStatus godoc
// @Summary Change the workflow status of a record
// @Tags Records
// @Accept json
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Param payload body dto.StatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /{record_type}/{id}/status [patch]
func (h *RecordHandler) UpdateStatus(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		var req dto.StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err, "status is required"))
			return
		}
		target := models.RecordStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
		doc, err := h.records.Transition(c.Request.Context(), actor, recordType, c.Param("id"), target, strings.TrimSpace(req.Reason))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, doc, nil)
	}
}

// Delete godoc
// @Summary Delete a vital record
// @Tags Records
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /{record_type}/{id} [delete]
func (h *RecordHandler) Delete(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		if err := h.records.Delete(c.Request.Context(), actor, recordType, c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}
		response.Message(c, http.StatusOK, fmt.Sprintf("%s record deleted successfully", recordType))
	}
}

// UploadPhoto godoc
// @Summary Attach a file to a record
// @Description Stores the upload and records its reference through the audited update path
// @Tags Records
// @Accept multipart/form-data
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Param file formData file true "Photo or document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /{record_type}/{id}/photo [post]
func (h *RecordHandler) UploadPhoto(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.uploads == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "upload storage not configured"))
			return
		}
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		desc, err := h.records.Descriptor(recordType)
		if err != nil {
			response.Error(c, err)
			return
		}
		// Scope and existence are checked before anything touches the disk.
		if _, err := h.records.Get(c.Request.Context(), actor, recordType, c.Param("id")); err != nil {
			response.Error(c, err)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.policy.MaxBytes+(1<<20))
		fileHeader, err := c.FormFile("file")
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
			return
		}
		if fileHeader.Size > h.policy.MaxBytes {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", h.policy.MaxBytes)))
			return
		}
		if !h.policy.allows(fileHeader.Filename) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file type not allowed; allowed: "+strings.Join(h.policy.AllowedExtensions, ", ")))
			return
		}
		src, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Internal(err, "failed to open file"))
			return
		}
		defer src.Close()

		name := h.storedName(desc, c.Param("id"), fileHeader.Filename)
		reference, err := h.uploads.SaveStream(name, src)
		if err != nil {
			response.Error(c, appErrors.Internal(err, "failed to store file"))
			return
		}

		doc, err := h.records.AttachUpload(c.Request.Context(), actor, recordType, c.Param("id"), reference)
		if err != nil {
			if delErr := h.uploads.Delete(reference); delErr != nil {
				h.logger.Warn("failed to remove orphaned upload", zap.String("reference", reference), zap.Error(delErr))
			}
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dto.UploadResponse{Field: desc.UploadField, Reference: reference, Record: doc}, nil)
	}
}

// Certificate godoc
// @Summary Download the certificate PDF of an approved record
// @Tags Certificates
// @Produce application/pdf
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /{record_type}/{id}/certificate [get]
func (h *RecordHandler) Certificate(recordType models.RecordType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.certificates == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "certificate service not configured"))
			return
		}
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		file, err := h.certificates.Render(c.Request.Context(), actor, recordType, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, file.Filename, "application/pdf", file.Body)
	}
}

// CertificateLink godoc
// @Summary Issue a signed certificate download link
// @Tags Certificates
// @Produce json
// @Param record_type path string true "births, deaths, marriages or divorces"
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /{record_type}/{id}/certificate/link [get]
func (h *RecordHandler) CertificateLink(recordType models.RecordType, downloadBase string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.certificates == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "certificate service not configured"))
			return
		}
		actor, ok := requireActor(c)
		if !ok {
			return
		}
		link, err := h.certificates.IssueLink(c.Request.Context(), actor, recordType, c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, dto.CertificateLinkResponse{
			Token:     link.Token,
			URL:       strings.TrimRight(downloadBase, "/") + "/" + link.Token,
			ExpiresAt: link.ExpiresAt,
		}, nil)
	}
}

func (h *RecordHandler) recordQuery(c *gin.Context, recordType models.RecordType) (service.RecordQuery, error) {
	desc, err := h.records.Descriptor(recordType)
	if err != nil {
		return service.RecordQuery{}, err
	}
	query := service.RecordQuery{
		Search:   c.Query("search"),
		DateFrom: strings.TrimSpace(c.Query("date_from")),
		DateTo:   strings.TrimSpace(c.Query("date_to")),
		Page:     queryInt(c, "page"),
		PerPage:  queryInt(c, "per_page"),
		Filters:  make(map[string]string, len(desc.ExactFilters)),
	}
	for _, bound := range []string{query.DateFrom, query.DateTo} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", bound); err != nil {
			return service.RecordQuery{}, appErrors.Clone(appErrors.ErrValidation, "date filters must use YYYY-MM-DD")
		}
	}
	for param := range desc.ExactFilters {
		if value := strings.TrimSpace(c.Query(param)); value != "" {
			query.Filters[param] = value
		}
	}
	return query, nil
}

// storedName places uploads under the record path with a collision-free name.
func (h *RecordHandler) storedName(desc *service.RecordDescriptor, id, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	stamp := h.now().UTC().Format("20060102_150405")
	return filepath.ToSlash(filepath.Join(desc.PathPrefix, id, fmt.Sprintf("%s_%s_%s%s", desc.UploadField, stamp, uuid.NewString()[:8], ext)))
}
