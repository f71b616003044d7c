package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/civil-registry-api/internal/service"
	"github.com/noah-isme/civil-registry-api/pkg/response"
)

type publicCertificates interface {
	Verify(ctx context.Context, number string) (*service.CertificateVerification, error)
	Redeem(ctx context.Context, token string) (*service.CertificateFile, error)
}

// CertificateHandler serves the unauthenticated certificate endpoints.
type CertificateHandler struct {
	service publicCertificates
}

// NewCertificateHandler constructs a CertificateHandler.
func NewCertificateHandler(svc publicCertificates) *CertificateHandler {
	return &CertificateHandler{service: svc}
}

// Verify godoc
// @Summary Verify a certificate number
// @Description Public lookup returning a minimal view of the record
// @Tags Certificates
// @Produce json
// @Param number query string true "Certificate number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/verify [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Query("number"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Redeem a signed certificate link
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	file, err := h.service.Redeem(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, "application/pdf", file.Body)
}
