package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
	"github.com/noah-isme/civil-registry-api/pkg/ethcal"
	"github.com/noah-isme/civil-registry-api/pkg/export"
)

type certificateRecords interface {
	FindByID(ctx context.Context, recordType models.RecordType, id string) (models.Document, error)
	FindOne(ctx context.Context, recordType models.RecordType, filter repository.Filter) (models.Document, error)
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

type downloadSigner interface {
	Generate(scope, resourceID string) (string, time.Time, error)
	Parse(token string) (string, string, time.Time, error)
}

// CertificateFile is a rendered certificate ready for download.
type CertificateFile struct {
	Filename string
	Body     []byte
}

// CertificateLink is a signed, expiring certificate download token.
type CertificateLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CertificateVerification is the public view of a certificate.
type CertificateVerification struct {
	CertificateNumber string              `json:"certificate_number"`
	RecordType        models.RecordType   `json:"record_type"`
	Status            models.RecordStatus `json:"status"`
	Valid             bool                `json:"is_valid"`
	SubjectInitials   string              `json:"subject_initials"`
	EventDate         string              `json:"event_date,omitempty"`
	RegisteredAt      *time.Time          `json:"registered_at,omitempty"`
	Region            string              `json:"region,omitempty"`
}

// CertificateService issues certificates for approved records and verifies numbers publicly.
type CertificateService struct {
	descriptors Descriptors
	records     certificateRecords
	users       userNameResolver
	renderer    certificateRenderer
	signer      downloadSigner
	scope       *AccessScope
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
}

// NewCertificateService constructs a CertificateService.
func NewCertificateService(descriptors Descriptors, records certificateRecords, users userNameResolver, renderer certificateRenderer, signer downloadSigner, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if descriptors == nil {
		descriptors = DefaultDescriptors()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer()
	}
	return &CertificateService{
		descriptors: descriptors,
		records:     records,
		users:       users,
		renderer:    renderer,
		signer:      signer,
		scope:       NewAccessScope(),
		logger:      logger,
		now:         time.Now,
	}
}

// UseCache enables caching of public verification results.
func (s *CertificateService) UseCache(cache *CacheService) {
	s.cache = cache
}

// Render produces the PDF certificate for an approved record the actor may access.
func (s *CertificateService) Render(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (*CertificateFile, error) {
	desc, doc, err := s.approvedRecord(ctx, recordType, id)
	if err != nil {
		return nil, err
	}
	if !s.scope.CanAccess(actor, desc, doc) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	return s.render(ctx, desc, doc)
}

// IssueLink returns a signed token that downloads the certificate without authentication.
func (s *CertificateService) IssueLink(ctx context.Context, actor models.Actor, recordType models.RecordType, id string) (*CertificateLink, error) {
	desc, doc, err := s.approvedRecord(ctx, recordType, id)
	if err != nil {
		return nil, err
	}
	if !s.scope.CanAccess(actor, desc, doc) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	token, expiresAt, err := s.signer.Generate(string(desc.Type), doc.ID())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign certificate link")
	}
	return &CertificateLink{Token: token, ExpiresAt: expiresAt}, nil
}

// Redeem renders the certificate referenced by a signed token.
func (s *CertificateService) Redeem(ctx context.Context, token string) (*CertificateFile, error) {
	scope, id, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download link")
	}
	desc, doc, err := s.approvedRecord(ctx, models.RecordType(scope), id)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, desc, doc)
}

// Verify looks a certificate number up across every record type.
func (s *CertificateService) Verify(ctx context.Context, number string) (*CertificateVerification, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "certificate number is required")
	}
	key := VerificationCacheKey(number)
	var cached CertificateVerification
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	for _, recordType := range models.RecordTypes {
		desc, err := s.descriptors.Get(recordType)
		if err != nil {
			continue
		}
		doc, err := s.records.FindOne(ctx, recordType, repository.Eq{Field: models.FieldCertificateNumber, Value: number})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, appErrors.Internal(err, "failed to verify certificate")
		}
		view := publicView(desc, doc)
		s.cache.Set(ctx, key, view, 0)
		return view, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
}

func (s *CertificateService) approvedRecord(ctx context.Context, recordType models.RecordType, id string) (*RecordDescriptor, models.Document, error) {
	desc, err := s.descriptors.Get(recordType)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unknown record type")
	}
	doc, err := s.records.FindByID(ctx, recordType, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s record not found", recordType))
		}
		return nil, nil, appErrors.Internal(err, fmt.Sprintf("failed to load %s record", recordType))
	}
	if doc.Status() != models.StatusApproved {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "certificates are only issued for approved records")
	}
	return desc, doc, nil
}

func (s *CertificateService) render(ctx context.Context, desc *RecordDescriptor, doc models.Document) (*CertificateFile, error) {
	cert := export.Certificate{
		Title:    desc.Title,
		Number:   doc.String(models.FieldCertificateNumber),
		IssuedAt: s.now().UTC(),
	}
	cert.EthiopianDate = ethcal.Numeric(cert.IssuedAt)
	for _, line := range desc.Certificate {
		value := doc.String(line.Field)
		if strings.HasPrefix(line.Field, "ethiopian_") {
			if t, ok := documentDate(doc, desc.PrimaryDate); ok {
				value = ethcal.Numeric(t)
			}
		}
		cert.Fields = append(cert.Fields, export.CertificateField{Label: line.Label, Value: value})
	}
	if approver := doc.String(models.FieldApprovedBy); approver != "" && s.users != nil {
		names, err := s.users.NamesByID(ctx, []string{approver})
		if err != nil {
			s.logger.Warn("failed to resolve approver name", zap.String("user_id", approver), zap.Error(err))
		} else {
			cert.ApprovedByName = names[approver]
		}
	}

	body, err := s.renderer.Render(cert)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render certificate")
	}
	filename := strings.NewReplacer("/", "-").Replace(cert.Number) + ".pdf"
	return &CertificateFile{Filename: filename, Body: body}, nil
}

func publicView(desc *RecordDescriptor, doc models.Document) *CertificateVerification {
	view := &CertificateVerification{
		CertificateNumber: doc.String(models.FieldCertificateNumber),
		RecordType:        desc.Type,
		Status:            doc.Status(),
		Valid:             doc.Status() == models.StatusApproved,
		SubjectInitials:   initials(desc, doc),
		EventDate:         doc.String(desc.PrimaryDate),
		Region:            doc.String(desc.Jurisdiction.Region),
	}
	if created, ok := doc.Time(models.FieldCreatedAt); ok {
		view.RegisteredAt = &created
	}
	return view
}

// initials reduces each subject name to its first letter.
func initials(desc *RecordDescriptor, doc models.Document) string {
	parts := make([]string, 0, len(desc.SubjectFields))
	for _, field := range desc.SubjectFields {
		var letters strings.Builder
		for _, word := range strings.Fields(doc.String(field)) {
			r, _ := utf8.DecodeRuneInString(word)
			letters.WriteString(strings.ToUpper(string(r)))
			letters.WriteString(".")
		}
		if letters.Len() > 0 {
			parts = append(parts, letters.String())
		}
	}
	sep := " "
	if desc.Type == models.RecordMarriage || desc.Type == models.RecordDivorce {
		sep = " & "
	}
	return strings.Join(parts, sep)
}
