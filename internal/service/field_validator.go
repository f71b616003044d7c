package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
)

const (
	optionalPenalty = 0.05
	warningPenalty  = 0.1
)

var (
	nationalIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/-]{5,19}$`)
	phonePattern      = regexp.MustCompile(`^(\+251|0)[1-9]\d{8}$`)
)

type recordQuerier interface {
	Find(ctx context.Context, recordType models.RecordType, filter repository.Filter, opts repository.FindOptions) ([]models.Document, error)
}

// ValidationResult is the outcome of validating a record payload.
type ValidationResult struct {
	Valid        bool         `json:"is_valid"`
	Errors       []FieldError `json:"errors"`
	Warnings     []string     `json:"warnings"`
	QualityScore float64      `json:"data_quality_score"`
}

// ValidationFailure carries blocking field errors to the HTTP layer.
type ValidationFailure struct {
	Result *ValidationResult
}

func (f *ValidationFailure) Error() string {
	if f == nil || f.Result == nil || len(f.Result.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + f.Result.Errors[0].Message
}

// FieldErrors exposes the blocking errors.
func (f *ValidationFailure) FieldErrors() interface{} {
	return f.Result.Errors
}

// FieldWarnings exposes the non-blocking warnings.
func (f *ValidationFailure) FieldWarnings() []string {
	return f.Result.Warnings
}

// RegisterValidations installs the national_id and phone_et tags.
func RegisterValidations(validate *validator.Validate) *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	_ = validate.RegisterValidation("national_id", func(fl validator.FieldLevel) bool {
		return nationalIDPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	_ = validate.RegisterValidation("phone_et", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(strings.ReplaceAll(strings.TrimSpace(fl.Field().String()), " ", ""))
	})
	return validate
}

// FieldValidator applies a record descriptor's rules to payloads.
type FieldValidator struct {
	records   recordQuerier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFieldValidator constructs a validator. records may be nil to skip duplicate detection.
func NewFieldValidator(records recordQuerier, validate *validator.Validate, logger *zap.Logger) *FieldValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldValidator{
		records:   records,
		validator: RegisterValidations(validate),
		logger:    logger,
		now:       time.Now,
	}
}

// Validate runs every rule for a new record, including the duplicate lookup.
func (v *FieldValidator) Validate(ctx context.Context, desc *RecordDescriptor, payload models.Document) *ValidationResult {
	return v.validate(ctx, desc, payload, "")
}

// Revalidate checks a merged document on the update path. The duplicate check
// ignores the record itself.
func (v *FieldValidator) Revalidate(ctx context.Context, desc *RecordDescriptor, doc models.Document) *ValidationResult {
	return v.validate(ctx, desc, doc, doc.ID())
}

func (v *FieldValidator) validate(ctx context.Context, desc *RecordDescriptor, doc models.Document, selfID string) *ValidationResult {
	errs, warnings, missing := v.CheckFields(desc, doc)

	dupWarning, dupErr := v.checkDuplicate(ctx, desc, doc, selfID)
	if dupErr != nil {
		v.logger.Error("duplicate check failed", zap.String("record_type", string(desc.Type)), zap.Error(dupErr))
		errs = append(errs, FieldError{Message: "unable to verify duplicate records, please retry"})
	} else if dupWarning != "" {
		warnings = append(warnings, dupWarning)
	}

	return newValidationResult(errs, warnings, missing)
}

// CheckFields applies the stateless rules and returns errors, warnings and the
// number of missing optional fields.
func (v *FieldValidator) CheckFields(desc *RecordDescriptor, doc models.Document) ([]FieldError, []string, int) {
	errs := make([]FieldError, 0)
	warnings := make([]string, 0)

	for _, field := range desc.Required {
		if isBlank(doc[field]) {
			errs = append(errs, FieldError{Field: field, Message: field + " is required"})
		}
	}

	today := v.now().UTC().Truncate(24 * time.Hour)
	for _, field := range desc.DateFields {
		if isBlank(doc[field]) {
			continue
		}
		if _, ok := documentDate(doc, field); !ok {
			errs = append(errs, FieldError{Field: field, Message: field + " must be a valid date (YYYY-MM-DD)"})
		}
	}
	for _, field := range desc.PastDates {
		if t, ok := documentDate(doc, field); ok && t.After(today) {
			errs = append(errs, FieldError{Field: field, Message: field + " cannot be in the future"})
		}
	}
	for _, rule := range desc.DateOrder {
		earlier, ok := documentDate(doc, rule.Earlier)
		if !ok {
			continue
		}
		later, ok := documentDate(doc, rule.Later)
		if !ok {
			continue
		}
		if later.Before(earlier) {
			errs = append(errs, FieldError{Field: rule.Later, Message: fmt.Sprintf("%s cannot be before %s", rule.Later, rule.Earlier)})
		}
	}

	for field, tag := range desc.Enums {
		value, present := doc[field]
		if isBlank(value) || !present {
			continue
		}
		s, ok := value.(string)
		if !ok || v.validator.Var(s, tag) != nil {
			allowed := strings.ReplaceAll(strings.TrimPrefix(tag, "oneof="), " ", ", ")
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%s must be one of: %s", field, allowed)})
		}
	}
	for _, field := range desc.IDFields {
		s, ok := doc[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if v.validator.Var(s, "national_id") != nil {
			errs = append(errs, FieldError{Field: field, Message: field + " has an invalid identification number format"})
		}
	}
	for _, field := range desc.PhoneFields {
		s, ok := doc[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if v.validator.Var(s, "phone_et") != nil {
			warnings = append(warnings, field+" does not look like an Ethiopian phone number")
		}
	}
	for _, field := range desc.NumericFields {
		value := doc[field]
		if isBlank(value) {
			continue
		}
		if _, ok := models.ToFloat(value); !ok {
			errs = append(errs, FieldError{Field: field, Message: field + " must be a number"})
		}
	}

	if desc.Checks != nil {
		checkErrs, checkWarnings := desc.Checks(doc)
		errs = append(errs, checkErrs...)
		warnings = append(warnings, checkWarnings...)
	}

	missing := 0
	for _, field := range desc.Optional {
		if isBlank(doc[field]) {
			missing++
		}
	}
	sortFieldErrors(desc, errs)
	return errs, warnings, missing
}

func (v *FieldValidator) checkDuplicate(ctx context.Context, desc *RecordDescriptor, doc models.Document, selfID string) (string, error) {
	if v.records == nil || len(desc.DuplicateKey) == 0 {
		return "", nil
	}
	conditions := make(repository.And, 0, len(desc.DuplicateKey))
	for _, field := range desc.DuplicateKey {
		value := doc[field]
		if isBlank(value) {
			return "", nil
		}
		conditions = append(conditions, repository.Eq{Field: field, Value: value})
	}
	// Two rows are enough to find one that is not the record itself.
	matches, err := v.records.Find(ctx, desc.Type, conditions, repository.FindOptions{
		Sort:  []repository.Sort{{Field: models.FieldCreatedAt}},
		Limit: 2,
	})
	if err != nil {
		return "", err
	}
	for _, existing := range matches {
		if selfID != "" && existing.ID() == selfID {
			continue
		}
		ref := existing.String(models.FieldCertificateNumber)
		if ref == "" {
			ref = existing.ID()
		}
		return fmt.Sprintf("possible duplicate: a %s record with the same %s already exists (%s)",
			desc.Type, strings.Join(desc.DuplicateKey, ", "), ref), nil
	}
	return "", nil
}

func newValidationResult(errs []FieldError, warnings []string, missingOptional int) *ValidationResult {
	return &ValidationResult{
		Valid:        len(errs) == 0,
		Errors:       errs,
		Warnings:     warnings,
		QualityScore: qualityScore(missingOptional, len(warnings)),
	}
}

// qualityScore starts at 1 and loses a fixed penalty per missing optional field and per warning.
func qualityScore(missingOptional, warnings int) float64 {
	score := 1.0 - optionalPenalty*float64(missingOptional) - warningPenalty*float64(warnings)
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100
}

func isBlank(v interface{}) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	}
	return false
}

// sortFieldErrors orders errors by the field's position in the descriptor so
// responses are stable regardless of map iteration.
func sortFieldErrors(desc *RecordDescriptor, errs []FieldError) {
	rank := make(map[string]int, len(desc.Fields))
	for i, f := range desc.Fields {
		rank[f] = i
	}
	position := func(e FieldError) int {
		if r, ok := rank[e.Field]; ok {
			return r
		}
		return len(desc.Fields)
	}
	sort.SliceStable(errs, func(i, j int) bool {
		return position(errs[i]) < position(errs[j])
	})
}
