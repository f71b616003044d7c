package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/civil-registry-api/pkg/ethcal"
)

const (
	defaultRegionCode = "AD"
	defaultWoredaCode = "01"
	maxSequence       = 99999
)

type sequenceCounter interface {
	Next(ctx context.Context, key string) (int64, error)
}

// CertificateAllocator builds TYPE/REGION/WOREDA/YEAR/SEQUENCE identifiers from an
// atomic counter keyed by everything before the sequence.
type CertificateAllocator struct {
	counter sequenceCounter
	now     func() time.Time
}

// NewCertificateAllocator constructs an allocator over counter.
func NewCertificateAllocator(counter sequenceCounter) *CertificateAllocator {
	return &CertificateAllocator{counter: counter, now: time.Now}
}

// Allocate returns the next certificate number. A nil year means the current Ethiopian year.
func (a *CertificateAllocator) Allocate(ctx context.Context, tag, region, woreda string, year *int) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("certificate tag required")
	}
	y := ethcal.Year(a.now())
	if year != nil {
		y = *year
	}
	prefix := fmt.Sprintf("%s/%s/%s/%d", tag, regionCode(region), woredaCode(woreda), y)
	seq, err := a.counter.Next(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("allocate certificate sequence: %w", err)
	}
	if seq < 1 || seq > maxSequence {
		return "", fmt.Errorf("certificate sequence exhausted for %s", prefix)
	}
	return fmt.Sprintf("%s/%05d", prefix, seq), nil
}

// regionCode keeps the region as given but strips characters that would break the format.
func regionCode(region string) string {
	code := strings.TrimSpace(region)
	if code == "" {
		return defaultRegionCode
	}
	return strings.NewReplacer("/", "-", " ", "_").Replace(code)
}

// woredaCode left pads to two characters. Longer or non numeric codes are kept as-is.
func woredaCode(woreda string) string {
	code := strings.NewReplacer("/", "-", " ", "_").Replace(strings.TrimSpace(woreda))
	if code == "" {
		return defaultWoredaCode
	}
	if len(code) < 2 {
		code = strings.Repeat("0", 2-len(code)) + code
	}
	return code
}
