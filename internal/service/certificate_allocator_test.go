package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/repository"
)

type failingCounter struct{}

func (failingCounter) Next(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestCertificateAllocatorFormat(t *testing.T) {
	seq := repository.NewMemorySequence()
	allocator := NewCertificateAllocator(seq)
	allocator.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	number, err := allocator.Allocate(context.Background(), "BR", "OROMIA", "3", nil)
	require.NoError(t, err)
	assert.Equal(t, "BR/OROMIA/03/2016/00001", number)

	number, err = allocator.Allocate(context.Background(), "BR", "OROMIA", "03", nil)
	require.NoError(t, err)
	assert.Equal(t, "BR/OROMIA/03/2016/00002", number)

	year := 2010
	number, err = allocator.Allocate(context.Background(), "DR", "", "", &year)
	require.NoError(t, err)
	assert.Equal(t, "DR/AD/01/2010/00001", number)

	number, err = allocator.Allocate(context.Background(), "MR", "Addis Ababa", "woreda/7", &year)
	require.NoError(t, err)
	assert.Equal(t, "MR/Addis_Ababa/woreda-7/2010/00001", number)

	number, err = allocator.Allocate(context.Background(), "DV", "AMHARA", "123", &year)
	require.NoError(t, err)
	assert.Equal(t, "DV/AMHARA/123/2010/00001", number)
}

func TestCertificateAllocatorErrors(t *testing.T) {
	_, err := NewCertificateAllocator(failingCounter{}).Allocate(context.Background(), "BR", "AA", "01", nil)
	assert.Error(t, err)

	seq := repository.NewMemorySequence()
	year := 2016
	seq.Seed("BR/AA/01/2016", 99999)
	_, err = NewCertificateAllocator(seq).Allocate(context.Background(), "BR", "AA", "01", &year)
	assert.Error(t, err)

	_, err = NewCertificateAllocator(seq).Allocate(context.Background(), "", "AA", "01", &year)
	assert.Error(t, err)
}
