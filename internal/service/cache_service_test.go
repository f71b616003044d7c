package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (r *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.data[key]
	if !ok {
		return repository.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = raw
	r.ttls[key] = ttl
	return nil
}

func (r *memoryCacheRepo) Delete(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.data, key)
		r.deleted = append(r.deleted, key)
	}
	return nil
}

type cacheOpCounter struct {
	hits, misses int
}

func (c *cacheOpCounter) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		c.hits++
		return
	}
	c.misses++
}

func TestCacheServiceGetSet(t *testing.T) {
	repo := newMemoryCacheRepo()
	counter := &cacheOpCounter{}
	svc := NewCacheService(repo, counter, time.Minute, zap.NewNop(), true)
	ctx := context.Background()

	var out map[string]string
	assert.False(t, svc.Get(ctx, "k", &out))

	svc.Set(ctx, "k", map[string]string{"a": "b"}, 0)
	assert.Equal(t, time.Minute, repo.ttls["k"])
	require.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, "b", out["a"])

	svc.Invalidate(ctx, "k")
	assert.False(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 2, counter.misses)
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)

	var out string
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, false)
	ctx := context.Background()

	svc.Set(ctx, "k", "v", 0)
	assert.Empty(t, repo.data)
	var out string
	assert.False(t, svc.Get(ctx, "k", &out))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.False(t, nilSvc.Get(ctx, "k", &out))
	nilSvc.Set(ctx, "k", "v", 0)
	nilSvc.Invalidate(ctx, "k")
}

func TestCertificateVerifyUsesCache(t *testing.T) {
	f, svc, _ := newCertificateFixture(t)
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc.UseCache(cache)
	f.service.UseVerificationCache(cache)
	ctx := context.Background()

	record := approvedBirth(t, f)
	number := record.String(models.FieldCertificateNumber)

	first, err := svc.Verify(ctx, number)
	require.NoError(t, err)
	require.Contains(t, repo.data, VerificationCacheKey(number))

	// Served from cache even though the store no longer answers.
	svc.records = nil
	second, err := svc.Verify(ctx, number)
	require.NoError(t, err)
	assert.Equal(t, first.SubjectInitials, second.SubjectInitials)
	assert.Equal(t, first.CertificateNumber, second.CertificateNumber)
}

func TestRecordChangesInvalidateVerificationCache(t *testing.T) {
	f, svc, _ := newCertificateFixture(t)
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc.UseCache(cache)
	f.service.UseVerificationCache(cache)
	ctx := context.Background()

	record := approvedBirth(t, f)
	number := record.String(models.FieldCertificateNumber)
	_, err := svc.Verify(ctx, number)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, adminActor, models.RecordBirth, record.String("id")))
	assert.Contains(t, repo.deleted, VerificationCacheKey(number))
	assert.NotContains(t, repo.data, VerificationCacheKey(number))
}
