package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveStoreOperation(collection, operation string, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, collection+":"+operation)
}

func TestObservedStoreRecordsOperations(t *testing.T) {
	observer := &recordingObserver{}
	store := NewObservedStore(NewMemoryStore(nil), observer)
	ctx := context.Background()

	require.NoError(t, store.InsertOne(ctx, CollectionUsers, models.Document{models.FieldID: "u1", "email": "a@b.test"}))
	_, err := store.FindOne(ctx, CollectionUsers, ByID("u1"))
	require.NoError(t, err)
	_, err = store.Count(ctx, CollectionUsers, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"users:insert_one", "users:find_one", "users:count"}, observer.calls)
}

func TestNewObservedStoreWithoutObserver(t *testing.T) {
	inner := NewMemoryStore(nil)
	assert.Same(t, inner, NewObservedStore(inner, nil))
}
