package repository

import (
	"context"
	"time"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// StoreObserver receives the duration of every document store call.
type StoreObserver interface {
	ObserveStoreOperation(collection, operation string, duration time.Duration)
}

// ObservedStore decorates a DocumentStore with timing.
type ObservedStore struct {
	next     DocumentStore
	observer StoreObserver
}

// NewObservedStore wraps next. A nil observer returns next unchanged.
func NewObservedStore(next DocumentStore, observer StoreObserver) DocumentStore {
	if observer == nil {
		return next
	}
	return &ObservedStore{next: next, observer: observer}
}

func (s *ObservedStore) observe(collection, operation string, start time.Time) {
	s.observer.ObserveStoreOperation(collection, operation, time.Since(start))
}

// FindOne implements DocumentStore.
func (s *ObservedStore) FindOne(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	defer s.observe(collection, "find_one", time.Now())
	return s.next.FindOne(ctx, collection, filter)
}

// Find implements DocumentStore.
func (s *ObservedStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]models.Document, error) {
	defer s.observe(collection, "find", time.Now())
	return s.next.Find(ctx, collection, filter, opts)
}

// Count implements DocumentStore.
func (s *ObservedStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	defer s.observe(collection, "count", time.Now())
	return s.next.Count(ctx, collection, filter)
}

// InsertOne implements DocumentStore.
func (s *ObservedStore) InsertOne(ctx context.Context, collection string, doc models.Document) error {
	defer s.observe(collection, "insert_one", time.Now())
	return s.next.InsertOne(ctx, collection, doc)
}

// UpdateOne implements DocumentStore.
func (s *ObservedStore) UpdateOne(ctx context.Context, collection string, filter Filter, set models.Document) (bool, error) {
	defer s.observe(collection, "update_one", time.Now())
	return s.next.UpdateOne(ctx, collection, filter, set)
}

// DeleteOne implements DocumentStore.
func (s *ObservedStore) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	defer s.observe(collection, "delete_one", time.Now())
	return s.next.DeleteOne(ctx, collection, filter)
}
