package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// MemoryStore is an in-process DocumentStore used for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]models.Document
	unique      map[string][]string
}

// NewMemoryStore builds an empty store enforcing the given unique fields.
func NewMemoryStore(unique map[string][]string) *MemoryStore {
	if unique == nil {
		unique = UniqueFields
	}
	return &MemoryStore{collections: make(map[string][]models.Document), unique: unique}
}

// FindOne returns a copy of the first matching document.
func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.collections[collection] {
		if Match(doc, filter) {
			return doc.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Find returns copies of matching documents ordered and windowed by opts.
func (s *MemoryStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]models.Document, error) {
	s.mu.RLock()
	matched := make([]models.Document, 0)
	for _, doc := range s.collections[collection] {
		if Match(doc, filter) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	if len(opts.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, key := range opts.Sort {
				c := compareForSort(matched[i][key.Field], matched[j][key.Field])
				if c == 0 {
					continue
				}
				if key.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(matched) {
			return []models.Document{}, nil
		}
		matched = matched[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// Count returns the number of matching documents.
func (s *MemoryStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, doc := range s.collections[collection] {
		if Match(doc, filter) {
			total++
		}
	}
	return total, nil
}

// InsertOne stores a copy of doc.
func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(collection, doc, -1); err != nil {
		return err
	}
	s.collections[collection] = append(s.collections[collection], doc.Clone())
	return nil
}

// UpdateOne merges set into the first matching document.
func (s *MemoryStore) UpdateOne(ctx context.Context, collection string, filter Filter, set models.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if !Match(doc, filter) {
			continue
		}
		updated := doc.Clone()
		for k, v := range set {
			updated[k] = cloneForStore(v)
		}
		if err := s.checkUnique(collection, updated, i); err != nil {
			return false, err
		}
		docs[i] = updated
		return true, nil
	}
	return false, nil
}

// DeleteOne removes the first matching document.
func (s *MemoryStore) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if Match(doc, filter) {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) checkUnique(collection string, doc models.Document, skip int) error {
	fields := append([]string{models.FieldID}, s.unique[collection]...)
	for _, field := range fields {
		value, ok := doc[field]
		if !ok || value == nil || value == "" {
			continue
		}
		for i, existing := range s.collections[collection] {
			if i == skip {
				continue
			}
			if ValuesEqual(existing[field], value) {
				return &DuplicateKeyError{Collection: collection, Field: field}
			}
		}
	}
	return nil
}

func cloneForStore(v interface{}) interface{} {
	return models.Document{"v": v}.Clone()["v"]
}

func compareForSort(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	c, ok := compareValues(a, b)
	if !ok {
		return 0
	}
	return c
}
