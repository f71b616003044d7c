package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// MongoStore implements DocumentStore on a MongoDB database.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps a connected database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes creates the unique indexes declared for each collection plus
// the lookup indexes used by listings.
func (s *MongoStore) EnsureIndexes(ctx context.Context, unique map[string][]string) error {
	for collection, fields := range unique {
		indexes := make([]mongo.IndexModel, 0, len(fields)+2)
		for _, field := range fields {
			indexes = append(indexes, mongo.IndexModel{
				Keys: bson.D{{Key: field, Value: 1}},
				Options: options.Index().
					SetName(uniqueIndexName(field)).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}}),
			})
		}
		sortKey := "created_at"
		if collection == CollectionAuditLogs {
			sortKey = "timestamp"
			indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: "record_id", Value: 1}, {Key: "timestamp", Value: -1}}})
		}
		indexes = append(indexes, mongo.IndexModel{Keys: bson.D{{Key: sortKey, Value: -1}}})
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes for %s: %w", collection, err)
		}
	}
	return nil
}

// FindOne returns the first matching document.
func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	query, err := ToBSON(filter)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := s.db.Collection(collection).FindOne(ctx, query).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find one in %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

// Find returns matching documents ordered and windowed by opts.
func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]models.Document, error) {
	query, err := ToBSON(filter)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find()
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, key := range opts.Sort {
			dir := 1
			if key.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: key.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	docs := make([]models.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (s *MongoStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	query, err := ToBSON(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.db.Collection(collection).CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return int(n), nil
}

// InsertOne inserts doc as-is.
func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc models.Document) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, bson.M(doc)); err != nil {
		return s.translateWriteError(collection, err)
	}
	return nil
}

// UpdateOne applies set as a $set delta.
func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter Filter, set models.Document) (bool, error) {
	query, err := ToBSON(filter)
	if err != nil {
		return false, err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, query, bson.M{"$set": bson.M(set)})
	if err != nil {
		return false, s.translateWriteError(collection, err)
	}
	return res.MatchedCount > 0, nil
}

// DeleteOne removes the first matching document.
func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	query, err := ToBSON(filter)
	if err != nil {
		return false, err
	}
	res, err := s.db.Collection(collection).DeleteOne(ctx, query)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) translateWriteError(collection string, err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	field := models.FieldID
	for _, candidate := range UniqueFields[collection] {
		if strings.Contains(err.Error(), uniqueIndexName(candidate)) {
			field = candidate
			break
		}
	}
	return &DuplicateKeyError{Collection: collection, Field: field}
}

// ToBSON translates a Filter into a MongoDB query document.
func ToBSON(f Filter) (bson.M, error) {
	switch typed := f.(type) {
	case nil:
		return bson.M{}, nil
	case Eq:
		if err := validField(typed.Field); err != nil {
			return nil, err
		}
		return bson.M{typed.Field: typed.Value}, nil
	case Contains:
		if err := validField(typed.Field); err != nil {
			return nil, err
		}
		return bson.M{typed.Field: primitive.Regex{Pattern: regexp.QuoteMeta(typed.Substring), Options: "i"}}, nil
	case Range:
		if err := validField(typed.Field); err != nil {
			return nil, err
		}
		bounds := bson.M{}
		if typed.Gte != nil {
			bounds["$gte"] = typed.Gte
		}
		if typed.Lte != nil {
			bounds["$lte"] = typed.Lte
		}
		if len(bounds) == 0 {
			bounds["$exists"] = true
		}
		return bson.M{typed.Field: bounds}, nil
	case And:
		if len(typed) == 0 {
			return bson.M{}, nil
		}
		parts, err := toBSONList(typed)
		if err != nil {
			return nil, err
		}
		return bson.M{"$and": parts}, nil
	case Or:
		if len(typed) == 0 {
			return matchNoneBSON(), nil
		}
		parts, err := toBSONList(typed)
		if err != nil {
			return nil, err
		}
		return bson.M{"$or": parts}, nil
	case MatchNone:
		return matchNoneBSON(), nil
	}
	return nil, fmt.Errorf("unsupported filter %T", f)
}

func toBSONList(filters []Filter) (bson.A, error) {
	parts := make(bson.A, 0, len(filters))
	for _, child := range filters {
		part, err := ToBSON(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func matchNoneBSON() bson.M {
	return bson.M{models.FieldID: bson.M{"$in": bson.A{}}}
}

// fromBSON converts driver types into the plain Go values the services expect.
func fromBSON(raw bson.M) models.Document {
	doc := make(models.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeBSON(v)
	}
	return doc
}

func normalizeBSON(v interface{}) interface{} {
	switch typed := v.(type) {
	case primitive.DateTime:
		return typed.Time().UTC()
	case primitive.ObjectID:
		return typed.Hex()
	case primitive.A:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = normalizeBSON(item)
		}
		return out
	case primitive.M:
		return map[string]interface{}(fromBSON(bson.M(typed)))
	case primitive.D:
		out := make(map[string]interface{}, len(typed))
		for _, e := range typed {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case time.Time:
		return typed.UTC()
	}
	return v
}
