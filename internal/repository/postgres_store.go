package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// jsonTimeLayout is fixed width so timestamps compare correctly as JSON text.
const jsonTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// PostgresStore implements DocumentStore with one JSONB table per collection.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps a connected database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the collection tables and unique expression indexes.
func (s *PostgresStore) EnsureSchema(ctx context.Context, unique map[string][]string) error {
	for collection, fields := range unique {
		if err := validField(collection); err != nil {
			return err
		}
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`, collection)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", collection, err)
		}
		for _, field := range fields {
			stmt := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_%s ON %s ((doc->>'%s'))`, collection, uniqueIndexName(field), collection, field)
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index %s.%s: %w", collection, field, err)
			}
		}
	}
	return nil
}

// FindOne returns the first matching document.
func (s *PostgresStore) FindOne(ctx context.Context, collection string, filter Filter) (models.Document, error) {
	where, args, err := ToSQL(filter)
	if err != nil {
		return nil, err
	}
	if err := validField(collection); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE %s LIMIT 1`, collection, where)
	var raw []byte
	if err := s.db.GetContext(ctx, &raw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find one in %s: %w", collection, err)
	}
	return decodeJSONDocument(raw)
}

// Find returns matching documents ordered and windowed by opts.
func (s *PostgresStore) Find(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]models.Document, error) {
	where, args, err := ToSQL(filter)
	if err != nil {
		return nil, err
	}
	if err := validField(collection); err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT doc FROM %s WHERE %s`, collection, where)
	if len(opts.Sort) > 0 {
		orders := make([]string, 0, len(opts.Sort))
		for _, key := range opts.Sort {
			if err := validField(key.Field); err != nil {
				return nil, err
			}
			dir := "ASC"
			if key.Desc {
				dir = "DESC"
			}
			orders = append(orders, fmt.Sprintf("doc->>'%s' %s", key.Field, dir))
		}
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	var rows [][]byte
	if err := s.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, raw := range rows {
		doc, err := decodeJSONDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (s *PostgresStore) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	where, args, err := ToSQL(filter)
	if err != nil {
		return 0, err
	}
	if err := validField(collection); err != nil {
		return 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, collection, where), args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return total, nil
}

// InsertOne inserts doc keyed by its _id.
func (s *PostgresStore) InsertOne(ctx context.Context, collection string, doc models.Document) error {
	if err := validField(collection); err != nil {
		return err
	}
	payload, err := encodeJSONDocument(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb)`, collection)
	if _, err := s.db.ExecContext(ctx, query, doc.ID(), payload); err != nil {
		return translatePQError(collection, err)
	}
	return nil
}

// UpdateOne merges set into the first matching document with the jsonb || operator.
func (s *PostgresStore) UpdateOne(ctx context.Context, collection string, filter Filter, set models.Document) (bool, error) {
	if err := validField(collection); err != nil {
		return false, err
	}
	payload, err := encodeJSONDocument(set)
	if err != nil {
		return false, err
	}
	where, args, err := toSQL(filter, []interface{}{payload})
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %[1]s SET doc = doc || $1::jsonb WHERE id = (SELECT id FROM %[1]s WHERE %[2]s LIMIT 1 FOR UPDATE)`, collection, where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translatePQError(collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s rows affected: %w", collection, err)
	}
	return n > 0, nil
}

// DeleteOne removes the first matching document.
func (s *PostgresStore) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	if err := validField(collection); err != nil {
		return false, err
	}
	where, args, err := ToSQL(filter)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`DELETE FROM %[1]s WHERE id = (SELECT id FROM %[1]s WHERE %[2]s LIMIT 1)`, collection, where)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s rows affected: %w", collection, err)
	}
	return n > 0, nil
}

func translatePQError(collection string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		field := models.FieldID
		for _, candidate := range UniqueFields[collection] {
			if strings.HasSuffix(pqErr.Constraint, uniqueIndexName(candidate)) {
				field = candidate
				break
			}
		}
		return &DuplicateKeyError{Collection: collection, Field: field}
	}
	return fmt.Errorf("write %s: %w", collection, err)
}

// ToSQL translates a Filter into a WHERE clause over the doc column with positional args.
func ToSQL(f Filter) (string, []interface{}, error) {
	return toSQL(f, nil)
}

func toSQL(f Filter, args []interface{}) (string, []interface{}, error) {
	switch typed := f.(type) {
	case nil:
		return "TRUE", args, nil
	case Eq:
		if err := validField(typed.Field); err != nil {
			return "", nil, err
		}
		if typed.Value == nil {
			return fmt.Sprintf("(doc->>'%s') IS NULL", typed.Field), args, nil
		}
		payload, err := json.Marshal(map[string]interface{}{typed.Field: jsonValue(typed.Value)})
		if err != nil {
			return "", nil, fmt.Errorf("encode filter value: %w", err)
		}
		args = append(args, string(payload))
		return fmt.Sprintf("doc @> $%d::jsonb", len(args)), args, nil
	case Contains:
		if err := validField(typed.Field); err != nil {
			return "", nil, err
		}
		args = append(args, "%"+escapeLike(typed.Substring)+"%")
		return fmt.Sprintf("doc->>'%s' ILIKE $%d", typed.Field, len(args)), args, nil
	case Range:
		if err := validField(typed.Field); err != nil {
			return "", nil, err
		}
		parts := make([]string, 0, 2)
		for _, bound := range []struct {
			op    string
			value interface{}
		}{{">=", typed.Gte}, {"<=", typed.Lte}} {
			if bound.value == nil {
				continue
			}
			if _, numeric := models.ToFloat(bound.value); numeric {
				args = append(args, bound.value)
				parts = append(parts, fmt.Sprintf("(doc->>'%s')::numeric %s $%d", typed.Field, bound.op, len(args)))
				continue
			}
			args = append(args, jsonValue(bound.value))
			parts = append(parts, fmt.Sprintf("doc->>'%s' %s $%d", typed.Field, bound.op, len(args)))
		}
		if len(parts) == 0 {
			return fmt.Sprintf("(doc->>'%s') IS NOT NULL", typed.Field), args, nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	case And:
		return joinSQL(typed, " AND ", "TRUE", args)
	case Or:
		return joinSQL(typed, " OR ", "FALSE", args)
	case MatchNone:
		return "FALSE", args, nil
	}
	return "", nil, fmt.Errorf("unsupported filter %T", f)
}

func joinSQL(filters []Filter, sep, empty string, args []interface{}) (string, []interface{}, error) {
	if len(filters) == 0 {
		return empty, args, nil
	}
	parts := make([]string, 0, len(filters))
	for _, child := range filters {
		clause, next, err := toSQL(child, args)
		if err != nil {
			return "", nil, err
		}
		args = next
		parts = append(parts, clause)
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func jsonValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case time.Time:
		return typed.UTC().Format(jsonTimeLayout)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.UTC().Format(jsonTimeLayout)
	case models.Document:
		return jsonValue(map[string]interface{}(typed))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			out[k] = jsonValue(item)
		}
		return out
	case models.ChangeSet:
		out := make(map[string]interface{}, len(typed))
		for k, change := range typed {
			out[k] = map[string]interface{}{"old": jsonValue(change.Old), "new": jsonValue(change.New)}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = jsonValue(item)
		}
		return out
	}
	return v
}

func encodeJSONDocument(doc models.Document) (string, error) {
	payload, err := json.Marshal(jsonValue(map[string]interface{}(doc)))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(payload), nil
}

func decodeJSONDocument(raw []byte) (models.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc models.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
