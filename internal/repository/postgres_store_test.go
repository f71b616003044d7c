package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestPostgresStoreFindOne(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`{"_id":"r1","version":2,"status":"draft"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM birth_records WHERE doc @> $1::jsonb LIMIT 1`)).
		WithArgs(`{"_id":"r1"}`).
		WillReturnRows(rows)

	doc, err := store.FindOne(context.Background(), CollectionBirthRecords, ByID("r1"))
	require.NoError(t, err)
	assert.Equal(t, "r1", doc.ID())
	version, ok := doc.Int(models.FieldVersion)
	require.True(t, ok)
	assert.Equal(t, 2, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindOneNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT doc FROM users WHERE`).WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	_, err := store.FindOne(context.Background(), CollectionUsers, Eq{Field: "email", Value: "a@x.et"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindWithSortAndWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"doc"}).
		AddRow([]byte(`{"_id":"r2"}`)).
		AddRow([]byte(`{"_id":"r1"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM death_records WHERE doc->>'deceased_first_name' ILIKE $1 ORDER BY doc->>'created_at' DESC LIMIT $2 OFFSET $3`)).
		WithArgs("%ab%", 20, 20).
		WillReturnRows(rows)

	docs, err := store.Find(context.Background(), CollectionDeathRecords,
		Contains{Field: "deceased_first_name", Substring: "ab"},
		FindOptions{Sort: []Sort{{Field: "created_at", Desc: true}}, Skip: 20, Limit: 20})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "r2", docs[0].ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, doc) VALUES ($1, $2::jsonb)`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_badge_number_unique"})

	err := store.InsertOne(context.Background(), CollectionUsers, models.Document{models.FieldID: "u1", "badge_number": "B-1"})
	require.True(t, errors.Is(err, ErrDuplicateKey))
	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "badge_number", dup.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateOneMergesDelta(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE marriage_records SET doc = doc || $1::jsonb WHERE id = (SELECT id FROM marriage_records WHERE (doc @> $2::jsonb AND doc @> $3::jsonb) LIMIT 1 FOR UPDATE)`)).
		WithArgs(`{"status":"submitted"}`, `{"_id":"m1"}`, `{"version":4}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	matched, err := store.UpdateOne(context.Background(), CollectionMarriageRecords,
		And{ByID("m1"), Eq{Field: models.FieldVersion, Value: 4}},
		models.Document{"status": "submitted"})
	require.NoError(t, err)
	assert.True(t, matched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	store := NewPostgresStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM audit_logs WHERE TRUE`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	total, err := store.Count(context.Background(), CollectionAuditLogs, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeJSONDocument(t *testing.T) {
	payload, err := encodeJSONDocument(models.Document{
		"changes":    models.ChangeSet{"status": {Old: "draft", New: "submitted"}},
		"created_at": time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, map[string]interface{}{"status": map[string]interface{}{"old": "draft", "new": "submitted"}}, decoded["changes"])
	assert.Equal(t, "2024-03-01T08:00:00.000000Z", decoded["created_at"])
}
