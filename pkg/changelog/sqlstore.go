package changelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect registration
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/regdelta/regdelta/pkg/differ"
	"github.com/regdelta/regdelta/pkg/errors"
	"github.com/regdelta/regdelta/pkg/registry"
)

const (
	changeLogTable = "change_logs"
	dialectSQLite  = "sqlite3"
	driverSQLite   = "sqlite"

	// insertChunkSize keeps one multi-row insert well under SQLite's
	// bind-variable limit.
	insertChunkSize = 500
)

// production-safe pragmas applied to every connection.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

const changeLogDDL = `
CREATE TABLE IF NOT EXISTS change_logs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	key            TEXT NOT NULL,
	change_type    TEXT NOT NULL,
	change_date    TEXT NOT NULL,
	changed_fields TEXT,
	old_values     TEXT,
	new_values     TEXT,
	record         TEXT,
	created_at     TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE (key, change_date, change_type)
);
CREATE INDEX IF NOT EXISTS idx_change_logs_key ON change_logs (key);
CREATE INDEX IF NOT EXISTS idx_change_logs_date ON change_logs (change_date);
`

// SQLStore is the queryable change-log store backed by SQLite.
type SQLStore struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// OpenSQLStore opens (and initializes when new) a change-log database
// at the given path. ":memory:" opens an in-memory store.
func OpenSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, errors.NewValidationError("path", path, "database path must not be empty")
	}

	db, err := sqlx.Connect(driverSQLite, path)
	if err != nil {
		return nil, errors.WrapDB("open", err)
	}

	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	store, err := NewSQLStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreFromDB wraps an existing handle, applying pragmas and
// ensuring the schema. The caller keeps ownership of the handle unless
// it obtained the store via OpenSQLStore.
func NewSQLStoreFromDB(db *sqlx.DB) (*SQLStore, error) {
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, errors.WrapDB("apply pragma", err)
		}
	}
	if _, err := db.Exec(changeLogDDL); err != nil {
		return nil, errors.WrapDB("ensure schema", err)
	}

	return &SQLStore{
		db:      db,
		dialect: goqu.Dialect(dialectSQLite),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Replace persists one run's records for a date: existing rows for the
// date are deleted and the new set inserted, all in one transaction.
// Re-running the same diff leaves the stored state identical, and a
// superseding run for a date fully replaces the earlier one.
func (s *SQLStore) Replace(ctx context.Context, date registry.Date, records []differ.ChangeRecord) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.WrapDB("begin", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	delSQL, delArgs, err := s.dialect.Delete(changeLogTable).
		Where(goqu.C("change_date").Eq(date.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, errors.WrapDB("build delete", err)
	}
	if _, err := tx.ExecContext(ctx, delSQL, delArgs...); err != nil {
		return 0, errors.WrapDB("delete run", err)
	}

	inserted := 0
	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}

		rows := make([]any, 0, end-start)
		for _, rec := range records[start:end] {
			row, err := toRow(rec)
			if err != nil {
				return 0, err
			}
			rows = append(rows, row)
		}

		insSQL, insArgs, err := s.dialect.Insert(changeLogTable).
			Rows(rows...).
			Prepared(true).
			ToSQL()
		if err != nil {
			return 0, errors.WrapDB("build insert", err)
		}

		res, err := tx.ExecContext(ctx, insSQL, insArgs...)
		if err != nil {
			return 0, errors.WrapDB("insert run", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.WrapDB("commit", err)
	}
	return inserted, nil
}

// DeleteBefore removes all stored records with change_date strictly
// before the cutoff and returns how many were removed.
func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff registry.Date) (int, error) {
	delSQL, delArgs, err := s.dialect.Delete(changeLogTable).
		Where(goqu.C("change_date").Lt(cutoff.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, errors.WrapDB("build delete", err)
	}

	res, err := s.db.ExecContext(ctx, delSQL, delArgs...)
	if err != nil {
		return 0, errors.WrapDB("delete history", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapDB("delete history", err)
	}
	return int(n), nil
}

// ByDateRange returns the stored records with change_date in
// [from, to], ordered by (date, kind, key).
func (s *SQLStore) ByDateRange(ctx context.Context, from, to registry.Date) ([]differ.ChangeRecord, error) {
	query := s.dialect.From(changeLogTable).
		Select(rowColumns()...).
		Where(
			goqu.C("change_date").Gte(from.String()),
			goqu.C("change_date").Lte(to.String()),
		).
		Order(goqu.C("change_date").Asc(), goqu.C("change_type").Asc(), goqu.C("key").Asc())

	return s.selectRecords(ctx, query)
}

// ByKey returns the full stored change history of one key, most recent
// first.
func (s *SQLStore) ByKey(ctx context.Context, key string) ([]differ.ChangeRecord, error) {
	query := s.dialect.From(changeLogTable).
		Select(rowColumns()...).
		Where(goqu.C("key").Eq(key)).
		Order(goqu.C("change_date").Desc(), goqu.C("change_type").Asc())

	return s.selectRecords(ctx, query)
}

// Recent returns the most recent stored records up to limit.
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]differ.ChangeRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := s.dialect.From(changeLogTable).
		Select(rowColumns()...).
		Order(goqu.C("change_date").Desc(), goqu.C("change_type").Asc(), goqu.C("key").Asc()).
		Limit(uint(limit))

	return s.selectRecords(ctx, query)
}

func (s *SQLStore) selectRecords(ctx context.Context, query *goqu.SelectDataset) ([]differ.ChangeRecord, error) {
	sqlStr, args, err := query.Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.WrapDB("build select", err)
	}

	var rows []changeRow
	if err := s.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, errors.WrapDB("select", err)
	}

	records := make([]differ.ChangeRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// changeRow is the change_logs table shape.
type changeRow struct {
	Key           string         `db:"key"`
	ChangeType    string         `db:"change_type"`
	ChangeDate    string         `db:"change_date"`
	ChangedFields sql.NullString `db:"changed_fields"`
	OldValues     sql.NullString `db:"old_values"`
	NewValues     sql.NullString `db:"new_values"`
	Record        sql.NullString `db:"record"`
}

func rowColumns() []any {
	return []any{"key", "change_type", "change_date", "changed_fields", "old_values", "new_values", "record"}
}

// toRow serializes a change record for storage. The structured diff
// fields become JSON text here and nowhere else.
func toRow(rec differ.ChangeRecord) (goqu.Record, error) {
	changedFields, err := encodeJSONList(rec.ChangedFields)
	if err != nil {
		return nil, fmt.Errorf("encode changed_fields for %s: %w", rec.Key, err)
	}
	oldValues, err := encodeJSONMap(rec.OldValues)
	if err != nil {
		return nil, fmt.Errorf("encode old_values for %s: %w", rec.Key, err)
	}
	newValues, err := encodeJSONMap(rec.NewValues)
	if err != nil {
		return nil, fmt.Errorf("encode new_values for %s: %w", rec.Key, err)
	}

	var record any
	if len(rec.Record) > 0 {
		data, err := json.Marshal(rec.Record)
		if err != nil {
			return nil, fmt.Errorf("encode record for %s: %w", rec.Key, err)
		}
		record = string(data)
	}

	return goqu.Record{
		"key":            rec.Key,
		"change_type":    string(rec.Kind),
		"change_date":    rec.Date.String(),
		"changed_fields": nullable(changedFields),
		"old_values":     nullable(oldValues),
		"new_values":     nullable(newValues),
		"record":         record,
	}, nil
}

func (r changeRow) toRecord() (differ.ChangeRecord, error) {
	date, err := registry.ParseDate(r.ChangeDate)
	if err != nil {
		return differ.ChangeRecord{}, errors.WrapDB("decode change_date", err)
	}

	changedFields, err := decodeJSONList(r.ChangedFields.String)
	if err != nil {
		return differ.ChangeRecord{}, errors.WrapDB("decode changed_fields", err)
	}
	oldValues, err := decodeJSONMap(r.OldValues.String)
	if err != nil {
		return differ.ChangeRecord{}, errors.WrapDB("decode old_values", err)
	}
	newValues, err := decodeJSONMap(r.NewValues.String)
	if err != nil {
		return differ.ChangeRecord{}, errors.WrapDB("decode new_values", err)
	}

	var record registry.Record
	if r.Record.Valid && r.Record.String != "" {
		if err := json.Unmarshal([]byte(r.Record.String), &record); err != nil {
			return differ.ChangeRecord{}, errors.WrapDB("decode record", err)
		}
	}

	return differ.ChangeRecord{
		Key:           r.Key,
		Kind:          differ.Kind(r.ChangeType),
		Date:          date,
		ChangedFields: changedFields,
		OldValues:     oldValues,
		NewValues:     newValues,
		Record:        record,
	}, nil
}

// nullable maps the empty string to NULL at the storage edge.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
