package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/rekey/internal/model"
	"github.com/roach88/rekey/internal/queryir"
	"github.com/roach88/rekey/internal/querysql"
	"github.com/roach88/rekey/internal/recordstore"
)

var _ recordstore.Client = (*Store)(nil)

// Select streams matching records in insertion order, one page per fetch.
// The cursor is the last seq returned.
func (s *Store) Select(ctx context.Context, q queryir.Select) *recordstore.Iterator {
	if s.isDenied(q.From) {
		return recordstore.ErrIterator(denied(q.From, "select"))
	}

	return recordstore.NewIterator(func(ctx context.Context, cursor string) ([]model.Record, string, error) {
		var after int64
		if cursor != "" {
			n, err := strconv.ParseInt(cursor, 10, 64)
			if err != nil {
				return nil, "", fmt.Errorf("select %s: bad cursor %q", q.From, cursor)
			}
			after = n
		}

		query, params, err := s.compiler.Compile(q, querysql.Page{After: after, Limit: s.pageSize})
		if err != nil {
			return nil, "", fmt.Errorf("select %s: %w", q.From, err)
		}

		rows, err := s.db.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, "", fmt.Errorf("select %s: %w", q.From, err)
		}
		defer rows.Close()

		page := make([]model.Record, 0, s.pageSize)
		var lastSeq int64
		for rows.Next() {
			var (
				seq    int64
				id     string
				fields string
			)
			if err := rows.Scan(&seq, &id, &fields); err != nil {
				return nil, "", fmt.Errorf("scan %s: %w", q.From, err)
			}
			f, err := unmarshalFields(fields)
			if err != nil {
				return nil, "", fmt.Errorf("scan %s/%s: %w", q.From, id, err)
			}
			page = append(page, model.Record{ID: id, Fields: project(f, q.Fields)})
			lastSeq = seq
		}
		if err := rows.Err(); err != nil {
			return nil, "", fmt.Errorf("iterate %s: %w", q.From, err)
		}

		next := ""
		if len(page) == s.pageSize {
			next = strconv.FormatInt(lastSeq, 10)
		}
		return page, next, nil
	})
}

// Count returns the number of records in table matching filter (nil for all).
func (s *Store) Count(ctx context.Context, table string, filter queryir.Predicate) (int, error) {
	if s.isDenied(table) {
		return 0, denied(table, "count")
	}
	query, params, err := s.compiler.CompileCount(queryir.Select{From: table, Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Create inserts records with fresh ids, MaxBatch per transaction.
func (s *Store) Create(ctx context.Context, table string, fields []model.Fields) ([]model.Record, error) {
	if s.isDenied(table) {
		return nil, denied(table, "create")
	}

	created := make([]model.Record, 0, len(fields))
	for _, chunk := range recordstore.Chunk(fields, recordstore.MaxBatch) {
		recs := make([]model.Record, len(chunk))
		for i, f := range chunk {
			recs[i] = model.Record{ID: s.newID(), Fields: f}
		}
		if err := s.insert(ctx, table, recs); err != nil {
			return created, fmt.Errorf("create %s: %w", table, err)
		}
		created = append(created, recs...)
	}
	return created, nil
}

// Seed inserts records keeping their ids. Used to load fixtures and mirrors.
func (s *Store) Seed(ctx context.Context, table string, records []model.Record) error {
	for _, chunk := range recordstore.Chunk(records, recordstore.MaxBatch) {
		if err := s.insert(ctx, table, chunk); err != nil {
			return fmt.Errorf("seed %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, table string, recs []model.Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range recs {
			data, err := marshalFields(r.Fields)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", r.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO records (table_name, id, fields) VALUES (?, ?, ?)`,
				table, r.ID, data,
			); err != nil {
				return fmt.Errorf("insert %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// Update merges fields into existing records, MaxBatch per transaction.
// An unknown id fails its whole chunk with recordstore.ErrNotFound.
func (s *Store) Update(ctx context.Context, table string, records []model.Record) error {
	if s.isDenied(table) {
		return denied(table, "update")
	}

	for _, chunk := range recordstore.Chunk(records, recordstore.MaxBatch) {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, r := range chunk {
				if err := mergeRecord(ctx, tx, table, r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return &recordstore.TableError{Table: table, Op: "update", Err: err}
		}
	}
	return nil
}

func mergeRecord(ctx context.Context, tx *sql.Tx, table string, r model.Record) error {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE table_name = ? AND id = ?`, table, r.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %s: %w", r.ID, recordstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", r.ID, err)
	}

	current, err := unmarshalFields(raw)
	if err != nil {
		return fmt.Errorf("read %s: %w", r.ID, err)
	}
	for k, v := range r.Fields {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	data, err := marshalFields(current)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", r.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET fields = ? WHERE table_name = ? AND id = ?`, data, table, r.ID,
	); err != nil {
		return fmt.Errorf("write %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes records by id, MaxBatch per transaction.
// An unknown id fails its whole chunk with recordstore.ErrNotFound.
func (s *Store) Delete(ctx context.Context, table string, ids []string) error {
	if s.isDenied(table) {
		return denied(table, "delete")
	}

	for _, chunk := range recordstore.Chunk(ids, recordstore.MaxBatch) {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, id := range chunk {
				res, err := tx.ExecContext(ctx,
					`DELETE FROM records WHERE table_name = ? AND id = ?`, table, id,
				)
				if err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return fmt.Errorf("record %s: %w", id, recordstore.ErrNotFound)
				}
			}
			return nil
		})
		if err != nil {
			return &recordstore.TableError{Table: table, Op: "delete", Err: err}
		}
	}
	return nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, table, id string) (model.Record, error) {
	if s.isDenied(table) {
		return model.Record{}, denied(table, "get")
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE table_name = ? AND id = ?`, table, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, &recordstore.TableError{Table: table, Op: "get", Err: recordstore.ErrNotFound}
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	f, err := unmarshalFields(raw)
	if err != nil {
		return model.Record{}, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return model.Record{ID: id, Fields: f}, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func denied(table, op string) error {
	return &recordstore.TableError{Table: table, Op: op, Err: recordstore.ErrPermissionDenied}
}

func marshalFields(f model.Fields) (string, error) {
	if f == nil {
		return "{}", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalFields(raw string) (model.Fields, error) {
	f := model.Fields{}
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return f, nil
}

// project keeps only the named fields; no names keeps everything.
func project(f model.Fields, names []string) model.Fields {
	if len(names) == 0 {
		return f
	}
	out := make(model.Fields, len(names))
	for _, n := range names {
		if v, ok := f[n]; ok {
			out[n] = v
		}
	}
	return out
}
