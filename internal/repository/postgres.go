package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"

	_ "github.com/lib/pq"

	"github.com/aerosuite/platform/internal/resilience"
)

// PostgresStore persists rows as JSONB documents in one table per resource:
//
//	CREATE TABLE <table> (
//	  id TEXT PRIMARY KEY,
//	  version BIGINT NOT NULL,
//	  data JSONB NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// The filter predicate runs in Go over the decoded JSON rather than as SQL
// WHERE clauses, trading index-assisted filtering for one generic query
// shape across every aggregate; see DESIGN.md for the tradeoff.
type PostgresStore struct {
	db    *sqlx.DB
	table string
	retry resilience.RetryConfig
}

// NewPostgresStore wraps db for the given table name. Reads retry with
// bounded exponential backoff when the database is briefly unreachable;
// writes never retry.
func NewPostgresStore(db *sqlx.DB, table string) *PostgresStore {
	return &PostgresStore{db: db, table: table, retry: resilience.DefaultRetryConfig()}
}

type rowModel struct {
	ID      string `db:"id"`
	Version int64  `db:"version"`
	Data    []byte `db:"data"`
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Row, bool, error) {
	var m rowModel
	query := "SELECT id, version, data FROM " + s.table + " WHERE id = $1"
	err := resilience.Retry(ctx, s.retry, func() error {
		err := s.db.GetContext(ctx, &m, query, id)
		if errors.Is(err, sql.ErrNoRows) {
			return resilience.Permanent(err)
		}
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, err
	}
	return Row{ID: m.ID, Version: m.Version, Data: m.Data}, true, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Row, error) {
	var models []rowModel
	query := "SELECT id, version, data FROM " + s.table
	err := resilience.Retry(ctx, s.retry, func() error {
		models = models[:0]
		return s.db.SelectContext(ctx, &models, query)
	})
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(models))
	for _, m := range models {
		if filter.Match != nil && !filter.Match(gjson.ParseBytes(m.Data)) {
			continue
		}
		rows = append(rows, Row{ID: m.ID, Version: m.Version, Data: m.Data})
	}
	return rows, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, id string, data []byte, expectedVersion, newVersion int64) error {
	if expectedVersion == 0 {
		query := `INSERT INTO ` + s.table + ` (id, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (id) DO NOTHING`
		res, err := s.db.ExecContext(ctx, query, id, newVersion, data)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		return ErrStale
	}

	query := `UPDATE ` + s.table + ` SET version = $1, data = $2, updated_at = now()
		WHERE id = $3 AND version = $4`
	res, err := s.db.ExecContext(ctx, query, newVersion, data, id, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
