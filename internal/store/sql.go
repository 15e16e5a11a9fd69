package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQL stores one row per top-level key in the nodes table. It works with
// Postgres (lib/pq) and SQLite (modernc.org/sqlite); see internal/db for
// the schema.
type SQL struct {
	db         *sqlx.DB
	lockClause string
	// rootLock serializes writers of a root that has no row yet, which
	// FOR UPDATE cannot lock.
	rootLock string
}

// NewSQL wraps an open database that already has the nodes table.
func NewSQL(db *sqlx.DB) *SQL {
	s := &SQL{db: db}
	if db.DriverName() == "postgres" {
		s.lockClause = " FOR UPDATE"
		s.rootLock = `SELECT pg_advisory_xact_lock(hashtext($1))`
	}
	return s
}

func (s *SQL) Get(ctx context.Context, path string) (Snapshot, error) {
	segs, err := splitPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	doc, err := s.load(ctx, s.db, segs[0], false)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: joinPath(segs), Value: lookup(doc, segs[1:])}, nil
}

func (s *SQL) Set(ctx context.Context, path string, value any) error {
	return s.Update(ctx, path, func(Snapshot) (any, error) { return value, nil })
}

// Update runs fn inside a transaction holding the row of the top-level key.
func (s *SQL) Update(ctx context.Context, path string, fn UpdateFunc) (err error) {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.rootLock != "" {
		if _, err = tx.ExecContext(ctx, s.rootLock, segs[0]); err != nil {
			return fmt.Errorf("lock %s: %w", segs[0], err)
		}
	}
	doc, err := s.load(ctx, tx, segs[0], true)
	if err != nil {
		return err
	}
	next, err := fn(Snapshot{Path: joinPath(segs), Value: clone(lookup(doc, segs[1:]))})
	if err != nil {
		return err
	}
	value, err := normalize(next)
	if err != nil {
		return err
	}
	if err = s.save(ctx, tx, segs[0], assign(doc, segs[1:], value)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) load(ctx context.Context, q sqlx.QueryerContext, root string, lock bool) (any, error) {
	query := `SELECT doc FROM nodes WHERE root = ?`
	if lock {
		query += s.lockClause
	}
	var raw string
	err := sqlx.GetContext(ctx, q, &raw, s.db.Rebind(query), root)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", root, err)
	}
	return decodeDoc(raw)
}

func (s *SQL) save(ctx context.Context, tx *sqlx.Tx, root string, doc any) error {
	if doc == nil {
		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM nodes WHERE root = ?`), root); err != nil {
			return fmt.Errorf("delete %s: %w", root, err)
		}
		return nil
	}
	raw, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO nodes (root, doc, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (root) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`),
		root, raw, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save %s: %w", root, err)
	}
	return nil
}
