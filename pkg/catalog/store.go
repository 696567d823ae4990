package catalog

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	base      TEXT    NOT NULL,
	priority  INTEGER NOT NULL,
	name      TEXT    NOT NULL,
	head      TEXT    NOT NULL,
	cond      TEXT    NOT NULL,
	action    TEXT    NOT NULL,
	recovery  TEXT    NOT NULL,
	rule_id   INTEGER NOT NULL,
	PRIMARY KEY (base, priority)
);`

// Store keeps rule rows in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn, for example "rules.db" or
// "file::memory:?cache=shared", and creates the rules table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open catalog %s", dsn)
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables the store needs.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate catalog")
	}
	return nil
}

// Save replaces the rows of base.
func (s *Store) Save(ctx context.Context, base string, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE base = ?`, base); err != nil {
		return errors.Wrapf(err, "clear rule base %s", base)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rules
		(base, priority, name, head, cond, action, recovery, rule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, base, i+1, r.Name, r.Head, r.Cond, r.Action, r.Recovery, r.ID); err != nil {
			return errors.Wrapf(err, "insert rule %s of %s", r.Name, base)
		}
	}
	return errors.Wrap(tx.Commit(), "commit rule base")
}

// Load returns the rows of base ordered by priority.
func (s *Store) Load(ctx context.Context, base string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT base, priority, name, head, cond, action, recovery, rule_id
		FROM rules WHERE base = ? ORDER BY priority`, base)
	if err != nil {
		return nil, errors.Wrapf(err, "query rule base %s", base)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Base, &r.Priority, &r.Name, &r.Head, &r.Cond, &r.Action, &r.Recovery, &r.ID); err != nil {
			return nil, errors.Wrapf(err, "scan rule of %s", base)
		}
		out = append(out, r)
	}
	return out, errors.Wrapf(rows.Err(), "read rule base %s", base)
}

// Bases returns the names of the stored rule bases.
func (s *Store) Bases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT base FROM rules ORDER BY base`)
	if err != nil {
		return nil, errors.Wrap(err, "query rule bases")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, errors.Wrap(err, "scan rule base")
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "read rule bases")
}

// Clear removes every row of base.
func (s *Store) Clear(ctx context.Context, base string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE base = ?`, base)
	return errors.Wrapf(err, "clear rule base %s", base)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
