package pagestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/CTAG07/nest/pkg/nest"
)

// ErrPageNotFound is returned when a page name is not in the store.
var ErrPageNotFound = errors.New("page not found")

// SetupSchema initializes the page and statistics tables. It is idempotent
// and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaPages = `
CREATE TABLE IF NOT EXISTS pages (
    name       TEXT     PRIMARY KEY,
    tree       TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);
`
		schemaStats = `
CREATE TABLE IF NOT EXISTS page_stats (
    name          TEXT     PRIMARY KEY,
    renders       INTEGER  NOT NULL DEFAULT 0,
    failures      INTEGER  NOT NULL DEFAULT 0,
    total_nanos   INTEGER  NOT NULL DEFAULT 0,
    last_rendered DATETIME NOT NULL
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaPages); err != nil {
		return fmt.Errorf("could not create pages schema: %w", err)
	}
	if _, err = tx.Exec(schemaStats); err != nil {
		return fmt.Errorf("could not create stats schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// PageInfo describes a stored page without its tree.
type PageInfo struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes pages through prepared statements.
type Store struct {
	db            *sql.DB
	stmtGetPage   *sql.Stmt
	stmtPutPage   *sql.Stmt
	stmtListPages *sql.Stmt
	stmtDelPage   *sql.Stmt
	stmtRecord    *sql.Stmt
	stmtStats     *sql.Stmt
	stmtSummary   *sql.Stmt
	logger        *slog.Logger
}

// New prepares all statements against db, which must already have the
// schema installed by SetupSchema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetPage, `SELECT tree FROM pages WHERE name = ?;`},
		{&s.stmtPutPage, `INSERT INTO pages (name, tree, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET tree = excluded.tree, updated_at = excluded.updated_at;`},
		{&s.stmtListPages, `SELECT name, updated_at FROM pages ORDER BY name;`},
		{&s.stmtDelPage, `DELETE FROM pages WHERE name = ?;`},
		{&s.stmtRecord, `INSERT INTO page_stats (name, renders, failures, total_nanos, last_rendered) VALUES (?, 1, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET renders = renders + 1, failures = failures + excluded.failures,
total_nanos = total_nanos + excluded.total_nanos, last_rendered = excluded.last_rendered;`},
		{&s.stmtStats, `SELECT name, renders, failures, total_nanos, last_rendered FROM page_stats ORDER BY renders DESC, name LIMIT ?;`},
		{&s.stmtSummary, `SELECT (SELECT COUNT(*) FROM pages), COALESCE(SUM(renders), 0), COALESCE(SUM(failures), 0) FROM page_stats;`},
	}
	for _, st := range stmts {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.dst = stmt
	}
	return s, nil
}

// Close releases the prepared statements. The database itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetPage, s.stmtPutPage, s.stmtListPages, s.stmtDelPage,
		s.stmtRecord, s.stmtStats, s.stmtSummary,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Put stores tree under name, replacing any previous tree.
func (s *Store) Put(ctx context.Context, name string, tree nest.Value) error {
	if name == "" {
		return errors.New("page name must not be empty")
	}
	if tree == nil {
		return fmt.Errorf("page %q: %w", name, nest.ErrUnsupportedValue)
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode page %q: %w", name, err)
	}
	if _, err = s.stmtPutPage.ExecContext(ctx, name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store page %q: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Page stored", "page", name, "bytes", len(data))
	return nil
}

// Get returns the tree stored under name, or ErrPageNotFound.
func (s *Store) Get(ctx context.Context, name string) (nest.Value, error) {
	var data string
	err := s.stmtGetPage.QueryRowContext(ctx, name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrPageNotFound, name)
		}
		return nil, fmt.Errorf("failed to load page %q: %w", name, err)
	}
	tree, err := nest.ParseJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("page %q is corrupt: %w", name, err)
	}
	return tree, nil
}

// List returns every stored page ordered by name.
func (s *Store) List(ctx context.Context) ([]PageInfo, error) {
	rows, err := s.stmtListPages.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	pages := make([]PageInfo, 0)
	for rows.Next() {
		var p PageInfo
		if err = rows.Scan(&p.Name, &p.UpdatedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

// Delete removes the page and its statistics. It returns ErrPageNotFound if
// nothing was stored under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	res, err := tx.StmtContext(ctx, s.stmtDelPage).ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to delete page %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrPageNotFound, name)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM page_stats WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete stats for page %q: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Page removed", slog.String("page", name))
	return tx.Commit()
}
