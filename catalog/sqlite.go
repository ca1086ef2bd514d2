package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteCatalog stores recipe names in a SQLite database.
// The path can be ":memory:" for an in-memory database or a file path.
type SQLiteCatalog struct {
	mu   sync.RWMutex
	path string
	db   *sql.DB
}

func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty: %w", ErrMalformedAddress)
	}

	return &SQLiteCatalog{path: path}, nil
}

func (*SQLiteCatalog) Name() string {
	return "sqlite"
}

func (sc *SQLiteCatalog) Open(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", sc.dsn())
	if err != nil {
		return err
	}

	if sc.path == ":memory:" {
		// Every connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		name TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	sc.db = db
	return nil
}

// dsn applies the pragmas to every pooled connection.
func (sc *SQLiteCatalog) dsn() string {
	if sc.path == ":memory:" {
		return sc.path
	}

	sep := "?"
	if strings.Contains(sc.path, "?") {
		sep = "&"
	}
	return sc.path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (sc *SQLiteCatalog) Close(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.db == nil {
		return nil
	}

	err := sc.db.Close()
	sc.db = nil
	return err
}

func (sc *SQLiteCatalog) conn() (*sql.DB, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	if sc.db == nil {
		return nil, ErrNotOpen
	}
	return sc.db, nil
}

func (sc *SQLiteCatalog) CreateRecipe(ctx context.Context, name string) error {
	db, err := sc.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx,
		"INSERT INTO recipes (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		name, time.Now().Unix())
	if err != nil {
		return err
	}

	return expectAffected(result, ErrExist)
}

func (sc *SQLiteCatalog) DeleteRecipe(ctx context.Context, name string) error {
	db, err := sc.conn()
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, "DELETE FROM recipes WHERE name = ?", name)
	if err != nil {
		return err
	}

	return expectAffected(result, ErrNotExist)
}

func (sc *SQLiteCatalog) HasRecipe(ctx context.Context, name string) (bool, error) {
	db, err := sc.conn()
	if err != nil {
		return false, err
	}

	var exists bool
	err = db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM recipes WHERE name = ?)", name).Scan(&exists)
	return exists, err
}

func (sc *SQLiteCatalog) ListRecipes(ctx context.Context) ([]string, error) {
	db, err := sc.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT name FROM recipes ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// expectAffected returns none when a statement changed no row.
func expectAffected(result sql.Result, none error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return none
	}

	return nil
}
