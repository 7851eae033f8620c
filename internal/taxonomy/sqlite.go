package taxonomy

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the measurement taxonomy so runtime extensions
// survive restarts. Category registration order is preserved via an explicit
// position column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the taxonomy database at dbPath and
// initializes the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS measurement_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS measurement_variants (
		category_id INTEGER NOT NULL,
		variant TEXT NOT NULL UNIQUE,
		PRIMARY KEY (category_id, variant),
		FOREIGN KEY (category_id) REFERENCES measurement_categories(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_variants_category ON measurement_variants(category_id);
	`
	_, err := db.Exec(schema)
	return err
}

// LoadCategories returns all categories in registration (position) order,
// with variants in insertion order.
func (s *SQLiteStore) LoadCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name FROM measurement_categories ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	var ids []int64
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		cats = append(cats, Category{Name: name})
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		vrows, err := s.db.QueryContext(ctx,
			`SELECT variant FROM measurement_variants WHERE category_id = ? ORDER BY rowid`, id)
		if err != nil {
			return nil, err
		}
		for vrows.Next() {
			var v string
			if err := vrows.Scan(&v); err != nil {
				_ = vrows.Close()
				return nil, err
			}
			cats[i].Variants = append(cats[i].Variants, v)
		}
		if err := vrows.Err(); err != nil {
			_ = vrows.Close()
			return nil, err
		}
		_ = vrows.Close()
	}
	return cats, nil
}

// SaveCategory upserts a category and its variants. An existing category
// keeps its position; a new one is appended after the current maximum.
func (s *SQLiteStore) SaveCategory(ctx context.Context, name string, variants []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM measurement_categories WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		var maxPos sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(position) FROM measurement_categories`).Scan(&maxPos); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO measurement_categories (name, position) VALUES (?, ?)`,
			name, maxPos.Int64+1)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	for _, v := range variants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO measurement_variants (category_id, variant) VALUES (?, ?)`,
			id, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SeedIfEmpty writes the seed categories when the database has none.
// Used on first start so the default taxonomy becomes the persisted baseline.
func (s *SQLiteStore) SeedIfEmpty(ctx context.Context, seed []Category) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurement_categories`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, cat := range seed {
		if err := s.SaveCategory(ctx, cat.Name, cat.Variants); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
