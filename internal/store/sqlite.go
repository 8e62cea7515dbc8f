// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Local file-backed relational fallback with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uniintel/admin-gateway/internal/dbx"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// collectionTables lists the generic collections this store provisions.
// Collection names double as table names, so lookups are restricted to
// this set rather than interpolating caller input.
var collectionTables = []string{
	CollectionAds,
	CollectionNewspapers,
	CollectionArticles,
	CollectionBreakingNews,
	CollectionSavedArticles,
	CollectionReadHistory,
}

func validCollection(collection string) bool {
	for _, c := range collectionTables {
		if c == collection {
			return true
		}
	}
	return false
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "sqlite-store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	for _, table := range collectionTables {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				fields TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)
		`, table)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("creating table %s: %w", table, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS blueprints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			structure TEXT NOT NULL,
			is_published INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS blueprint_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			blueprint_id INTEGER NOT NULL,
			structure TEXT NOT NULL,
			action TEXT NOT NULL DEFAULT 'save',
			timestamp DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_blueprint
			ON blueprint_history(blueprint_id, timestamp);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// Name identifies this backend.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Ping reports whether the database file is still usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// ListRecords returns records newest-first, up to limit (0 means no limit).
func (s *SQLiteStore) ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	query := fmt.Sprintf(`SELECT id, fields, created_at FROM %s ORDER BY id DESC`, collection)
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", collection, err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var id int64
	var fieldsJSON, createdAtStr string
	if err := rows.Scan(&id, &fieldsJSON, &createdAtStr); err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	fields := map[string]any{}
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("parsing record fields: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &Record{
		ID:        strconv.FormatInt(id, 10),
		Fields:    fields,
		CreatedAt: createdAt,
	}, nil
}

// CreateRecord inserts a new record and returns it with its assigned id.
func (s *SQLiteStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding record fields: %w", err)
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (fields, created_at) VALUES (?, ?)`, collection)

	res, err := s.db.ExecContext(ctx, query, string(fieldsJSON), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", collection, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading insert id: %w", err)
	}

	s.logger.Debug("created record", "collection", collection, "id", id)
	return &Record{
		ID:        strconv.FormatInt(id, 10),
		Fields:    fields,
		CreatedAt: now,
	}, nil
}

// DeleteRecord removes a record by id, reporting whether a row was removed.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, collection, id string) (bool, error) {
	if !validCollection(collection) {
		return false, fmt.Errorf("unknown collection %q", collection)
	}

	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, nil
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, collection)
	res, err := s.db.ExecContext(ctx, query, numID)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", collection, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateArticle replaces the stored fields of an article in place.
func (s *SQLiteStore) UpdateArticle(ctx context.Context, id string, fields map[string]any) error {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding article fields: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET fields = ? WHERE id = ?`, string(fieldsJSON), numID)
	if err != nil {
		return fmt.Errorf("updating article: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteArticleCascade removes the article and every dependent row that
// references it, inside a single transaction.
func (s *SQLiteStore) DeleteArticleCascade(ctx context.Context, id string) (bool, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, nil
	}

	deleted := false
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for collection, field := range articleDependents {
			query := fmt.Sprintf(
				`DELETE FROM %s WHERE CAST(json_extract(fields, '$.%s') AS TEXT) = ?`,
				collection, field)
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("deleting %s rows: %w", collection, err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, numID)
		if err != nil {
			return fmt.Errorf("deleting article: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		s.logger.Debug("cascade deleted article", "id", id)
	}
	return deleted, nil
}

const blueprintColumns = `id, name, structure, is_published, version, created_at, updated_at`

func scanBlueprint(row interface{ Scan(...any) error }) (*Blueprint, error) {
	var b Blueprint
	var id int64
	var published int
	var createdAtStr, updatedAtStr string

	err := row.Scan(&id, &b.Name, &b.Structure, &published, &b.Version, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning blueprint: %w", err)
	}

	b.ID = strconv.FormatInt(id, 10)
	b.IsPublished = published != 0

	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &b, nil
}

// ListBlueprints returns all blueprints, most recently updated first.
func (s *SQLiteStore) ListBlueprints(ctx context.Context) ([]*Blueprint, error) {
	query := `SELECT ` + blueprintColumns + ` FROM blueprints ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying blueprints: %w", err)
	}
	defer rows.Close()

	var blueprints []*Blueprint
	for rows.Next() {
		b, err := scanBlueprint(rows)
		if err != nil {
			return nil, err
		}
		blueprints = append(blueprints, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating blueprint rows: %w", err)
	}

	return blueprints, nil
}

// GetBlueprint retrieves a blueprint by id.
// Returns ErrNotFound if the blueprint doesn't exist.
func (s *SQLiteStore) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE id = ?`, numID)
	return scanBlueprint(row)
}

// GetActiveBlueprint returns the published blueprint, most recently updated
// first should the exclusivity invariant ever be violated.
func (s *SQLiteStore) GetActiveBlueprint(ctx context.Context) (*Blueprint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+blueprintColumns+` FROM blueprints WHERE is_published = 1 ORDER BY updated_at DESC LIMIT 1`)
	return scanBlueprint(row)
}

// SaveBlueprint upserts a blueprint by name and journals a save entry,
// all inside one transaction.
func (s *SQLiteStore) SaveBlueprint(ctx context.Context, name, structure string) (*Blueprint, error) {
	now := time.Now().UTC()
	var blueprintID int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var existingID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM blueprints WHERE name = ?`, name).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.ExecContext(ctx, `
				INSERT INTO blueprints (name, structure, is_published, version, created_at, updated_at)
				VALUES (?, ?, 0, 1, ?, ?)
			`, name, structure, now.Format(time.RFC3339), now.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("inserting blueprint: %w", err)
			}
			blueprintID, err = res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading insert id: %w", err)
			}
		case err != nil:
			return fmt.Errorf("querying blueprint by name: %w", err)
		default:
			blueprintID = existingID
			_, err = tx.ExecContext(ctx, `
				UPDATE blueprints SET structure = ?, version = version + 1, updated_at = ? WHERE id = ?
			`, structure, now.Format(time.RFC3339), existingID)
			if err != nil {
				return fmt.Errorf("updating blueprint: %w", err)
			}
		}

		return insertHistory(ctx, tx, blueprintID, structure, ActionSave, now)
	})
	if err != nil {
		return nil, err
	}

	return s.GetBlueprint(ctx, strconv.FormatInt(blueprintID, 10))
}

// PublishBlueprint makes the target blueprint the single published one.
// A nonexistent id returns ErrNotFound without mutating any published flag.
func (s *SQLiteStore) PublishBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var structure string
		err := tx.QueryRowContext(ctx, `SELECT structure FROM blueprints WHERE id = ?`, numID).Scan(&structure)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying blueprint: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE blueprints SET is_published = 0`); err != nil {
			return fmt.Errorf("unpublishing blueprints: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE blueprints SET is_published = 1, updated_at = ? WHERE id = ?`,
			now.Format(time.RFC3339), numID)
		if err != nil {
			return fmt.Errorf("publishing blueprint: %w", err)
		}

		return insertHistory(ctx, tx, numID, structure, ActionPublish, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("published blueprint", "id", id)
	return s.GetBlueprint(ctx, id)
}

func insertHistory(ctx context.Context, tx dbx.DBTX, blueprintID int64, structure, action string, ts time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blueprint_history (blueprint_id, structure, action, timestamp)
		VALUES (?, ?, ?, ?)
	`, blueprintID, structure, action, ts.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// ListHistory returns the journal for a blueprint, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, blueprintID string) ([]*HistoryEntry, error) {
	numID, err := strconv.ParseInt(blueprintID, 10, 64)
	if err != nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, blueprint_id, structure, action, timestamp
		FROM blueprint_history
		WHERE blueprint_id = ?
		ORDER BY timestamp DESC, id DESC
	`, numID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var id, bpID int64
		var tsStr string
		if err := rows.Scan(&id, &bpID, &entry.Structure, &entry.Action, &tsStr); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entry.ID = strconv.FormatInt(id, 10)
		entry.BlueprintID = strconv.FormatInt(bpID, 10)
		if entry.Timestamp, err = time.Parse(time.RFC3339, tsStr); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, nil
}
