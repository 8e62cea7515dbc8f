// ABOUTME: PostgreSQL document-store implementation of the Store interface
// ABOUTME: Rows are UUID-keyed JSONB documents; schema is managed by embedded goose migrations

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/uniintel/admin-gateway/internal/dbx"
	"github.com/uniintel/admin-gateway/internal/store/migrations"
)

// PostgresStore implements the Store interface on PostgreSQL, storing generic
// collection rows as JSONB documents. The connection may be unavailable at
// startup; migrations run lazily on the first data operation so the backend
// can recover mid-process.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	migrated bool
}

// NewPostgresStore opens a connection pool for the given DSN. The database
// does not need to be reachable yet; availability is checked per request.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "postgres-store"),
	}, nil
}

// Name identifies this backend.
func (p *PostgresStore) Name() string { return "postgres" }

// Ping reports whether the database is reachable. It never mutates the
// schema; availability checks stay side-effect free.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// ensureMigrated applies pending migrations once, on the first data
// operation that reaches the database. Deferring past Ping keeps the
// selector's availability probe from running DDL mid-request, and still
// lets a database that was down at startup come online later.
func (p *PostgresStore) ensureMigrated(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.migrated {
		return nil
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, p.db, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	p.migrated = true
	p.logger.Info("postgres store migrated")
	return nil
}

// Close closes the connection pool.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing postgres store")
	return p.db.Close()
}

// ListRecords returns records newest-first, up to limit (0 means no limit).
func (p *PostgresStore) ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id::text, doc::text, created_at FROM %s ORDER BY created_at DESC, id`, collection)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var id, docJSON string
		var createdAt time.Time
		if err := rows.Scan(&id, &docJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		fields := map[string]any{}
		if err := json.Unmarshal([]byte(docJSON), &fields); err != nil {
			return nil, fmt.Errorf("parsing record doc: %w", err)
		}

		records = append(records, &Record{ID: id, Fields: fields, CreatedAt: createdAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", collection, err)
	}

	return records, nil
}

// CreateRecord inserts a new document and returns it with its assigned id.
func (p *PostgresStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	if !validCollection(collection) {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	docJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding record doc: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	query := fmt.Sprintf(
		`INSERT INTO %s (id, doc, created_at) VALUES ($1, $2::jsonb, $3)`, collection)
	if _, err := p.db.ExecContext(ctx, query, id, string(docJSON), now); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", collection, err)
	}

	p.logger.Debug("created record", "collection", collection, "id", id)
	return &Record{ID: id, Fields: fields, CreatedAt: now}, nil
}

// DeleteRecord removes a document by id, reporting whether a row was removed.
func (p *PostgresStore) DeleteRecord(ctx context.Context, collection, id string) (bool, error) {
	if !validCollection(collection) {
		return false, fmt.Errorf("unknown collection %q", collection)
	}
	if err := p.ensureMigrated(ctx); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id::text = $1`, collection)
	res, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", collection, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateArticle replaces the stored document of an article in place.
func (p *PostgresStore) UpdateArticle(ctx context.Context, id string, fields map[string]any) error {
	if err := p.ensureMigrated(ctx); err != nil {
		return err
	}

	docJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding article doc: %w", err)
	}

	res, err := p.db.ExecContext(ctx,
		`UPDATE articles SET doc = $2::jsonb WHERE id::text = $1`, id, string(docJSON))
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

// DeleteArticleCascade removes the article and every dependent document that
// references it, inside a single transaction.
func (p *PostgresStore) DeleteArticleCascade(ctx context.Context, id string) (bool, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return false, err
	}

	deleted := false
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for collection, field := range articleDependents {
			query := fmt.Sprintf(`DELETE FROM %s WHERE doc->>'%s' = $1`, collection, field)
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return fmt.Errorf("deleting %s rows: %w", collection, err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE id::text = $1`, id)
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
		p.logger.Debug("cascade deleted article", "id", id)
	}
	return deleted, nil
}

const pgBlueprintColumns = `id::text, name, structure, is_published, version, created_at, updated_at`

func scanPGBlueprint(row interface{ Scan(...any) error }) (*Blueprint, error) {
	var b Blueprint
	err := row.Scan(&b.ID, &b.Name, &b.Structure, &b.IsPublished, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning blueprint: %w", err)
	}
	return &b, nil
}

// ListBlueprints returns all blueprints, most recently updated first.
func (p *PostgresStore) ListBlueprints(ctx context.Context) ([]*Blueprint, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT `+pgBlueprintColumns+` FROM blueprints ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying blueprints: %w", err)
	}
	defer rows.Close()

	var blueprints []*Blueprint
	for rows.Next() {
		b, err := scanPGBlueprint(rows)
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
func (p *PostgresStore) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx,
		`SELECT `+pgBlueprintColumns+` FROM blueprints WHERE id::text = $1`, id)
	return scanPGBlueprint(row)
}

// GetActiveBlueprint returns the published blueprint, most recently updated
// first should the exclusivity invariant ever be violated.
func (p *PostgresStore) GetActiveBlueprint(ctx context.Context) (*Blueprint, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	row := p.db.QueryRowContext(ctx,
		`SELECT `+pgBlueprintColumns+` FROM blueprints WHERE is_published ORDER BY updated_at DESC LIMIT 1`)
	return scanPGBlueprint(row)
}

// SaveBlueprint upserts a blueprint by name and journals a save entry,
// all inside one transaction.
func (p *PostgresStore) SaveBlueprint(ctx context.Context, name, structure string) (*Blueprint, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var blueprintID string

	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id::text FROM blueprints WHERE name = $1`, name).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			blueprintID = uuid.NewString()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO blueprints (id, name, structure, is_published, version, created_at, updated_at)
				VALUES ($1, $2, $3, FALSE, 1, $4, $4)
			`, blueprintID, name, structure, now)
			if err != nil {
				return fmt.Errorf("inserting blueprint: %w", err)
			}
		case err != nil:
			return fmt.Errorf("querying blueprint by name: %w", err)
		default:
			blueprintID = existingID
			_, err = tx.ExecContext(ctx, `
				UPDATE blueprints SET structure = $2, version = version + 1, updated_at = $3 WHERE id::text = $1
			`, existingID, structure, now)
			if err != nil {
				return fmt.Errorf("updating blueprint: %w", err)
			}
		}

		return insertPGHistory(ctx, tx, blueprintID, structure, ActionSave, now)
	})
	if err != nil {
		return nil, err
	}

	return p.GetBlueprint(ctx, blueprintID)
}

// PublishBlueprint makes the target blueprint the single published one.
// A nonexistent id returns ErrNotFound without mutating any published flag.
func (p *PostgresStore) PublishBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var structure string
		err := tx.QueryRowContext(ctx,
			`SELECT structure FROM blueprints WHERE id::text = $1`, id).Scan(&structure)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying blueprint: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE blueprints SET is_published = FALSE`); err != nil {
			return fmt.Errorf("unpublishing blueprints: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE blueprints SET is_published = TRUE, updated_at = $2 WHERE id::text = $1`, id, now)
		if err != nil {
			return fmt.Errorf("publishing blueprint: %w", err)
		}

		return insertPGHistory(ctx, tx, id, structure, ActionPublish, now)
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("published blueprint", "id", id)
	return p.GetBlueprint(ctx, id)
}

func insertPGHistory(ctx context.Context, tx dbx.DBTX, blueprintID, structure, action string, ts time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO blueprint_history (id, blueprint_id, structure, action, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), blueprintID, structure, action, ts)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

// ListHistory returns the journal for a blueprint, newest first.
func (p *PostgresStore) ListHistory(ctx context.Context, blueprintID string) ([]*HistoryEntry, error) {
	if err := p.ensureMigrated(ctx); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, blueprint_id::text, structure, action, timestamp
		FROM blueprint_history
		WHERE blueprint_id::text = $1
		ORDER BY timestamp DESC, id
	`, blueprintID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		if err := rows.Scan(&entry.ID, &entry.BlueprintID, &entry.Structure, &entry.Action, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, nil
}
