// ABOUTME: Store interface and data types for admin gateway persistence
// ABOUTME: Defines Record, Blueprint, HistoryEntry and the uniform backend contract

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Collection names shared across all backends
const (
	CollectionAds           = "ads"
	CollectionNewspapers    = "newspapers"
	CollectionArticles      = "articles"
	CollectionBreakingNews  = "breaking_news"
	CollectionSavedArticles = "saved_articles"
	CollectionReadHistory   = "read_history"
)

// articleDependents maps each collection referencing an article to the
// field that carries the article id. Cascade deletion walks this table.
var articleDependents = map[string]string{
	CollectionBreakingNews:  "verified_news_id",
	CollectionSavedArticles: "news_id",
	CollectionReadHistory:   "news_id",
}

// History actions for blueprint mutations. Undo and redo are reserved:
// the journal accepts them but no operation emits them.
const (
	ActionSave    = "save"
	ActionPublish = "publish"
	ActionUndo    = "undo"
	ActionRedo    = "redo"
)

// Record represents a generic resource row (ads, newspapers, articles and
// the article-dependent collections). IDs are backend-native and treated as
// opaque strings everywhere outside an adapter.
type Record struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
}

// Blueprint represents a named layout document. Structure holds the
// canonical JSON serialization; the resource service converts it back to a
// native nested structure at the API boundary.
type Blueprint struct {
	ID          string
	Name        string
	Structure   string
	IsPublished bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HistoryEntry is an immutable audit record of a blueprint mutation.
// Entries are append-only; nothing updates or deletes them.
type HistoryEntry struct {
	ID          string
	BlueprintID string
	Structure   string
	Action      string
	Timestamp   time.Time
}

// UpstreamError carries a remote proxy failure verbatim so handlers can
// relay the upstream status and payload shape unmodified.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Store defines the uniform contract every storage backend implements.
// List methods report errors to the resource service, which downgrades
// public reads to empty results; Create and Delete propagate errors.
type Store interface {
	// Name identifies the backend kind ("proxy", "postgres", "sqlite", "memory")
	Name() string

	// Ping reports whether the backend is currently reachable
	Ping(ctx context.Context) error

	// Generic collections
	ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error)
	CreateRecord(ctx context.Context, collection string, fields map[string]any) (*Record, error)
	DeleteRecord(ctx context.Context, collection, id string) (bool, error)

	// Articles
	UpdateArticle(ctx context.Context, id string, fields map[string]any) error
	DeleteArticleCascade(ctx context.Context, id string) (bool, error)

	// Blueprints
	ListBlueprints(ctx context.Context) ([]*Blueprint, error)
	GetBlueprint(ctx context.Context, id string) (*Blueprint, error)
	GetActiveBlueprint(ctx context.Context) (*Blueprint, error)
	SaveBlueprint(ctx context.Context, name, structure string) (*Blueprint, error)
	PublishBlueprint(ctx context.Context, id string) (*Blueprint, error)
	ListHistory(ctx context.Context, blueprintID string) ([]*HistoryEntry, error)

	// Close releases any resources held by the store
	Close() error
}
