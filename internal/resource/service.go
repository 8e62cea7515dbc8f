// ABOUTME: Backend-agnostic resource service for ads, newspapers, and articles
// ABOUTME: Validates, applies defaults, normalizes nested fields, and delegates to the selected backend

package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uniintel/admin-gateway/internal/events"
	"github.com/uniintel/admin-gateway/internal/store"
)

// Kind describes a resource collection: its backing collection name, the
// label used in user-facing errors, required fields, defaults applied on
// create, and nested fields serialized before persistence.
type Kind struct {
	Collection string
	Label      string
	Required   []string
	Defaults   map[string]any
	Nested     []string
	ListLimit  int
}

// The resource kinds served by the admin API.
var (
	Ads = Kind{
		Collection: store.CollectionAds,
		Label:      "Advertisement",
		Required:   []string{"image_url", "caption"},
		Defaults: map[string]any{
			"target_node": "Global",
		},
		ListLimit: 10,
	}

	Newspapers = Kind{
		Collection: store.CollectionNewspapers,
		Label:      "Newspaper",
		Required:   []string{"name", "url"},
		Defaults: map[string]any{
			"logo_text":  "",
			"logo_color": "#000000",
			"country":    "Global",
		},
	}

	Articles = Kind{
		Collection: store.CollectionArticles,
		Label:      "Article",
		Required:   []string{"title"},
		Defaults: map[string]any{
			"sentiment":         "Neutral",
			"credibility_score": 0.9,
			"impact_score":      5,
			"country":           "Global",
			"summary_bullets":   []any{},
			"impact_tags":       []any{},
			"analysis":          map[string]any{},
			"short_term_impact": "",
			"long_term_impact":  "",
		},
		Nested: []string{"summary_bullets", "impact_tags", "analysis"},
	}
)

// Service orchestrates resource operations over whichever backend the
// selector resolves for each request.
type Service struct {
	selector *store.Selector
	events   *events.Publisher
	logger   *slog.Logger
}

// New creates a resource service. publisher may be nil when event
// publishing is not configured.
func New(selector *store.Selector, publisher *events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		selector: selector,
		events:   publisher,
		logger:   logger.With("component", "resource"),
	}
}

// ActiveBackend reports which backend would serve a request made now.
func (s *Service) ActiveBackend(ctx context.Context) string {
	return s.selector.Active(ctx)
}

// List returns the collection contents, newest first. Backend failures
// degrade to an empty result: public read endpoints must never surface a
// storage error to anonymous readers.
func (s *Service) List(ctx context.Context, kind Kind) []map[string]any {
	backend := s.selector.Resolve(ctx)

	records, err := backend.ListRecords(ctx, kind.Collection, kind.ListLimit)
	if err != nil {
		s.logger.Warn("list degraded to empty result",
			"collection", kind.Collection, "backend", backend.Name(), "error", err)
		return []map[string]any{}
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, s.recordToAPI(kind, rec))
	}
	return out
}

// Create validates and stores a new record, returning its API shape.
func (s *Service) Create(ctx context.Context, kind Kind, input map[string]any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}

	for _, field := range kind.Required {
		if isMissing(input[field]) {
			return nil, &ValidationError{Field: field}
		}
	}

	fields := make(map[string]any, len(input)+len(kind.Defaults))
	for k, v := range input {
		fields[k] = v
	}
	for k, v := range kind.Defaults {
		if isMissing(fields[k]) {
			fields[k] = v
		}
	}

	if err := normalizeNested(kind, fields); err != nil {
		return nil, err
	}

	backend := s.selector.Resolve(ctx)
	rec, err := backend.CreateRecord(ctx, kind.Collection, fields)
	if err != nil {
		return nil, err
	}

	s.logger.Info("created record", "collection", kind.Collection, "id", rec.ID, "backend", backend.Name())
	if kind.Collection == store.CollectionArticles {
		s.events.Publish(ctx, "article", "create", rec.ID)
	}

	return s.recordToAPI(kind, rec), nil
}

// Delete removes a record. Articles cascade over their dependent
// collections atomically; everything else is a single-row delete.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	backend := s.selector.Resolve(ctx)

	var removed bool
	var err error
	if kind.Collection == store.CollectionArticles {
		removed, err = backend.DeleteArticleCascade(ctx, id)
	} else {
		removed, err = backend.DeleteRecord(ctx, kind.Collection, id)
	}
	if err != nil {
		return err
	}
	if !removed {
		return &NotFoundError{Label: kind.Label}
	}

	s.logger.Info("deleted record", "collection", kind.Collection, "id", id, "backend", backend.Name())
	if kind.Collection == store.CollectionArticles {
		s.events.Publish(ctx, "article", "delete", id)
	}
	return nil
}

// UpdateArticle replaces an article's fields in place.
func (s *Service) UpdateArticle(ctx context.Context, id string, input map[string]any) error {
	if input == nil {
		input = map[string]any{}
	}

	fields := make(map[string]any, len(input))
	for k, v := range input {
		fields[k] = v
	}
	if err := normalizeNested(Articles, fields); err != nil {
		return err
	}

	backend := s.selector.Resolve(ctx)
	if err := backend.UpdateArticle(ctx, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Label: Articles.Label}
		}
		return err
	}

	s.logger.Info("updated article", "id", id, "backend", backend.Name())
	return nil
}

// isMissing reports whether a required field is absent or empty.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// normalizeNested serializes nested fields to their canonical JSON string
// form so every backend only ever stores scalar values.
func normalizeNested(kind Kind, fields map[string]any) error {
	for _, field := range kind.Nested {
		v, ok := fields[field]
		if !ok || v == nil {
			continue
		}
		if _, ok := v.(string); ok {
			// Already serialized by a previous pass or the caller
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", field, err)
		}
		fields[field] = string(encoded)
	}
	return nil
}

// recordToAPI converts a stored record into its API shape, reversing the
// nested-field normalization so callers see native structures.
func (s *Service) recordToAPI(kind Kind, rec *store.Record) map[string]any {
	out := make(map[string]any, len(rec.Fields)+2)
	for k, v := range rec.Fields {
		out[k] = v
	}

	for _, field := range kind.Nested {
		str, ok := out[field].(string)
		if !ok {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(str), &decoded); err != nil {
			s.logger.Warn("unparseable nested field", "collection", kind.Collection, "field", field)
			continue
		}
		out[field] = decoded
	}

	out["id"] = rec.ID
	if !rec.CreatedAt.IsZero() {
		out["created_at"] = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
