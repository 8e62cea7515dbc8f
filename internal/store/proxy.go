// ABOUTME: Remote-proxy implementation of the Store interface
// ABOUTME: Forwards operations to an upstream HTTP API and relays its responses verbatim

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// ProxyStore forwards every operation to an upstream service that mirrors
// the collection endpoints. Calls are bounded by the client timeout and are
// never retried; failures surface to the caller, whose own retry policy
// applies. Upstream error payloads are preserved via UpstreamError.
type ProxyStore struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewProxyStore creates a proxy store targeting the given base URL.
func NewProxyStore(baseURL string, timeout time.Duration) *ProxyStore {
	return &ProxyStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default().With("component", "proxy-store"),
	}
}

// Name identifies this backend.
func (p *ProxyStore) Name() string { return "proxy" }

// Ping always succeeds: a configured upstream is the service of record and
// is preferred unconditionally, with per-call failures surfacing as errors.
func (p *ProxyStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op; the HTTP client holds no persistent resources.
func (p *ProxyStore) Close() error { return nil }

// do performs a single upstream request. Non-2xx responses become
// UpstreamError carrying the raw status and body.
func (p *ProxyStore) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}

// idString renders an upstream id value (string or JSON number) as a string.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}

// recordFromDoc converts an upstream JSON object into a Record, lifting the
// id and created_at keys out of the field payload.
func recordFromDoc(doc map[string]any) *Record {
	rec := &Record{Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		switch k {
		case "id", "_id":
			rec.ID = idString(v)
		case "created_at":
			if s, ok := v.(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					rec.CreatedAt = t
					continue
				}
			}
			rec.Fields[k] = v
		default:
			rec.Fields[k] = v
		}
	}
	return rec
}

// ListRecords fetches the upstream collection listing.
func (p *ProxyStore) ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error) {
	body, err := p.do(ctx, http.MethodGet, "/api/"+collection, nil)
	if err != nil {
		return nil, err
	}

	var docs []map[string]any
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("parsing upstream listing: %w", err)
	}

	records := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, recordFromDoc(doc))
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// CreateRecord forwards the create and extracts the upstream-assigned id.
func (p *ProxyStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	body, err := p.do(ctx, http.MethodPost, "/api/"+collection, fields)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing upstream response: %w", err)
	}

	rec := recordFromDoc(doc)
	// Upstream create responses carry the id plus a status, not the full
	// document; the submitted fields are authoritative for everything else.
	for k, v := range fields {
		if _, ok := rec.Fields[k]; !ok {
			rec.Fields[k] = v
		}
	}
	delete(rec.Fields, "status")
	return rec, nil
}

// DeleteRecord forwards the delete; upstream 404 maps to "nothing removed".
func (p *ProxyStore) DeleteRecord(ctx context.Context, collection, id string) (bool, error) {
	_, err := p.do(ctx, http.MethodDelete, "/api/"+collection+"/"+id, nil)
	if upErr, ok := asUpstreamNotFound(err); ok {
		return false, upErr
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// asUpstreamNotFound maps an upstream 404 to (nil, true) so callers can
// translate it into their own not-found semantics.
func asUpstreamNotFound(err error) (error, bool) {
	if upErr, ok := err.(*UpstreamError); ok && upErr.StatusCode == http.StatusNotFound {
		return nil, true
	}
	return err, false
}

// UpdateArticle forwards the article update.
func (p *ProxyStore) UpdateArticle(ctx context.Context, id string, fields map[string]any) error {
	_, err := p.do(ctx, http.MethodPut, "/api/articles/"+id, fields)
	if _, notFound := asUpstreamNotFound(err); notFound {
		return ErrNotFound
	}
	return err
}

// DeleteArticleCascade forwards the delete; the upstream service performs
// its own cascade over the dependent collections.
func (p *ProxyStore) DeleteArticleCascade(ctx context.Context, id string) (bool, error) {
	return p.DeleteRecord(ctx, CollectionArticles, id)
}

// blueprintFromDoc converts an upstream blueprint object into a Blueprint.
func blueprintFromDoc(doc map[string]any) *Blueprint {
	b := &Blueprint{}
	if v, ok := doc["id"]; ok {
		b.ID = idString(v)
	} else if v, ok := doc["_id"]; ok {
		b.ID = idString(v)
	}
	b.Name, _ = doc["name"].(string)
	if structure, ok := doc["structure"]; ok {
		if encoded, err := json.Marshal(structure); err == nil {
			b.Structure = string(encoded)
		}
	}
	b.IsPublished, _ = doc["is_published"].(bool)
	if v, ok := doc["version"].(float64); ok {
		b.Version = int(v)
	}
	if s, ok := doc["created_at"].(string); ok {
		b.CreatedAt, _ = time.Parse(time.RFC3339, s)
	}
	if s, ok := doc["updated_at"].(string); ok {
		b.UpdatedAt, _ = time.Parse(time.RFC3339, s)
	}
	return b
}

// ListBlueprints fetches the upstream blueprint listing.
func (p *ProxyStore) ListBlueprints(ctx context.Context) ([]*Blueprint, error) {
	body, err := p.do(ctx, http.MethodGet, "/api/blueprints", nil)
	if err != nil {
		return nil, err
	}

	var docs []map[string]any
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("parsing upstream blueprints: %w", err)
	}

	blueprints := make([]*Blueprint, 0, len(docs))
	for _, doc := range docs {
		blueprints = append(blueprints, blueprintFromDoc(doc))
	}
	return blueprints, nil
}

// GetBlueprint retrieves a blueprint by scanning the upstream listing; the
// upstream API exposes no per-id blueprint endpoint.
func (p *ProxyStore) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	blueprints, err := p.ListBlueprints(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range blueprints {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

// GetActiveBlueprint fetches the upstream active blueprint.
func (p *ProxyStore) GetActiveBlueprint(ctx context.Context) (*Blueprint, error) {
	body, err := p.do(ctx, http.MethodGet, "/api/blueprints/active", nil)
	if _, notFound := asUpstreamNotFound(err); notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing upstream blueprint: %w", err)
	}
	return blueprintFromDoc(doc), nil
}

// SaveBlueprint forwards the upsert to the upstream blueprint endpoint.
func (p *ProxyStore) SaveBlueprint(ctx context.Context, name, structure string) (*Blueprint, error) {
	payload := map[string]any{
		"name":      name,
		"structure": json.RawMessage(structure),
	}

	body, err := p.do(ctx, http.MethodPost, "/api/blueprints", payload)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing upstream blueprint: %w", err)
	}
	return blueprintFromDoc(doc), nil
}

// PublishBlueprint forwards the publish.
func (p *ProxyStore) PublishBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	body, err := p.do(ctx, http.MethodPost, "/api/blueprints/publish/"+id, nil)
	if _, notFound := asUpstreamNotFound(err); notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parsing upstream blueprint: %w", err)
	}
	return blueprintFromDoc(doc), nil
}

// ListHistory fetches the upstream history journal, newest first.
func (p *ProxyStore) ListHistory(ctx context.Context, blueprintID string) ([]*HistoryEntry, error) {
	body, err := p.do(ctx, http.MethodGet, "/api/blueprints/history/"+blueprintID, nil)
	if err != nil {
		return nil, err
	}

	var docs []map[string]any
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("parsing upstream history: %w", err)
	}

	entries := make([]*HistoryEntry, 0, len(docs))
	for _, doc := range docs {
		entry := &HistoryEntry{}
		if v, ok := doc["id"]; ok {
			entry.ID = idString(v)
		} else if v, ok := doc["_id"]; ok {
			entry.ID = idString(v)
		}
		if v, ok := doc["blueprint_id"]; ok {
			entry.BlueprintID = idString(v)
		}
		entry.Action, _ = doc["action"].(string)
		if structure, ok := doc["structure"]; ok {
			if encoded, err := json.Marshal(structure); err == nil {
				entry.Structure = string(encoded)
			}
		}
		if s, ok := doc["timestamp"].(string); ok {
			entry.Timestamp, _ = time.Parse(time.RFC3339, s)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
