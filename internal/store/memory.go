// ABOUTME: In-process ephemeral Store implementation used as the last-resort backend
// ABOUTME: All state is lost on process restart; ids are monotonically increasing strings

package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback backend. It is always available and
// serves the same contract as the durable stores; losing its contents on
// restart is documented behavior, not a defect.
type MemoryStore struct {
	mu          sync.RWMutex
	nextID      int64
	collections map[string][]*Record     // keyed by collection name, insertion order
	blueprints  map[string]*Blueprint    // keyed by blueprint ID
	history     map[string][]*HistoryEntry // keyed by blueprint ID, insertion order
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]*Record),
		blueprints:  make(map[string]*Blueprint),
		history:     make(map[string][]*HistoryEntry),
	}
}

// Name identifies this backend.
func (m *MemoryStore) Name() string { return "memory" }

// Ping always succeeds; the in-process store is reachable by construction.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// allocID must be called with the write lock held.
func (m *MemoryStore) allocID() string {
	m.nextID++
	return strconv.FormatInt(m.nextID, 10)
}

func copyRecord(r *Record) *Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return &Record{ID: r.ID, Fields: fields, CreatedAt: r.CreatedAt}
}

func copyBlueprint(b *Blueprint) *Blueprint {
	c := *b
	return &c
}

// ListRecords returns records newest-first, up to limit (0 means no limit).
func (m *MemoryStore) ListRecords(ctx context.Context, collection string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.collections[collection]
	out := make([]*Record, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, copyRecord(rows[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CreateRecord stores a new record and assigns it the next id.
func (m *MemoryStore) CreateRecord(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := &Record{
		ID:        m.allocID(),
		Fields:    make(map[string]any, len(fields)),
		CreatedAt: time.Now().UTC(),
	}
	for k, v := range fields {
		rec.Fields[k] = v
	}

	m.collections[collection] = append(m.collections[collection], rec)
	return copyRecord(rec), nil
}

// DeleteRecord removes a record by id, reporting whether anything was removed.
func (m *MemoryStore) DeleteRecord(ctx context.Context, collection, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteLocked(collection, id), nil
}

// deleteLocked must be called with the write lock held.
func (m *MemoryStore) deleteLocked(collection, id string) bool {
	rows := m.collections[collection]
	for i, rec := range rows {
		if rec.ID == id {
			m.collections[collection] = append(rows[:i], rows[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateArticle replaces the stored fields of an article wholesale, same
// as the SQL stores overwriting the whole document. Fields absent from the
// submitted set do not survive the update.
func (m *MemoryStore) UpdateArticle(ctx context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.collections[CollectionArticles] {
		if rec.ID == id {
			replaced := make(map[string]any, len(fields))
			for k, v := range fields {
				replaced[k] = v
			}
			rec.Fields = replaced
			return nil
		}
	}
	return ErrNotFound
}

// DeleteArticleCascade removes the article and every dependent row that
// references it, under one critical section.
func (m *MemoryStore) DeleteArticleCascade(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exists := false
	for _, rec := range m.collections[CollectionArticles] {
		if rec.ID == id {
			exists = true
			break
		}
	}
	if !exists {
		return false, nil
	}

	for collection, field := range articleDependents {
		rows := m.collections[collection]
		kept := rows[:0]
		for _, rec := range rows {
			if fmt.Sprint(rec.Fields[field]) != id {
				kept = append(kept, rec)
			}
		}
		m.collections[collection] = kept
	}

	m.deleteLocked(CollectionArticles, id)
	return true, nil
}

// ListBlueprints returns all blueprints, most recently updated first.
func (m *MemoryStore) ListBlueprints(ctx context.Context) ([]*Blueprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Blueprint, 0, len(m.blueprints))
	for _, b := range m.blueprints {
		out = append(out, copyBlueprint(b))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// GetBlueprint retrieves a blueprint by id.
func (m *MemoryStore) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.blueprints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBlueprint(b), nil
}

// GetActiveBlueprint returns the published blueprint, most recently updated
// first should the exclusivity invariant ever be violated.
func (m *MemoryStore) GetActiveBlueprint(ctx context.Context) (*Blueprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active *Blueprint
	for _, b := range m.blueprints {
		if !b.IsPublished {
			continue
		}
		if active == nil || b.UpdatedAt.After(active.UpdatedAt) {
			active = b
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return copyBlueprint(active), nil
}

// SaveBlueprint upserts a blueprint by name and journals a save entry.
func (m *MemoryStore) SaveBlueprint(ctx context.Context, name, structure string) (*Blueprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()

	var target *Blueprint
	for _, b := range m.blueprints {
		if b.Name == name {
			target = b
			break
		}
	}

	if target != nil {
		target.Structure = structure
		target.Version++
		target.UpdatedAt = now
	} else {
		target = &Blueprint{
			ID:        m.allocID(),
			Name:      name,
			Structure: structure,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.blueprints[target.ID] = target
	}

	m.appendHistoryLocked(target.ID, structure, ActionSave, now)
	return copyBlueprint(target), nil
}

// PublishBlueprint makes the target blueprint the single published one.
// A nonexistent id leaves every published flag untouched.
func (m *MemoryStore) PublishBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.blueprints[id]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	for _, b := range m.blueprints {
		b.IsPublished = false
	}
	target.IsPublished = true
	target.UpdatedAt = now

	m.appendHistoryLocked(target.ID, target.Structure, ActionPublish, now)
	return copyBlueprint(target), nil
}

// appendHistoryLocked must be called with the write lock held.
func (m *MemoryStore) appendHistoryLocked(blueprintID, structure, action string, ts time.Time) {
	entry := &HistoryEntry{
		ID:          m.allocID(),
		BlueprintID: blueprintID,
		Structure:   structure,
		Action:      action,
		Timestamp:   ts,
	}
	m.history[blueprintID] = append(m.history[blueprintID], entry)
}

// ListHistory returns the journal for a blueprint, newest first.
func (m *MemoryStore) ListHistory(ctx context.Context, blueprintID string) ([]*HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.history[blueprintID]
	out := make([]*HistoryEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		entry := *rows[i]
		out = append(out, &entry)
	}
	return out, nil
}
