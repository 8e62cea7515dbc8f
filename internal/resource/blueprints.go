// ABOUTME: Blueprint version controller: save, publish, and history over the selected backend
// ABOUTME: Enforces the single-published invariant through the store publish operation

package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uniintel/admin-gateway/internal/store"
)

// ListBlueprints returns every saved blueprint, newest first. Like the
// other public reads, backend failures degrade to an empty list.
func (s *Service) ListBlueprints(ctx context.Context) []map[string]any {
	backend := s.selector.Resolve(ctx)

	blueprints, err := backend.ListBlueprints(ctx)
	if err != nil {
		s.logger.Warn("blueprint list degraded to empty result", "backend", backend.Name(), "error", err)
		return []map[string]any{}
	}

	out := make([]map[string]any, 0, len(blueprints))
	for _, bp := range blueprints {
		out = append(out, s.blueprintToAPI(bp))
	}
	return out
}

// ActiveBlueprint returns the single published blueprint, or
// store.ErrNotFound when nothing has been published yet.
func (s *Service) ActiveBlueprint(ctx context.Context) (map[string]any, error) {
	backend := s.selector.Resolve(ctx)

	bp, err := backend.GetActiveBlueprint(ctx)
	if err != nil {
		return nil, err
	}
	return s.blueprintToAPI(bp), nil
}

// SaveBlueprint creates a blueprint or, when the name already exists,
// overwrites that blueprint's structure and bumps its version. Every save
// lands in the history journal.
func (s *Service) SaveBlueprint(ctx context.Context, name string, structure any) (map[string]any, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if structure == nil {
		return nil, &ValidationError{Field: "structure"}
	}

	encoded, err := json.Marshal(structure)
	if err != nil {
		return nil, fmt.Errorf("encoding structure: %w", err)
	}

	backend := s.selector.Resolve(ctx)
	bp, err := backend.SaveBlueprint(ctx, name, string(encoded))
	if err != nil {
		return nil, err
	}

	s.logger.Info("saved blueprint", "id", bp.ID, "name", bp.Name, "version", bp.Version, "backend", backend.Name())
	return s.blueprintToAPI(bp), nil
}

// PublishBlueprint makes one blueprint live, unpublishing every other.
func (s *Service) PublishBlueprint(ctx context.Context, id string) (map[string]any, error) {
	backend := s.selector.Resolve(ctx)

	bp, err := backend.PublishBlueprint(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Label: "Blueprint"}
		}
		return nil, err
	}

	s.logger.Info("published blueprint", "id", bp.ID, "name", bp.Name, "backend", backend.Name())
	s.events.Publish(ctx, "blueprint", "publish", bp.ID)
	return s.blueprintToAPI(bp), nil
}

// BlueprintHistory returns a blueprint's journal, most recent first.
func (s *Service) BlueprintHistory(ctx context.Context, blueprintID string) []map[string]any {
	backend := s.selector.Resolve(ctx)

	entries, err := backend.ListHistory(ctx, blueprintID)
	if err != nil {
		s.logger.Warn("history list degraded to empty result", "backend", backend.Name(), "error", err)
		return []map[string]any{}
	}

	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":           entry.ID,
			"blueprint_id": entry.BlueprintID,
			"action":       entry.Action,
			"timestamp":    entry.Timestamp.UTC().Format(time.RFC3339),
		}
		var structure any
		if err := json.Unmarshal([]byte(entry.Structure), &structure); err == nil {
			item["structure"] = structure
		} else {
			item["structure"] = entry.Structure
		}
		out = append(out, item)
	}
	return out
}

func (s *Service) blueprintToAPI(bp *store.Blueprint) map[string]any {
	out := map[string]any{
		"id":           bp.ID,
		"name":         bp.Name,
		"is_published": bp.IsPublished,
		"version":      bp.Version,
	}
	var structure any
	if err := json.Unmarshal([]byte(bp.Structure), &structure); err == nil {
		out["structure"] = structure
	} else {
		out["structure"] = bp.Structure
	}
	if !bp.CreatedAt.IsZero() {
		out["created_at"] = bp.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !bp.UpdatedAt.IsZero() {
		out["updated_at"] = bp.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
