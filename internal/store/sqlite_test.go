// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers record CRUD, cascade deletion, blueprint upsert/publish, and history journaling

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "admin.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "admin.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "admin.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestSQLite_CreateAndListRecords(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.CreateRecord(ctx, CollectionAds, map[string]any{
		"image_url": "https://cdn.example/one.png",
		"caption":   "First",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a generated id")
	}

	second, err := s.CreateRecord(ctx, CollectionAds, map[string]any{
		"image_url": "https://cdn.example/two.png",
		"caption":   "Second",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	records, err := s.ListRecords(ctx, CollectionAds, 10)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Newest first
	if records[0].ID != second.ID {
		t.Errorf("expected newest record first, got id %s", records[0].ID)
	}
	if records[1].ID != first.ID {
		t.Errorf("expected oldest record last, got id %s", records[1].ID)
	}
	if records[0].Fields["caption"] != "Second" {
		t.Errorf("unexpected caption: %v", records[0].Fields["caption"])
	}
}

func TestSQLite_ListRecords_Limit(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateRecord(ctx, CollectionAds, map[string]any{
			"image_url": fmt.Sprintf("https://cdn.example/%d.png", i),
			"caption":   fmt.Sprintf("ad-%d", i),
		})
		if err != nil {
			t.Fatalf("CreateRecord failed: %v", err)
		}
	}

	records, err := s.ListRecords(ctx, CollectionAds, 3)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestSQLite_ListRecords_UnknownCollection(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.ListRecords(context.Background(), "users; DROP TABLE ads", 10)
	if err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestSQLite_DeleteRecord(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, CollectionNewspapers, map[string]any{
		"name": "Daily X",
		"url":  "https://x.example",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	removed, err := s.DeleteRecord(ctx, CollectionNewspapers, rec.ID)
	if err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if !removed {
		t.Error("expected a row to be removed")
	}

	// Repeating the delete removes nothing
	removed, err = s.DeleteRecord(ctx, CollectionNewspapers, rec.ID)
	if err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if removed {
		t.Error("expected no row on second delete")
	}
}

func TestSQLite_DeleteRecord_NonNumericID(t *testing.T) {
	s := newTestSQLiteStore(t)

	removed, err := s.DeleteRecord(context.Background(), CollectionNewspapers, "not-a-rowid")
	if err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
	if removed {
		t.Error("expected no row removed for malformed id")
	}
}

func TestSQLite_UpdateArticle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec, err := s.CreateRecord(ctx, CollectionArticles, map[string]any{
		"title": "Original title",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	err = s.UpdateArticle(ctx, rec.ID, map[string]any{"title": "Updated title"})
	if err != nil {
		t.Fatalf("UpdateArticle failed: %v", err)
	}

	records, err := s.ListRecords(ctx, CollectionArticles, 0)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if records[0].Fields["title"] != "Updated title" {
		t.Errorf("unexpected title: %v", records[0].Fields["title"])
	}

	if err := s.UpdateArticle(ctx, "99999", map[string]any{"title": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_DeleteArticleCascade(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	article, err := s.CreateRecord(ctx, CollectionArticles, map[string]any{"title": "Doomed"})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	other, err := s.CreateRecord(ctx, CollectionArticles, map[string]any{"title": "Survivor"})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	// Dependents for the doomed article across all three collections
	mustCreate := func(collection string, fields map[string]any) {
		t.Helper()
		if _, err := s.CreateRecord(ctx, collection, fields); err != nil {
			t.Fatalf("CreateRecord(%s) failed: %v", collection, err)
		}
	}
	mustCreate(CollectionBreakingNews, map[string]any{"verified_news_id": article.ID, "breaking_headline": "Big"})
	mustCreate(CollectionSavedArticles, map[string]any{"news_id": article.ID, "user": "u1"})
	mustCreate(CollectionSavedArticles, map[string]any{"news_id": article.ID, "user": "u2"})
	mustCreate(CollectionReadHistory, map[string]any{"news_id": article.ID, "user": "u1"})

	// Dependent for the survivor
	mustCreate(CollectionSavedArticles, map[string]any{"news_id": other.ID, "user": "u3"})

	deleted, err := s.DeleteArticleCascade(ctx, article.ID)
	if err != nil {
		t.Fatalf("DeleteArticleCascade failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected the article to be deleted")
	}

	articles, err := s.ListRecords(ctx, CollectionArticles, 0)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(articles) != 1 || articles[0].ID != other.ID {
		t.Errorf("expected only the survivor article, got %d rows", len(articles))
	}

	for _, collection := range []string{CollectionBreakingNews, CollectionReadHistory} {
		rows, err := s.ListRecords(ctx, collection, 0)
		if err != nil {
			t.Fatalf("ListRecords(%s) failed: %v", collection, err)
		}
		if len(rows) != 0 {
			t.Errorf("expected %s to be empty, got %d rows", collection, len(rows))
		}
	}

	saved, err := s.ListRecords(ctx, CollectionSavedArticles, 0)
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(saved) != 1 || fmt.Sprint(saved[0].Fields["news_id"]) != other.ID {
		t.Errorf("expected only the survivor's saved row to remain, got %d rows", len(saved))
	}
}

func TestSQLite_DeleteArticleCascade_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	deleted, err := s.DeleteArticleCascade(context.Background(), "12345")
	if err != nil {
		t.Fatalf("DeleteArticleCascade failed: %v", err)
	}
	if deleted {
		t.Error("expected no deletion for unknown article")
	}
}

func TestSQLite_SaveBlueprint_UpsertByName(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.SaveBlueprint(ctx, "home", `{"rows":1}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}
	if first.Version != 1 {
		t.Errorf("expected version 1, got %d", first.Version)
	}
	if first.IsPublished {
		t.Error("new blueprint must start unpublished")
	}

	second, err := s.SaveBlueprint(ctx, "home", `{"rows":2}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected upsert to reuse id %s, got %s", first.ID, second.ID)
	}
	if second.Structure != `{"rows":2}` {
		t.Errorf("unexpected structure: %s", second.Structure)
	}
	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}

	blueprints, err := s.ListBlueprints(ctx)
	if err != nil {
		t.Fatalf("ListBlueprints failed: %v", err)
	}
	count := 0
	for _, b := range blueprints {
		if b.Name == "home" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 blueprint named home, got %d", count)
	}
}

func TestSQLite_PublishBlueprint_Exclusivity(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := s.SaveBlueprint(ctx, "layout-a", `{"a":true}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}
	b, err := s.SaveBlueprint(ctx, "layout-b", `{"b":true}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}

	if _, err := s.PublishBlueprint(ctx, a.ID); err != nil {
		t.Fatalf("PublishBlueprint failed: %v", err)
	}
	published, err := s.PublishBlueprint(ctx, b.ID)
	if err != nil {
		t.Fatalf("PublishBlueprint failed: %v", err)
	}
	if !published.IsPublished {
		t.Error("expected target to be published")
	}

	// Invariant scan: exactly one published blueprint
	all, err := s.ListBlueprints(ctx)
	if err != nil {
		t.Fatalf("ListBlueprints failed: %v", err)
	}
	publishedCount := 0
	for _, bp := range all {
		if bp.IsPublished {
			publishedCount++
			if bp.ID != b.ID {
				t.Errorf("unexpected published blueprint %s", bp.ID)
			}
		}
	}
	if publishedCount != 1 {
		t.Errorf("expected exactly 1 published blueprint, got %d", publishedCount)
	}

	active, err := s.GetActiveBlueprint(ctx)
	if err != nil {
		t.Fatalf("GetActiveBlueprint failed: %v", err)
	}
	if active.ID != b.ID {
		t.Errorf("expected active blueprint %s, got %s", b.ID, active.ID)
	}
}

func TestSQLite_PublishBlueprint_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := s.SaveBlueprint(ctx, "layout-a", `{"a":true}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}
	if _, err := s.PublishBlueprint(ctx, a.ID); err != nil {
		t.Fatalf("PublishBlueprint failed: %v", err)
	}

	if _, err := s.PublishBlueprint(ctx, "99999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The failed publish must not have touched any published flag
	active, err := s.GetActiveBlueprint(ctx)
	if err != nil {
		t.Fatalf("GetActiveBlueprint failed: %v", err)
	}
	if active.ID != a.ID {
		t.Errorf("expected %s to stay published, got %s", a.ID, active.ID)
	}
}

func TestSQLite_GetActiveBlueprint_NonePublished(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := s.SaveBlueprint(ctx, "draft-only", `{}`); err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}

	if _, err := s.GetActiveBlueprint(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_History(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	bp, err := s.SaveBlueprint(ctx, "home", `{"rows":1}`)
	if err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}

	entries, err := s.ListHistory(ctx, bp.ID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != ActionSave {
		t.Fatalf("expected 1 save entry, got %+v", entries)
	}

	if _, err := s.SaveBlueprint(ctx, "home", `{"rows":2}`); err != nil {
		t.Fatalf("SaveBlueprint failed: %v", err)
	}
	if _, err := s.PublishBlueprint(ctx, bp.ID); err != nil {
		t.Fatalf("PublishBlueprint failed: %v", err)
	}

	entries, err = s.ListHistory(ctx, bp.ID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(entries))
	}

	// Newest first: publish, save, save
	if entries[0].Action != ActionPublish {
		t.Errorf("expected newest entry to be publish, got %s", entries[0].Action)
	}
	if entries[0].Structure != `{"rows":2}` {
		t.Errorf("publish entry must snapshot the target structure, got %s", entries[0].Structure)
	}
	if entries[1].Action != ActionSave || entries[2].Action != ActionSave {
		t.Errorf("expected save entries, got %s / %s", entries[1].Action, entries[2].Action)
	}
}
