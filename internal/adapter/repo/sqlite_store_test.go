package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"chatgate/internal/domain"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	if _, err := store.Get(ctx, "1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get on empty store: %v", err)
	}

	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.NewUserRecord("1", domain.PlanMax, created)
	rec.DailyUsageCount = 9
	rec.LastUsedDate = "2025-02-01"
	rec.RecentTurns = []domain.Turn{{Question: "q", Answer: "a"}}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec.DailyUsageCount = 10
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, err := store.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Plan != domain.PlanMax || got.DailyUsageCount != 10 || got.LastUsedDate != "2025-02-01" {
		t.Fatalf("record = %+v", got)
	}
	if len(got.RecentTurns) != 1 || got.RecentTurns[0].Answer != "a" {
		t.Fatalf("turns = %+v", got.RecentTurns)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %s, want %s", got.CreatedAt, created)
	}
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	now := time.Now()

	if err := store.Save(ctx, map[string]domain.UserRecord{
		"a": domain.NewUserRecord("a", domain.PlanPro, now),
		"b": domain.NewUserRecord("b", domain.PlanPro, now),
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save(ctx, map[string]domain.UserRecord{
		"c": {Plan: domain.PlanMax},
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	all, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all["c"].UserID != "c" || all["c"].Plan != domain.PlanMax {
		t.Fatalf("record c = %+v", all["c"])
	}
}

func TestSQLiteStorePutRequiresID(t *testing.T) {
	store := newSQLiteStore(t)
	if err := store.Put(context.Background(), domain.UserRecord{Plan: domain.PlanPro}); err == nil {
		t.Fatal("expected error for empty user id")
	}
}
