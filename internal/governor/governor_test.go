package governor

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatgate/internal/adapter/repo"
	"chatgate/internal/domain"
	"chatgate/internal/keylock"
	"chatgate/internal/quota"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func testPolicy(t *testing.T) *quota.Policy {
	t.Helper()
	p, err := quota.NewPolicy(map[domain.Plan]int{domain.PlanPro: 20, domain.PlanMax: 50, "lite": 1})
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return p
}

func newGovernor(t *testing.T, store domain.UserStore) *Governor {
	t.Helper()
	return New(store, testPolicy(t), keylock.New(8), Options{}, zerolog.Nop())
}

func record(id string, plan domain.Plan, used int, date string) domain.UserRecord {
	rec := domain.NewUserRecord(id, plan, testNow)
	rec.DailyUsageCount = used
	rec.LastUsedDate = date
	return rec
}

func TestDecideProScenario(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u1", domain.PlanPro, 0, "2025-03-14"))
	g := newGovernor(t, store)

	for call := 1; call <= 20; call++ {
		d, err := g.Decide(ctx, "u1", testNow)
		if err != nil {
			t.Fatalf("call %d: %v", call, err)
		}
		if d.State != StateAdmitted {
			t.Fatalf("call %d: state = %s, want admitted", call, d.State)
		}
		if want := 20 - call; d.Remaining != want {
			t.Fatalf("call %d: remaining = %d, want %d", call, d.Remaining, want)
		}
		if got, want := d.LowQuota(2), call >= 18; got != want {
			t.Fatalf("call %d: LowQuota = %v, want %v", call, got, want)
		}
	}

	d, err := g.Decide(ctx, "u1", testNow)
	if err != nil {
		t.Fatalf("call 21: %v", err)
	}
	if d.State != StateLimitExceeded {
		t.Fatalf("call 21: state = %s, want limit_exceeded", d.State)
	}
	if d.LowQuota(2) {
		t.Fatal("limit exceeded must not report low quota")
	}

	rec, _ := store.Get(ctx, "u1")
	if rec.DailyUsageCount != 20 {
		t.Fatalf("persisted count = %d, want 20", rec.DailyUsageCount)
	}
}

func TestDecideAtLimitMinusOne(t *testing.T) {
	ctx := context.Background()
	g := newGovernor(t, repo.NewMemoryStore(record("u", domain.PlanMax, 49, "2025-03-14")))

	d, err := g.Decide(ctx, "u", testNow)
	if err != nil || d.State != StateAdmitted || d.Remaining != 0 {
		t.Fatalf("first decide = %+v, %v", d, err)
	}
	d, err = g.Decide(ctx, "u", testNow)
	if err != nil || d.State != StateLimitExceeded {
		t.Fatalf("second decide = %+v, %v", d, err)
	}
}

func TestDecideRollover(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 20, "2025-03-13"))
	g := newGovernor(t, store)

	d, err := g.Decide(ctx, "u", testNow)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.State != StateAdmitted || d.Remaining != 19 {
		t.Fatalf("decision = %+v, want admitted with 19 remaining", d)
	}
	d, _ = g.Decide(ctx, "u", testNow)
	if d.Remaining != 18 {
		t.Fatalf("second decision remaining = %d, want 18 (reset only once)", d.Remaining)
	}

	rec, _ := store.Get(ctx, "u")
	if rec.LastUsedDate != "2025-03-14" || rec.DailyUsageCount != 2 {
		t.Fatalf("persisted = %+v", rec)
	}
}

func TestDecideLimitExceededCommitsRollover(t *testing.T) {
	ctx := context.Background()
	// lite allows 1; the stale record is exhausted on an old date.
	store := repo.NewMemoryStore(record("u", "lite", 1, "2025-03-10"))
	g := newGovernor(t, store)

	if d, _ := g.Decide(ctx, "u", testNow); d.State != StateAdmitted {
		t.Fatalf("state = %s", d.State)
	}
	if d, _ := g.Decide(ctx, "u", testNow); d.State != StateLimitExceeded {
		t.Fatalf("state = %s", d.State)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.LastUsedDate != "2025-03-14" {
		t.Fatalf("LastUsedDate = %q", rec.LastUsedDate)
	}
}

func TestDecideUnregisteredDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore()
	g := newGovernor(t, store)

	d, err := g.Decide(ctx, "ghost", testNow)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.State != StateUnregistered {
		t.Fatalf("state = %s", d.State)
	}
	all, _ := store.Load(ctx)
	if len(all) != 0 {
		t.Fatalf("store has %d records, want 0", len(all))
	}
}

func TestDecideUnknownPlanDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", "gold", 3, "2025-03-01"))
	g := newGovernor(t, store)

	_, err := g.Decide(ctx, "u", testNow)
	if !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("err = %v, want ErrUnknownPlan", err)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.DailyUsageCount != 3 || rec.LastUsedDate != "2025-03-01" {
		t.Fatalf("record mutated: %+v", rec)
	}
}

func TestDecideStoreFailure(t *testing.T) {
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 0, "2025-03-14"))
	store.FailWrites = true
	g := newGovernor(t, store)

	_, err := g.Decide(context.Background(), "u", testNow)
	if !errors.Is(err, domain.ErrStoreIO) {
		t.Fatalf("err = %v, want ErrStoreIO", err)
	}
}

func TestDecideUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 20, "2025-03-14"))
	g := New(store, testPolicy(t), nil, Options{Location: loc}, zerolog.Nop())

	// 03:00 UTC on the 15th is still the 14th at UTC-5.
	at := time.Date(2025, 3, 15, 3, 0, 0, 0, time.UTC)
	d, err := g.Decide(context.Background(), "u", at)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.State != StateLimitExceeded || d.Date != "2025-03-14" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 0, "2025-03-14"))
	g := newGovernor(t, store)

	if _, err := g.Decide(ctx, "u", testNow); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := g.Refund(ctx, "u", testNow); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.DailyUsageCount != 0 {
		t.Fatalf("count = %d, want 0", rec.DailyUsageCount)
	}
	// Nothing left to give back.
	if err := g.Refund(ctx, "u", testNow); err != nil {
		t.Fatalf("second Refund: %v", err)
	}
	rec, _ = store.Get(ctx, "u")
	if rec.DailyUsageCount != 0 {
		t.Fatalf("count = %d after empty refund", rec.DailyUsageCount)
	}
}

func TestRefundAfterRolloverIsNoop(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 5, "2025-03-13"))
	g := newGovernor(t, store)

	if err := g.Refund(ctx, "u", testNow); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.DailyUsageCount != 5 {
		t.Fatalf("count = %d, want untouched 5", rec.DailyUsageCount)
	}
}

func TestUsageDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 7, "2025-03-13"))
	g := newGovernor(t, store)

	d, err := g.Usage(ctx, "u", testNow)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if d.Used != 0 || d.Remaining != 20 {
		t.Fatalf("usage = %+v, want rolled-over view", d)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.DailyUsageCount != 7 || rec.LastUsedDate != "2025-03-13" {
		t.Fatalf("Usage mutated record: %+v", rec)
	}
}

func TestConcurrentDecideNeverOverAdmits(t *testing.T) {
	stores := map[string]func(t *testing.T) domain.UserStore{
		"memory": func(t *testing.T) domain.UserStore {
			return repo.NewMemoryStore(record("u", domain.PlanPro, 12, "2025-03-14"))
		},
		"file": func(t *testing.T) domain.UserStore {
			fs, err := repo.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
			if err != nil {
				t.Fatalf("NewFileStore: %v", err)
			}
			if err := fs.Put(context.Background(), record("u", domain.PlanPro, 12, "2025-03-14")); err != nil {
				t.Fatalf("seed: %v", err)
			}
			return fs
		},
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			store := mk(t)
			g := newGovernor(t, store)
			const remaining = 8

			var admitted, exceeded atomic.Int32
			var eg errgroup.Group
			for i := 0; i < remaining*2; i++ {
				eg.Go(func() error {
					d, err := g.Decide(context.Background(), "u", testNow)
					if err != nil {
						return err
					}
					switch d.State {
					case StateAdmitted:
						admitted.Add(1)
					case StateLimitExceeded:
						exceeded.Add(1)
					}
					return nil
				})
			}
			if err := eg.Wait(); err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if admitted.Load() != remaining || exceeded.Load() != remaining {
				t.Fatalf("admitted=%d exceeded=%d, want %d each", admitted.Load(), exceeded.Load(), remaining)
			}
			rec, _ := store.Get(context.Background(), "u")
			if rec.DailyUsageCount != 20 {
				t.Fatalf("count = %d, want 20", rec.DailyUsageCount)
			}
		})
	}
}

func TestConcurrentDecideDifferentUsersKeepsAllWrites(t *testing.T) {
	fs, err := repo.NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		if err := fs.Put(context.Background(), record(id, domain.PlanPro, 0, "2025-03-14")); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	g := newGovernor(t, fs)

	var eg errgroup.Group
	for _, id := range ids {
		id := id
		for i := 0; i < 3; i++ {
			eg.Go(func() error {
				_, err := g.Decide(context.Background(), id, testNow)
				return err
			})
		}
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	all, err := fs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, id := range ids {
		if all[id].DailyUsageCount != 3 {
			t.Fatalf("user %s count = %d, want 3", id, all[id].DailyUsageCount)
		}
	}
}

func TestDecideLateMessageDoesNotRestoreQuota(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemoryStore(record("u", domain.PlanPro, 20, "2025-03-14"))
	g := newGovernor(t, store)

	late := time.Date(2025, 3, 13, 23, 59, 59, 0, time.UTC)
	d, err := g.Decide(ctx, "u", late)
	if err != nil {
		t.Fatalf("late Decide: %v", err)
	}
	if d.State != StateLimitExceeded || d.Date != "2025-03-14" {
		t.Fatalf("late decision = %+v", d)
	}
	rec, _ := store.Get(ctx, "u")
	if rec.DailyUsageCount != 20 || rec.LastUsedDate != "2025-03-14" {
		t.Fatalf("late message moved the record: %+v", rec)
	}

	d, err = g.Decide(ctx, "u", testNow)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.State != StateLimitExceeded {
		t.Fatalf("same-day decision = %+v, want limit_exceeded", d)
	}
}
