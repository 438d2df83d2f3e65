package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stillpoint/stillpoint/internal/coach"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "stillpoint.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCacheLoadEmptySlot(t *testing.T) {
	cache := openTestCache(t)

	_, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ok {
		t.Fatal("expected empty slot before any save")
	}
}

func TestCacheSaveLoadRoundtrip(t *testing.T) {
	cache := openTestCache(t)

	want := coach.Summary{
		Entry:       "Talked through the week and a looming deadline.",
		Tips:        []string{"Take a short walk before standup.", "Write the worry down."},
		GeneratedAt: time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	}
	if err := cache.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a saved summary")
	}
	if got.Entry != want.Entry {
		t.Fatalf("entry mismatch: %q", got.Entry)
	}
	if len(got.Tips) != 2 || got.Tips[0] != want.Tips[0] || got.Tips[1] != want.Tips[1] {
		t.Fatalf("tips mismatch: %v", got.Tips)
	}
	if !got.GeneratedAt.Equal(want.GeneratedAt) {
		t.Fatalf("generatedAt mismatch: %s", got.GeneratedAt)
	}
}

func TestCacheSaveReplacesPreviousSummary(t *testing.T) {
	cache := openTestCache(t)

	first := coach.Summary{Entry: "first", GeneratedAt: time.Now().UTC()}
	second := coach.Summary{Entry: "second", Tips: []string{"breathe"}, GeneratedAt: time.Now().UTC()}

	if err := cache.Save(first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := cache.Save(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, ok, err := cache.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok || got.Entry != "second" {
		t.Fatalf("expected the later summary to win, got ok=%v entry=%q", ok, got.Entry)
	}
}

func TestCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stillpoint.db")

	cache, err := OpenCache(path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	want := coach.Summary{Entry: "persisted", GeneratedAt: time.Now().UTC()}
	if err := cache.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := OpenCache(path)
	if err != nil {
		t.Fatalf("reopen cache: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, ok, err := reopened.Load()
	if err != nil {
		t.Fatalf("load after reopen failed: %v", err)
	}
	if !ok || got.Entry != "persisted" {
		t.Fatalf("expected summary to survive reopen, got ok=%v entry=%q", ok, got.Entry)
	}
}

func TestCacheCloseOnNilIsSafe(t *testing.T) {
	var cache *Cache
	if err := cache.Close(); err != nil {
		t.Fatalf("nil close should be a no-op, got %v", err)
	}
}
