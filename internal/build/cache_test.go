package build

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadCache(t *testing.T) {
	dir := t.TempDir()

	now := time.Now().Truncate(time.Second)
	cache := &buildCache{}
	cache.set("1.0", "sharedOFF", &buildEntry{
		Manifest:   "/tmp/output/tiffpkg.yaml",
		Components: []string{"static"},
		BuildTime:  now,
	})

	if err := saveCache(dir, cache); err != nil {
		t.Fatalf("saveCache failed: %v", err)
	}

	loaded, err := loadCache(dir)
	if err != nil {
		t.Fatalf("loadCache failed: %v", err)
	}

	entry, ok := loaded.get("1.0", "sharedOFF")
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if entry.Manifest != "/tmp/output/tiffpkg.yaml" {
		t.Errorf("Manifest mismatch: got %q", entry.Manifest)
	}
	if !entry.BuildTime.Truncate(time.Second).Equal(now) {
		t.Errorf("BuildTime mismatch: got %v, want %v", entry.BuildTime, now)
	}
	if _, ok := loaded.get("1.0", "sharedON"); ok {
		t.Error("unexpected entry for another combination")
	}

	loaded.remove("1.0", "sharedOFF")
	if _, ok := loaded.get("1.0", "sharedOFF"); ok {
		t.Error("entry still present after remove")
	}
}

func TestLoadCache_NotExist(t *testing.T) {
	cache, err := loadCache(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("loadCache of missing dir: %v", err)
	}
	if len(cache.Cache) != 0 {
		t.Errorf("cache = %v, want empty", cache.Cache)
	}
}

func TestLoadCache_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, cacheFile), []byte("invalid json"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	if _, err := loadCache(dir); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}
