package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mhm-assoc/memberpass/internal/config"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewCardStore(config.StorageConfig{Dir: dir})

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	path := store.Save(png, "MHM-2025-00006")
	if path == "" {
		t.Fatal("Save should return a path on a writable store")
	}
	if path != filepath.Join(dir, "MHM-2025-00006.png") {
		t.Errorf("Unexpected path %q", path)
	}

	loaded, err := store.Load("MHM-2025-00006")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(loaded, png) {
		t.Error("Loaded image differs from the saved one")
	}
}

func TestLoadMissingImage(t *testing.T) {
	store := NewCardStore(config.StorageConfig{Dir: t.TempDir()})
	if _, err := store.Load("MHM-2025-09999"); err == nil {
		t.Fatal("Load should fail for a member with no stored image")
	}
}

func TestReadOnlyStore(t *testing.T) {
	store := NewCardStore(config.StorageConfig{Dir: "/cards", ReadOnly: true})

	if path := store.Save([]byte("png"), "MHM-2025-00006"); path != "" {
		t.Errorf("Read-only store should report an empty path, got %q", path)
	}
	if _, err := store.Load("MHM-2025-00006"); err == nil {
		t.Error("Read-only store should refuse to load")
	}
}

func TestUnwritableDirFallsBack(t *testing.T) {
	// A directory that cannot be created flips the store read-only
	// instead of breaking issuance.
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to set up blocking file: %v", err)
	}
	store := NewCardStore(config.StorageConfig{Dir: filepath.Join(file, "cards")})
	if path := store.Save([]byte("png"), "MHM-2025-00006"); path != "" {
		t.Errorf("Fallback store should report an empty path, got %q", path)
	}
}
