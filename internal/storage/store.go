package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mhm-assoc/memberpass/internal/config"
)

// CardStore persists rendered card images on the local filesystem.
// On read-only hosts it skips writing entirely; callers treat an
// empty path as "card valid, image not locally retrievable" and keep
// the in-memory buffer for attachments.
type CardStore struct {
	dir      string
	readOnly bool
}

// NewCardStore creates a store from the storage config. The directory
// is created eagerly so the first issuance does not race mkdir.
func NewCardStore(cfg config.StorageConfig) *CardStore {
	s := &CardStore{dir: cfg.Dir, readOnly: cfg.ReadOnly}
	if s.readOnly {
		log.Printf("💾 Card storage: read-only mode, images will not be persisted")
		return s
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		log.Printf("⚠️ Card storage: cannot create %s (%v), falling back to read-only mode", s.dir, err)
		s.readOnly = true
	}
	return s
}

// Save writes the PNG under a deterministic path keyed by member
// number and returns that path. Write errors are logged and reported
// as "" rather than propagated: a storage hiccup never blocks
// issuance of the card itself.
func (s *CardStore) Save(png []byte, memberNumber string) string {
	if s.readOnly {
		return ""
	}
	path := s.path(memberNumber)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		log.Printf("⚠️ Card storage: failed to write %s: %v", path, err)
		return ""
	}
	return path
}

// Load reads a previously stored card image.
func (s *CardStore) Load(memberNumber string) ([]byte, error) {
	if s.readOnly {
		return nil, fmt.Errorf("card storage is read-only; no images persisted")
	}
	data, err := os.ReadFile(s.path(memberNumber))
	if err != nil {
		return nil, fmt.Errorf("card image for %s not available: %w", memberNumber, err)
	}
	return data, nil
}

func (s *CardStore) path(memberNumber string) string {
	return filepath.Join(s.dir, memberNumber+".png")
}
