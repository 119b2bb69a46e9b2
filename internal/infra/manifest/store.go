// Package manifest implements a content-addressed manifest store: unit
// manifests (the out-of-scope course-library JSON/YAML describing an
// exercise's prompt, answer key, and assets) live as blobs on disk keyed by
// their digest, with a sqlite-backed index from unit handle to digest.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/infra/sqlitestore"
)

// Store implements domain.ManifestStore over a content-addressed blob
// directory indexed by a sqlite table.
type Store struct {
	dir string
	db  *sqlitestore.DB
}

// New creates a Store rooted at dir, using db for the unit->digest index.
func New(dir string, db *sqlitestore.DB) *Store {
	return &Store{dir: dir, db: db}
}

// Init ensures the blob directory exists.
func (s *Store) Init() error {
	if err := os.MkdirAll(filepath.Join(s.dir, "blobs"), 0o755); err != nil {
		return fmt.Errorf("manifest: create blob dir: %w", err)
	}
	return nil
}

// BlobPath returns the filesystem path for a content-addressed blob.
func (s *Store) BlobPath(digest string) string {
	safe := strings.ReplaceAll(digest, ":", "-")
	return filepath.Join(s.dir, "blobs", safe)
}

// Put stores content, indexes it against h, and returns the resulting
// reference.
func (s *Store) Put(ctx context.Context, h domain.UnitHandle, content []byte) (domain.ManifestRef, error) {
	sum := sha256.Sum256(content)
	digest := "sha256:" + hex.EncodeToString(sum[:])
	path := s.BlobPath(digest)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return domain.ManifestRef{}, fmt.Errorf("manifest: write blob: %w", err)
		}
	}

	ref := domain.ManifestRef{Digest: digest, Path: path}
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO manifest_refs (unit, digest, path) VALUES (?, ?, ?)
		 ON CONFLICT(unit) DO UPDATE SET digest = excluded.digest, path = excluded.path`,
		int64(h), ref.Digest, ref.Path,
	)
	if err != nil {
		return domain.ManifestRef{}, fmt.Errorf("manifest: index: %w", err)
	}
	return ref, nil
}

// Resolve implements domain.ManifestStore.
func (s *Store) Resolve(ctx context.Context, h domain.UnitHandle) (domain.ManifestRef, error) {
	var ref domain.ManifestRef
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT digest, path FROM manifest_refs WHERE unit = ?`, int64(h),
	).Scan(&ref.Digest, &ref.Path)
	if err != nil {
		return domain.ManifestRef{}, fmt.Errorf("manifest: resolve unit %d: %w", h, err)
	}
	return ref, nil
}
