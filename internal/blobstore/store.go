// Package blobstore keeps split documents on the local filesystem,
// addressed by the BLAKE3 digest of their content.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/slipmail/slipmail/internal/model"
	"github.com/zeebo/blake3"
)

var refPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Store writes blobs under dir/<first two hex chars>/<ref>.
type Store struct {
	dir string
}

// New creates the root directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("blobstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("blobstore: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Hash returns the hex BLAKE3 digest used as a blob reference.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// validRef reports whether ref has the shape of a blob reference.
func validRef(ref string) bool {
	return refPattern.MatchString(ref)
}

// Put stores data and returns its reference. Writing the same bytes twice
// is a no-op that returns the same reference.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := Hash(data)
	path := s.path(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("blobstore: create shard dir: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("blobstore: write %s: %w", ref, err)
	}
	return ref, nil
}

// Get reads the blob for ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validRef(ref) {
		return nil, fmt.Errorf("%w: %q", model.ErrBlobNotFound, ref)
	}
	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", model.ErrBlobNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", ref, err)
	}
	return data, nil
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.dir, ref[:2], ref)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
