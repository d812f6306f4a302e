package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BucketStore is an add-only store. The base directory holds buckets named
// by time-ordered UUIDv7 identifiers; files inside a bucket are themselves
// named by fresh UUIDv7 ids. Writes land in the most recently created
// bucket. There is no rotation trigger: after the first write the same
// bucket is reused indefinitely.
type BucketStore struct {
	base string

	mu      sync.Mutex
	buckets []uuid.UUID
}

// NewBucketStore creates the base directory if needed and indexes existing
// buckets. Subdirectories whose names do not parse as UUIDs are skipped.
func NewBucketStore(base string) (*BucketStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket storage path %q: %w", base, err)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("scan bucket storage path %q: %w", base, err)
	}

	var buckets []uuid.UUID

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id, err := uuid.Parse(entry.Name())
		if err != nil {
			zap.S().Debugw("skipping non-bucket directory",
				"name", entry.Name(),
			)
			continue
		}

		buckets = append(buckets, id)
	}

	slices.SortFunc(buckets, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	zap.S().Infow("bucket storage initialized",
		"path", base,
		"buckets", len(buckets),
	)

	return &BucketStore{base: base, buckets: buckets}, nil
}

// Add writes data under a fresh UUIDv7 file name with the given extension,
// inside the newest bucket (creating the first bucket when none exists).
// Returns the full path written.
func (s *BucketStore) Add(data []byte, extension string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buckets) == 0 {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate bucket id: %w", err)
		}

		if err := os.Mkdir(filepath.Join(s.base, id.String()), 0o755); err != nil {
			return "", fmt.Errorf("create bucket %q: %w", id, err)
		}

		s.buckets = append(s.buckets, id)
	}

	bucket := s.buckets[len(s.buckets)-1]

	fileID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}

	path := filepath.Join(s.base, bucket.String(), fmt.Sprintf("%s.%s", fileID, extension))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}

	zap.S().Debugw("archived file",
		"path", path,
		"bytes", len(data),
	)

	return path, nil
}
