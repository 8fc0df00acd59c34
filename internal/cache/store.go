// Package cache implements the synchronization engine between the remote
// mailbox and the local on-disk email cache: per-day partitioned storage,
// schema-versioned records, derived lookup indexes, and the fetch/merge
// orchestration with hit/miss accounting.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/pkg/types"
)

// StoreStats summarizes what a store currently holds.
type StoreStats struct {
	TotalEmails  int   `json:"total_emails"`
	TotalBuckets int   `json:"total_buckets"`
	SizeBytes    int64 `json:"size_bytes"`
}

// Store is the persistence contract for cached email records, keyed by
// (bucket, id). The store is the cache's ground truth: the indexes are
// derived from it and can always be rebuilt by scanning it.
//
// Load returns (nil, nil) when the record is absent or unreadable; the
// caller treats both as a cache miss and re-fetches.
type Store interface {
	Save(id, bucket string, email *types.Email) error
	Load(id, bucket string) (*types.Email, error)
	DeleteOlderThan(maxAgeDays int) (int, error)
	Purge() error
	Each(fn func(id, bucket string) error) error
	Path(id, bucket string) string
	Stats() (StoreStats, error)
}

// FileStore keeps one JSON file per email under
// <root>/emails/<YYYY-MM-DD>/<id>.json. Writes are atomic (temp file then
// rename); a file that fails to decode is treated as absent.
type FileStore struct {
	root   string
	logger *logrus.Logger
}

// NewFileStore creates the storage layout under root if needed.
func NewFileStore(root string, logger *logrus.Logger) (*FileStore, error) {
	s := &FileStore{root: root, logger: logger}
	if err := os.MkdirAll(s.emailsDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return s, nil
}

func (s *FileStore) emailsDir() string {
	return filepath.Join(s.root, "emails")
}

// Path returns the storage location for the given id and bucket.
func (s *FileStore) Path(id, bucket string) string {
	return filepath.Join(s.emailsDir(), bucket, id+".json")
}

// Save serializes the email into its bucket partition, creating the
// partition if absent. The replacement of an existing record is atomic.
func (s *FileStore) Save(id, bucket string, email *types.Email) error {
	path := s.Path(id, bucket)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}

	data, err := json.MarshalIndent(email, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal email %s: %w", id, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write email %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write email %s: %w", id, err)
	}
	return nil
}

// Load reads a record back. Absent and corrupt files both yield (nil, nil).
func (s *FileStore) Load(id, bucket string) (*types.Email, error) {
	data, err := os.ReadFile(s.Path(id, bucket))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read email %s: %w", id, err)
	}

	var email types.Email
	if err := json.Unmarshal(data, &email); err != nil {
		s.logger.WithFields(logrus.Fields{"id": id, "bucket": bucket}).
			WithError(err).Warn("Corrupt cache record, treating as absent")
		return nil, nil
	}
	return &email, nil
}

// DeleteOlderThan removes every bucket older than maxAgeDays and returns
// how many emails were deleted. This is the only eviction policy.
func (s *FileStore) DeleteOlderThan(maxAgeDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	entries, err := os.ReadDir(s.emailsDir())
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bucketDate, err := time.Parse(types.BucketFormat, entry.Name())
		if err != nil {
			continue
		}
		if !bucketDate.Before(cutoff) {
			continue
		}

		dir := filepath.Join(s.emailsDir(), entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if filepath.Ext(f.Name()) != ".json" {
				continue
			}
			if err := os.Remove(filepath.Join(dir, f.Name())); err == nil {
				deleted++
			}
		}
		os.Remove(dir) //nolint:errcheck // fails when non-json files remain
	}
	return deleted, nil
}

// Purge deletes every record and recreates the empty layout.
func (s *FileStore) Purge() error {
	if err := os.RemoveAll(s.emailsDir()); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	if err := os.MkdirAll(s.emailsDir(), 0755); err != nil {
		return fmt.Errorf("failed to recreate cache directory: %w", err)
	}
	return nil
}

// Each visits every (id, bucket) pair in the store.
func (s *FileStore) Each(fn func(id, bucket string) error) error {
	entries, err := os.ReadDir(s.emailsDir())
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := time.Parse(types.BucketFormat, entry.Name()); err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.emailsDir(), entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			id := f.Name()[:len(f.Name())-len(".json")]
			if err := fn(id, entry.Name()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats walks the store and reports totals.
func (s *FileStore) Stats() (StoreStats, error) {
	var stats StoreStats

	entries, err := os.ReadDir(s.emailsDir())
	if err != nil {
		return stats, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.emailsDir(), entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		count := 0
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			count++
			if info, err := f.Info(); err == nil {
				stats.SizeBytes += info.Size()
			}
		}
		if count > 0 {
			stats.TotalBuckets++
			stats.TotalEmails += count
		}
	}
	return stats, nil
}
