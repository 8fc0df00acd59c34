package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/pkg/types"
)

const (
	messageIndexFile = "message_index.json"
	dateIndexFile    = "date_index.json"
)

// IndexEntry locates a cached email: its date bucket, its storage location,
// and when the entry was last touched.
type IndexEntry struct {
	Bucket      string    `json:"bucket"`
	Location    string    `json:"location"`
	LastUpdated time.Time `json:"last_updated"`
}

// IndexManager maintains the two derived lookup structures over the store:
// id -> IndexEntry and bucket -> id set. Both are pure derived state; the
// store is ground truth and RebuildAll reconstructs them from it. The
// in-memory maps serve queries; each mutation is mirrored to two
// human-inspectable JSON files under the metadata directory.
//
// The denormalized date index makes the range query that drives every fetch
// O(days in range) instead of a full store scan.
type IndexManager struct {
	store  Store
	dir    string
	logger *logrus.Logger

	messages map[string]IndexEntry
	dates    map[string]map[string]struct{}
}

// NewIndexManager creates the metadata directory and an empty index. Call
// RebuildAll to populate it from the store.
func NewIndexManager(store Store, metadataDir string, logger *logrus.Logger) (*IndexManager, error) {
	if err := os.MkdirAll(metadataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}
	return &IndexManager{
		store:    store,
		dir:      metadataDir,
		logger:   logger,
		messages: make(map[string]IndexEntry),
		dates:    make(map[string]map[string]struct{}),
	}, nil
}

// RebuildAll clears both structures and repopulates them by scanning every
// partition in the store. This is the canonical recovery path.
func (m *IndexManager) RebuildAll() error {
	messages := make(map[string]IndexEntry)
	dates := make(map[string]map[string]struct{})

	now := time.Now()
	err := m.store.Each(func(id, bucket string) error {
		messages[id] = IndexEntry{
			Bucket:      bucket,
			Location:    m.store.Path(id, bucket),
			LastUpdated: now,
		}
		if dates[bucket] == nil {
			dates[bucket] = make(map[string]struct{})
		}
		dates[bucket][id] = struct{}{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}

	m.messages = messages
	m.dates = dates
	if err := m.persist(); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"messages": len(messages),
		"dates":    len(dates),
	}).Debug("Rebuilt cache indexes")
	return nil
}

// IDsInRange unions the date index entries for each calendar day in
// [start, end] inclusive. Reversed bounds are swapped; absent days
// contribute nothing.
func (m *IndexManager) IDsInRange(start, end time.Time) map[string]struct{} {
	if start.After(end) {
		start, end = end, start
	}

	ids := make(map[string]struct{})
	for day := start.UTC(); !day.After(end.UTC()); day = day.AddDate(0, 0, 1) {
		bucket := day.Format(types.BucketFormat)
		for id := range m.dates[bucket] {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// Lookup returns the index entry for an id.
func (m *IndexManager) Lookup(id string) (IndexEntry, bool) {
	entry, ok := m.messages[id]
	return entry, ok
}

// Upsert records an email's location in both structures. Idempotent.
func (m *IndexManager) Upsert(id, bucket, location string) error {
	m.messages[id] = IndexEntry{Bucket: bucket, Location: location, LastUpdated: time.Now()}
	if m.dates[bucket] == nil {
		m.dates[bucket] = make(map[string]struct{})
	}
	m.dates[bucket][id] = struct{}{}
	return m.persist()
}

// Remove deletes an id from both structures. Removing an absent id
// succeeds.
func (m *IndexManager) Remove(id string) error {
	entry, ok := m.messages[id]
	if !ok {
		return nil
	}
	delete(m.messages, id)
	if set := m.dates[entry.Bucket]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(m.dates, entry.Bucket)
		}
	}
	return m.persist()
}

// Counts returns the number of indexed messages and distinct dates.
func (m *IndexManager) Counts() (messages, dates int) {
	return len(m.messages), len(m.dates)
}

// persist mirrors both structures to their JSON files. The date index is
// serialized with sorted id lists so the file diffs cleanly.
func (m *IndexManager) persist() error {
	if err := m.writeIndex(messageIndexFile, m.messages); err != nil {
		return err
	}

	dates := make(map[string][]string, len(m.dates))
	for bucket, set := range m.dates {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		dates[bucket] = ids
	}
	return m.writeIndex(dateIndexFile, dates)
}

// writeIndex atomically replaces one index file.
func (m *IndexManager) writeIndex(name string, data interface{}) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index %s: %w", name, err)
	}

	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return fmt.Errorf("failed to write index %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write index %s: %w", name, err)
	}
	return nil
}
