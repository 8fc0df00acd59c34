package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/internal/analysis"
	"github.com/brandon/mailcache/internal/remote"
	"github.com/brandon/mailcache/internal/retry"
	"github.com/brandon/mailcache/pkg/types"
)

// ManagerConfig carries the cache engine's tunables.
type ManagerConfig struct {
	// Enabled gates the whole cache; when false every fetch goes straight
	// to the remote and nothing is persisted.
	Enabled bool
	// MaxAgeDays is the default age threshold for Cleanup.
	MaxAgeDays int
	// BatchSize is the hint passed to the remote client's batch fetch.
	BatchSize int
	// TextWorkers bounds the text enrichment pool.
	TextWorkers int
	// Retry is the shared policy applied to remote calls.
	Retry retry.Policy
}

// Manager orchestrates cache-synchronized retrieval. For every fetch it
// asks the remote for the authoritative fresh id set, compares it with the
// locally indexed ids for the same range, re-fetches only the delta
// (unknown ids plus cached records that cannot fully serve the request),
// persists the newly fetched records, and merges.
//
// All index and store mutation flows through the manager; the index and
// store never touch each other directly.
//
// Staleness policy: an id that is cached but absent from the fresh search
// result is not purged. It is served if its record is valid, until the next
// invalidation. Whole-cache invalidation after any mutation keeps this
// window bounded; selective reconciliation is deliberately avoided.
type Manager struct {
	client   remote.Client
	store    Store
	index    *IndexManager
	schema   *SchemaManager
	counters accessCounters
	cfg      ManagerConfig
	logger   *logrus.Logger
}

// NewManager wires the engine. The index is rebuilt from the store up
// front so a fresh process starts from ground truth.
func NewManager(client remote.Client, store Store, index *IndexManager, schema *SchemaManager, cfg ManagerConfig, logger *logrus.Logger) (*Manager, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	m := &Manager{
		client: client,
		store:  store,
		index:  index,
		schema: schema,
		cfg:    cfg,
		logger: logger,
	}
	if cfg.Enabled {
		if err := index.RebuildAll(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CacheStats is the combined store/index/config view returned by Stats.
type CacheStats struct {
	StoreStats
	IndexedMessages int  `json:"indexed_messages"`
	IndexedDates    int  `json:"indexed_dates"`
	SchemaVersion   int  `json:"schema_version"`
	MaxAgeDays      int  `json:"max_age_days"`
	Enabled         bool `json:"enabled"`
}

// Fetch runs the synchronization algorithm and returns the merged,
// possibly truncated result. It returns an error only for invalid requests
// and fatal remote failures; individual item problems degrade to re-fetches
// or text placeholders.
func (m *Manager) Fetch(ctx context.Context, req *FetchRequest) ([]*types.Email, error) {
	start, end, err := req.normalize(time.Now())
	if err != nil {
		return nil, err
	}

	if !m.cfg.Enabled {
		return m.fetchDirect(ctx, req, start, end)
	}

	query := remote.BuildQuery(start, end, req.Filters)

	// The remote search is always made: only the remote knows the current
	// state, e.g. an item that moved folders since it was cached.
	freshIDs, err := m.searchRemote(ctx, query, req.Limit)
	if err != nil {
		return nil, err
	}

	cachedIDs := m.index.IDsInRange(start, end)
	m.logger.WithFields(logrus.Fields{
		"fresh":  len(freshIDs),
		"cached": len(cachedIDs),
	}).Debug("Computed candidate sets")

	validCached, needsFetch := m.loadCached(cachedIDs, req.IncludeText)
	m.counters.hit(len(validCached))

	// Delta: ids the remote has that the cache never saw, plus cached ids
	// that could not fully serve the request.
	toFetch := make(map[string]struct{}, len(needsFetch))
	for id := range needsFetch {
		toFetch[id] = struct{}{}
	}
	for _, id := range freshIDs {
		if _, ok := cachedIDs[id]; !ok {
			toFetch[id] = struct{}{}
		}
	}

	var fetched []*types.Email
	if len(toFetch) > 0 {
		m.counters.miss(len(toFetch))
		fetched, err = m.fetchAndCache(ctx, sortedIDs(toFetch), req.IncludeText)
		if err != nil {
			return nil, err
		}
	}

	merged := append(validCached, fetched...)

	// The index returns everything in the date range regardless of folder;
	// drop cached records that no longer match the requested folder.
	if req.Filters.Folder != "" {
		kept := merged[:0]
		for _, e := range merged {
			if req.Filters.FolderMatches(e) {
				kept = append(kept, e)
			}
		}
		merged = kept
	}

	if req.Limit > 0 && len(merged) > req.Limit {
		merged = merged[:req.Limit]
	}

	if req.IncludeMetrics && req.IncludeText {
		analysis.Attach(merged)
	}

	m.logger.WithFields(logrus.Fields{
		"total":   len(merged),
		"cached":  len(validCached),
		"fetched": len(fetched),
	}).Info("Fetch complete")
	return merged, nil
}

// searchRemote runs the remote search under the shared retry policy.
func (m *Manager) searchRemote(ctx context.Context, q *remote.Query, limit int) ([]string, error) {
	var ids []string
	err := m.cfg.Retry.Do(ctx, func() error {
		found, err := m.client.Search(ctx, q, limit)
		if err != nil {
			if !remote.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		ids = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remote search failed: %w", err)
	}
	return ids, nil
}

// loadCached loads every candidate id from the store, upgrading stale
// schemas and validating required fields. Records that cannot fully serve
// the request are "skipped", not dropped: their ids join the fetch delta.
func (m *Manager) loadCached(ids map[string]struct{}, includeText bool) (valid []*types.Email, needsFetch map[string]struct{}) {
	needsFetch = make(map[string]struct{})

	for id := range ids {
		entry, ok := m.index.Lookup(id)
		if !ok {
			needsFetch[id] = struct{}{}
			continue
		}

		e, err := m.store.Load(id, entry.Bucket)
		if err != nil || e == nil {
			// Unreadable or missing record: a miss, never an error.
			needsFetch[id] = struct{}{}
			continue
		}

		if !m.schema.IsCurrent(e) {
			m.schema.Upgrade(e)
			if err := m.store.Save(id, entry.Bucket, e); err == nil {
				m.counters.update()
			}
		}

		if !recordComplete(e, includeText) {
			needsFetch[id] = struct{}{}
			continue
		}
		valid = append(valid, e)
	}

	sort.Slice(valid, func(i, j int) bool {
		if valid[i].Timestamp.Equal(valid[j].Timestamp) {
			return valid[i].ID < valid[j].ID
		}
		return valid[i].Timestamp.After(valid[j].Timestamp)
	})
	return valid, needsFetch
}

// recordComplete checks that every field the request requires is present
// and non-empty. Text content is only required when the request asks for
// it.
func recordComplete(e *types.Email, includeText bool) bool {
	if e.ID == "" || e.SenderEmail == "" || e.Subject == "" {
		return false
	}
	if e.Timestamp.IsZero() || e.SizeBytes <= 0 || e.Labels == nil {
		return false
	}
	if includeText && e.TextContent == "" {
		return false
	}
	return true
}

// fetchAndCache retrieves the delta from the remote in bounded batches,
// enriches text if required, then persists each item: stamp, save, index,
// count the write. An item whose save fails is still returned.
func (m *Manager) fetchAndCache(ctx context.Context, ids []string, includeText bool) ([]*types.Email, error) {
	var fetched []*types.Email
	for start := 0; start < len(ids); start += m.cfg.BatchSize {
		end := start + m.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		var emails []*types.Email
		err := m.cfg.Retry.Do(ctx, func() error {
			got, err := m.client.FetchBatch(ctx, batch, m.cfg.BatchSize)
			if err != nil {
				if !remote.IsRetryable(err) {
					return retry.Permanent(err)
				}
				return err
			}
			emails = got
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("remote fetch failed: %w", err)
		}
		fetched = append(fetched, emails...)
	}

	if includeText {
		fetcher := newTextFetcher(m.client, m.cfg.Retry, m.cfg.TextWorkers, m.logger)
		fetcher.enrich(ctx, fetched)
	}

	for _, e := range fetched {
		m.schema.Stamp(e)
		bucket := e.Bucket()
		if err := m.store.Save(e.ID, bucket, e); err != nil {
			m.logger.WithField("id", e.ID).WithError(err).Warn("Failed to cache email")
			continue
		}
		if err := m.index.Upsert(e.ID, bucket, m.store.Path(e.ID, bucket)); err != nil {
			m.logger.WithField("id", e.ID).WithError(err).Warn("Failed to index email")
			continue
		}
		m.counters.write()
	}
	return fetched, nil
}

// fetchDirect bypasses storage entirely when the cache is disabled.
func (m *Manager) fetchDirect(ctx context.Context, req *FetchRequest, start, end time.Time) ([]*types.Email, error) {
	query := remote.BuildQuery(start, end, req.Filters)
	ids, err := m.searchRemote(ctx, query, req.Limit)
	if err != nil {
		return nil, err
	}

	var emails []*types.Email
	err = m.cfg.Retry.Do(ctx, func() error {
		got, err := m.client.FetchBatch(ctx, ids, m.cfg.BatchSize)
		if err != nil {
			if !remote.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		emails = got
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remote fetch failed: %w", err)
	}

	if req.IncludeText {
		fetcher := newTextFetcher(m.client, m.cfg.Retry, m.cfg.TextWorkers, m.logger)
		fetcher.enrich(ctx, emails)
	}
	if req.Limit > 0 && len(emails) > req.Limit {
		emails = emails[:req.Limit]
	}
	if req.IncludeMetrics && req.IncludeText {
		analysis.Attach(emails)
	}
	return emails, nil
}

// InvalidateAll discards every cached record and resets the indexes. It is
// called automatically after any mutating operation: coarse by design,
// trading a full re-fetch for guaranteed correctness.
func (m *Manager) InvalidateAll() error {
	if err := m.store.Purge(); err != nil {
		return err
	}
	if err := m.index.RebuildAll(); err != nil {
		return err
	}
	m.logger.Info("Cache invalidated")
	return nil
}

// Cleanup deletes emails older than maxAgeDays (the configured default
// when maxAgeDays < 0) and rebuilds the indexes if anything was deleted,
// so they never reference a deleted item.
func (m *Manager) Cleanup(maxAgeDays int) (int, error) {
	if maxAgeDays < 0 {
		maxAgeDays = m.cfg.MaxAgeDays
	}
	deleted, err := m.store.DeleteOlderThan(maxAgeDays)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		if err := m.index.RebuildAll(); err != nil {
			return deleted, err
		}
	}
	m.logger.WithField("deleted", deleted).Info("Cache cleanup complete")
	return deleted, nil
}

// RebuildIndexes reconstructs both indexes from the store.
func (m *Manager) RebuildIndexes() error {
	return m.index.RebuildAll()
}

// Stats combines store totals, index counts, and configuration.
func (m *Manager) Stats() (CacheStats, error) {
	storeStats, err := m.store.Stats()
	if err != nil {
		return CacheStats{}, err
	}
	messages, dates := m.index.Counts()
	return CacheStats{
		StoreStats:      storeStats,
		IndexedMessages: messages,
		IndexedDates:    dates,
		SchemaVersion:   m.schema.Version(),
		MaxAgeDays:      m.cfg.MaxAgeDays,
		Enabled:         m.cfg.Enabled,
	}, nil
}

// AccessStats snapshots the process-lifetime hit/miss counters.
func (m *Manager) AccessStats() AccessStats {
	return m.counters.snapshot(m.cfg.Enabled)
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
