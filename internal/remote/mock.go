package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/brandon/mailcache/pkg/types"
)

// CallLogEntry records one call made against the mock, for assertions.
type CallLogEntry struct {
	Op     string
	Detail string
}

// Mock is a seedable in-memory Client for deterministic unit tests. Search
// filters the seeded emails by the query's date range and folder; FetchText
// serves separately seeded bodies and can be made to fail a fixed number of
// times per id.
type Mock struct {
	mu      sync.Mutex
	emails  map[string]*types.Email
	texts   map[string]string
	CallLog []CallLogEntry

	// TextFailures maps id -> remaining number of FetchText calls that
	// should fail with ErrRateLimited before succeeding.
	TextFailures map[string]int

	// SearchErr, when set, is returned by every Search call.
	SearchErr error
}

// NewMock creates an empty mock client.
func NewMock() *Mock {
	return &Mock{
		emails:       make(map[string]*types.Email),
		texts:        make(map[string]string),
		TextFailures: make(map[string]int),
	}
}

// Seed adds emails to the mock's remote state.
func (m *Mock) Seed(emails ...*types.Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range emails {
		m.emails[e.ID] = e.Clone()
	}
}

// SeedText registers the text body served by FetchText for an id.
func (m *Mock) SeedText(id, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[id] = text
}

// Remove deletes an email from the mock's remote state, simulating a
// remote-side deletion or move out of the searched set.
func (m *Mock) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.emails, id)
}

// Calls returns how many calls of the given op were made.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.CallLog {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Mock) record(op, detail string) {
	m.CallLog = append(m.CallLog, CallLogEntry{Op: op, Detail: detail})
}

// Search implements Client.
func (m *Mock) Search(ctx context.Context, q *Query, maxResults int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("search", q.String())

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	start := q.Start.UTC().Format(types.BucketFormat)
	end := q.End.UTC().Format(types.BucketFormat)
	matched := make([]*types.Email, 0, len(m.emails))
	for _, e := range m.emails {
		day := e.Timestamp.UTC().Format(types.BucketFormat)
		if day < start || day > end {
			continue
		}
		if !q.Filters.FolderMatches(e) {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first, like the real backend.
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	ids := make([]string, 0, len(matched))
	for _, e := range matched {
		ids = append(ids, e.ID)
		if maxResults > 0 && len(ids) >= maxResults {
			break
		}
	}
	return ids, nil
}

// FetchBatch implements Client. Text bodies are not included; they are
// served by FetchText like the real backend's per-message format call.
func (m *Mock) FetchBatch(ctx context.Context, ids []string, batchSize int) ([]*types.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fetch_batch", "")

	out := make([]*types.Email, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.emails[id]; ok {
			c := e.Clone()
			c.TextContent = ""
			out = append(out, c)
		}
	}
	return out, nil
}

// FetchText implements Client.
func (m *Mock) FetchText(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fetch_text", id)

	if remaining := m.TextFailures[id]; remaining > 0 {
		m.TextFailures[id] = remaining - 1
		return "", ErrRateLimited
	}
	if _, ok := m.emails[id]; !ok {
		return "", ErrNotFound
	}
	return m.texts[id], nil
}

// Modify implements Client by rewriting labels on seeded emails.
func (m *Mock) Modify(ctx context.Context, ids, addLabels, removeLabels []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("modify", "")

	result := make(map[string]bool, len(ids))
	for _, id := range ids {
		e, ok := m.emails[id]
		if !ok {
			result[id] = false
			continue
		}
		for _, l := range addLabels {
			if !e.HasLabel(l) {
				e.Labels = append(e.Labels, l)
			}
		}
		for _, l := range removeLabels {
			kept := e.Labels[:0]
			for _, have := range e.Labels {
				if have != l {
					kept = append(kept, have)
				}
			}
			e.Labels = kept
		}
		result[id] = true
	}
	return result, nil
}
