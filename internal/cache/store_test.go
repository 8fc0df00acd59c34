package cache

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mailcache/pkg/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEmail(id string, day string) *types.Email {
	ts, err := time.Parse(types.BucketFormat, day)
	if err != nil {
		panic(err)
	}
	return &types.Email{
		ID:          id,
		SenderEmail: "alice@example.com",
		Subject:     "hello " + id,
		Timestamp:   ts.Add(10 * time.Hour),
		SizeBytes:   1024,
		Labels:      []string{"INBOX", "UNREAD"},
	}
}

// storeFactories builds each backend in a temp location so the whole suite
// runs against both.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"file": func() Store {
			s, err := NewFileStore(t.TempDir(), testLogger())
			require.NoError(t, err)
			return s
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "emails.db"), testLogger())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreSaveLoadRoundtrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			e := testEmail("msg-1", "2024-01-01")

			require.NoError(t, s.Save(e.ID, e.Bucket(), e))

			got, err := s.Load("msg-1", "2024-01-01")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "msg-1", got.ID)
			assert.Equal(t, "alice@example.com", got.SenderEmail)
			assert.Equal(t, []string{"INBOX", "UNREAD"}, got.Labels)
		})
	}
}

func TestStoreLoadAbsent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			got, err := s.Load("missing", "2024-01-01")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStoreSaveIsIdempotent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			e := testEmail("msg-1", "2024-01-01")

			require.NoError(t, s.Save(e.ID, e.Bucket(), e))
			e.Subject = "updated"
			require.NoError(t, s.Save(e.ID, e.Bucket(), e))

			got, err := s.Load("msg-1", "2024-01-01")
			require.NoError(t, err)
			assert.Equal(t, "updated", got.Subject)

			stats, err := s.Stats()
			require.NoError(t, err)
			assert.Equal(t, 1, stats.TotalEmails)
		})
	}
}

func TestStoreDeleteOlderThan(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			oldDay := time.Now().UTC().AddDate(0, 0, -10).Format(types.BucketFormat)
			newDay := time.Now().UTC().Format(types.BucketFormat)
			require.NoError(t, s.Save("old", oldDay, testEmail("old", oldDay)))
			require.NoError(t, s.Save("new", newDay, testEmail("new", newDay)))

			deleted, err := s.DeleteOlderThan(5)
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			gone, err := s.Load("old", oldDay)
			require.NoError(t, err)
			assert.Nil(t, gone)
			kept, err := s.Load("new", newDay)
			require.NoError(t, err)
			assert.NotNil(t, kept)
		})
	}
}

func TestStorePurge(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			require.NoError(t, s.Save("a", "2024-01-01", testEmail("a", "2024-01-01")))
			require.NoError(t, s.Save("b", "2024-01-02", testEmail("b", "2024-01-02")))

			require.NoError(t, s.Purge())

			stats, err := s.Stats()
			require.NoError(t, err)
			assert.Zero(t, stats.TotalEmails)
			assert.Zero(t, stats.TotalBuckets)
		})
	}
}

func TestStoreEachVisitsAll(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			require.NoError(t, s.Save("a", "2024-01-01", testEmail("a", "2024-01-01")))
			require.NoError(t, s.Save("b", "2024-01-02", testEmail("b", "2024-01-02")))

			seen := map[string]string{}
			require.NoError(t, s.Each(func(id, bucket string) error {
				seen[id] = bucket
				return nil
			}))
			assert.Equal(t, map[string]string{"a": "2024-01-01", "b": "2024-01-02"}, seen)
		})
	}
}

func TestStoreStats(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			require.NoError(t, s.Save("a", "2024-01-01", testEmail("a", "2024-01-01")))
			require.NoError(t, s.Save("b", "2024-01-01", testEmail("b", "2024-01-01")))
			require.NoError(t, s.Save("c", "2024-01-02", testEmail("c", "2024-01-02")))

			stats, err := s.Stats()
			require.NoError(t, err)
			assert.Equal(t, 3, stats.TotalEmails)
			assert.Equal(t, 2, stats.TotalBuckets)
			assert.Greater(t, stats.SizeBytes, int64(0))
		})
	}
}

// Corruption handling is backend-specific for the file store: a truncated
// JSON file must read back as absent, not as an error.
func TestFileStoreCorruptRecordTreatedAsAbsent(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, testLogger())
	require.NoError(t, err)

	e := testEmail("msg-1", "2024-01-01")
	require.NoError(t, s.Save(e.ID, e.Bucket(), e))
	require.NoError(t, os.WriteFile(s.Path("msg-1", "2024-01-01"), []byte("{not json"), 0644))

	got, err := s.Load("msg-1", "2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, testLogger())
	require.NoError(t, err)

	e := testEmail("msg-1", "2024-01-01")
	require.NoError(t, s.Save(e.ID, e.Bucket(), e))

	assert.FileExists(t, filepath.Join(root, "emails", "2024-01-01", "msg-1.json"))
}
