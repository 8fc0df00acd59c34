package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/brandon/mailcache/pkg/types"
)

// sqliteSchema is the storage layout for the sqlite backend. The payload is
// the same JSON document the file backend writes, so records stay
// inspectable with the sqlite CLI.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS emails (
    id TEXT PRIMARY KEY,
    bucket TEXT NOT NULL,
    payload TEXT NOT NULL,
    cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_bucket ON emails(bucket);
`

// SQLiteStore is the embedded-database alternative to FileStore. It keeps
// the same (bucket, id) addressing so the index manager and cache manager
// are backend-agnostic.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite cache store initialized")
	return &SQLiteStore{db: db, path: dbPath, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns a pseudo-location for the given id and bucket.
func (s *SQLiteStore) Path(id, bucket string) string {
	return fmt.Sprintf("%s#%s/%s", s.path, bucket, id)
}

// Save upserts the serialized record.
func (s *SQLiteStore) Save(id, bucket string, email *types.Email) error {
	payload, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to marshal email %s: %w", id, err)
	}

	query := `
		INSERT INTO emails (id, bucket, payload, cached_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			bucket = excluded.bucket,
			payload = excluded.payload,
			cached_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.Exec(query, id, bucket, string(payload)); err != nil {
		return fmt.Errorf("failed to upsert email %s: %w", id, err)
	}
	return nil
}

// Load reads a record back; absent rows and undecodable payloads both
// yield (nil, nil).
func (s *SQLiteStore) Load(id, bucket string) (*types.Email, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM emails WHERE id = ? AND bucket = ?", id, bucket).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email %s: %w", id, err)
	}

	var email types.Email
	if err := json.Unmarshal([]byte(payload), &email); err != nil {
		s.logger.WithField("id", id).WithError(err).Warn("Corrupt cache record, treating as absent")
		return nil, nil
	}
	return &email, nil
}

// DeleteOlderThan removes all rows in buckets older than maxAgeDays.
func (s *SQLiteStore) DeleteOlderThan(maxAgeDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays).Format(types.BucketFormat)
	result, err := s.db.Exec("DELETE FROM emails WHERE bucket < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old emails: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted emails: %w", err)
	}
	return int(n), nil
}

// Purge deletes every record.
func (s *SQLiteStore) Purge() error {
	if _, err := s.db.Exec("DELETE FROM emails"); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}

// Each visits every (id, bucket) pair in the store.
func (s *SQLiteStore) Each(fn func(id, bucket string) error) error {
	rows, err := s.db.Query("SELECT id, bucket FROM emails ORDER BY bucket, id")
	if err != nil {
		return fmt.Errorf("failed to scan emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, bucket string
		if err := rows.Scan(&id, &bucket); err != nil {
			return fmt.Errorf("failed to scan email row: %w", err)
		}
		if err := fn(id, bucket); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats reports totals over the emails table.
func (s *SQLiteStore) Stats() (StoreStats, error) {
	var stats StoreStats
	query := `
		SELECT COUNT(*), COUNT(DISTINCT bucket), COALESCE(SUM(LENGTH(payload)), 0)
		FROM emails
	`
	if err := s.db.QueryRow(query).Scan(&stats.TotalEmails, &stats.TotalBuckets, &stats.SizeBytes); err != nil {
		return stats, fmt.Errorf("failed to query cache stats: %w", err)
	}
	return stats, nil
}
