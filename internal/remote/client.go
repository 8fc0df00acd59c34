// Package remote defines the capability interface the cache engine needs
// from a mailbox backend, plus the query expression builder, an IMAP
// implementation, and an in-memory fake for tests.
package remote

import (
	"context"
	"errors"

	"github.com/brandon/mailcache/pkg/types"
)

// Client is the remote mailbox capability the cache manager depends on.
// The cache engine never talks to a concrete backend directly.
type Client interface {
	// Search returns the ids the remote currently considers a match for
	// the query. maxResults <= 0 means no cap.
	Search(ctx context.Context, q *Query, maxResults int) ([]string, error)

	// FetchBatch retrieves full records for the given ids. The client may
	// batch remotely or fall back to per-id calls; batchSize is a hint.
	// Ids unknown to the remote are silently omitted from the result.
	FetchBatch(ctx context.Context, ids []string, batchSize int) ([]*types.Email, error)

	// FetchText retrieves the large text body for a single id.
	FetchText(ctx context.Context, id string) (string, error)

	// Modify adds and removes labels on the given ids and reports per-id
	// success.
	Modify(ctx context.Context, ids, addLabels, removeLabels []string) (map[string]bool, error)
}

// Error taxonomy shared by all Client implementations. Auth failures are
// fatal for the session; rate limits and unavailability are transient.
var (
	ErrAuth        = errors.New("remote: authentication failed")
	ErrRateLimited = errors.New("remote: rate limited")
	ErrUnavailable = errors.New("remote: service unavailable")
	ErrNotFound    = errors.New("remote: message not found")
)

// IsRetryable reports whether err is worth retrying under the shared
// backoff policy. Auth failures and missing messages are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
