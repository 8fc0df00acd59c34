package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/internal/remote"
	"github.com/brandon/mailcache/internal/retry"
	"github.com/brandon/mailcache/pkg/types"
)

// textErrorPlaceholder marks an email whose body could not be fetched after
// retry exhaustion. The item stays in the result; one failed body never
// fails the batch.
const textErrorPlaceholder = "[text unavailable: %v]"

// defaultTextWorkers caps the per-item body fetch concurrency.
const defaultTextWorkers = 3

// textFetcher fills TextContent on a batch of emails using a small worker
// pool. Each worker owns a disjoint subset of the slice, so there is no
// shared mutable state between workers.
type textFetcher struct {
	client  remote.Client
	policy  retry.Policy
	workers int
	logger  *logrus.Logger
}

func newTextFetcher(client remote.Client, policy retry.Policy, workers int, logger *logrus.Logger) *textFetcher {
	if workers <= 0 {
		workers = defaultTextWorkers
	}
	return &textFetcher{client: client, policy: policy, workers: workers, logger: logger}
}

// enrich populates TextContent for every email that lacks it.
func (f *textFetcher) enrich(ctx context.Context, emails []*types.Email) {
	pending := make(chan *types.Email)

	var wg sync.WaitGroup
	workers := f.workers
	if workers > len(emails) {
		workers = len(emails)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range pending {
				f.fetchOne(ctx, e)
			}
		}()
	}

	for _, e := range emails {
		if e.TextContent != "" {
			continue
		}
		pending <- e
	}
	close(pending)
	wg.Wait()
}

// fetchOne retrieves one body under the shared retry policy. Missing
// messages and auth failures are not retried.
func (f *textFetcher) fetchOne(ctx context.Context, e *types.Email) {
	err := f.policy.Do(ctx, func() error {
		text, err := f.client.FetchText(ctx, e.ID)
		if err != nil {
			if !remote.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		e.TextContent = text
		return nil
	})
	if err != nil {
		f.logger.WithField("id", e.ID).WithError(err).Warn("Text fetch failed")
		e.TextContent = fmt.Sprintf(textErrorPlaceholder, err)
	}
}
