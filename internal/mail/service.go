// Package mail exposes the high-level mailbox operations: folder reads
// backed by the cache engine and label mutations that keep it consistent.
package mail

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcache/internal/cache"
	"github.com/brandon/mailcache/internal/remote"
	"github.com/brandon/mailcache/pkg/types"
)

// Service ties the remote client and the cache engine together. Reads go
// through the cache; every mutation goes to the remote first and then
// invalidates the whole cache, so a stale read after a successful mutation
// is impossible.
type Service struct {
	client remote.Client
	cache  *cache.Manager
	logger *logrus.Logger
}

// NewService wires a service from its dependencies.
func NewService(client remote.Client, cacheManager *cache.Manager, logger *logrus.Logger) *Service {
	return &Service{client: client, cache: cacheManager, logger: logger}
}

// GetEmails retrieves emails for an arbitrary request.
func (s *Service) GetEmails(ctx context.Context, req *cache.FetchRequest) ([]*types.Email, error) {
	return s.cache.Fetch(ctx, req)
}

// GetInbox retrieves inbox emails for the trailing number of days.
func (s *Service) GetInbox(ctx context.Context, days, limit int, includeText bool) ([]*types.Email, error) {
	return s.getFolder(ctx, remote.FolderInbox, days, limit, includeText)
}

// GetSpam retrieves spam emails for the trailing number of days.
func (s *Service) GetSpam(ctx context.Context, days, limit int, includeText bool) ([]*types.Email, error) {
	return s.getFolder(ctx, remote.FolderSpam, days, limit, includeText)
}

// GetTrash retrieves trashed emails for the trailing number of days.
func (s *Service) GetTrash(ctx context.Context, days, limit int, includeText bool) ([]*types.Email, error) {
	return s.getFolder(ctx, remote.FolderTrash, days, limit, includeText)
}

func (s *Service) getFolder(ctx context.Context, folder remote.Folder, days, limit int, includeText bool) ([]*types.Email, error) {
	req := &cache.FetchRequest{
		Days:        days,
		Limit:       limit,
		Filters:     remote.Filters{Folder: folder},
		IncludeText: includeText,
	}
	return s.cache.Fetch(ctx, req)
}

// ModifyLabels applies label changes remotely, then invalidates the cache.
// The per-id result map reports partial success; invalidation happens if
// any id succeeded.
func (s *Service) ModifyLabels(ctx context.Context, ids, addLabels, removeLabels []string) (map[string]bool, error) {
	results, err := s.client.Modify(ctx, ids, addLabels, removeLabels)
	if err != nil {
		return nil, fmt.Errorf("failed to modify labels: %w", err)
	}

	anyChanged := false
	for _, ok := range results {
		if ok {
			anyChanged = true
			break
		}
	}
	if anyChanged {
		if err := s.cache.InvalidateAll(); err != nil {
			s.logger.WithError(err).Warn("Cache invalidation failed after label change")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(ids),
		"add":       addLabels,
		"remove":    removeLabels,
	}).Info("Labels modified")
	return results, nil
}

// MarkRead clears the unread flag on the given emails.
func (s *Service) MarkRead(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.ModifyLabels(ctx, ids, nil, []string{"UNREAD"})
}

// Star flags the given emails as starred.
func (s *Service) Star(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.ModifyLabels(ctx, ids, []string{"STARRED"}, nil)
}

// Trash moves the given emails to trash.
func (s *Service) Trash(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.ModifyLabels(ctx, ids, []string{"TRASH"}, []string{"INBOX"})
}
