// Package cli implements the mailcache command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brandon/mailcache/internal/cache"
	"github.com/brandon/mailcache/internal/config"
	"github.com/brandon/mailcache/internal/mail"
	"github.com/brandon/mailcache/internal/remote"
	"github.com/brandon/mailcache/internal/retry"
)

// app holds the wired dependencies shared by all subcommands.
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	client  remote.Client
	manager *cache.Manager
	service *mail.Service

	closers []func() error
}

var version = "dev"

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "mailcache",
		Short:         "Cache-synchronized mailbox retrieval",
		Long:          "mailcache keeps a local, schema-versioned cache of a remote mailbox and serves queries from it, fetching only what the remote says has changed.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(configPath, verbose)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newFetchCommand(a),
		newStatsCommand(a),
		newCleanupCommand(a),
		newInvalidateCommand(a),
		newRebuildIndexCommand(a),
		newModifyCommand(a),
	)
	return root
}

// init loads configuration and wires the dependency graph.
func (a *app) init(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	a.logger = logger

	a.client = remote.NewIMAPClient(remote.IMAPConfig{
		Host:     cfg.IMAP.Host,
		Port:     cfg.IMAP.Port,
		Username: cfg.IMAP.Username,
		Password: cfg.IMAP.Password,
		Mailbox:  cfg.IMAP.Mailbox,
	}, logger)

	store, err := a.openStore()
	if err != nil {
		return err
	}

	index, err := cache.NewIndexManager(store, filepath.Join(cfg.CacheDir, "metadata"), logger)
	if err != nil {
		return err
	}

	manager, err := cache.NewManager(a.client, store, index, cache.NewSchemaManager(), cache.ManagerConfig{
		Enabled:     cfg.CacheEnabled,
		MaxAgeDays:  cfg.MaxCacheAgeDays,
		BatchSize:   cfg.RemoteBatchSize,
		TextWorkers: cfg.TextFetchWorkers,
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    retry.DefaultPolicy.MaxDelay,
			Jitter:      retry.DefaultPolicy.Jitter,
		},
	}, logger)
	if err != nil {
		return err
	}
	a.manager = manager
	a.service = mail.NewService(a.client, manager, logger)
	return nil
}

func (a *app) openStore() (cache.Store, error) {
	switch a.cfg.CacheBackend {
	case "sqlite":
		s, err := cache.NewSQLiteStore(filepath.Join(a.cfg.CacheDir, "emails.db"), a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "file":
		return cache.NewFileStore(a.cfg.CacheDir, a.logger)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.CacheBackend)
	}
}

func (a *app) close() error {
	var first error
	for _, fn := range a.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
