// Package bootstrap builds the runtime components shared by branchmem
// commands from a resolved config: the logger, storage driver, event
// publisher and memory service.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/papercomputeco/branchmem/pkg/config"
	"github.com/papercomputeco/branchmem/pkg/convmem"
	"github.com/papercomputeco/branchmem/pkg/dotdir"
	"github.com/papercomputeco/branchmem/pkg/eventstream"
	"github.com/papercomputeco/branchmem/pkg/eventstream/kafka"
	"github.com/papercomputeco/branchmem/pkg/eventstream/nop"
	"github.com/papercomputeco/branchmem/pkg/history"
	"github.com/papercomputeco/branchmem/pkg/logger"
	"github.com/papercomputeco/branchmem/pkg/storage"
	"github.com/papercomputeco/branchmem/pkg/storage/inmemory"
	"github.com/papercomputeco/branchmem/pkg/storage/postgres"
	"github.com/papercomputeco/branchmem/pkg/storage/sqlite"
)

// NewLogger builds the process logger. level may be nil; when set it is
// seeded from cfg and can be changed at runtime. When cfg.Log.File is set,
// records are also appended to that file as JSON and the returned file must
// be closed by the caller.
func NewLogger(cfg *config.Config, level *slog.LevelVar) (*slog.Logger, *os.File, error) {
	opts := []logger.Option{
		logger.WithDebug(cfg.Log.Debug),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON),
	}
	if level != nil {
		opts = append(opts, logger.WithLevel(level))
	}
	console := logger.New(opts...)

	if cfg.Log.File == "" {
		return console, nil, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileOpts := []logger.Option{
		logger.WithDebug(cfg.Log.Debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	}
	if level != nil {
		fileOpts = append(fileOpts, logger.WithLevel(level))
	}

	return logger.Multi(console, logger.New(fileOpts...)), f, nil
}

// ResolveSQLitePath places relative database paths inside the resolved
// .branchmem directory unless the file already exists relative to the
// working directory.
func ResolveSQLitePath(path, configDir string) (string, error) {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path, nil
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving data dir: %w", err)
	}
	if target == "" {
		return path, nil
	}

	return filepath.Join(target, path), nil
}

// OpenDriver opens the configured storage backend.
func OpenDriver(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case config.StorageInMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.StorageSQLite, "":
		path, err := ResolveSQLitePath(cfg.Storage.SQLitePath, configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewSQLiteDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	case config.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the %s driver", config.StoragePostgres)
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

// NewPublisher creates the configured memory event publisher.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case config.EventStreamNop, "":
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.Brokers,
			Topic:   cfg.EventStream.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing memory events to kafka",
			"brokers", cfg.EventStream.Brokers,
			"topic", p.Topic(),
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider: %q", cfg.EventStream.Provider)
	}
}

// NewService creates the conversation memory service.
func NewService(cfg *config.Config, driver storage.Driver, pub eventstream.Publisher, log *slog.Logger) (*convmem.Service, error) {
	scheme, err := history.ParseScheme(cfg.Memory.Scheme)
	if err != nil {
		return nil, err
	}

	return convmem.NewService(convmem.Config{
		Store:     driver,
		Scheme:    scheme,
		Enabled:   cfg.Memory.Enabled,
		Publisher: pub,
		Logger:    log,
	})
}
