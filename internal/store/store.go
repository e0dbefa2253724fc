package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weararcstarz/arcstar/internal/domain"
	"github.com/weararcstarz/arcstar/internal/store/filestore"
	"github.com/weararcstarz/arcstar/internal/store/postgres"
)

// Store is the subscriber persistence contract. Both backends return the same
// statuses and errors for the same inputs.
type Store interface {
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	FindByEmail(ctx context.Context, email string) (domain.Subscriber, error)
	AddOrResubscribe(ctx context.Context, name, email string) (domain.AddStatus, error)
	MergeSubscribers(ctx context.Context, rows []domain.MergeRow) (int, error)
	UnsubscribeEmail(ctx context.Context, email string) error
	Ping(ctx context.Context) error
	Close() error
}

type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendFile     Backend = "file"
)

type Options struct {
	DSN      string
	FilePath string
	Logger   *slog.Logger
}

func (o Options) Backend() Backend {
	if strings.TrimSpace(o.DSN) != "" {
		return BackendPostgres
	}
	return BackendFile
}

// Open picks the backend once: PostgreSQL when a DSN is configured, the JSON
// file otherwise.
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend() {
	case BackendPostgres:
		db, err := postgres.Open(ctx, opts.DSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("subscriber store ready", "backend", BackendPostgres)
		return postgres.NewSubscribersStore(db), nil
	default:
		path := opts.FilePath
		if path == "" {
			path = "waitlist.json"
		}
		s := filestore.New(path)
		if err := s.Ping(ctx); err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		logger.Info("subscriber store ready", "backend", BackendFile, "path", path)
		return s, nil
	}
}
