package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/YassineElZaart/learn-chess/internal/config"
	"github.com/YassineElZaart/learn-chess/internal/domain"
)

// Enumerable is a session store that can list all of its ids. Its method
// set is a superset of session.Store.
type Enumerable interface {
	Create(ctx context.Context, s *domain.Session) error
	Load(ctx context.Context, id string) (*domain.Session, error)
	Commit(ctx context.Context, s *domain.Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Session, error)
	IDs(ctx context.Context) ([]string, error)
}

// Backend is an opened, migrated store. DB is set for the SQL backends.
type Backend struct {
	Store   Enumerable
	DB      *DB
	Kind    string
	closers []func() error
}

func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open connects the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.AppConfig) (*Backend, error) {
	b := &Backend{Kind: cfg.StoreBackend}
	switch cfg.StoreBackend {
	case config.BackendMemory:
		b.Store = NewMemory()
	case config.BackendRedis:
		r, err := OpenRedis(ctx, cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		b.Store = r
		b.closers = append(b.closers, r.Close)
	case config.BackendPostgres, config.BackendSQLite:
		dialect, dsn := Postgres, cfg.DatabaseURL
		if cfg.StoreBackend == config.BackendSQLite {
			dialect, dsn = SQLite, cfg.SQLitePath
		}
		db, err := OpenDB(ctx, dialect, dsn)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		st := NewSQL(db)
		if err := st.Migrate(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		b.Store, b.DB = st, db
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return b, nil
}
