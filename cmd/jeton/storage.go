package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/config"
	"github.com/alecgard/jeton/internal/crypto"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/metrics"
	"github.com/alecgard/jeton/internal/sqlitedb"
	"github.com/alecgard/jeton/internal/user"
)

// backend bundles the stores for one storage driver.
type backend struct {
	users  user.Store
	ledger ledger.Store
	usage  audit.Store

	// health pings the database; nil for the memory driver.
	health func(ctx context.Context) error
	// poolStats reports connection pool usage; nil for the memory driver.
	poolStats metrics.DBPoolStatFunc
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	cipher, err := crypto.NewCipher(cfg.Audit.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("audit encryption key: %w", err)
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		slog.Info("connected to database", "driver", cfg.Database.Driver)
		return &backend{
			users:  user.NewPostgresStore(pool),
			ledger: ledger.NewPostgresStore(pool),
			usage:  audit.NewPostgresStore(pool, cipher),
			health: pool.Ping,
			poolStats: func() metrics.DBStats {
				s := pool.Stat()
				return metrics.DBStats{
					TotalConns:    s.TotalConns(),
					IdleConns:     s.IdleConns(),
					AcquiredConns: s.AcquiredConns(),
					MaxConns:      s.MaxConns(),
					WaitCount:     s.EmptyAcquireCount(),
					WaitDuration:  s.AcquireDuration(),
				}
			},
			close: pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlitedb.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened database", "driver", cfg.Database.Driver, "path", cfg.Database.SQLitePath)
		slog.Warn("sqlite is single-writer; ledger writes for all users are serialized")
		return &backend{
			users:     user.NewSQLiteStore(db),
			ledger:    ledger.NewSQLiteStore(db),
			usage:     audit.NewSQLiteStore(db, cipher),
			health:    db.PingContext,
			poolStats: func() metrics.DBStats { return metrics.SQLStats(db.Stats()) },
			close:     func() { _ = db.Close() },
		}, nil

	case config.DriverMemory:
		slog.Warn("using in-memory storage; all data is lost on exit")
		return &backend{
			users:  user.NewMemoryStore(),
			ledger: ledger.NewMemoryStore(cfg.Ledger.LockStripes),
			usage:  audit.NewMemoryStore(),
			close:  func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}
