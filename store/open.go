// Package store picks and connects the inquiry store named by configuration.
package store

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"inquiryflow/config"
	"inquiryflow/db"
	"inquiryflow/inquiry"
	mongostore "inquiryflow/store/mongo"
	"inquiryflow/store/postgres"
	"inquiryflow/store/sqlite"
)

// TimelineSource reads the recorded transitions of an inquiry.
type TimelineSource interface {
	Timeline(ctx context.Context, id int64) ([]postgres.Event, error)
}

// Backend is an opened store plus whatever connections it holds.
type Backend struct {
	Store  inquiry.Store
	Driver string
	// Pool is set for the postgres driver; the employee repository shares it.
	Pool *pgxpool.Pool
	// Timeline is nil unless the driver records a transition timeline.
	Timeline TimelineSource

	closers []func()
}

// Close releases the backend's connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects the configured driver and wraps it with store metrics.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Backend, error) {
	if logger == nil {
		logger = log.Default()
	}
	b := &Backend{Driver: cfg.StoreDriver}

	var st inquiry.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = inquiry.NewMemoryStore()

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("store: postgres: %w", err)
		}
		b.Pool = pool
		b.closers = append(b.closers, pool.Close)
		ps := postgres.New(pool)
		b.Timeline = ps
		st = ps

	case config.DriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, fmt.Errorf("store: mongo: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := db.DisconnectMongo(client); err != nil {
				logger.Printf("mongo disconnect: %v", err)
			}
		})
		ms := mongostore.New(database)
		if err := ms.EnsureIndexes(ctx); err != nil {
			b.Close()
			return nil, err
		}
		st = ms

	case config.DriverSQLite:
		ss, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := ss.Close(); err != nil {
				logger.Printf("sqlite close: %v", err)
			}
		})
		st = ss

	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.StoreDriver)
	}

	b.Store = inquiry.NewInstrumentedStore(st, cfg.StoreDriver)
	logger.Printf("inquiry store ready (driver=%s)", cfg.StoreDriver)
	return b, nil
}
