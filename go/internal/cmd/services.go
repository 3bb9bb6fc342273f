package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/activerace"
	"github.com/mcdev12/trierg/go/internal/gateway"
	"github.com/mcdev12/trierg/go/internal/store"
)

// Services bundles the wired application: the durable store, the snapshot
// feed the clients converge over, the synchronizer, and the gateway.
type Services struct {
	Store        store.Store
	Feed         store.Feed
	Synchronizer *activerace.Synchronizer
	Gateway      *gateway.Service

	prime   func(context.Context) error
	closers []func()
}

func setupServices(cfg *Config) (*Services, error) {
	services := &Services{}

	// Store layer. Postgres publishes every committed write to NATS as a
	// full-collection snapshot; the memory backend is its own feed.
	switch cfg.Store.Backend {
	case "postgres":
		db, err := setupDatabase()
		if err != nil {
			return nil, err
		}
		services.closers = append(services.closers, func() { db.Close() })

		natsCfg := store.DefaultNATSConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		feed, err := store.NewNATSFeed(natsCfg)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		services.closers = append(services.closers, feed.Close)

		pg := store.NewPostgres(db, feed)
		services.Store = pg
		services.Feed = feed
		services.prime = pg.PublishAll

	case "memory":
		mem := store.NewMemory()
		services.Store = mem
		services.Feed = mem

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// Synchronizer over the store and feed. Failed background writes are
	// logged; the client's local view simply never converges to them.
	services.Synchronizer = activerace.New(services.Store, services.Feed,
		activerace.WithSyncErrorHandler(func(err *activerace.SyncError) {
			log.Error().Err(err.Err).Str("op", err.Op).Msg("background write failed")
		}),
	)
	services.closers = append(services.closers, services.Synchronizer.Close)

	gwConfig := gateway.DefaultConfig()
	gwConfig.JWTSecret = cfg.Auth.JWTSecret
	gwConfig.JWTIssuer = cfg.Auth.JWTIssuer
	services.Gateway = gateway.NewService(gwConfig, services.Synchronizer, services.Store, services.Feed)

	return services, nil
}

// PrimeFeed republishes every collection snapshot so freshly subscribed
// caches converge immediately instead of on the next write. No-op for the
// memory backend, whose Subscribe already hands over the current state.
func (s *Services) PrimeFeed(ctx context.Context) error {
	if s.prime == nil {
		return nil
	}
	return s.prime(ctx)
}

// Close tears the services down in reverse wiring order.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
