package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/trierg/go/internal/activerace"
	"github.com/mcdev12/trierg/go/internal/identity"
	"github.com/mcdev12/trierg/go/internal/store"
)

// Service ties the WebSocket fan-out to the snapshot feed and exposes the
// operator HTTP surface. Every committed write eventually arrives here as a
// full-collection snapshot and is pushed to all connected displays.
type Service struct {
	connectionManager *ConnectionManager
	actions           *ActionHandler
	auth              *JWTAuthenticator
	feed              store.Feed
	subs              []store.Subscription
}

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JWTSecret        string
	JWTIssuer        string
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JWTIssuer:        "trierg",
	}
}

// NewService creates the gateway over a synchronizer and its feed.
func NewService(config Config, sync *activerace.Synchronizer, st store.Store, feed store.Feed) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig),
		actions:           NewActionHandler(sync, st),
		auth:              NewJWTAuthenticator(config.JWTSecret, config.JWTIssuer),
		feed:              feed,
	}
}

// Auth exposes the token verifier, mostly so tooling can mint tokens.
func (s *Service) Auth() *JWTAuthenticator { return s.auth }

// Start begins broadcasting snapshots and runs until the context is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	for _, c := range store.Collections {
		if c == store.CollectionUsers {
			continue
		}
		sub, err := s.feed.Subscribe(ctx, c, func(snap store.Snapshot) {
			event, ok := snapshotEvent(snap)
			if !ok {
				return
			}
			s.connectionManager.Broadcast(event)
		})
		if err != nil {
			s.Stop()
			return fmt.Errorf("subscribe %s feed: %w", c, err)
		}
		s.subs = append(s.subs, sub)
	}

	<-ctx.Done()

	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop detaches the service from the snapshot feed.
func (s *Service) Stop() error {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	log.Info().Msg("gateway service stopped")
	return nil
}

// HandleConnection handles WebSocket upgrade requests from display clients.
// Displays are read-only, so an anonymous connection is fine.
func (s *Service) HandleConnection(w http.ResponseWriter, r *http.Request) {
	id := s.auth.Identify(r)
	userID := id.ID
	if userID == "" {
		userID = "anonymous"
	}

	if err := s.connectionManager.UpgradeConnection(w, r, userID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleStats handles GET /ws/stats.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": s.connectionManager.ConnectionCount(),
	})
}

// RegisterRoutes registers the WebSocket and operator action routes. Action
// routes run behind the identity middleware; callers without a valid token
// act as guests.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/live", s.HandleConnection)
	mux.HandleFunc("GET /ws/stats", s.HandleStats)

	actions := http.NewServeMux()
	s.actions.RegisterRoutes(actions)
	mux.Handle("/api/", s.identityMiddleware(actions))

	log.Info().Msg("gateway routes registered")
}

// identityMiddleware authenticates the caller and attaches the identity to
// the request context. When the token subject matches a stored operator
// account, the stored role wins over the token's claim, so a role change
// takes effect without re-issuing tokens.
func (s *Service) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.auth.Identify(r)
		if uid, err := uuid.Parse(id.ID); err == nil {
			if u, ok := s.actions.sync.Cache().UserByID(uid); ok {
				id.Role = u.Role
			}
		}
		next.ServeHTTP(w, r.WithContext(identity.NewContext(r.Context(), id)))
	})
}

// Broadcast pushes an event to every connected client, useful in tests.
func (s *Service) Broadcast(event *RaceEvent) {
	s.connectionManager.Broadcast(event)
}
