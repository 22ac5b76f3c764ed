package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RoomRegistry is everything the gateway needs from the session registry
type RoomRegistry interface {
	Rooms
	RegistryLister
	Run(ctx context.Context) error
	Shutdown()
	Len() int
}

// Service is the race gateway: WebSocket connections, command routing and the
// read-only state endpoints.
type Service struct {
	connectionManager *ConnectionManager
	router            *Router
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	rooms             RoomRegistry
}

// Config holds configuration for the race gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	RouterConfig     RouterConfig
}

// DefaultConfig returns default configuration for the race gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RouterConfig:     DefaultRouterConfig(),
	}
}

// NewService wires the gateway around cm, which must also be the Deliverer
// the registry's sessions publish to.
func NewService(config Config, cm *ConnectionManager, rooms RoomRegistry) *Service {
	router := NewRouter(rooms, cm, config.RouterConfig)
	cm.SetHandler(router)

	return &Service{
		connectionManager: cm,
		router:            router,
		wsHandler:         NewWebSocketHandler(cm),
		stateHandler:      NewStateHandler(NewRegistryStateProvider(rooms)),
		rooms:             rooms,
	}
}

// Start runs the room sweeper until ctx is cancelled, then stops the service
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway service")

	if err := s.rooms.Run(ctx); err != nil {
		log.Error().Err(err).Msg("room sweeper failed")
	}

	log.Info().Msg("race gateway service shutting down")
	return s.Stop()
}

// Stop closes every room, then every connection
func (s *Service) Stop() error {
	s.rooms.Shutdown()
	s.connectionManager.CloseAll()
	log.Info().Msg("race gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("race gateway routes registered")
}

// Stats summarises the gateway for the info endpoint
type Stats struct {
	Service     string `json:"service"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
}

func (s *Service) GetStats() Stats {
	return Stats{
		Service:     "race_gateway",
		Connections: s.connectionManager.GetConnectionStats().TotalConnections,
		Rooms:       s.rooms.Len(),
	}
}
