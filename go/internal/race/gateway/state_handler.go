package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

// StateProvider serves read-only room state
type StateProvider interface {
	RoomState(ctx context.Context, code string) (*session.State, error)
	ActiveRooms(ctx context.Context) ([]RoomSummary, error)
}

// RoomSummary is one line of the active room listing
type RoomSummary struct {
	RoomCode string        `json:"roomCode"`
	Phase    session.Phase `json:"phase"`
	Players  int           `json:"players"`
	Duration int           `json:"duration"`
}

// RegistryLister is the part of the registry the state provider reads.
type RegistryLister interface {
	Get(code string) (*session.Session, error)
	Codes() []string
}

// RegistryStateProvider snapshots live sessions.
type RegistryStateProvider struct {
	rooms RegistryLister
}

func NewRegistryStateProvider(rooms RegistryLister) *RegistryStateProvider {
	return &RegistryStateProvider{rooms: rooms}
}

func (p *RegistryStateProvider) RoomState(ctx context.Context, code string) (*session.State, error) {
	s, err := p.rooms.Get(code)
	if err != nil {
		return nil, err
	}
	st, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (p *RegistryStateProvider) ActiveRooms(ctx context.Context) ([]RoomSummary, error) {
	var out []RoomSummary
	for _, code := range p.rooms.Codes() {
		st, err := p.RoomState(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// closed between listing and snapshot
			continue
		}
		out = append(out, RoomSummary{
			RoomCode: st.RoomCode,
			Phase:    st.Phase,
			Players:  len(st.Players),
			Duration: st.Duration,
		})
	}
	return lo.Filter(out, func(s RoomSummary, _ int) bool { return s.Players > 0 }), nil
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetRoomState handles GET /api/rooms/{code}/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	state, err := h.stateProvider.RoomState(r.Context(), code)
	switch {
	case errors.Is(err, registry.ErrInvalidCode):
		http.Error(w, "Invalid room code", http.StatusBadRequest)
		return
	case errors.Is(err, registry.ErrRoomNotFound), errors.Is(err, session.ErrSessionClosed):
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error().Err(err).Str("room_code", code).Msg("failed to get room state")
		http.Error(w, "Failed to get room state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Error().Err(err).Msg("failed to encode room state response")
	}
}

// HandleGetActiveRooms handles GET /api/rooms/active
func (h *StateHandler) HandleGetActiveRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.stateProvider.ActiveRooms(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get active rooms")
		http.Error(w, "Failed to get active rooms", http.StatusInternalServerError)
		return
	}
	if rooms == nil {
		rooms = []RoomSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rooms); err != nil {
		log.Error().Err(err).Msg("failed to encode active rooms response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/active", h.HandleGetActiveRooms)
	mux.HandleFunc("GET /api/rooms/{code}/state", h.HandleGetRoomState)
}
