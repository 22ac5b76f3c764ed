package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

// Rooms is the part of the registry the router needs.
type Rooms interface {
	Create(durationSeconds int) (*session.Session, error)
	Get(code string) (*session.Session, error)
}

// RouterConfig throttles updateProgress per connection.
type RouterConfig struct {
	ProgressRate  float64 // updates per second
	ProgressBurst int
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{ProgressRate: 30, ProgressBurst: 60}
}

type client struct {
	room    *session.Session
	limiter *rate.Limiter
}

// Router turns client commands into session calls and replies with an error
// event when a command fails. It implements MessageHandler.
type Router struct {
	rooms  Rooms
	out    session.Deliverer
	config RouterConfig

	mu      sync.Mutex
	clients map[string]*client
}

func NewRouter(rooms Rooms, out session.Deliverer, config RouterConfig) *Router {
	return &Router{
		rooms:   rooms,
		out:     out,
		config:  config,
		clients: make(map[string]*client),
	}
}

func (r *Router) Connect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[connID] = &client{
		limiter: rate.NewLimiter(rate.Limit(r.config.ProgressRate), r.config.ProgressBurst),
	}
}

// Disconnect leaves whatever room the connection was in.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()

	if !ok || c.room == nil {
		return
	}
	if err := c.room.Leave(ctx, connID); err != nil && !isGone(err) {
		log.Warn().Err(err).Str("player_id", connID).Str("room_code", c.room.Code()).Msg("failed to leave room on disconnect")
	}
}

func (r *Router) client(connID string) *client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[connID]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(r.config.ProgressRate), r.config.ProgressBurst)}
		r.clients[connID] = c
	}
	return c
}

// Handle processes one raw client message.
func (r *Router) Handle(ctx context.Context, connID string, raw []byte) {
	cmd, payload, err := events.ParseCommand(raw)
	if err != nil {
		var cmdType events.CommandType
		if cmd != nil {
			cmdType = cmd.Type
		}
		r.reply(connID, cmdType, err)
		return
	}

	if err := r.dispatch(ctx, connID, cmd.Type, payload); err != nil {
		r.reply(connID, cmd.Type, err)
	}
}

func (r *Router) dispatch(ctx context.Context, connID string, cmdType events.CommandType, payload interface{}) error {
	c := r.client(connID)

	switch cmdType {
	case events.CommandCreateRoom:
		return r.createRoom(ctx, connID, c, payload.(*events.CreateRoomPayload))
	case events.CommandJoinRoom:
		return r.joinRoom(ctx, connID, c, payload.(*events.JoinRoomPayload))
	}

	room, err := r.current(c)
	if err != nil {
		return err
	}

	switch cmdType {
	case events.CommandStartRace:
		err = room.Start(ctx, connID)
	case events.CommandUpdateProgress:
		if !c.limiter.Allow() {
			return ErrRateLimited
		}
		_, err = room.Advance(ctx, connID, payload.(*events.UpdateProgressPayload).Input)
	case events.CommandRaceFinished:
		err = room.ReportFinished(ctx, connID, payload.(*events.RaceFinishedPayload).Stats)
	case events.CommandResetRace:
		err = room.Reset(ctx, connID)
	case events.CommandLeaveRoom:
		err = room.Leave(ctx, connID)
		if err == nil || isGone(err) {
			c.room = nil
			return nil
		}
	default:
		return fmt.Errorf("%w: %q", events.ErrUnknownCommand, cmdType)
	}

	if errors.Is(err, session.ErrSessionClosed) {
		c.room = nil
	}
	return err
}

func (r *Router) createRoom(ctx context.Context, connID string, c *client, p *events.CreateRoomPayload) error {
	name, err := events.NormalizeName(p.PlayerName)
	if err != nil {
		return err
	}
	r.leaveCurrent(ctx, connID, c)

	room, err := r.rooms.Create(p.Duration)
	if err != nil {
		return err
	}
	if _, err := room.Join(ctx, connID, name); err != nil {
		room.Close("")
		return err
	}
	c.room = room
	return nil
}

func (r *Router) joinRoom(ctx context.Context, connID string, c *client, p *events.JoinRoomPayload) error {
	name, err := events.NormalizeName(p.PlayerName)
	if err != nil {
		return err
	}
	room, err := r.rooms.Get(p.RoomCode)
	if err != nil {
		return err
	}
	if c.room == room {
		return session.ErrAlreadyMember
	}

	if _, err := room.Join(ctx, connID, name); err != nil {
		return err
	}
	r.leaveCurrent(ctx, connID, c)
	c.room = room
	return nil
}

// current returns the connection's room, forgetting it if it has closed.
func (r *Router) current(c *client) (*session.Session, error) {
	if c.room == nil {
		return nil, ErrNotInRoom
	}
	select {
	case <-c.room.Done():
		c.room = nil
		return nil, ErrNotInRoom
	default:
		return c.room, nil
	}
}

func (r *Router) leaveCurrent(ctx context.Context, connID string, c *client) {
	if c.room == nil {
		return
	}
	if err := c.room.Leave(ctx, connID); err != nil && !isGone(err) {
		log.Warn().Err(err).Str("player_id", connID).Str("room_code", c.room.Code()).Msg("failed to leave previous room")
	}
	c.room = nil
}

func (r *Router) reply(connID string, cmdType events.CommandType, err error) {
	code := ErrorCode(err)
	message := err.Error()
	if code == CodeInternal {
		log.Error().Err(err).Str("player_id", connID).Str("command", string(cmdType)).Msg("command failed")
		message = "internal error"
	} else {
		log.Debug().Err(err).Str("player_id", connID).Str("command", string(cmdType)).Str("code", code).Msg("command rejected")
	}

	ev, buildErr := events.NewEvent("", events.EventTypeError, events.ErrorPayload{
		Code:    code,
		Message: message,
		Command: string(cmdType),
	})
	if buildErr != nil {
		log.Error().Err(buildErr).Msg("failed to build error event")
		return
	}
	r.out.Deliver(connID, ev)
}

func isGone(err error) bool {
	return errors.Is(err, session.ErrSessionClosed) || errors.Is(err, session.ErrNotMember)
}
