package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	sent map[string][]*events.Event
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{sent: make(map[string][]*events.Event)}
}

func (r *recordingDeliverer) Deliver(playerID string, ev *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[playerID] = append(r.sent[playerID], ev)
}

func (r *recordingDeliverer) of(playerID string, eventType events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, ev := range r.sent[playerID] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingDeliverer) lastError(t *testing.T, playerID string) events.ErrorPayload {
	t.Helper()
	errs := r.of(playerID, events.EventTypeError)
	require.NotEmpty(t, errs, "no error delivered to %s", playerID)
	var p events.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[len(errs)-1].Data, &p))
	return p
}

type fixedWords []string

func (w fixedWords) Words(context.Context, int) ([]string, error) { return w, nil }

type routerHarness struct {
	clock  *clockwork.FakeClock
	out    *recordingDeliverer
	rooms  *registry.Registry
	router *Router
}

func newRouterHarness(t *testing.T, cfg RouterConfig) *routerHarness {
	t.Helper()
	h := &routerHarness{
		clock: clockwork.NewFakeClock(),
		out:   newRecordingDeliverer(),
	}
	h.rooms = registry.New(registry.Config{Session: session.DefaultConfig()}, session.Deps{
		Clock: h.clock,
		Words: fixedWords{"hello", "world"},
		Out:   h.out,
	})
	t.Cleanup(h.rooms.Shutdown)
	h.router = NewRouter(h.rooms, h.out, cfg)
	return h
}

func (h *routerHarness) send(connID, cmdType string, data any) {
	raw := fmt.Sprintf(`{"type":%q}`, cmdType)
	if data != nil {
		b, _ := json.Marshal(data)
		raw = fmt.Sprintf(`{"type":%q,"data":%s}`, cmdType, b)
	}
	h.router.Handle(context.Background(), connID, []byte(raw))
}

func (h *routerHarness) create(t *testing.T, connID string) string {
	t.Helper()
	h.router.Connect(connID)
	h.send(connID, "createRoom", map[string]any{"playerName": "ada", "duration": 15})
	created := h.out.of(connID, events.EventTypeRoomCreated)
	require.Len(t, created, 1)
	var p events.RoomCreatedPayload
	require.NoError(t, json.Unmarshal(created[0].Data, &p))
	assert.Equal(t, 15, p.Duration)
	return p.RoomCode
}

func (h *routerHarness) state(t *testing.T, code string) session.State {
	t.Helper()
	s, err := h.rooms.Get(code)
	require.NoError(t, err)
	st, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return st
}

func (h *routerHarness) racing(t *testing.T) string {
	t.Helper()
	code := h.create(t, "c1")
	h.router.Connect("c2")
	h.send("c2", "joinRoom", map[string]any{"roomCode": code, "playerName": "bob"})
	h.send("c1", "startRace", nil)
	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Second)
		h.state(t, code)
	}
	require.Equal(t, session.PhaseRacing, h.state(t, code).Phase)
	return code
}

func TestRouter_CreateJoinStart(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	code := h.create(t, "c1")

	h.router.Connect("c2")
	h.send("c2", "joinRoom", map[string]any{"roomCode": " " + strings.ToLower(code), "playerName": "bob"})
	require.Len(t, h.out.of("c1", events.EventTypePlayerJoined), 1)
	require.Len(t, h.out.of("c2", events.EventTypePlayerJoined), 1)

	h.send("c2", "startRace", nil)
	e := h.out.lastError(t, "c2")
	assert.Equal(t, CodeNotHost, e.Code)
	assert.Equal(t, "startRace", e.Command)

	h.send("c1", "startRace", nil)
	require.Len(t, h.out.of("c2", events.EventTypeGameStarting), 1)

	h.send("c2", "updateProgress", map[string]any{"input": "h"})
	assert.Equal(t, CodeSessionNotRacing, h.out.lastError(t, "c2").Code)
}

func TestRouter_JoinErrors(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	code := h.create(t, "c1")

	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{name: "unknown room", data: map[string]any{"roomCode": "ZZZZZZ", "playerName": "bob"}, want: CodeRoomNotFound},
		{name: "malformed code", data: map[string]any{"roomCode": "ab", "playerName": "bob"}, want: CodeInvalidInput},
		{name: "blank name", data: map[string]any{"roomCode": code, "playerName": "  "}, want: CodeNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.send("c2", "joinRoom", tt.data)
			assert.Equal(t, tt.want, h.out.lastError(t, "c2").Code)
		})
	}

	h.send("c2", "joinRoom", map[string]any{"roomCode": code, "playerName": "bob"})
	h.send("c3", "joinRoom", map[string]any{"roomCode": code, "playerName": "cy"})
	assert.Equal(t, CodeRoomFull, h.out.lastError(t, "c3").Code)
	assert.Len(t, h.state(t, code).Players, 2)
}

func TestRouter_MalformedAndRoomless(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	h.router.Connect("c1")

	h.router.Handle(context.Background(), "c1", []byte(`not json`))
	assert.Equal(t, CodeInvalidInput, h.out.lastError(t, "c1").Code)

	h.send("c1", "fly", nil)
	e := h.out.lastError(t, "c1")
	assert.Equal(t, CodeInvalidInput, e.Code)
	assert.Equal(t, "fly", e.Command)

	h.send("c1", "startRace", nil)
	assert.Equal(t, CodeRoomNotFound, h.out.lastError(t, "c1").Code)

	h.send("c1", "createRoom", map[string]any{"playerName": ""})
	assert.Equal(t, CodeNameRequired, h.out.lastError(t, "c1").Code)
	assert.Zero(t, h.rooms.Len())
}

func TestRouter_ProgressIsRateLimited(t *testing.T) {
	h := newRouterHarness(t, RouterConfig{ProgressRate: 0, ProgressBurst: 2})
	h.racing(t)

	h.send("c1", "updateProgress", map[string]any{"input": "h"})
	h.send("c1", "updateProgress", map[string]any{"input": "he"})
	assert.Empty(t, h.out.of("c1", events.EventTypeError))
	require.Len(t, h.out.of("c2", events.EventTypeOpponentProgress), 2)

	h.send("c1", "updateProgress", map[string]any{"input": "hel"})
	assert.Equal(t, CodeRateLimited, h.out.lastError(t, "c1").Code)
	assert.Len(t, h.out.of("c2", events.EventTypeOpponentProgress), 2)
}

func TestRouter_DisconnectForfeits(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	code := h.racing(t)

	h.router.Disconnect(context.Background(), "c2")

	require.Len(t, h.out.of("c1", events.EventTypePlayerLeft), 1)
	results := h.out.of("c1", events.EventTypeRaceResults)
	require.Len(t, results, 1)
	var p events.RaceResultsPayload
	require.NoError(t, json.Unmarshal(results[0].Data, &p))
	assert.True(t, p.Forfeit)
	assert.Equal(t, "c1", p.WinnerID)
	assert.Equal(t, session.PhaseFinished, h.state(t, code).Phase)
}

func TestRouter_LeaveLastPlayerRemovesRoom(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	code := h.create(t, "c1")
	room, err := h.rooms.Get(code)
	require.NoError(t, err)

	h.send("c1", "leaveRoom", nil)
	assert.Empty(t, h.out.of("c1", events.EventTypeError))

	<-room.Done()
	_, err = h.rooms.Get(code)
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)

	h.send("c1", "resetRace", nil)
	assert.Equal(t, CodeRoomNotFound, h.out.lastError(t, "c1").Code)
}

func TestRouter_CreateAgainLeavesPreviousRoom(t *testing.T) {
	h := newRouterHarness(t, DefaultRouterConfig())
	first := h.create(t, "c1")
	room, err := h.rooms.Get(first)
	require.NoError(t, err)

	h.send("c1", "createRoom", map[string]any{"playerName": "ada", "duration": 60})
	require.Len(t, h.out.of("c1", events.EventTypeRoomCreated), 2)

	<-room.Done()
	_, err = h.rooms.Get(first)
	assert.ErrorIs(t, err, registry.ErrRoomNotFound)
	assert.Equal(t, 1, h.rooms.Len())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", registry.ErrRoomNotFound), CodeRoomNotFound},
		{ErrNotInRoom, CodeRoomNotFound},
		{session.ErrRoomFull, CodeRoomFull},
		{session.ErrNotEnoughPlayers, CodeNotEnoughPlayers},
		{session.ErrNotHost, CodeNotHost},
		{session.ErrSessionNotRacing, CodeSessionNotRacing},
		{fmt.Errorf("%w: %w", session.ErrInvalidInput, events.ErrNameRequired), CodeNameRequired},
		{fmt.Errorf("%w: too long", session.ErrInvalidInput), CodeInvalidInput},
		{registry.ErrInvalidCode, CodeInvalidInput},
		{session.ErrInvalidPhase, CodeInvalidPhase},
		{session.ErrSessionClosed, CodeSessionClosed},
		{ErrRateLimited, CodeRateLimited},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err), tt.err.Error())
	}
}
