package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/registry"
	"github.com/mcdev12/typerace/go/internal/race/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := session.DefaultConfig()
	cfg.Countdown = 0

	cm := NewConnectionManager(DefaultConnectionConfig())
	rooms := registry.New(registry.Config{Session: cfg}, session.Deps{
		Words: fixedWords{"go"},
		Out:   cm,
	})
	svc := NewService(DefaultConfig(), cm, rooms)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmdType string, data any) {
	t.Helper()
	msg := map[string]any{"type": cmdType}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads events until one of eventType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType events.EventType) *events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev events.Event
		require.NoError(t, conn.ReadJSON(&ev), "waiting for %s", eventType)
		if ev.Type == eventType {
			return &ev
		}
	}
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestService_RaceOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	host := dial(t, srv)
	guest := dial(t, srv)

	sendCommand(t, host, "createRoom", map[string]any{"playerName": "ada", "duration": 30})
	var created events.RoomCreatedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, events.EventTypeRoomCreated).Data, &created))
	require.Len(t, created.RoomCode, registry.CodeLength)
	assert.True(t, created.Player.IsHost)

	sendCommand(t, guest, "joinRoom", map[string]any{"roomCode": strings.ToLower(created.RoomCode), "playerName": "bob"})
	readUntil(t, host, events.EventTypePlayerJoined)
	readUntil(t, guest, events.EventTypePlayerJoined)

	sendCommand(t, guest, "startRace", nil)
	var apiErr events.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, events.EventTypeError).Data, &apiErr))
	assert.Equal(t, CodeNotHost, apiErr.Code)

	sendCommand(t, host, "startRace", nil)
	var starting events.GameStartingPayload
	require.NoError(t, json.Unmarshal(readUntil(t, guest, events.EventTypeGameStarting).Data, &starting))
	assert.Equal(t, []string{"go"}, starting.Words)
	readUntil(t, host, events.EventTypeRaceStarted)
	readUntil(t, guest, events.EventTypeRaceStarted)

	sendCommand(t, host, "updateProgress", map[string]any{"input": "go"})

	var mine, theirs events.RaceResultsPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, events.EventTypeRaceResults).Data, &mine))
	require.NoError(t, json.Unmarshal(readUntil(t, guest, events.EventTypeRaceResults).Data, &theirs))
	assert.Equal(t, "win", mine.Outcome)
	assert.Equal(t, "loss", theirs.Outcome)
	assert.Equal(t, mine.WinnerID, theirs.WinnerID)

	var st session.State
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/"+created.RoomCode+"/state", &st))
	assert.Equal(t, session.PhaseFinished, st.Phase)
	assert.Len(t, st.Players, 2)

	var active []RoomSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/active", &active))
	require.Len(t, active, 1)
	assert.Equal(t, created.RoomCode, active[0].RoomCode)

	var stats ConnectionStats
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/ws/stats", &stats))
	assert.Equal(t, 2, stats.TotalConnections)

	// a dropped connection counts as leaving
	require.NoError(t, guest.Close())
	var left events.PlayerLeftPayload
	require.NoError(t, json.Unmarshal(readUntil(t, host, events.EventTypePlayerLeft).Data, &left))
	assert.Len(t, left.Players, 1)
}

func TestService_StateEndpointErrors(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/rooms/ZZZZZZ/state", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/rooms/abc/state", nil))

	var active []RoomSummary
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/active", &active))
	assert.Empty(t, active)
}
