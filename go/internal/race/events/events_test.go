package events_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/typerace/go/internal/race/events"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
		check   func(t *testing.T, cmd *events.Command, payload interface{})
	}{
		{
			name: "create room",
			raw:  `{"type":"createRoom","data":{"playerName":"ada","duration":60}}`,
			check: func(t *testing.T, cmd *events.Command, payload interface{}) {
				assert.Equal(t, events.CommandCreateRoom, cmd.Type)
				p, ok := payload.(*events.CreateRoomPayload)
				require.True(t, ok)
				assert.Equal(t, "ada", p.PlayerName)
				assert.Equal(t, 60, p.Duration)
			},
		},
		{
			name: "join room",
			raw:  `{"type":"joinRoom","data":{"roomCode":"abc123","playerName":"bob"}}`,
			check: func(t *testing.T, cmd *events.Command, payload interface{}) {
				p, ok := payload.(*events.JoinRoomPayload)
				require.True(t, ok)
				assert.Equal(t, "abc123", p.RoomCode)
			},
		},
		{
			name: "start race needs no data",
			raw:  `{"type":"startRace"}`,
			check: func(t *testing.T, cmd *events.Command, payload interface{}) {
				assert.Equal(t, events.CommandStartRace, cmd.Type)
				assert.Nil(t, payload)
			},
		},
		{
			name: "update progress keeps trailing space",
			raw:  `{"type":"updateProgress","data":{"input":"word "}}`,
			check: func(t *testing.T, cmd *events.Command, payload interface{}) {
				p, ok := payload.(*events.UpdateProgressPayload)
				require.True(t, ok)
				assert.Equal(t, "word ", p.Input)
			},
		},
		{name: "not json", raw: `{`, wantErr: events.ErrMalformed},
		{name: "unknown type", raw: `{"type":"dance"}`, wantErr: events.ErrUnknownCommand},
		{name: "missing data", raw: `{"type":"joinRoom"}`, wantErr: events.ErrMalformed},
		{name: "wrong field type", raw: `{"type":"createRoom","data":{"duration":"long"}}`, wantErr: events.ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, payload, err := events.ParseCommand([]byte(tt.raw))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cmd, payload)
		})
	}
}

func TestNormalizeName(t *testing.T) {
	name, err := events.NormalizeName("  ada  ")
	require.NoError(t, err)
	assert.Equal(t, "ada", name)

	_, err = events.NormalizeName(" \t ")
	assert.ErrorIs(t, err, events.ErrNameRequired)

	_, err = events.NormalizeName(strings.Repeat("x", events.MaxNameLength+1))
	assert.ErrorIs(t, err, events.ErrNameTooLong)
}

func TestNewEvent(t *testing.T) {
	ev, err := events.NewEvent("ABC123", events.EventTypeOpponentProgress, events.OpponentProgressPayload{
		Progress: 12.5,
		Position: 3,
		WPM:      42,
		Accuracy: 97,
		Cursor:   events.Cursor{WordIndex: 3, CharIndex: 2},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "ABC123", ev.RoomCode)
	assert.JSONEq(t, `{"progress":12.5,"position":3,"wpm":42,"accuracy":97,"cursor":{"wordIndex":3,"charIndex":2}}`, string(ev.Data))

	payload, err := events.ParseEventPayload(ev)
	require.NoError(t, err)
	p, ok := payload.(*events.OpponentProgressPayload)
	require.True(t, ok)
	assert.Equal(t, 3, p.Cursor.WordIndex)
}

func TestParseEventPayload_UnknownType(t *testing.T) {
	_, err := events.ParseEventPayload(&events.Event{Type: "nope", Data: []byte(`{}`)})
	assert.Error(t, err)
}
