package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every server to client message
type Event struct {
	ID        string          `json:"id"`                 // Event UUID
	RoomCode  string          `json:"roomCode,omitempty"` // Room the event belongs to
	Type      EventType       `json:"type"`               // Event type
	Timestamp time.Time       `json:"timestamp"`          // Event creation time
	Data      json.RawMessage `json:"data"`               // Event-specific payload
}

// EventType represents the type of an outbound event
type EventType string

const (
	EventTypeRoomCreated      EventType = "roomCreated"
	EventTypePlayerJoined     EventType = "playerJoined"
	EventTypeGameStarting     EventType = "gameStarting"
	EventTypeCountdownTick    EventType = "countdownTick"
	EventTypeRaceStarted      EventType = "raceStarted"
	EventTypeTimerTick        EventType = "timerTick"
	EventTypeOpponentProgress EventType = "opponentProgress"
	EventTypeRaceResults      EventType = "raceResults"
	EventTypePlayerLeft       EventType = "playerLeft"
	EventTypeRaceReset        EventType = "raceReset"
	EventTypeRoomClosed       EventType = "roomClosed"
	EventTypeError            EventType = "error"
)

// NewEvent marshals payload into a new event envelope
func NewEvent(roomCode string, eventType EventType, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *Event) (interface{}, error) {
	var payload interface{}
	switch event.Type {
	case EventTypeRoomCreated:
		payload = &RoomCreatedPayload{}
	case EventTypePlayerJoined:
		payload = &PlayerJoinedPayload{}
	case EventTypeGameStarting:
		payload = &GameStartingPayload{}
	case EventTypeCountdownTick:
		payload = &CountdownTickPayload{}
	case EventTypeRaceStarted:
		payload = &RaceStartedPayload{}
	case EventTypeTimerTick:
		payload = &TimerTickPayload{}
	case EventTypeOpponentProgress:
		payload = &OpponentProgressPayload{}
	case EventTypeRaceResults:
		payload = &RaceResultsPayload{}
	case EventTypePlayerLeft:
		payload = &PlayerLeftPayload{}
	case EventTypeRaceReset:
		payload = &RaceResetPayload{}
	case EventTypeRoomClosed:
		payload = &RoomClosedPayload{}
	case EventTypeError:
		payload = &ErrorPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}
	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
