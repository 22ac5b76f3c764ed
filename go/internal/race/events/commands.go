package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength bounds a display name, in characters.
const MaxNameLength = 32

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMalformed      = errors.New("malformed command")
	ErrNameRequired   = errors.New("player name is required")
	ErrNameTooLong    = errors.New("player name is too long")
)

// Command is the envelope for every client to server message
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandType represents the type of an inbound command
type CommandType string

const (
	CommandCreateRoom     CommandType = "createRoom"
	CommandJoinRoom       CommandType = "joinRoom"
	CommandStartRace      CommandType = "startRace"
	CommandUpdateProgress CommandType = "updateProgress"
	CommandRaceFinished   CommandType = "raceFinished"
	CommandResetRace      CommandType = "resetRace"
	CommandLeaveRoom      CommandType = "leaveRoom"
)

// CreateRoomPayload is the payload of createRoom
type CreateRoomPayload struct {
	PlayerName string `json:"playerName"`
	Duration   int    `json:"duration"`
}

// JoinRoomPayload is the payload of joinRoom
type JoinRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

// UpdateProgressPayload is the payload of updateProgress
type UpdateProgressPayload struct {
	Input string `json:"input"`
}

// RaceFinishedPayload carries the client's own provisional stats
type RaceFinishedPayload struct {
	Stats GameStats `json:"stats"`
}

// ParseCommand decodes a raw client message and its payload. Commands without
// a payload return a nil payload.
func ParseCommand(raw []byte) (*Command, interface{}, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var payload interface{}
	switch cmd.Type {
	case CommandCreateRoom:
		payload = &CreateRoomPayload{}
	case CommandJoinRoom:
		payload = &JoinRoomPayload{}
	case CommandUpdateProgress:
		payload = &UpdateProgressPayload{}
	case CommandRaceFinished:
		payload = &RaceFinishedPayload{}
	case CommandStartRace, CommandResetRace, CommandLeaveRoom:
		return &cmd, nil, nil
	default:
		return &cmd, nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}

	if len(cmd.Data) == 0 {
		return &cmd, nil, fmt.Errorf("%w: %s requires data", ErrMalformed, cmd.Type)
	}
	if err := json.Unmarshal(cmd.Data, payload); err != nil {
		return &cmd, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, cmd.Type, err)
	}
	return &cmd, payload, nil
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}
