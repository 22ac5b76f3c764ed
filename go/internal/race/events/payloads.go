package events

import (
	"time"

	"github.com/mcdev12/typerace/go/internal/race/metrics"
)

// Event payload types that are shared between the session and gateway packages

// Player is the public view of a race participant
type Player struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	IsHost   bool    `json:"isHost"`
	Progress float64 `json:"progress"`
	Position int     `json:"position"`
	WPM      int     `json:"wpm"`
	Accuracy int     `json:"accuracy"`
	Finished bool    `json:"finished"`
}

// Cursor locates a player inside the race text
type Cursor struct {
	WordIndex int `json:"wordIndex"`
	CharIndex int `json:"charIndex"`
}

// GameStats is the final performance of one player
type GameStats = metrics.Stats

// RoomCreatedPayload is sent to the creator of a room
type RoomCreatedPayload struct {
	RoomCode string `json:"roomCode"`
	Player   Player `json:"player"`
	Duration int    `json:"duration"`
}

// PlayerJoinedPayload is broadcast to both members when the second player joins
type PlayerJoinedPayload struct {
	Players []Player `json:"players"`
	Player  Player   `json:"player"`
}

// GameStartingPayload is broadcast when the host starts the countdown
type GameStartingPayload struct {
	Words     []string `json:"words"`
	Duration  int      `json:"duration"`
	Countdown int      `json:"countdown"`
}

// CountdownTickPayload is broadcast once per countdown second
type CountdownTickPayload struct {
	Count int `json:"count"`
}

// RaceStartedPayload is broadcast when the countdown reaches zero
type RaceStartedPayload struct {
	Duration  int       `json:"duration"`
	StartedAt time.Time `json:"startedAt"`
}

// TimerTickPayload is broadcast once per race second
type TimerTickPayload struct {
	TimeLeft int `json:"timeLeft"`
}

// OpponentProgressPayload is delivered to the opponent of the player who typed
type OpponentProgressPayload struct {
	Progress float64 `json:"progress"`
	Position int     `json:"position"`
	WPM      int     `json:"wpm"`
	Accuracy int     `json:"accuracy"`
	Cursor   Cursor  `json:"cursor"`
}

// RaceResultsPayload is delivered to each player from their own point of view
type RaceResultsPayload struct {
	PlayerStats   GameStats  `json:"playerStats"`
	OpponentStats *GameStats `json:"opponentStats,omitempty"`
	Outcome       string     `json:"outcome"`
	WinnerID      string     `json:"winnerId,omitempty"`
	Forfeit       bool       `json:"forfeit"`
}

// PlayerLeftPayload is delivered to the member that remains
type PlayerLeftPayload struct {
	PlayerID string   `json:"playerId"`
	Players  []Player `json:"players"`
	Forfeit  bool     `json:"forfeit"`
}

// RaceResetPayload is broadcast when a finished room returns to the lobby
type RaceResetPayload struct {
	Players []Player `json:"players"`
}

// RoomClosedPayload is broadcast when a room is torn down with members inside
type RoomClosedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload is the reply to a command that failed
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

// PlayerResult is one participant's line in a RaceResult
type PlayerResult struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Stats    GameStats `json:"stats"`
	Left     bool      `json:"left"`
}

// RaceResult is the record of a finished race handed to the result recorder
type RaceResult struct {
	ID         string         `json:"id"`
	RoomCode   string         `json:"roomCode"`
	Duration   int            `json:"duration"`
	WordCount  int            `json:"wordCount"`
	Players    []PlayerResult `json:"players"`
	WinnerID   string         `json:"winnerId,omitempty"`
	Forfeit    bool           `json:"forfeit"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
}
