package session

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/typerace/go/internal/race/cursor"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/metrics"
)

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseRacing    Phase = "racing"
	PhaseFinished  Phase = "finished"
)

// Reasons sent with roomClosed.
const (
	ReasonIdle          = "idle"
	ReasonInternalError = "internal_error"
	ReasonShutdown      = "shutdown"
	ReasonOrphaned      = "orphaned"
)

// MaxPlayers is the capacity of every session.
const MaxPlayers = 2

// WordSource yields the ordered words for one race.
type WordSource interface {
	Words(ctx context.Context, n int) ([]string, error)
}

// Deliverer hands an event to one connected player. It must not block; delivery
// to a disconnected player is dropped.
type Deliverer interface {
	Deliver(playerID string, event *events.Event)
}

// ResultRecorder receives the record of every finished race. It must not block.
type ResultRecorder interface {
	Record(result events.RaceResult)
}

// Config holds the race settings of one session.
type Config struct {
	Duration     time.Duration
	Countdown    int // seconds
	WordCount    int
	VisibleWords int // words counted by the progress percentage
	IdleTimeout  time.Duration
}

// DefaultConfig returns the standard race settings
func DefaultConfig() Config {
	return Config{
		Duration:     30 * time.Second,
		Countdown:    3,
		WordCount:    50,
		VisibleWords: 50,
		IdleTimeout:  5 * time.Minute,
	}
}

// Deps are the collaborators of a session.
type Deps struct {
	Clock   clockwork.Clock
	Words   WordSource
	Out     Deliverer
	Results ResultRecorder
	// OnClose is called once from the session goroutine during teardown, before
	// Done is closed.
	OnClose func(code string)
}

// PlayerState is a player's public view plus cursor detail.
type PlayerState struct {
	events.Player
	CharIndex   int            `json:"charIndex"`
	Errors      int            `json:"errors"`
	TypedLength int            `json:"typedLength"`
	Final       *metrics.Stats `json:"final,omitempty"`
}

// State is a point-in-time snapshot of a session.
type State struct {
	RoomCode  string        `json:"roomCode"`
	Phase     Phase         `json:"phase"`
	HostID    string        `json:"hostId"`
	Duration  int           `json:"duration"`
	Countdown int           `json:"countdown"`
	TimeLeft  int           `json:"timeLeft"`
	Words     []string      `json:"words,omitempty"`
	Players   []PlayerState `json:"players"`
}

// Player returns the state of the player with id.
func (s State) Player(id string) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerState{}, false
}

type player struct {
	id       string
	name     string
	progress cursor.Progress
	live     metrics.Stats
	pct      float64
	finished bool
	final    *metrics.Stats
}
