package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/mcdev12/typerace/go/internal/race/session"
)

const (
	// CodeLength is the number of characters in a room code.
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxAttempts  = 16
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidCode  = errors.New("invalid room code")
	ErrShutdown     = errors.New("registry is shut down")
)

// DefaultDurations are the race lengths a room may be created with, in seconds.
var DefaultDurations = []int{15, 30, 60}

// Config controls room creation and the orphan sweep.
type Config struct {
	Session          session.Config
	AllowedDurations []int
	SweepInterval    time.Duration
}

// Registry maps room codes to live sessions. Its lock covers map access only;
// sessions are never called while it is held.
type Registry struct {
	cfg   Config
	deps  session.Deps
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*session.Session
	created  map[string]time.Time
	shutdown bool

	newCode func() (string, error)
}

// New builds a registry. The OnClose hook of deps is replaced so sessions
// remove themselves when they tear down.
func New(cfg Config, deps session.Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if len(cfg.AllowedDurations) == 0 {
		cfg.AllowedDurations = DefaultDurations
	}
	r := &Registry{
		cfg:      cfg,
		clock:    deps.Clock,
		sessions: make(map[string]*session.Session),
		created:  make(map[string]time.Time),
		newCode:  randomCode,
	}
	deps.OnClose = r.Remove
	r.deps = deps
	return r
}

// Create allocates a fresh code and starts an empty lobby session for it.
// The requested duration is clamped to the allowed set.
func (r *Registry) Create(durationSeconds int) (*session.Session, error) {
	cfg := r.cfg.Session
	cfg.Duration = time.Duration(ClampDuration(durationSeconds, r.cfg.AllowedDurations, int(cfg.Duration/time.Second))) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return nil, ErrShutdown
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room code: %w", err)
		}
		if _, taken := r.sessions[code]; taken {
			log.Debug().Str("room_code", code).Int("attempt", attempt).Msg("room code collision, retrying")
			continue
		}

		s := session.New(code, cfg, r.deps)
		r.sessions[code] = s
		r.created[code] = r.clock.Now()
		log.Info().
			Str("room_code", code).
			Dur("duration", cfg.Duration).
			Int("rooms", len(r.sessions)).
			Msg("room created")
		return s, nil
	}
	return nil, fmt.Errorf("failed to allocate a unique room code after %d attempts", maxAttempts)
}

// Get looks up a session. Codes are case-insensitive.
func (r *Registry) Get(code string) (*session.Session, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	s, ok := r.sessions[normalized]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, normalized)
	}
	return s, nil
}

// Remove drops code from the map. Sessions call it as they tear down.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	_, ok := r.sessions[code]
	delete(r.sessions, code)
	delete(r.created, code)
	remaining := len(r.sessions)
	r.mu.Unlock()

	if ok {
		log.Info().Str("room_code", code).Int("rooms", remaining).Msg("room removed")
	}
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Codes returns the codes of all live rooms.
func (r *Registry) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.sessions)
}

func (r *Registry) all() []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(r.sessions)
}

// settled returns the rooms created at least grace ago.
func (r *Registry) settled(grace time.Duration) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Values(lo.PickBy(r.sessions, func(code string, _ *session.Session) bool {
		return r.clock.Since(r.created[code]) >= grace
	}))
}

// Run sweeps orphaned rooms on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("room sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room sweeper stopped")
			return nil
		case <-ticker.Chan():
			if n := r.Sweep(ctx); n > 0 {
				log.Info().Int("closed", n).Int("rooms", r.Len()).Msg("swept orphaned rooms")
			}
		}
	}
}

// Sweep closes every room that has no players and returns how many it closed.
// Rooms younger than one sweep interval are left alone so a creator has time
// to take the first seat.
func (r *Registry) Sweep(ctx context.Context) int {
	closed := 0
	for _, s := range r.settled(r.cfg.SweepInterval) {
		st, err := s.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return closed
			}
			// already torn down
			continue
		}
		if len(st.Players) == 0 {
			s.Close(session.ReasonOrphaned)
			closed++
		}
	}
	return closed
}

// Shutdown closes every live room and refuses new ones.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()

	sessions := r.all()
	for _, s := range sessions {
		s.Close(session.ReasonShutdown)
	}
	log.Info().Int("closed", len(sessions)).Msg("registry shut down")
}

// NormalizeCode upper-cases a room code and checks its format.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", fmt.Errorf("%w: want %d characters", ErrInvalidCode, CodeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidCode, c)
		}
	}
	return code, nil
}

// ClampDuration maps a requested race length onto allowed. Non-positive
// requests get def; others get the smallest allowed value at least as long,
// capped at the longest.
func ClampDuration(requested int, allowed []int, def int) int {
	if len(allowed) == 0 {
		return def
	}
	if requested <= 0 {
		return def
	}
	best := lo.Max(allowed)
	for _, d := range allowed {
		if d >= requested && d < best {
			best = d
		}
	}
	return best
}

func randomCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
