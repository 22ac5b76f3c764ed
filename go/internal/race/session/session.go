package session

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/typerace/go/internal/race/cursor"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/metrics"
)

const inboxSize = 64

// Session is one room. All room state is owned by a single goroutine; the
// exported methods post closures to its inbox and wait for the result.
type Session struct {
	code    string
	cfg     Config
	clock   clockwork.Clock
	source  WordSource
	out     Deliverer
	results ResultRecorder
	onClose func(code string)
	logger  zerolog.Logger

	inbox chan func()
	stop  chan string
	done  chan struct{}

	// owned by run
	phase         Phase
	slots         [MaxPlayers]*player
	hostID        string
	words         []string
	visibleChars  int
	countdownEnds time.Time
	startedAt     time.Time
	endsAt        time.Time
	lastCount     int
	lastTimeLeft  int
	ticker        clockwork.Ticker
	deadline      clockwork.Timer
	idle          clockwork.Timer
	closing       bool
	closeReason   string
	closed        bool
}

// New creates a session in the lobby and starts its goroutine.
func New(code string, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	s := &Session{
		code:    code,
		cfg:     cfg,
		clock:   deps.Clock,
		source:  deps.Words,
		out:     deps.Out,
		results: deps.Results,
		onClose: deps.OnClose,
		logger:  log.With().Str("room_code", code).Logger(),
		inbox:   make(chan func(), inboxSize),
		stop:    make(chan string),
		done:    make(chan struct{}),
		phase:   PhaseLobby,
	}
	go s.run()
	return s
}

// Code returns the room code.
func (s *Session) Code() string { return s.code }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Join adds a player. The first member becomes host.
func (s *Session) Join(ctx context.Context, playerID, name string) (events.Player, error) {
	var joined events.Player
	err := s.exec(ctx, func() error {
		p, err := s.join(playerID, name)
		joined = p
		return err
	})
	return joined, err
}

// Start begins the countdown. Only the host may start, with both seats taken.
func (s *Session) Start(ctx context.Context, playerID string) error {
	return s.exec(ctx, func() error { return s.start(ctx, playerID) })
}

// Advance applies one typing update from playerID.
func (s *Session) Advance(ctx context.Context, playerID, input string) (cursor.Outcome, error) {
	out := cursor.Rejected
	err := s.exec(ctx, func() error {
		o, err := s.advance(playerID, input)
		out = o
		return err
	})
	return out, err
}

// ReportFinished records a client's own claim that it finished. The server
// result stays authoritative.
func (s *Session) ReportFinished(ctx context.Context, playerID string, stats metrics.Stats) error {
	return s.exec(ctx, func() error { return s.reportFinished(playerID, stats) })
}

// Leave removes a player. Leaving mid-race forfeits.
func (s *Session) Leave(ctx context.Context, playerID string) error {
	return s.exec(ctx, func() error { return s.leave(playerID) })
}

// Reset returns a finished session to the lobby.
func (s *Session) Reset(ctx context.Context, playerID string) error {
	return s.exec(ctx, func() error { return s.reset(playerID) })
}

// Snapshot returns the current state.
func (s *Session) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := s.exec(ctx, func() error {
		st = s.snapshot()
		return nil
	})
	return st, err
}

// Close tears the session down, notifying remaining members with reason.
// It blocks until teardown has completed and is safe to call more than once.
func (s *Session) Close(reason string) {
	select {
	case s.stop <- reason:
	case <-s.done:
		return
	}
	<-s.done
}

func (s *Session) exec(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	cmd := func() { errCh <- fn() }

	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-s.done:
		// the command may have been the one that closed the session
		select {
		case err := <-errCh:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	s.logger.Debug().Msg("session started")
	for !s.closed {
		select {
		case fn := <-s.inbox:
			s.drainTimers()
			if s.closed {
				return
			}
			s.safely(fn)
		case <-timerChan(s.deadline):
			s.safely(s.onDeadline)
		case <-tickerChan(s.ticker):
			s.safely(s.onTick)
		case <-timerChan(s.idle):
			s.safely(s.onIdle)
		case reason := <-s.stop:
			s.teardown(reason)
		}
	}
}

// drainTimers handles a tick or idle expiry that is already pending, so a
// command never observes state older than the clock.
func (s *Session) drainTimers() {
	select {
	case <-timerChan(s.deadline):
		s.safely(s.onDeadline)
	default:
	}
	select {
	case <-tickerChan(s.ticker):
		s.safely(s.onTick)
	default:
	}
	if s.closed {
		return
	}
	select {
	case <-timerChan(s.idle):
		s.safely(s.onIdle)
	default:
	}
}

// safely runs fn on the session goroutine. A panic or a broken invariant ends
// this session only.
func (s *Session) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("session handler panicked, closing room")
			s.teardown(ReasonInternalError)
		}
	}()

	fn()

	if s.closed {
		return
	}
	if s.closing {
		s.teardown(s.closeReason)
		return
	}
	if err := s.verify(); err != nil {
		s.logger.Error().Err(err).Str("phase", string(s.phase)).Msg("session invariant broken, closing room")
		s.teardown(ReasonInternalError)
	}
}

func (s *Session) verify() error {
	members := s.members()
	if len(members) > 0 && s.member(s.hostID) == nil {
		return fmt.Errorf("host %q is not a member", s.hostID)
	}
	if (s.phase == PhaseCountdown || s.phase == PhaseRacing) && len(s.words) == 0 {
		return fmt.Errorf("phase %s without words", s.phase)
	}
	if s.phase == PhaseRacing && (s.ticker == nil || s.deadline == nil) {
		return fmt.Errorf("racing without a race clock")
	}
	return nil
}

// closeAfter schedules teardown once the current handler has returned, so the
// caller of the command still receives its result.
func (s *Session) closeAfter(reason string) {
	s.closing = true
	s.closeReason = reason
}

func (s *Session) teardown(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.stopTicker()
	s.stopDeadline()
	s.stopIdle()

	if reason != "" {
		s.broadcast(events.EventTypeRoomClosed, events.RoomClosedPayload{Reason: reason})
	}
	s.logger.Info().Str("reason", reason).Str("phase", string(s.phase)).Msg("session closed")
	if s.onClose != nil {
		s.onClose(s.code)
	}
	close(s.done)
}

func (s *Session) send(playerID string, eventType events.EventType, payload any) {
	if s.out == nil {
		return
	}
	ev, err := events.NewEvent(s.code, eventType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	s.out.Deliver(playerID, ev)
}

func (s *Session) broadcast(eventType events.EventType, payload any) {
	for _, p := range s.members() {
		s.send(p.id, eventType, payload)
	}
}
