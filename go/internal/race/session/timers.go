package session

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// The race clock is a one second ticker shared by countdown and race. Remaining
// time is always derived from the deadlines, never from a count of ticks.
func (s *Session) startTicker() {
	s.stopTicker()
	s.ticker = s.clock.NewTicker(time.Second)
}

func (s *Session) stopTicker() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
}

// armDeadline ends the race at exactly endsAt, independent of tick alignment.
func (s *Session) armDeadline(d time.Duration) {
	s.stopDeadline()
	s.deadline = s.clock.NewTimer(d)
}

func (s *Session) stopDeadline() {
	if s.deadline == nil {
		return
	}
	stopAndDrainTimer(s.deadline)
	s.deadline = nil
}

func (s *Session) armIdle() {
	s.stopIdle()
	if s.cfg.IdleTimeout <= 0 {
		return
	}
	s.idle = s.clock.NewTimer(s.cfg.IdleTimeout)
}

func (s *Session) stopIdle() {
	if s.idle == nil {
		return
	}
	stopAndDrainTimer(s.idle)
	s.idle = nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// nil channels block forever, so an unset timer is never selected.
func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
