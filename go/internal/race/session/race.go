package session

import (
	"context"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mcdev12/typerace/go/internal/race/cursor"
	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/mcdev12/typerace/go/internal/race/metrics"
)

func (s *Session) join(playerID, name string) (events.Player, error) {
	name, err := events.NormalizeName(name)
	if err != nil {
		return events.Player{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if s.member(playerID) != nil {
		return events.Player{}, ErrAlreadyMember
	}

	slot := -1
	for i, p := range s.slots {
		if p == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		return events.Player{}, ErrRoomFull
	}
	if s.phase != PhaseLobby {
		return events.Player{}, ErrInvalidPhase
	}

	p := &player{id: playerID, name: name}
	p.live = metrics.Compute("", 0, 0)
	s.slots[slot] = p
	if s.hostID == "" {
		s.hostID = playerID
	}

	view := s.view(p)
	members := s.members()
	if len(members) == 1 {
		s.send(playerID, events.EventTypeRoomCreated, events.RoomCreatedPayload{
			RoomCode: s.code,
			Player:   view,
			Duration: s.durationSeconds(),
		})
	} else {
		s.broadcast(events.EventTypePlayerJoined, events.PlayerJoinedPayload{
			Players: s.views(),
			Player:  view,
		})
	}

	s.logger.Info().
		Str("player_id", playerID).
		Str("player_name", name).
		Int("players", len(members)).
		Msg("player joined")
	return view, nil
}

func (s *Session) start(ctx context.Context, playerID string) error {
	if s.member(playerID) == nil {
		return ErrNotMember
	}
	if s.phase != PhaseLobby {
		return ErrInvalidPhase
	}
	if playerID != s.hostID {
		return ErrNotHost
	}
	if len(s.members()) < MaxPlayers {
		return ErrNotEnoughPlayers
	}

	words, err := s.source.Words(ctx, s.cfg.WordCount)
	if err != nil {
		return fmt.Errorf("failed to pick words: %w", err)
	}
	if len(words) == 0 {
		return ErrNoWords
	}
	s.words = append([]string(nil), words...)
	s.visibleChars = visibleChars(s.words, s.cfg.VisibleWords)

	for _, p := range s.members() {
		s.resetPlayer(p)
	}
	s.stopIdle()

	now := s.clock.Now()
	s.phase = PhaseCountdown
	s.countdownEnds = now.Add(time.Duration(s.cfg.Countdown) * time.Second)
	s.lastCount = s.cfg.Countdown

	s.broadcast(events.EventTypeGameStarting, events.GameStartingPayload{
		Words:     s.words,
		Duration:  s.durationSeconds(),
		Countdown: s.cfg.Countdown,
	})
	s.logger.Info().
		Int("word_count", len(s.words)).
		Int("countdown", s.cfg.Countdown).
		Msg("countdown started")

	if s.cfg.Countdown <= 0 {
		s.beginRace(now)
		return nil
	}
	s.startTicker()
	return nil
}

func (s *Session) onTick() {
	now := s.clock.Now()
	switch s.phase {
	case PhaseCountdown:
		left := secondsUntil(s.countdownEnds, now)
		if left <= 0 {
			s.beginRace(now)
			return
		}
		if left != s.lastCount {
			s.lastCount = left
			s.broadcast(events.EventTypeCountdownTick, events.CountdownTickPayload{Count: left})
		}
	case PhaseRacing:
		left := secondsUntil(s.endsAt, now)
		if left <= 0 {
			s.finish(now)
			return
		}
		if left != s.lastTimeLeft {
			s.lastTimeLeft = left
			s.broadcast(events.EventTypeTimerTick, events.TimerTickPayload{TimeLeft: left})
		}
	default:
		// a tick that raced with a transition out of the timed phases
		s.stopTicker()
	}
}

func (s *Session) beginRace(now time.Time) {
	s.phase = PhaseRacing
	s.startedAt = now
	s.endsAt = now.Add(s.cfg.Duration)
	s.lastTimeLeft = s.durationSeconds()
	for _, p := range s.members() {
		s.resetPlayer(p)
	}
	// ticks restart from the race start so timerTick counts down whole seconds
	s.startTicker()
	s.armDeadline(s.cfg.Duration)

	s.broadcast(events.EventTypeRaceStarted, events.RaceStartedPayload{
		Duration:  s.durationSeconds(),
		StartedAt: now.UTC(),
	})
	s.logger.Info().Time("ends_at", s.endsAt).Msg("race started")
}

func (s *Session) onDeadline() {
	s.deadline = nil
	if s.phase == PhaseRacing {
		s.finish(s.clock.Now())
	}
}

func (s *Session) advance(playerID, input string) (cursor.Outcome, error) {
	if s.phase == PhaseRacing && !s.clock.Now().Before(s.endsAt) {
		// the deadline timer has not been handled yet
		s.finish(s.clock.Now())
	}
	if s.phase != PhaseRacing {
		return cursor.Rejected, ErrSessionNotRacing
	}
	p := s.member(playerID)
	if p == nil {
		return cursor.Rejected, ErrNotMember
	}

	out, err := p.progress.Apply(s.words, input)
	if err != nil {
		return cursor.Rejected, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if out == cursor.Rejected {
		s.logger.Debug().Str("player_id", playerID).Int("word_index", p.progress.WordIndex).Msg("word rejected")
		return out, nil
	}

	now := s.clock.Now()
	s.refresh(p, now)

	if opp := s.opponentOf(playerID); opp != nil {
		s.send(opp.id, events.EventTypeOpponentProgress, events.OpponentProgressPayload{
			Progress: p.pct,
			Position: p.progress.WordIndex,
			WPM:      p.live.WPM,
			Accuracy: p.live.Accuracy,
			Cursor: events.Cursor{
				WordIndex: p.progress.WordIndex,
				CharIndex: p.progress.CharIndex,
			},
		})
	}

	if p.progress.Complete(s.words) {
		p.finished = true
		s.logger.Info().Str("player_id", playerID).Msg("player typed every word")
		s.finish(now)
	}
	return out, nil
}

func (s *Session) reportFinished(playerID string, stats metrics.Stats) error {
	p := s.member(playerID)
	if p == nil {
		return ErrNotMember
	}
	s.logger.Debug().
		Str("player_id", playerID).
		Str("phase", string(s.phase)).
		Int("client_wpm", stats.WPM).
		Int("server_wpm", p.live.WPM).
		Msg("client reported finish")
	return nil
}

// finish ends the race on time, or early when a player typed the whole text.
func (s *Session) finish(now time.Time) {
	elapsed := now.Sub(s.startedAt)
	if elapsed > s.cfg.Duration {
		elapsed = s.cfg.Duration
	}
	s.enterFinished()

	members := s.members()
	for _, p := range members {
		final := metrics.Compute(p.progress.Text(), p.progress.Errors, elapsed)
		p.final = &final
	}

	winnerID := ""
	if len(members) == MaxPlayers {
		a, b := members[0], members[1]
		switch metrics.Compare(*a.final, *b.final) {
		case metrics.Win:
			winnerID = a.id
		case metrics.Loss:
			winnerID = b.id
		}
		s.sendResults(a, b, winnerID, false)
		s.sendResults(b, a, winnerID, false)
	} else {
		for _, p := range members {
			s.sendResults(p, nil, p.id, false)
		}
	}

	s.record(now, winnerID, false, nil)
	s.logger.Info().Str("winner_id", winnerID).Dur("elapsed", elapsed).Msg("race finished")
}

// forfeit ends the race because leaver walked out; the remaining player wins.
func (s *Session) forfeit(now time.Time, leaver *player) {
	elapsed := now.Sub(s.startedAt)
	if elapsed > s.cfg.Duration {
		elapsed = s.cfg.Duration
	}
	s.enterFinished()

	leaverStats := metrics.Compute(leaver.progress.Text(), leaver.progress.Errors, elapsed)
	leaver.final = &leaverStats

	winnerID := ""
	for _, p := range s.members() {
		final := metrics.Compute(p.progress.Text(), p.progress.Errors, elapsed)
		p.final = &final
		winnerID = p.id
		s.sendResults(p, leaver, p.id, true)
	}

	s.record(now, winnerID, true, leaver)
	s.logger.Info().Str("leaver_id", leaver.id).Str("winner_id", winnerID).Msg("race forfeited")
}

func (s *Session) enterFinished() {
	s.phase = PhaseFinished
	s.stopTicker()
	s.stopDeadline()
	s.armIdle()
}

func (s *Session) sendResults(p, opp *player, winnerID string, forfeit bool) {
	payload := events.RaceResultsPayload{
		PlayerStats: *p.final,
		WinnerID:    winnerID,
		Forfeit:     forfeit,
	}
	switch {
	case opp == nil:
		payload.Outcome = metrics.Win.String()
	case forfeit:
		payload.OpponentStats = opp.final
		payload.Outcome = metrics.Win.String()
	default:
		payload.OpponentStats = opp.final
		payload.Outcome = metrics.Compare(*p.final, *opp.final).String()
	}
	s.send(p.id, events.EventTypeRaceResults, payload)
}

func (s *Session) record(now time.Time, winnerID string, forfeit bool, leaver *player) {
	if s.results == nil {
		return
	}
	finishers := s.members()
	if leaver != nil {
		finishers = append(finishers, leaver)
	}
	s.results.Record(events.RaceResult{
		ID:        uuid.New().String(),
		RoomCode:  s.code,
		Duration:  s.durationSeconds(),
		WordCount: len(s.words),
		Players: lo.Map(finishers, func(p *player, _ int) events.PlayerResult {
			return events.PlayerResult{
				PlayerID: p.id,
				Name:     p.name,
				Stats:    *p.final,
				Left:     p == leaver,
			}
		}),
		WinnerID:   winnerID,
		Forfeit:    forfeit,
		StartedAt:  s.startedAt.UTC(),
		FinishedAt: now.UTC(),
	})
}

func (s *Session) leave(playerID string) error {
	p := s.member(playerID)
	if p == nil {
		return ErrNotMember
	}
	for i := range s.slots {
		if s.slots[i] == p {
			s.slots[i] = nil
		}
	}

	members := s.members()
	if len(members) == 0 {
		s.logger.Info().Str("player_id", playerID).Msg("last player left")
		s.closeAfter("")
		return nil
	}
	if s.hostID == playerID {
		s.hostID = members[0].id
		s.logger.Info().Str("host_id", s.hostID).Msg("host handed over")
	}

	switch s.phase {
	case PhaseRacing:
		s.broadcast(events.EventTypePlayerLeft, events.PlayerLeftPayload{
			PlayerID: playerID,
			Players:  s.views(),
			Forfeit:  true,
		})
		s.forfeit(s.clock.Now(), p)
		return nil
	case PhaseCountdown:
		s.stopTicker()
		s.words = nil
		s.visibleChars = 0
		s.phase = PhaseLobby
		for _, m := range members {
			s.resetPlayer(m)
		}
	}

	s.broadcast(events.EventTypePlayerLeft, events.PlayerLeftPayload{
		PlayerID: playerID,
		Players:  s.views(),
	})
	s.logger.Info().Str("player_id", playerID).Str("phase", string(s.phase)).Msg("player left")
	return nil
}

func (s *Session) reset(playerID string) error {
	if s.member(playerID) == nil {
		return ErrNotMember
	}
	if s.phase != PhaseFinished {
		return ErrInvalidPhase
	}

	s.stopIdle()
	s.words = nil
	s.visibleChars = 0
	for _, p := range s.members() {
		s.resetPlayer(p)
	}
	s.phase = PhaseLobby

	s.broadcast(events.EventTypeRaceReset, events.RaceResetPayload{Players: s.views()})
	s.logger.Info().Str("player_id", playerID).Msg("race reset")
	return nil
}

func (s *Session) onIdle() {
	s.idle = nil
	if s.phase != PhaseFinished {
		return
	}
	s.logger.Info().Dur("idle_timeout", s.cfg.IdleTimeout).Msg("finished room went idle")
	s.teardown(ReasonIdle)
}

func (s *Session) snapshot() State {
	now := s.clock.Now()
	st := State{
		RoomCode:  s.code,
		Phase:     s.phase,
		HostID:    s.hostID,
		Duration:  s.durationSeconds(),
		Countdown: s.cfg.Countdown,
		Words:     append([]string(nil), s.words...),
		Players: lo.Map(s.members(), func(p *player, _ int) PlayerState {
			return PlayerState{
				Player:      s.view(p),
				CharIndex:   p.progress.CharIndex,
				Errors:      p.progress.Errors,
				TypedLength: utf8.RuneCountInString(p.progress.Text()),
				Final:       p.final,
			}
		}),
	}
	switch s.phase {
	case PhaseLobby:
		st.TimeLeft = s.durationSeconds()
	case PhaseCountdown:
		st.Countdown = secondsUntil(s.countdownEnds, now)
		st.TimeLeft = s.durationSeconds()
	case PhaseRacing:
		st.Countdown = 0
		st.TimeLeft = secondsUntil(s.endsAt, now)
	case PhaseFinished:
		st.Countdown = 0
	}
	return st
}

func (s *Session) resetPlayer(p *player) {
	p.progress.Reset()
	p.live = metrics.Compute("", 0, 0)
	p.pct = 0
	p.finished = false
	p.final = nil
}

// refresh recomputes live stats and progress after an accepted update.
func (s *Session) refresh(p *player, now time.Time) {
	text := p.progress.Text()
	p.live = metrics.Compute(text, p.progress.Errors, now.Sub(s.startedAt))
	p.pct = progressPercent(utf8.RuneCountInString(text), s.visibleChars)
}

func (s *Session) members() []*player {
	return lo.Compact(s.slots[:])
}

func (s *Session) member(id string) *player {
	p, _ := lo.Find(s.members(), func(p *player) bool { return p.id == id })
	return p
}

func (s *Session) opponentOf(id string) *player {
	p, _ := lo.Find(s.members(), func(p *player) bool { return p.id != id })
	return p
}

func (s *Session) view(p *player) events.Player {
	return events.Player{
		ID:       p.id,
		Name:     p.name,
		IsHost:   p.id == s.hostID,
		Progress: p.pct,
		Position: p.progress.WordIndex,
		WPM:      p.live.WPM,
		Accuracy: p.live.Accuracy,
		Finished: p.finished,
	}
}

func (s *Session) views() []events.Player {
	return lo.Map(s.members(), func(p *player, _ int) events.Player { return s.view(p) })
}

func (s *Session) durationSeconds() int {
	return int(s.cfg.Duration / time.Second)
}

// visibleChars is the length of the first n words joined by single spaces.
func visibleChars(words []string, n int) int {
	if n <= 0 || n > len(words) {
		n = len(words)
	}
	total := 0
	for i, w := range words[:n] {
		if i > 0 {
			total++
		}
		total += utf8.RuneCountInString(w)
	}
	return total
}

func progressPercent(typed, visible int) float64 {
	if visible <= 0 {
		return 0
	}
	pct := float64(typed) / float64(visible) * 100
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}

func secondsUntil(deadline, now time.Time) int {
	left := deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
