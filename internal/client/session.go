/*
Copyright © 2026 juizo-game
*/

// Package client implements one player's view of a room: a single-goroutine
// reactive session that mirrors shared state from broadcasts, runs the round
// timer, and emits this player's own transitions. All mirror mutation happens
// on the session loop, so handlers never race each other.
package client

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/juizo-game/juizo/internal/game"
	"github.com/juizo-game/juizo/internal/question"
	"github.com/juizo-game/juizo/internal/wire"
)

// DefaultAnswer is submitted on behalf of a player whose timer expires.
const DefaultAnswer = "(sem resposta)"

// DefaultRevealDelay is how long everyone lingers on the revealed answers
// before moving to the scoreboard. Host and followers use the same delay so
// they leave the reveal at roughly the same wall-clock moment.
const DefaultRevealDelay = 4 * time.Second

// HostToken is the capability required to construct game_state transitions.
// Only CreateRoom hands one out, so follower code paths cannot emit
// authoritative broadcasts by accident.
type HostToken struct {
	sessionID string
}

// Session is one client process participating in a room.
type Session struct {
	id     string
	name   string
	avatar string

	roomCode string
	host     *HostToken

	dial        Dialer
	gen         question.Generator
	revealDelay time.Duration
	tickEvery   time.Duration
	pickTarget  func([]game.Player) game.Player

	mirror     *game.Mirror
	presence   map[string]game.PresenceRecord
	channel    Channel
	frames     <-chan wire.Frame
	revealC    <-chan time.Time
	endedRound int
	lastErr    error

	commands chan func()
	done     chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithDialer sets how the session reaches the room channel.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithGenerator sets the question generator used by the host. A nil
// generator falls back to the deterministic default question.
func WithGenerator(g question.Generator) Option {
	return func(s *Session) { s.gen = g }
}

// WithRevealDelay overrides the post-pick observation delay.
func WithRevealDelay(d time.Duration) Option {
	return func(s *Session) { s.revealDelay = d }
}

// WithID overrides the generated client ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// NewSession creates a session in the HOME phase and starts its event loop.
func NewSession(opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		revealDelay: DefaultRevealDelay,
		tickEvery:   time.Second,
		pickTarget:  randomPlayer,
		mirror:      game.NewMirror(),
		presence:    make(map[string]game.PresenceRecord),
		commands:    make(chan func(), 8),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.loop()

	return s
}

// ID returns the session's client key.
func (s *Session) ID() string {
	return s.id
}

// Close stops the event loop and drops the channel subscription.
func (s *Session) Close() {
	s.do(func() {
		if s.channel != nil {
			_ = s.channel.Close()
			s.channel = nil
		}
	})
	close(s.done)
}

// loop serializes every event source: inbound frames, the 1-second tick,
// the reveal delay, and user commands. Nothing else touches the mirror.
func (s *Session) loop() {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case fn := <-s.commands:
			fn()

		case f, ok := <-s.frames:
			if !ok {
				// Channel dropped; the mirror goes stale until Reset.
				s.frames = nil
				continue
			}
			s.handleFrame(f)

		case <-ticker.C:
			s.handleTick()

		case <-s.revealC:
			s.handleRevealExpired()
		}
	}
}

// do runs fn on the session loop and waits for it to finish.
func (s *Session) do(fn func()) {
	doneC := make(chan struct{})
	select {
	case s.commands <- func() {
		fn()
		close(doneC)
	}:
		<-doneC
	case <-s.done:
	}
}

func (s *Session) handleFrame(f wire.Frame) {
	switch f.Type {
	case wire.TypeSubscribed:
		// Presence starts only after the subscription ack: announce our
		// record, then consider ourselves in the lobby.
		s.track()
		if s.mirror.Phase == game.PhaseAvatarPicker {
			s.mirror.Phase = game.PhaseLobby
		}

	case wire.TypePresenceSync:
		state := wire.DecodePresence(f.Payload)
		if state == nil {
			return
		}
		s.presence = state
		s.refreshRoster()
		s.checkRoundComplete()

	case wire.TypeBroadcast:
		s.handleBroadcast(f)
	}
}

func (s *Session) handleBroadcast(f wire.Frame) {
	switch f.Event {
	case wire.EventGameState:
		var t game.Transition
		if err := decode(f.Payload, &t); err != nil {
			return
		}
		// A malformed or forward-incompatible transition leaves the
		// mirror untouched.
		if err := s.mirror.Apply(t); err != nil {
			return
		}
		s.refreshRoster()
		s.checkRoundComplete()

	case wire.EventNewAnswer:
		var a game.Answer
		if err := decode(f.Payload, &a); err != nil || a.PlayerID == "" {
			return
		}
		s.mirror.AddAnswer(a)
		s.checkRoundComplete()

	case wire.EventRoundEnd:
		var re wire.RoundEnd
		if err := decode(f.Payload, &re); err != nil {
			return
		}
		s.applyRoundEnd(re.WinnerIndex, re.Scores, re.CurrentRound)
	}
}

// applyRoundEnd is shared by the judge's own pick and the broadcast path, so
// both sides observe the identical reveal delay.
func (s *Session) applyRoundEnd(winnerIndex int, scores game.Ledger, round int) {
	s.mirror.EndRound(winnerIndex, scores)
	s.refreshRoster()
	s.endedRound = round
	s.revealC = time.After(s.revealDelay)
}

func (s *Session) handleRevealExpired() {
	s.revealC = nil

	if s.mirror.FinalRound(s.endedRound) {
		s.mirror.Phase = game.PhaseFinalResults
	} else {
		s.mirror.Phase = game.PhaseScoring
	}
}

func (s *Session) handleTick() {
	if s.mirror.Phase != game.PhaseAnswering || s.mirror.Countdown <= 0 {
		return
	}

	s.mirror.Countdown--
	if s.mirror.Countdown > 0 {
		return
	}

	// Timer expired: submit the default answer for this client only.
	// The dedup in AddAnswer keeps this idempotent against a manual
	// submission racing the tick.
	if !s.mirror.IsJudge(s.id) && !s.mirror.HasAnswered(s.id) {
		s.submitLocked(DefaultAnswer)
	}
}

// checkRoundComplete is the round-completion watcher: a pure derivation from
// the mirror, applied locally and never broadcast.
func (s *Session) checkRoundComplete() {
	if s.mirror.Phase == game.PhaseAnswering && s.mirror.AllAnswersIn() {
		s.mirror.Phase = game.PhaseGuessing
	}
}

// refreshRoster reprojects presence into the roster with ledger scores.
func (s *Session) refreshRoster() {
	s.mirror.Roster = game.RosterFromPresence(s.presence, s.mirror.Scores)
}

func (s *Session) track() {
	if s.channel == nil {
		return
	}

	f, err := wire.Track(game.PresenceRecord{
		ID:     s.id,
		Name:   s.name,
		Avatar: s.avatar,
		IsHost: s.host != nil,
	})
	if err != nil {
		s.lastErr = err
		return
	}
	if err := s.channel.Send(f); err != nil {
		s.lastErr = err
	}
}

// send publishes a broadcast frame, fire-and-forget. Failures are recorded
// for Err but never retried; the local mirror has already applied the
// transition optimistically.
func (s *Session) send(event string, payload any) {
	if s.channel == nil {
		return
	}

	f, err := wire.Broadcast(event, payload)
	if err != nil {
		s.lastErr = err
		return
	}
	if err := s.channel.Send(f); err != nil {
		s.lastErr = err
	}
}

func randomPlayer(roster []game.Player) game.Player {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roster))))
	if err != nil {
		return roster[0]
	}
	return roster[n.Int64()]
}
