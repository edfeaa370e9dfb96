/*
Copyright © 2026 juizo-game
*/

package client

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"

	"github.com/juizo-game/juizo/internal/game"
	"github.com/juizo-game/juizo/internal/question"
	"github.com/juizo-game/juizo/internal/wire"
)

var (
	ErrNotHost     = errors.New("only the host may do this")
	ErrNotJudge    = errors.New("only the current judge may pick a winner")
	ErrJudgeCannot = errors.New("the judge does not submit an answer")
	ErrBadPhase    = errors.New("operation not valid in the current phase")
	ErrBadRoomCode = errors.New("room codes are 4 digits")
	ErrNotEnough   = errors.New("at least two players are needed to start")
	ErrNoAnswer    = errors.New("no answer at that index")
)

var roomCodeRe = regexp.MustCompile(`^[0-9]{4}$`)

// CreateRoom makes this session the room's host and moves it into setup.
// The returned token is the capability every authoritative transition needs.
func (s *Session) CreateRoom() (*HostToken, error) {
	var (
		tok *HostToken
		err error
	)
	s.do(func() {
		if s.mirror.Phase != game.PhaseHome {
			err = ErrBadPhase
			return
		}
		tok = &HostToken{sessionID: s.id}
		s.host = tok
		s.mirror.Phase = game.PhaseRoomSetup
	})
	return tok, err
}

// ConfigureRoom fixes the match settings, generates the room code, and moves
// the host on to avatar selection. Settings are immutable once the match
// starts.
func (s *Session) ConfigureRoom(tok *HostToken, settings game.Settings) (string, error) {
	var (
		code string
		err  error
	)
	s.do(func() {
		if !s.isHost(tok) {
			err = ErrNotHost
			return
		}
		if s.mirror.Phase != game.PhaseRoomSetup {
			err = ErrBadPhase
			return
		}
		if settings.Rounds <= 0 {
			settings.Rounds = game.DefaultRounds
		}
		if settings.Timer <= 0 {
			settings.Timer = game.DefaultTimer
		}
		s.mirror.Settings = settings
		s.roomCode = newRoomCode()
		code = s.roomCode
		s.mirror.Phase = game.PhaseAvatarPicker
	})
	return code, err
}

// BeginJoin is the alternate entry path: the player is about to type a code.
func (s *Session) BeginJoin() error {
	var err error
	s.do(func() {
		if s.mirror.Phase != game.PhaseHome {
			err = ErrBadPhase
			return
		}
		s.mirror.Phase = game.PhaseRoomSelection
	})
	return err
}

// JoinRoom accepts a 4-digit room code and moves on to avatar selection.
func (s *Session) JoinRoom(code string) error {
	var err error
	s.do(func() {
		if s.mirror.Phase != game.PhaseHome && s.mirror.Phase != game.PhaseRoomSelection {
			err = ErrBadPhase
			return
		}
		if !roomCodeRe.MatchString(code) {
			err = ErrBadRoomCode
			return
		}
		s.roomCode = code
		s.mirror.Phase = game.PhaseAvatarPicker
	})
	return err
}

// EnterLobby subscribes to the room channel under this player's identity.
// The session is not present in the room until the relay acknowledges the
// subscription; only then is the presence record announced and the phase
// advanced to LOBBY.
func (s *Session) EnterLobby(ctx context.Context, name, avatarRef string) error {
	var (
		dial Dialer
		code string
		err  error
	)
	s.do(func() {
		if s.mirror.Phase != game.PhaseAvatarPicker {
			err = ErrBadPhase
			return
		}
		if s.roomCode == "" {
			err = ErrBadRoomCode
			return
		}
		if s.dial == nil {
			err = errors.New("session has no dialer")
			return
		}
		s.name = name
		s.avatar = avatarRef
		dial = s.dial
		code = s.roomCode
	})
	if err != nil {
		return err
	}

	// Dial off the loop so ticks keep flowing while the network is slow.
	ch, err := dial(ctx, code, s.id)
	if err != nil {
		s.do(func() { s.lastErr = err })
		return err
	}

	s.do(func() {
		s.channel = ch
		s.frames = ch.Frames()
	})
	return nil
}

// StartMatch begins the next round: the host picks a random target, asks the
// question service for a prompt (falling back deterministically on failure),
// applies the transition locally, and broadcasts it. Valid from the lobby
// (round 1) and from the scoreboard (subsequent rounds).
func (s *Session) StartMatch(ctx context.Context, tok *HostToken) error {
	var (
		roster   []game.Player
		settings game.Settings
		next     int
		err      error
	)
	s.do(func() {
		if !s.isHost(tok) {
			err = ErrNotHost
			return
		}
		switch s.mirror.Phase {
		case game.PhaseLobby:
			next = 1
		case game.PhaseScoring:
			next = s.mirror.Round + 1
		default:
			err = ErrBadPhase
			return
		}
		if len(s.mirror.Roster) < 2 {
			err = ErrNotEnough
			return
		}
		roster = append([]game.Player(nil), s.mirror.Roster...)
		settings = s.mirror.Settings
	})
	if err != nil {
		return err
	}

	// Question generation happens off the loop: it may hit the network.
	target := s.pickTarget(roster)
	category := game.CategoryName(settings.CategoryID)
	q := game.Question{
		ID:             uuid.NewString(),
		Text:           question.Resolve(ctx, s.gen, category, target.Name),
		Category:       category,
		TargetPlayerID: target.ID,
	}

	s.do(func() {
		t := game.Transition{
			State:        string(game.PhaseAnswering),
			Question:     &q,
			TargetPlayer: &target,
			Round:        next,
			Settings:     &settings,
		}
		// Optimistic local apply; the broadcast round-trip is never
		// awaited.
		if applyErr := s.mirror.Apply(t); applyErr != nil {
			err = applyErr
			return
		}
		s.sendGameState(tok, t)
	})
	return err
}

// SubmitAnswer records this player's answer and broadcasts it. The submitter
// moves to the guessing phase immediately; everyone else follows once their
// own completion watcher fires.
func (s *Session) SubmitAnswer(text string) error {
	var err error
	s.do(func() {
		if s.mirror.Phase != game.PhaseAnswering {
			err = ErrBadPhase
			return
		}
		if s.mirror.IsJudge(s.id) {
			err = ErrJudgeCannot
			return
		}
		if text == "" {
			text = DefaultAnswer
		}
		s.submitLocked(text)
	})
	return err
}

// submitLocked runs on the loop: append locally (dedup guards the double
// path of manual submit racing the timer), broadcast, and advance.
func (s *Session) submitLocked(text string) {
	a := game.Answer{
		PlayerID: s.id,
		Name:     s.name,
		Avatar:   s.avatar,
		Answer:   text,
	}
	if !s.mirror.AddAnswer(a) {
		return
	}

	s.send(wire.EventNewAnswer, a)

	s.mirror.Phase = game.PhaseGuessing
	s.checkRoundComplete()
}

// PickWinner is the judge's decision. Only the round's target may construct
// a round_end; the new ledger is computed here once and adopted verbatim by
// every receiver.
func (s *Session) PickWinner(index int) error {
	var err error
	s.do(func() {
		if !s.mirror.IsJudge(s.id) {
			err = ErrNotJudge
			return
		}
		if s.mirror.Phase != game.PhaseGuessing || s.mirror.WinnerIndex >= 0 {
			err = ErrBadPhase
			return
		}
		if index < 0 || index >= len(s.mirror.Answers) {
			err = ErrNoAnswer
			return
		}

		winner := s.mirror.Answers[index]
		scores := s.mirror.Scores.RecordWin(winner.PlayerID)

		s.send(wire.EventRoundEnd, wire.RoundEnd{
			WinnerIndex:  index,
			WinnerID:     winner.PlayerID,
			Scores:       scores,
			CurrentRound: s.mirror.Round,
		})

		s.applyRoundEnd(index, scores, s.mirror.Round)
	})
	return err
}

// Reset is the full client-side restart: the only way out of a finished
// match. No leave message is broadcast; the relay drops our presence record
// when the connection closes.
func (s *Session) Reset() {
	s.do(func() {
		if s.channel != nil {
			_ = s.channel.Close()
			s.channel = nil
		}
		s.frames = nil
		s.revealC = nil
		s.host = nil
		s.roomCode = ""
		s.name = ""
		s.avatar = ""
		s.endedRound = 0
		s.lastErr = nil
		s.presence = make(map[string]game.PresenceRecord)
		s.mirror = game.NewMirror()
	})
}

// Snapshot returns a copy of the mirror, safe to read from any goroutine.
func (s *Session) Snapshot() game.Mirror {
	var snap game.Mirror
	s.do(func() {
		snap = *s.mirror
		snap.Roster = append([]game.Player(nil), s.mirror.Roster...)
		snap.Answers = append([]game.Answer(nil), s.mirror.Answers...)
		snap.Scores = s.mirror.Scores.Clone()
		snap.Revealed = make(map[int]bool, len(s.mirror.Revealed))
		for i, v := range s.mirror.Revealed {
			snap.Revealed[i] = v
		}
		if s.mirror.Question != nil {
			q := *s.mirror.Question
			snap.Question = &q
		}
		if s.mirror.Target != nil {
			p := *s.mirror.Target
			snap.Target = &p
		}
	})
	return snap
}

// Leaderboard returns the roster in display order.
func (s *Session) Leaderboard() []game.Player {
	snap := s.Snapshot()
	return snap.Scores.Leaderboard(snap.Roster)
}

// RoomCode returns the room this session is in, if any.
func (s *Session) RoomCode() string {
	var code string
	s.do(func() { code = s.roomCode })
	return code
}

// Err reports the last channel error. A failed send leaves the local mirror
// applied and the room view stuck until the user resets.
func (s *Session) Err() error {
	var err error
	s.do(func() { err = s.lastErr })
	return err
}

func (s *Session) isHost(tok *HostToken) bool {
	return tok != nil && s.host == tok && tok.sessionID == s.id
}

// sendGameState is the narrow point through which game_state frames exist:
// callers without the host token cannot reach it.
func (s *Session) sendGameState(tok *HostToken, t game.Transition) {
	if !s.isHost(tok) {
		return
	}
	s.send(wire.EventGameState, t)
}

// newRoomCode generates a 4-digit numeric room code. Collisions across
// concurrently created rooms are accepted as a low-probability conflict.
func newRoomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return fmt.Sprintf("%04d", 1000+n.Int64())
}

func decode(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}
