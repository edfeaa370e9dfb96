package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juizo-game/juizo/internal/game"
	"github.com/juizo-game/juizo/internal/question"
	"github.com/juizo-game/juizo/internal/wire"
)

type fakeChannel struct {
	in     chan wire.Frame
	mu     sync.Mutex
	sent   []wire.Frame
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{in: make(chan wire.Frame, 32)}
}

func (c *fakeChannel) Frames() <-chan wire.Frame { return c.in }

func (c *fakeChannel) Send(f wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
	return nil
}

func (c *fakeChannel) push(f wire.Frame) { c.in <- f }

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) frames(frameType, event string) []wire.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []wire.Frame
	for _, f := range c.sent {
		if f.Type == frameType && f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func presenceFrame(t *testing.T, recs map[string]game.PresenceRecord) wire.Frame {
	t.Helper()
	payload, err := json.Marshal(recs)
	require.NoError(t, err)
	return wire.Frame{Type: wire.TypePresenceSync, Payload: payload}
}

func broadcastFrame(t *testing.T, event string, payload any) wire.Frame {
	t.Helper()
	f, err := wire.Broadcast(event, payload)
	require.NoError(t, err)
	return f
}

func threePlayers() map[string]game.PresenceRecord {
	return map[string]game.PresenceRecord{
		"alice": {ID: "alice", Name: "Alice", Avatar: "av-alice"},
		"bob":   {ID: "bob", Name: "Bob", Avatar: "av-bob"},
		"host":  {ID: "host", Name: "Host", Avatar: "av-host", IsHost: true},
	}
}

func answeringState(t *testing.T, round, timer, rounds int) wire.Frame {
	t.Helper()
	return broadcastFrame(t, wire.EventGameState, game.Transition{
		State:        string(game.PhaseAnswering),
		Question:     &game.Question{ID: "q1", Text: "Qual segredo Alice esconde?", Category: "Essência", TargetPlayerID: "alice"},
		TargetPlayer: &game.Player{ID: "alice", Name: "Alice"},
		Round:        round,
		Settings:     &game.Settings{CategoryID: "alma", Rounds: rounds, Timer: timer},
	})
}

func waitPhase(t *testing.T, s *Session, want game.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Phase == want
	}, 2*time.Second, 5*time.Millisecond, "expected phase %s", want)
}

// newHostSession runs a host through room creation into the lobby against a
// fake channel.
func newHostSession(t *testing.T, ch *fakeChannel, opts ...Option) (*Session, *HostToken) {
	t.Helper()

	opts = append([]Option{
		WithID("host"),
		WithRevealDelay(30 * time.Millisecond),
		WithDialer(func(ctx context.Context, code, key string) (Channel, error) {
			return ch, nil
		}),
	}, opts...)

	s := NewSession(opts...)
	t.Cleanup(s.Close)

	tok, err := s.CreateRoom()
	require.NoError(t, err)

	code, err := s.ConfigureRoom(tok, game.Settings{CategoryID: "alma", Rounds: 2, Timer: 45})
	require.NoError(t, err)
	require.Regexp(t, `^[0-9]{4}$`, code)

	require.NoError(t, s.EnterLobby(context.Background(), "Host", "av-host"))
	ch.push(wire.Frame{Type: wire.TypeSubscribed})
	waitPhase(t, s, game.PhaseLobby)

	return s, tok
}

// newGuestSession joins an existing room through the alternate entry path.
func newGuestSession(t *testing.T, ch *fakeChannel, id, name string, opts ...Option) *Session {
	t.Helper()

	opts = append([]Option{
		WithID(id),
		WithRevealDelay(30 * time.Millisecond),
		WithDialer(func(ctx context.Context, code, key string) (Channel, error) {
			return ch, nil
		}),
	}, opts...)

	s := NewSession(opts...)
	t.Cleanup(s.Close)

	require.NoError(t, s.BeginJoin())
	require.NoError(t, s.JoinRoom("1234"))
	require.NoError(t, s.EnterLobby(context.Background(), name, "av-"+id))
	ch.push(wire.Frame{Type: wire.TypeSubscribed})
	waitPhase(t, s, game.PhaseLobby)

	return s
}

func TestPresenceIsAnnouncedOnlyAfterSubscriptionAck(t *testing.T) {
	ch := newFakeChannel()
	s := NewSession(
		WithID("bob"),
		WithDialer(func(ctx context.Context, code, key string) (Channel, error) {
			return ch, nil
		}),
	)
	t.Cleanup(s.Close)

	require.NoError(t, s.BeginJoin())
	require.NoError(t, s.JoinRoom("1234"))
	require.NoError(t, s.EnterLobby(context.Background(), "Bob", "av-bob"))

	assert.Empty(t, ch.frames(wire.TypeTrack, ""), "no track before the ack")
	assert.Equal(t, game.PhaseAvatarPicker, s.Snapshot().Phase)

	ch.push(wire.Frame{Type: wire.TypeSubscribed})
	waitPhase(t, s, game.PhaseLobby)

	tracks := ch.frames(wire.TypeTrack, "")
	require.Len(t, tracks, 1)

	var rec game.PresenceRecord
	require.NoError(t, json.Unmarshal(tracks[0].Payload, &rec))
	assert.Equal(t, "bob", rec.ID)
	assert.Equal(t, "Bob", rec.Name)
	assert.False(t, rec.IsHost)
	assert.Zero(t, rec.Score)
}

func TestJoinRoomValidatesCode(t *testing.T) {
	s := NewSession(WithID("bob"))
	t.Cleanup(s.Close)

	assert.ErrorIs(t, s.JoinRoom("12"), ErrBadRoomCode)
	assert.ErrorIs(t, s.JoinRoom("12ab"), ErrBadRoomCode)
	assert.NoError(t, s.JoinRoom("0042"))
}

func TestCreateRoomOnlyFromHome(t *testing.T) {
	s := NewSession(WithID("bob"))
	t.Cleanup(s.Close)

	require.NoError(t, s.BeginJoin())

	_, err := s.CreateRoom()
	assert.ErrorIs(t, err, ErrBadPhase)
}

func TestPresenceSyncProjectsRoster(t *testing.T) {
	ch := newFakeChannel()
	s, _ := newHostSession(t, ch)

	ch.push(presenceFrame(t, threePlayers()))

	require.Eventually(t, func() bool {
		return len(s.Snapshot().Roster) == 3
	}, 2*time.Second, 5*time.Millisecond)

	roster := s.Snapshot().Roster
	assert.Equal(t, "alice", roster[0].ID)
	assert.Equal(t, "bob", roster[1].ID)
	assert.Equal(t, "host", roster[2].ID)
}

func TestStartMatchBroadcastsAnsweringTransition(t *testing.T) {
	ch := newFakeChannel()
	s, tok := newHostSession(t, ch, func(s *Session) {
		s.pickTarget = func(roster []game.Player) game.Player {
			for _, p := range roster {
				if p.ID == "bob" {
					return p
				}
			}
			return roster[0]
		}
	})

	ch.push(presenceFrame(t, threePlayers()))
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Roster) == 3
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.StartMatch(context.Background(), tok))

	snap := s.Snapshot()
	assert.Equal(t, game.PhaseAnswering, snap.Phase)
	assert.Equal(t, 1, snap.Round)
	assert.InDelta(t, 45, snap.Countdown, 1)
	require.NotNil(t, snap.Target)
	assert.Equal(t, "bob", snap.Target.ID)
	require.NotNil(t, snap.Question)
	assert.Equal(t, question.Fallback("Bob"), snap.Question.Text, "nil generator falls back deterministically")

	states := ch.frames(wire.TypeBroadcast, wire.EventGameState)
	require.Len(t, states, 1)

	var tr game.Transition
	require.NoError(t, json.Unmarshal(states[0].Payload, &tr))
	assert.Equal(t, string(game.PhaseAnswering), tr.State)
	assert.Equal(t, 1, tr.Round)
	require.NotNil(t, tr.Settings)
	assert.Equal(t, 2, tr.Settings.Rounds)
	require.NotNil(t, tr.TargetPlayer)
	assert.Equal(t, "bob", tr.TargetPlayer.ID)
}

func TestStartMatchRequiresHostToken(t *testing.T) {
	ch := newFakeChannel()
	s := newGuestSession(t, ch, "bob", "Bob")

	err := s.StartMatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotHost)

	// A token forged outside CreateRoom carries no authority.
	err = s.StartMatch(context.Background(), &HostToken{sessionID: "bob"})
	assert.ErrorIs(t, err, ErrNotHost)
}

func TestStartMatchNeedsTwoPlayers(t *testing.T) {
	ch := newFakeChannel()
	s, tok := newHostSession(t, ch)

	ch.push(presenceFrame(t, map[string]game.PresenceRecord{
		"host": {ID: "host", Name: "Host", IsHost: true},
	}))
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Roster) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.StartMatch(context.Background(), tok), ErrNotEnough)
}

// Room [Host, Alice, Bob], judge Alice. Bob
// answers "pizza", Host submits the default. Everyone converges on two
// answers and the guessing phase.
func TestRoundScenarioAllClientsReachGuessing(t *testing.T) {
	bobCh := newFakeChannel()
	bob := newGuestSession(t, bobCh, "bob", "Bob")

	judgeCh := newFakeChannel()
	judge := newGuestSession(t, judgeCh, "alice", "Alice")

	for _, ch := range []*fakeChannel{bobCh, judgeCh} {
		ch.push(presenceFrame(t, threePlayers()))
		ch.push(answeringState(t, 1, 45, 2))
	}
	waitPhase(t, bob, game.PhaseAnswering)
	waitPhase(t, judge, game.PhaseAnswering)

	require.NoError(t, bob.SubmitAnswer("pizza"))
	waitPhase(t, bob, game.PhaseGuessing)

	answers := bobCh.frames(wire.TypeBroadcast, wire.EventNewAnswer)
	require.Len(t, answers, 1)

	// Relay Bob's answer and the host's default answer to the judge.
	judgeCh.push(wire.Frame{Type: wire.TypeBroadcast, Event: wire.EventNewAnswer, Payload: answers[0].Payload})
	judgeCh.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{
		PlayerID: "host", Name: "Host", Avatar: "av-host", Answer: DefaultAnswer,
	}))

	waitPhase(t, judge, game.PhaseGuessing)
	snap := judge.Snapshot()
	require.Len(t, snap.Answers, 2)
	assert.Equal(t, "pizza", snap.Answers[0].Answer)

	// Bob also sees the host's answer.
	bobCh.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{
		PlayerID: "host", Name: "Host", Avatar: "av-host", Answer: DefaultAnswer,
	}))
	require.Eventually(t, func() bool {
		return len(bob.Snapshot().Answers) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestJudgeCannotSubmitAnswer(t *testing.T) {
	ch := newFakeChannel()
	judge := newGuestSession(t, ch, "alice", "Alice")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	waitPhase(t, judge, game.PhaseAnswering)

	assert.ErrorIs(t, judge.SubmitAnswer("nope"), ErrJudgeCannot)
}

func TestPickWinnerJudgeOnly(t *testing.T) {
	ch := newFakeChannel()
	bob := newGuestSession(t, ch, "bob", "Bob")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	waitPhase(t, bob, game.PhaseAnswering)

	assert.ErrorIs(t, bob.PickWinner(0), ErrNotJudge)
}

func TestJudgePickBroadcastsRoundEndAndAdvancesToScoring(t *testing.T) {
	ch := newFakeChannel()
	judge := newGuestSession(t, ch, "alice", "Alice")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	ch.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "bob", Name: "Bob", Answer: "pizza"}))
	ch.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "host", Name: "Host", Answer: DefaultAnswer}))
	waitPhase(t, judge, game.PhaseGuessing)

	require.NoError(t, judge.PickWinner(0))

	ends := ch.frames(wire.TypeBroadcast, wire.EventRoundEnd)
	require.Len(t, ends, 1)

	var re wire.RoundEnd
	require.NoError(t, json.Unmarshal(ends[0].Payload, &re))
	assert.Equal(t, 0, re.WinnerIndex)
	assert.Equal(t, "bob", re.WinnerID)
	assert.Equal(t, game.Ledger{"bob": 1}, re.Scores)
	assert.Equal(t, 1, re.CurrentRound)

	snap := judge.Snapshot()
	assert.Equal(t, 0, snap.WinnerIndex)
	assert.True(t, snap.Revealed[0])
	assert.True(t, snap.Revealed[1])

	// Round 1 of 2: after the reveal delay the judge lands on the
	// scoreboard, with the roster reflecting the new ledger.
	waitPhase(t, judge, game.PhaseScoring)

	board := judge.Leaderboard()
	require.NotEmpty(t, board)
	assert.Equal(t, "bob", board[0].ID)
	assert.Equal(t, 1, board[0].Score)
}

func TestPickWinnerTwiceIsRejected(t *testing.T) {
	ch := newFakeChannel()
	judge := newGuestSession(t, ch, "alice", "Alice")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	ch.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "bob", Name: "Bob", Answer: "pizza"}))
	ch.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "host", Name: "Host", Answer: DefaultAnswer}))
	waitPhase(t, judge, game.PhaseGuessing)

	require.NoError(t, judge.PickWinner(0))
	assert.ErrorIs(t, judge.PickWinner(1), ErrBadPhase)
}

func TestRoundEndOnFinalRoundReachesFinalResults(t *testing.T) {
	ch := newFakeChannel()
	bob := newGuestSession(t, ch, "bob", "Bob")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 2, 45, 2))
	waitPhase(t, bob, game.PhaseAnswering)

	ch.push(broadcastFrame(t, wire.EventRoundEnd, wire.RoundEnd{
		WinnerIndex:  0,
		WinnerID:     "host",
		Scores:       game.Ledger{"host": 2},
		CurrentRound: 2,
	}))

	waitPhase(t, bob, game.PhaseFinalResults)
	assert.Equal(t, game.Ledger{"host": 2}, bob.Snapshot().Scores)
}

func TestTimerExpiryAutoSubmitsDefaultAnswerOnce(t *testing.T) {
	ch := newFakeChannel()
	bob := newGuestSession(t, ch, "bob", "Bob", func(s *Session) {
		s.tickEvery = 5 * time.Millisecond
	})

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 2, 2))
	waitPhase(t, bob, game.PhaseAnswering)

	require.Eventually(t, func() bool {
		return len(ch.frames(wire.TypeBroadcast, wire.EventNewAnswer)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// More ticks must not re-fire the default submission.
	time.Sleep(50 * time.Millisecond)
	answers := ch.frames(wire.TypeBroadcast, wire.EventNewAnswer)
	require.Len(t, answers, 1)

	var a game.Answer
	require.NoError(t, json.Unmarshal(answers[0].Payload, &a))
	assert.Equal(t, DefaultAnswer, a.Answer)
	assert.Equal(t, "bob", a.PlayerID)
}

func TestJudgeTimerExpiryDoesNotSubmit(t *testing.T) {
	ch := newFakeChannel()
	judge := newGuestSession(t, ch, "alice", "Alice", func(s *Session) {
		s.tickEvery = 5 * time.Millisecond
	})

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 2, 2))
	waitPhase(t, judge, game.PhaseAnswering)

	require.Eventually(t, func() bool {
		return judge.Snapshot().Countdown == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, ch.frames(wire.TypeBroadcast, wire.EventNewAnswer))
}

func TestDuplicateAnswerBroadcastsAreIgnored(t *testing.T) {
	ch := newFakeChannel()
	bob := newGuestSession(t, ch, "bob", "Bob")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	waitPhase(t, bob, game.PhaseAnswering)

	first := broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "host", Answer: "churrasco"})
	dup := broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "host", Answer: "feijoada"})
	ch.push(first)
	ch.push(first)
	ch.push(dup)

	require.Eventually(t, func() bool {
		return len(bob.Snapshot().Answers) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	snap := bob.Snapshot()
	require.Len(t, snap.Answers, 1)
	assert.Equal(t, "churrasco", snap.Answers[0].Answer, "first received occurrence wins")
}

func TestMalformedBroadcastsAreDropped(t *testing.T) {
	ch := newFakeChannel()
	bob := newGuestSession(t, ch, "bob", "Bob")

	ch.push(wire.Frame{Type: wire.TypeBroadcast, Event: wire.EventGameState, Payload: json.RawMessage(`{"state":"NOT_A_PHASE"}`)})
	ch.push(wire.Frame{Type: wire.TypeBroadcast, Event: "confetti", Payload: json.RawMessage(`{}`)})
	ch.push(wire.Frame{Type: wire.TypeBroadcast, Event: wire.EventNewAnswer, Payload: json.RawMessage(`garbled`)})

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, game.PhaseLobby, bob.Snapshot().Phase)
	assert.Empty(t, bob.Snapshot().Answers)
}

// A player disconnecting mid-round shrinks the roster, which can complete
// the round for everyone still present.
func TestPresenceShrinkCompletesRound(t *testing.T) {
	ch := newFakeChannel()
	judge := newGuestSession(t, ch, "alice", "Alice")

	ch.push(presenceFrame(t, threePlayers()))
	ch.push(answeringState(t, 1, 45, 2))
	ch.push(broadcastFrame(t, wire.EventNewAnswer, game.Answer{PlayerID: "bob", Answer: "pizza"}))
	waitPhase(t, judge, game.PhaseAnswering)

	ch.push(presenceFrame(t, map[string]game.PresenceRecord{
		"alice": {ID: "alice", Name: "Alice"},
		"bob":   {ID: "bob", Name: "Bob"},
	}))

	waitPhase(t, judge, game.PhaseGuessing)
}

func TestResetReturnsHome(t *testing.T) {
	ch := newFakeChannel()
	s, _ := newHostSession(t, ch)

	ch.push(presenceFrame(t, threePlayers()))
	require.Eventually(t, func() bool {
		return len(s.Snapshot().Roster) == 3
	}, 2*time.Second, 5*time.Millisecond)

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, game.PhaseHome, snap.Phase)
	assert.Empty(t, snap.Roster)
	assert.Empty(t, s.RoomCode())
	assert.True(t, ch.isClosed())
}
