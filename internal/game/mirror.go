/*
Copyright © 2026 juizo-game
*/

package game

// Question is the third-person prompt for one round.
type Question struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	Category       string `json:"category"`
	TargetPlayerID string `json:"targetPlayerId"`
}

// Answer is one player's submission for the current round.
type Answer struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Answer   string `json:"answer"`
}

// Transition is a full or partial restatement of room state as carried by a
// game_state broadcast. State is mandatory; every other field is optional and
// overwrites the mirror only when present.
type Transition struct {
	State        string    `json:"state"`
	Settings     *Settings `json:"settings,omitempty"`
	Question     *Question `json:"question,omitempty"`
	TargetPlayer *Player   `json:"targetPlayer,omitempty"`
	Round        int       `json:"round,omitempty"`
	Scores       Ledger    `json:"scores,omitempty"`
}

// Mirror is one client's local copy of the shared room state. It is mutated
// only from the owning session's event loop, so it needs no locking.
type Mirror struct {
	Phase    Phase
	Settings Settings
	Round    int
	Question *Question
	Target   *Player
	Roster   []Player

	Answers     []Answer
	Revealed    map[int]bool
	WinnerIndex int // -1 until the judge picks
	Scores      Ledger

	Countdown int // seconds left in the answering phase
}

func NewMirror() *Mirror {
	return &Mirror{
		Phase:       PhaseHome,
		Settings:    DefaultSettings(),
		Revealed:    make(map[int]bool),
		WinnerIndex: -1,
		Scores:      make(Ledger),
	}
}

// Apply folds a transition into the mirror: last-writer-wins per field, with
// absent fields left untouched. A transition with an unknown phase leaves the
// mirror unchanged and reports the error; duplicates and reorderings of the
// same transition converge on the same mirror. Entering ROUND_ANSWERING
// always resets the round's ephemeral state, even when earlier messages for
// the round were lost.
func (m *Mirror) Apply(t Transition) error {
	phase, err := ParsePhase(t.State)
	if err != nil {
		return err
	}

	m.Phase = phase

	if t.Settings != nil {
		m.Settings = *t.Settings
	}
	if t.Question != nil {
		q := *t.Question
		m.Question = &q
	}
	if t.TargetPlayer != nil {
		p := *t.TargetPlayer
		m.Target = &p
	}
	if t.Round > 0 {
		m.Round = t.Round
	}

	if phase == PhaseAnswering {
		m.ResetRound()
	}

	if t.Scores != nil {
		m.Scores = t.Scores.Clone()
	}

	return nil
}

// ResetRound clears the per-round ephemeral state and rewinds the countdown.
// The timer falls back to the mirror's current settings, so an answering
// transition that omits its settings slice still yields a sane countdown.
func (m *Mirror) ResetRound() {
	m.Answers = nil
	m.Revealed = make(map[int]bool)
	m.WinnerIndex = -1

	m.Countdown = m.Settings.Timer
	if m.Countdown <= 0 {
		m.Countdown = DefaultTimer
	}
}

// AddAnswer appends an answer unless the player already has one this round.
// First received occurrence wins; this is the only defense against duplicate
// delivery of new_answer, and every receiver applies it independently.
func (m *Mirror) AddAnswer(a Answer) bool {
	for _, existing := range m.Answers {
		if existing.PlayerID == a.PlayerID {
			return false
		}
	}

	m.Answers = append(m.Answers, a)

	return true
}

// HasAnswered reports whether the player already submitted this round.
func (m *Mirror) HasAnswered(playerID string) bool {
	for _, a := range m.Answers {
		if a.PlayerID == playerID {
			return true
		}
	}
	return false
}

// IsJudge reports whether the given player is the current round's judge.
func (m *Mirror) IsJudge(playerID string) bool {
	return m.Target != nil && m.Target.ID == playerID
}

// AllAnswersIn is the round-completion watcher: every roster member except
// the judge has an answer on record. It is a pure derivation from the mirror
// snapshot, recomputed after every change, never broadcast.
func (m *Mirror) AllAnswersIn() bool {
	expected := len(m.Roster) - 1
	return expected > 0 && len(m.Answers) >= expected
}

// EndRound records the judge's pick: the winning index, authorship of every
// answer revealed, and the broadcast ledger adopted wholesale.
func (m *Mirror) EndRound(winnerIndex int, scores Ledger) {
	m.WinnerIndex = winnerIndex
	for i := range m.Answers {
		m.Revealed[i] = true
	}
	if scores != nil {
		m.Scores = scores.Clone()
	}
}

// FinalRound reports whether the given round is the last of the match.
func (m *Mirror) FinalRound(round int) bool {
	return round >= m.Settings.Rounds
}
