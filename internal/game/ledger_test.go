package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordWinIncrementsExistingEntry(t *testing.T) {
	l := Ledger{"A": 2, "B": 1}

	got := l.RecordWin("B")

	assert.Equal(t, Ledger{"A": 2, "B": 2}, got)
	assert.Equal(t, Ledger{"A": 2, "B": 1}, l, "receiver must not be mutated")
}

func TestRecordWinCreatesMissingEntryAtOne(t *testing.T) {
	var l Ledger

	got := l.RecordWin("bob")

	assert.Equal(t, Ledger{"bob": 1}, got)
}

func TestLeaderboardSortsByScoreWithStableTies(t *testing.T) {
	roster := []Player{
		{ID: "host", Name: "Host"},
		{ID: "alice", Name: "Alice"},
		{ID: "bob", Name: "Bob"},
		{ID: "carol", Name: "Carol"},
	}
	l := Ledger{"bob": 3, "alice": 1, "carol": 1}

	board := l.Leaderboard(roster)

	assert.Equal(t, "bob", board[0].ID)
	// alice and carol tie at 1; roster iteration order breaks the tie.
	assert.Equal(t, "alice", board[1].ID)
	assert.Equal(t, "carol", board[2].ID)
	assert.Equal(t, "host", board[3].ID)

	assert.Equal(t, 3, board[0].Score)
	assert.Equal(t, 0, board[3].Score)
}

func TestLeaderboardLeavesRosterUntouched(t *testing.T) {
	roster := []Player{{ID: "a"}, {ID: "b"}}
	l := Ledger{"b": 5}

	_ = l.Leaderboard(roster)

	assert.Equal(t, "a", roster[0].ID)
	assert.Equal(t, 0, roster[0].Score)
}
