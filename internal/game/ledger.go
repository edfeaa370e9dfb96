/*
Copyright © 2026 juizo-game
*/

package game

import "sort"

// Ledger maps player IDs to cumulative points. The host holds the
// authoritative copy; followers only ever adopt broadcast replacements.
type Ledger map[string]int

// Clone returns an independent copy. A nil ledger clones to an empty one.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for id, n := range l {
		out[id] = n
	}
	return out
}

// RecordWin returns a copy of the ledger with the winner's total incremented
// by one, creating the entry at 1 when absent. The receiver is not modified:
// the host computes the new ledger, broadcasts it, and every mirror adopts it
// wholesale.
func (l Ledger) RecordWin(winnerID string) Ledger {
	out := l.Clone()
	out[winnerID]++
	return out
}

// Leaderboard orders the roster for display: descending by score, ties kept
// in roster iteration order. The ledger is consulted directly so the ordering
// holds even if the roster's Score fields are stale.
func (l Ledger) Leaderboard(roster []Player) []Player {
	out := make([]Player, len(roster))
	copy(out, roster)

	sort.SliceStable(out, func(i, j int) bool {
		return l[out[i].ID] > l[out[j].ID]
	})

	for i := range out {
		out[i].Score = l[out[i].ID]
	}

	return out
}
