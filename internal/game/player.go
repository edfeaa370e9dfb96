/*
Copyright © 2026 juizo-game
*/

package game

import "sort"

// Player is the domain view of one connected client.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Score  int    `json:"score"`
	IsHost bool   `json:"isHost,omitempty"`
}

// PresenceRecord is what each client tracks about itself on the channel.
// Score is baked in as zero at track time and must never reach the roster;
// the ledger is the only source of truth for points.
type PresenceRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	IsHost bool   `json:"isHost,omitempty"`
	Score  int    `json:"score"`
}

// RosterFromPresence projects a presence snapshot into the player roster.
// The snapshot arrives as a key→record map with no usable ordering, so the
// roster is ordered by presence key: stable within one client, possibly
// different across clients, which the protocol accepts. Scores come from the
// ledger so a presence resync cannot clobber them with the stale zero in the
// tracked record.
func RosterFromPresence(state map[string]PresenceRecord, scores Ledger) []Player {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	roster := make([]Player, 0, len(keys))
	for _, k := range keys {
		rec := state[k]
		roster = append(roster, Player{
			ID:     rec.ID,
			Name:   rec.Name,
			Avatar: rec.Avatar,
			Score:  scores[rec.ID],
			IsHost: rec.IsHost,
		})
	}

	return roster
}
