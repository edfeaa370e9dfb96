/*
Copyright © 2026 juizo-game
*/

package game

import "fmt"

// Phase is the finite state a room mirror can be in. The string values are
// the wire representation carried inside game_state payloads.
type Phase string

const (
	PhaseHome          Phase = "HOME"
	PhaseRoomSelection Phase = "ROOM_SELECTION"
	PhaseRoomSetup     Phase = "ROOM_SETUP"
	PhaseAvatarPicker  Phase = "AVATAR_PICKER"
	PhaseLobby         Phase = "LOBBY"
	PhaseAnswering     Phase = "ROUND_ANSWERING"
	PhaseGuessing      Phase = "ROUND_GUESSING"
	PhaseScoring       Phase = "SCORING"
	PhaseFinalResults  Phase = "FINAL_RESULTS"
)

// ParsePhase validates a wire phase value. Unknown values are rejected so a
// mismatched client version can never push a mirror into a state it does not
// understand.
func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseHome, PhaseRoomSelection, PhaseRoomSetup, PhaseAvatarPicker,
		PhaseLobby, PhaseAnswering, PhaseGuessing, PhaseScoring, PhaseFinalResults:
		return p, nil
	}

	return "", fmt.Errorf("unknown phase %q", s)
}

// Terminal reports whether the phase ends the match.
func (p Phase) Terminal() bool {
	return p == PhaseFinalResults
}
