/*
Copyright © 2026 juizo-game
*/

// Package wire defines the JSON frames exchanged over a room channel. The
// relay treats every payload as opaque bytes; only clients decode them, and
// unknown frame types or events are silently ignored so mismatched client
// versions degrade to a stale view instead of a crash.
package wire

import (
	"encoding/json"

	"github.com/juizo-game/juizo/internal/game"
)

// Frame types. Clients send track and broadcast; the relay sends subscribed,
// presence_sync, and relayed broadcast frames.
const (
	TypeTrack        = "track"
	TypeBroadcast    = "broadcast"
	TypeSubscribed   = "subscribed"
	TypePresenceSync = "presence_sync"
)

// Broadcast event names.
const (
	EventGameState = "game_state"
	EventNewAnswer = "new_answer"
	EventRoundEnd  = "round_end"
)

// Frame is the envelope for every message on the channel. Event is set only
// on broadcast frames.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresenceState is the presence_sync payload: client key to last-tracked
// record, kept raw so the relay never has to understand record contents.
type PresenceState map[string]json.RawMessage

// RoundEnd announces the judge's pick: the winning answer's index, the
// winner's identity, the host-computed ledger, and which round just ended.
type RoundEnd struct {
	WinnerIndex  int         `json:"winnerIndex"`
	WinnerID     string      `json:"winnerId,omitempty"`
	Scores       game.Ledger `json:"scores,omitempty"`
	CurrentRound int         `json:"currentRound"`
}

// Broadcast builds a fire-and-forget broadcast frame for the given event.
func Broadcast(event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}

	return Frame{Type: TypeBroadcast, Event: event, Payload: raw}, nil
}

// Track builds the frame announcing this client's presence record.
func Track(record game.PresenceRecord) (Frame, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Frame{}, err
	}

	return Frame{Type: TypeTrack, Payload: raw}, nil
}

// DecodePresence projects a raw presence_sync payload into typed records.
// Records that fail to decode are dropped rather than failing the sync.
func DecodePresence(raw json.RawMessage) map[string]game.PresenceRecord {
	var state PresenceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}

	out := make(map[string]game.PresenceRecord, len(state))
	for key, rec := range state {
		var p game.PresenceRecord
		if err := json.Unmarshal(rec, &p); err != nil {
			continue
		}
		out[key] = p
	}

	return out
}
