package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juizo-game/juizo/internal/game"
)

func TestBroadcastFrameCarriesEventAndPayload(t *testing.T) {
	f, err := Broadcast(EventRoundEnd, RoundEnd{
		WinnerIndex:  0,
		WinnerID:     "bob",
		Scores:       game.Ledger{"bob": 1},
		CurrentRound: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, TypeBroadcast, f.Type)
	assert.Equal(t, EventRoundEnd, f.Event)

	var re RoundEnd
	require.NoError(t, json.Unmarshal(f.Payload, &re))
	assert.Equal(t, "bob", re.WinnerID)
	assert.Equal(t, 1, re.Scores["bob"])
}

func TestDecodePresenceDropsMalformedRecords(t *testing.T) {
	raw, err := json.Marshal(map[string]json.RawMessage{
		"good": json.RawMessage(`{"id":"bob","name":"Bob"}`),
		"bad":  json.RawMessage(`"not an object"`),
	})
	require.NoError(t, err)

	state := DecodePresence(raw)

	require.Len(t, state, 1)
	assert.Equal(t, "bob", state["good"].ID)
}

func TestDecodePresenceToleratesGarbage(t *testing.T) {
	assert.Nil(t, DecodePresence(json.RawMessage(`[]`)))
	assert.Nil(t, DecodePresence(json.RawMessage(`garbled`)))
}
