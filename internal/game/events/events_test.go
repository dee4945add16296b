package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGameStarted(t *testing.T) {
	raw := json.RawMessage(`{"tableId":"t1","dealerId":"u1","pot":20,"currentBet":10,"currentTurn":"u2",
		"players":[{"userId":"u1","username":"alice","balance":90,"isActive":true}]}`)

	ev, err := Decode(GameStarted, raw)
	require.NoError(t, err)

	gs, ok := ev.(GameStartedEvent)
	require.True(t, ok)
	assert.Equal(t, "t1", gs.Table())
	assert.Equal(t, "u1", gs.DealerID)
	assert.Equal(t, 20.0, gs.Pot)
	assert.Equal(t, "u2", gs.CurrentTurn)
	require.Len(t, gs.Players, 1)
	assert.Equal(t, "alice", gs.Players[0].Username)
}

func TestDecodeOptionalFieldsStayNil(t *testing.T) {
	ev, err := Decode(GameStateUpdated, json.RawMessage(`{"tableId":"t1","pot":0}`))
	require.NoError(t, err)

	u := ev.(GameStateUpdatedEvent)
	require.NotNil(t, u.Pot)
	assert.Equal(t, 0.0, *u.Pot)
	assert.Nil(t, u.CurrentBet)
	assert.Nil(t, u.CurrentTurn)
	assert.Nil(t, u.Players)
	assert.Nil(t, u.CardViewers)
}

func TestDecodeGameStartingWithoutCountdown(t *testing.T) {
	ev, err := Decode(GameStarting, nil)
	require.NoError(t, err)
	assert.Nil(t, ev.(GameStartingEvent).Countdown)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode("flip_table", json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(PlayerActionBroadcast, json.RawMessage(`{"userId": 12}`))
	assert.Error(t, err)

	_, err = Decode(PlayerActionBroadcast, json.RawMessage(`{"userId":"u1"}`))
	assert.Error(t, err, "action is required")

	_, err = Decode(BalanceUpdated, json.RawMessage(`{"balance":5}`))
	assert.Error(t, err, "userId is required")
}

func TestDecodeChatAndTableUpdated(t *testing.T) {
	ev, err := Decode(TableChatMessage, json.RawMessage(`{"tableId":"t1","userId":"u1","username":"alice","message":"gl"}`))
	require.NoError(t, err)
	chat := ev.(TableChatMessageEvent)
	assert.Equal(t, "gl", chat.Message)
	assert.Equal(t, "alice", chat.Username)

	ev, err = Decode(TableUpdated, json.RawMessage(`{"tableId":"t1","table":{"tableId":"t1","tableName":"High","maxPlayers":6,"entryFee":50,"status":"waiting"}}`))
	require.NoError(t, err)
	tu := ev.(TableUpdatedEvent)
	assert.Equal(t, "High", tu.Session.Name)
	assert.Equal(t, 6, tu.Session.MaxPlayers)
}

func TestEveryEventNameDecodes(t *testing.T) {
	names := []string{
		GameStarting, GameStartFailed, GameStarted, GameTerminated, GameStateUpdated,
		Showdown, GameCompleted, TableResetForNewGame, GameRestartCountdown,
		PlayerListUpdated, TableChatMessage, TableUpdated, TableClosed,
	}
	for _, n := range names {
		ev, err := Decode(n, json.RawMessage(`{"tableId":"t1"}`))
		require.NoError(t, err, n)
		assert.Equal(t, n, ev.Name())
		assert.Equal(t, "t1", ev.Table())
	}
}
