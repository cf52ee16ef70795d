package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(h *Hub) *conn {
	c := &conn{send: make(chan []byte, 8), hub: h}
	h.allConn[c] = true
	return c
}

func TestSubscribePutsConnInPlayerRoom(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.subscribe(c, "player1")

	assert.Equal(t, "player1", c.player)
	assert.True(t, h.rooms["player1"][c])
}

func TestSubscribeMovesConnBetweenRooms(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.subscribe(c, "player1")
	h.subscribe(c, "player2")

	assert.Equal(t, "player2", c.player)
	_, stillInOld := h.rooms["player1"]
	assert.False(t, stillInOld)
	assert.True(t, h.rooms["player2"][c])
}

func TestUnsubscribeRemovesFromRoomAndClearsField(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.subscribe(c, "player1")
	h.unsubscribe(c, "player1")

	assert.Equal(t, "", c.player)
	_, ok := h.rooms["player1"]
	assert.False(t, ok)
}

func TestPublishOnlyReachesSubscribersOfThatPlayer(t *testing.T) {
	h := NewHub()
	watcher := newTestConn(h)
	other := newTestConn(h)
	h.subscribe(watcher, "player1")
	h.subscribe(other, "player2")

	h.Publish("player1", "trade", map[string]int{"qty": 3})

	select {
	case raw := <-watcher.send:
		var msg Msg
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "trade", msg.Type)
		assert.Equal(t, "player1", msg.PlayerID)
	default:
		t.Fatal("expected watcher to receive the publish")
	}

	select {
	case <-other.send:
		t.Fatal("other player's subscriber should not receive this publish")
	default:
	}
}

func TestBroadcastAllReachesEveryConnectionRegardlessOfRoom(t *testing.T) {
	h := NewHub()
	a := newTestConn(h)
	b := newTestConn(h)
	h.subscribe(a, "player1")
	// b never subscribes to any room.

	h.BroadcastAll("contestUpdate", map[string]string{"contestId": "c1"})

	for _, c := range []*conn{a, b} {
		select {
		case raw := <-c.send:
			var msg Msg
			require.NoError(t, json.Unmarshal(raw, &msg))
			assert.Equal(t, "contestUpdate", msg.Type)
			assert.Equal(t, "", msg.PlayerID)
		default:
			t.Fatal("expected every connection to receive the broadcast")
		}
	}
}

func TestRemoveConnCleansUpRoomAndAllConnSet(t *testing.T) {
	h := NewHub()
	c := newTestConn(h)
	h.subscribe(c, "player1")

	h.removeConn(c)

	assert.False(t, h.allConn[c])
	_, ok := h.rooms["player1"]
	assert.False(t, ok)
}
