package sse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeduel/tradeduel/internal/domain/event"
)

func TestHubRoutesByUser(t *testing.T) {
	hub := NewHub()
	alice, bob := uuid.New(), uuid.New()
	a1 := NewClient("a1", alice)
	a2 := NewClient("a2", alice)
	b1 := NewClient("b1", bob)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(b1)
	assert.Equal(t, 3, hub.GetClientCount())

	sent := hub.BroadcastToUser(alice, NewMessage("ping", json.RawMessage(`{}`)))
	assert.Equal(t, 2, sent)
	assert.Len(t, a1.MessageChan, 1)
	assert.Len(t, a2.MessageChan, 1)
	assert.Empty(t, b1.MessageChan)

	hub.Unregister("a1")
	_, open := <-drain(a1)
	assert.False(t, open)
	assert.ErrorIs(t, hub.SendToClient("a1", NewMessage("x", nil)), ErrClientNotFound)

	hub.Stop()
	assert.Zero(t, hub.GetClientCount())
}

func TestSendToFullClient(t *testing.T) {
	hub := NewHub()
	c := NewClient("c", uuid.New())
	hub.Register(c)
	for i := 0; i < clientBuffer; i++ {
		require.NoError(t, hub.SendToClient("c", NewMessage("x", nil)))
	}
	assert.ErrorIs(t, hub.SendToClient("c", NewMessage("x", nil)), ErrChannelFull)
}

func TestRegisterReplacesClient(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	old := NewClient("same", user)
	hub.Register(old)
	hub.Register(NewClient("same", user))
	_, open := <-drain(old)
	assert.False(t, open)
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestPublisherNotifiesParticipants(t *testing.T) {
	hub := NewHub()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	ca, cb, cc := NewClient("a", alice), NewClient("b", bob), NewClient("c", carol)
	hub.Register(ca)
	hub.Register(cb)
	hub.Register(cc)

	evt := &event.Event{
		EventID:      uuid.New(),
		Type:         event.TypeChallengeCompleted,
		ChallengeID:  uuid.New(),
		Participants: []uuid.UUID{alice, bob},
	}
	require.NoError(t, NewPublisher(hub).Publish(context.Background(), evt))

	msg := <-ca.MessageChan
	assert.Equal(t, evt.EventID.String(), msg.ID)
	assert.Equal(t, string(event.TypeChallengeCompleted), msg.Event)
	var decoded event.Event
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, evt.ChallengeID, decoded.ChallengeID)
	assert.Len(t, cb.MessageChan, 1)
	assert.Empty(t, cc.MessageChan)
}

// drain empties buffered messages and returns the channel for a closed check.
func drain(c *Client) <-chan *Message {
	for len(c.MessageChan) > 0 {
		<-c.MessageChan
	}
	return c.MessageChan
}
