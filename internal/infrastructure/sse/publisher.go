package sse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tradeduel/tradeduel/internal/domain/event"
)

// Publisher forwards lifecycle events to the participants' open streams.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// Publish implements event.Publisher. Users without an open stream miss the event.
func (p *Publisher) Publish(_ context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := NewMessage(string(evt.Type), data)
	msg.ID = evt.EventID.String()
	for _, userID := range evt.Participants {
		p.hub.BroadcastToUser(userID, msg)
	}
	return nil
}

var _ event.Publisher = (*Publisher)(nil)
