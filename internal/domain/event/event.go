package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tradeduel/tradeduel/internal/domain/challenge"
	"github.com/tradeduel/tradeduel/internal/domain/trade"
)

// Type names a lifecycle event.
type Type string

const (
	TypeChallengeCreated   Type = "challenge.created"
	TypeChallengeAccepted  Type = "challenge.accepted"
	TypeChallengeRejected  Type = "challenge.rejected"
	TypeChallengeCancelled Type = "challenge.cancelled"
	TypeChallengeExpired   Type = "challenge.expired"
	TypeChallengeCompleted Type = "challenge.completed"
	TypeTradeRecorded      Type = "trade.recorded"
)

// Event is emitted after a committed transition.
type Event struct {
	EventID      uuid.UUID            `json:"eventId"`
	Type         Type                 `json:"type"`
	ChallengeID  uuid.UUID            `json:"challengeId"`
	Participants []uuid.UUID          `json:"participants"`
	Challenge    *challenge.Challenge `json:"challenge,omitempty"`
	Trade        *trade.Trade         `json:"trade,omitempty"`
	OccurredAt   time.Time            `json:"occurredAt"`
}

// New builds an event for c.
func New(t Type, c *challenge.Challenge, now time.Time) *Event {
	return &Event{
		EventID:      uuid.New(),
		Type:         t,
		ChallengeID:  c.ChallengeID,
		Participants: c.Participants(),
		Challenge:    c,
		OccurredAt:   now.UTC(),
	}
}

// ForCancel picks the event type matching a cancel reason.
func ForCancel(reason challenge.CancelReason) Type {
	switch reason {
	case challenge.ReasonRejectedByOpponent:
		return TypeChallengeRejected
	case challenge.ReasonExpiredUnanswered:
		return TypeChallengeExpired
	default:
		return TypeChallengeCancelled
	}
}

// Publisher delivers committed events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, evt *Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *Event) error { return nil }
