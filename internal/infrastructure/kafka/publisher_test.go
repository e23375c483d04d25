package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeduel/tradeduel/internal/domain/event"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type countingRecorder map[string]int

func (c countingRecorder) RecordPublish(publisher, result string) {
	c[publisher+":"+result]++
}

func TestPublishKeysByChallenge(t *testing.T) {
	w := &fakeWriter{}
	rec := countingRecorder{}
	p := newPublisher(w, "events", rec)

	evt := &event.Event{
		EventID:     uuid.New(),
		Type:        event.TypeChallengeAccepted,
		ChallengeID: uuid.New(),
		OccurredAt:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, evt.ChallengeID.String(), string(msg.Key))
	assert.Equal(t, evt.OccurredAt, msg.Time)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, string(event.TypeChallengeAccepted), string(msg.Headers[0].Value))

	var decoded event.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.EventID, decoded.EventID)
	assert.Equal(t, 1, rec["kafka:ok"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishError(t *testing.T) {
	boom := errors.New("broker down")
	rec := countingRecorder{}
	p := newPublisher(&fakeWriter{err: boom}, "events", rec)

	err := p.Publish(context.Background(), &event.Event{Type: event.TypeChallengeCompleted})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, rec["kafka:error"])
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	_, err := NewPublisher(nil)
	assert.Error(t, err)

	p, err := NewPublisher(nil, WithBrokers("localhost:9092"), WithTopic("t"), WithCompression("zstd"), WithWriteTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "t", p.topic)
	require.NoError(t, p.Close())
}
