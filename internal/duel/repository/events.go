package repository

import (
	"context"
	"encoding/json"
	"time"

	"algoarena/internal/common/mq"
	"algoarena/internal/duel/model"
	appErr "algoarena/pkg/errors"

	"github.com/google/uuid"
)

// DefaultFinishedTopic carries one message per completed duel.
const DefaultFinishedTopic = "duel.finished"

// EventPublisher writes duel results to the message queue keyed by room id.
type EventPublisher struct {
	producer mq.Producer
	topic    string
}

func NewEventPublisher(producer mq.Producer, topic string) *EventPublisher {
	if topic == "" {
		topic = DefaultFinishedTopic
	}
	return &EventPublisher{producer: producer, topic: topic}
}

// PublishFinished sends event as JSON.
func (p *EventPublisher) PublishFinished(ctx context.Context, event model.FinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrap(err, appErr.InternalServerError)
	}
	msg := mq.NewMessage(body)
	msg.ID = uuid.NewString()
	msg.Key = event.RoomID
	msg.Timestamp = time.UnixMilli(event.CompletedAtMs)
	msg.SetHeader("event", p.topic)
	msg.SetHeader("reason", string(event.Reason))
	if err := p.producer.Publish(ctx, p.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish %s for room %s", p.topic, event.RoomID)
	}
	return nil
}
