package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"hirejudge/internal/common/mq"
	"hirejudge/internal/metrics"
	"hirejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultTopic carries interview invitations between the API and the notify worker.
const DefaultTopic = "interview.notifications"

const messageKind = "interview_invitation"

// TopicQueue publishes notifications to a message topic.
type TopicQueue struct {
	producer mq.Producer
	topic    string
}

// NewTopicQueue creates a Queue backed by producer.
func NewTopicQueue(producer mq.Producer, topic string) *TopicQueue {
	if topic == "" {
		topic = DefaultTopic
	}
	return &TopicQueue{producer: producer, topic: topic}
}

// Enqueue serializes the batch and publishes it in one write, each message
// keyed by its notification id.
func (q *TopicQueue) Enqueue(ctx context.Context, batch ...Notification) error {
	if len(batch) == 0 {
		return nil
	}
	messages := make([]*mq.Message, 0, len(batch))
	for _, n := range batch {
		body, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification %s: %w", n.ID, err)
		}
		messages = append(messages, mq.NewMessage(n.ID, messageKind, body))
	}
	if err := q.producer.Publish(ctx, q.topic, messages...); err != nil {
		metrics.NotificationsTotal.WithLabelValues("dropped").Add(float64(len(batch)))
		return fmt.Errorf("publish notifications: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues("queued").Add(float64(len(batch)))
	return nil
}

// Handler returns a consumer that delivers each message through sender.
// Malformed payloads are acknowledged and skipped.
func Handler(sender Sender) mq.HandlerFunc {
	return func(ctx context.Context, message *mq.Message) error {
		var n Notification
		if err := json.Unmarshal(message.Body, &n); err != nil {
			logger.Warn(ctx, "skip malformed notification", zap.String("message_id", message.ID), zap.Error(err))
			return nil
		}
		if n.Email == "" {
			logger.Warn(ctx, "skip notification without recipient", zap.String("id", n.ID))
			return nil
		}
		if err := sender.Send(ctx, n.Email, n.Data); err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			logger.Warn(ctx, "send notification failed", zap.String("id", n.ID), zap.Int("attempt", message.Attempt), zap.Error(err))
			return err
		}
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		return nil
	}
}
