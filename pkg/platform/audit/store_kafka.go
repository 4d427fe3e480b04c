package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rxchange/internal/platform/kafka/producer"
)

// DefaultTopic is the Kafka topic audit events are published to.
const DefaultTopic = "rxchange.audit"

// KafkaStore publishes audit events to a Kafka topic, keyed by credential ID
// so all events for one credential land in the same partition, in order.
type KafkaStore struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaStore creates a Kafka-backed audit sink.
func NewKafkaStore(p *producer.Producer, topic string) *KafkaStore {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaStore{producer: p, topic: topic}
}

type kafkaEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	CredentialID string    `json:"credential_id,omitempty"`
	IssuerDID    string    `json:"issuer_did,omitempty"`
	Action       string    `json:"action"`
	Outcome      string    `json:"outcome,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
}

// Append publishes the event. The write is synchronous; the async audit
// publisher already decouples this from request latency.
func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaEvent{
		Timestamp:    event.Timestamp,
		CredentialID: event.CredentialID.String(),
		IssuerDID:    event.IssuerDID.String(),
		Action:       event.Action,
		Outcome:      event.Outcome,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(event.CredentialID.String()),
		Value: payload,
	})
}
