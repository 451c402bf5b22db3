// Package events bridges authority audit events onto a message bus. The
// default topic carries every event type; token revocations are what
// downstream consumers typically care about (cache invalidation, forced
// client logout).
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/arcticfox/tokenauth"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "tokenauth.audit"

// PublisherSink implements [tokenauth.AuditSink] on top of a watermill
// publisher. Publish failures are swallowed by design: the audit stream is
// advisory and must never fail an authentication path.
type PublisherSink struct {
	publisher message.Publisher
	topic     string
	onError   func(error)
}

// NewPublisherSink wraps a watermill publisher. topic may be empty, in which
// case [DefaultTopic] is used. onError, when non-nil, observes publish
// failures.
func NewPublisherSink(publisher message.Publisher, topic string, onError func(error)) *PublisherSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSink{
		publisher: publisher,
		topic:     topic,
		onError:   onError,
	}
}

// Emit publishes one audit event as a JSON message.
func (s *PublisherSink) Emit(ctx context.Context, event tokenauth.AuditEvent) {
	if s == nil || s.publisher == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.fail(fmt.Errorf("marshal audit event: %w", err))
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("event_type", event.EventType)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		s.fail(fmt.Errorf("publish audit event: %w", err))
	}
}

func (s *PublisherSink) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
