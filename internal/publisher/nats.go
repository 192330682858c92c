// Package publisher sends collector events to NATS.
package publisher

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/blockedby/telememo/internal/collector"
	"github.com/blockedby/telememo/internal/nats"
)

// maxIDsPerEvent splits large batches into several events.
const maxIDsPerEvent = 100

// NATSClient interface to allow mocking
type NATSClient interface {
	Publish(ctx context.Context, subject string, data any) error
}

// NATSPublisher implements collector.EventPublisher
type NATSPublisher struct {
	js NATSClient
}

var _ collector.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(client NATSClient) *NATSPublisher {
	return &NATSPublisher{js: client}
}

// PublishMessagesStored publishes a stored batch on telememo.messages.stored.
func (p *NATSPublisher) PublishMessagesStored(ctx context.Context, event collector.MessagesStoredEvent) error {
	for _, ids := range lo.Chunk(event.MessageIDs, maxIDsPerEvent) {
		part := event
		part.MessageIDs = ids
		if err := p.js.Publish(ctx, nats.SubjectMessagesStored, part); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}
