// Package pubsub publishes bundle completion events to Google Cloud
// Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Connect dials Pub/Sub and binds the named topic.
func Connect(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return New(client.Topic(topicID)), nil
}

// Publish marshals the payload to JSON and publishes it, blocking until
// the server acknowledges the message.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}
