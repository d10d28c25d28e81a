// Package pubsub publishes queue lifecycle events to GCP Pub/Sub so
// out-of-process operators can observe enqueues and drive re-enqueues.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher pushes payloads to Pub/Sub topics. It satisfies the
// scrape.Publisher interface.
type Publisher struct {
	client *pubsub.Client
}

// New creates a Pub/Sub client authenticated via Application Default
// Credentials and verifies the given topic exists, failing fast otherwise.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	ok, err := client.Topic(topicID).Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("check topic %q: %w (close client: %v)", topicID, err, closeErr)
		}
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{client: client}, nil
}

// Publish marshals payload and sends it to the named topic, waiting for the
// server acknowledgement so callers learn about delivery failures.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	result := p.client.Topic(topic).Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %q: %w", topic, err)
	}
	return id, nil
}

// Close releases the underlying client connection.
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
