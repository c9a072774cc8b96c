// Package pubsub publishes review events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	gpubsub "cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	reviewhook "github.com/xraph/daybook/review_hook"
)

// Compile-time interface check.
var _ reviewhook.Publisher = (*Publisher)(nil)

// Publisher writes each review event as one JSON message. Messages for the
// same outlet share an ordering key, so a subscriber with ordering enabled
// sees an outlet's events in publish order.
type Publisher struct {
	client *gpubsub.Client // nil when the caller owns the client
	topic  *gpubsub.Topic
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger for the publisher.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New wraps an existing topic. The caller keeps ownership of its client.
func New(topic *gpubsub.Topic, opts ...Option) *Publisher {
	topic.EnableMessageOrdering = true
	p := &Publisher{
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open dials Pub/Sub and binds to an existing topic.
func Open(ctx context.Context, projectID, topicID string, clientOpts []option.ClientOption, opts ...Option) (*Publisher, error) {
	client, err := gpubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("review_hook/pubsub: connect: %w", err)
	}

	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("review_hook/pubsub: check topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("review_hook/pubsub: topic %q does not exist", topicID)
	}

	p := New(topic, opts...)
	p.client = client
	return p, nil
}

// Publish implements reviewhook.Publisher. It blocks until the server
// acknowledges the message or ctx ends.
func (p *Publisher) Publish(ctx context.Context, evt *reviewhook.ReviewEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("review_hook/pubsub: encode %s: %w", evt.Action, err)
	}

	msg := &gpubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"action":   evt.Action,
			"resource": evt.Resource,
			"severity": evt.Severity,
		},
		OrderingKey: evt.OutletID,
	}
	if evt.OutletID != "" {
		msg.Attributes["outlet_id"] = evt.OutletID
	}

	serverID, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		// A failed publish pauses its ordering key until resumed.
		if evt.OutletID != "" {
			p.topic.ResumePublish(evt.OutletID)
		}
		return fmt.Errorf("review_hook/pubsub: publish %s: %w", evt.Action, err)
	}

	p.logger.Debug("review event published",
		"action", evt.Action,
		"message_id", serverID,
	)
	return nil
}

// Close flushes pending messages and, for publishers created by Open,
// closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
