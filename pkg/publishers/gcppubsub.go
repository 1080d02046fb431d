package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// gcpPubSubSender publishes events to one Pub/Sub topic.
type gcpPubSubSender struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	ordered bool
	log     Logger
}

func newGCPPubSubSender(ctx context.Context, cfg *GCPQueueConfig, log Logger) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gcp queue configuration is missing")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	topic.EnableMessageOrdering = cfg.Ordered

	return &gcpPubSubSender{
		client:  client,
		topic:   topic,
		ordered: cfg.Ordered,
		log:     ensureLogger(log),
	}, nil
}

// Send publishes the event and waits for the server to acknowledge it.
func (s *gcpPubSubSender) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{Data: payload, Attributes: eventAttributes(evt)}
	if s.ordered {
		msg.OrderingKey, _ = fifoKeys(evt)
	}

	msgID, err := s.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		// A failed ordered publish pauses its key until resumed.
		if msg.OrderingKey != "" {
			s.topic.ResumePublish(msg.OrderingKey)
		}
		s.log.ErrorObj("pubsub publish failed", "publisher_gcp_pubsub_error", map[string]any{
			"event_id":     evt.ID,
			"ordering_key": msg.OrderingKey,
			"error":        err.Error(),
		})
		return fmt.Errorf("send message to pubsub: %w", err)
	}

	s.log.DebugObj("pubsub message published", "publisher_gcp_pubsub_delivery", map[string]any{
		"message_id": msgID,
		"event_id":   evt.ID,
	})
	return nil
}

// Close flushes pending messages and closes the client.
func (s *gcpPubSubSender) Close() error {
	s.topic.Stop()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
