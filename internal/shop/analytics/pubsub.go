package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/frerescollection/shopbot/internal/agent/model"
)

type publisher interface {
	Publish(context.Context, *pubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubSink publishes events to a Pub/Sub topic and waits for the server ack.
type PubSubSink struct {
	client    *pubsub.Client
	publisher publisher
}

// NewPubSubSink opens a client for projectID and a publisher for topic (id or full resource name).
func NewPubSubSink(ctx context.Context, projectID, topic string) (*PubSubSink, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubSink{
		client:    client,
		publisher: &gcpPublisher{Publisher: client.Publisher(topicResourceName(projectID, topic))},
	}, nil
}

func (s *PubSubSink) Record(ctx context.Context, event model.AnalyticsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	res := s.publisher.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": string(event.Type),
			"sender_id":  event.SenderID,
		},
	})
	if res == nil {
		return errors.New("pubsub publisher not initialized")
	}
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish %s: %w", event.Type, err)
	}
	return nil
}

func (s *PubSubSink) Close() error {
	if s.client == nil {
		return nil
	}
	if p, ok := s.publisher.(*gcpPublisher); ok && p.Publisher != nil {
		p.Stop()
	}
	return s.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	return fmt.Sprintf("projects/%s/topics/%s", strings.TrimSpace(projectID), n)
}

type gcpPublisher struct {
	*pubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

var _ model.AnalyticsSink = (*PubSubSink)(nil)
