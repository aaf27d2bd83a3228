package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/insigne-house/api/internal/platform/textutil"
)

// GenerationJobMessage is the payload queued when a report generation run is requested.
type GenerationJobMessage struct {
	InsigneID    string    `json:"insigneId"`
	SubmissionID string    `json:"submissionId"`
	QueuedAt     time.Time `json:"queuedAt"`
}

// GenerationPublisher enqueues generation jobs for asynchronous processing.
type GenerationPublisher interface {
	PublishGenerationJob(ctx context.Context, message GenerationJobMessage) (string, error)
}

// PubSubGenerationPublisher publishes generation jobs to a Pub/Sub topic.
type PubSubGenerationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubGenerationPublisher constructs a Pub/Sub backed generation job publisher.
func NewPubSubGenerationPublisher(topic *pubsub.Topic) (*PubSubGenerationPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub generation publisher: topic is required")
	}
	return &PubSubGenerationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishGenerationJob enqueues a generation job message on the configured topic.
func (p *PubSubGenerationPublisher) PublishGenerationJob(ctx context.Context, message GenerationJobMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub generation publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal generation job: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: textutil.NormalizeStringMap(map[string]string{
			"insigneId":    message.InsigneID,
			"submissionId": message.SubmissionID,
		}),
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish generation job: %w", err)
	}
	return id, nil
}
