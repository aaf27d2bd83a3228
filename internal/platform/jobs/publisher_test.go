package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubGenerationPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "insigne-generation")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubGenerationPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubGenerationPublisher: %v", err)
	}

	queuedAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	msg := GenerationJobMessage{
		InsigneID:    "ins_test",
		SubmissionID: "sub-123",
		QueuedAt:     queuedAt,
	}

	if _, err := publisher.PublishGenerationJob(ctx, msg); err != nil {
		t.Fatalf("PublishGenerationJob: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload GenerationJobMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.InsigneID != msg.InsigneID || payload.SubmissionID != msg.SubmissionID {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["insigneId"]; attr != "ins_test" {
		t.Fatalf("expected insigne id attribute, got %q", attr)
	}
}

func TestInlineGenerationDispatcherRunsJob(t *testing.T) {
	var (
		mu     sync.Mutex
		gotID  string
		runned = make(chan struct{})
	)

	dispatcher, err := NewInlineGenerationDispatcher(func(_ context.Context, insigneID string) error {
		mu.Lock()
		gotID = insigneID
		mu.Unlock()
		close(runned)
		return nil
	}, nil, time.Second)
	if err != nil {
		t.Fatalf("NewInlineGenerationDispatcher: %v", err)
	}

	id, err := dispatcher.PublishGenerationJob(context.Background(), GenerationJobMessage{InsigneID: "ins_abc"})
	if err != nil {
		t.Fatalf("PublishGenerationJob: %v", err)
	}
	if id != "inline:ins_abc" {
		t.Fatalf("unexpected dispatch id %q", id)
	}

	select {
	case <-runned:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotID != "ins_abc" {
		t.Fatalf("runner received wrong id %q", gotID)
	}
}

func TestInlineGenerationDispatcherSwallowsRunnerErrors(t *testing.T) {
	done := make(chan struct{})
	dispatcher, err := NewInlineGenerationDispatcher(func(context.Context, string) error {
		defer close(done)
		return errors.New("provider down")
	}, nil, time.Second)
	if err != nil {
		t.Fatalf("NewInlineGenerationDispatcher: %v", err)
	}

	if _, err := dispatcher.PublishGenerationJob(context.Background(), GenerationJobMessage{InsigneID: "ins_err"}); err != nil {
		t.Fatalf("PublishGenerationJob should not surface runner errors, got %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner was not invoked")
	}
}

func TestNewInlineGenerationDispatcherRequiresRunner(t *testing.T) {
	if _, err := NewInlineGenerationDispatcher(nil, nil, 0); err == nil {
		t.Fatal("expected error for nil runner")
	}
}
