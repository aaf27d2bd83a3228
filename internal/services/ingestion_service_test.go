package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/repositories"
)

func newIngestionFixture(t *testing.T, repo *stubSubmissionRepository, publisher *stubPublisher) IngestionService {
	t.Helper()
	svc, err := NewIngestionService(IngestionServiceDeps{
		Submissions: repo,
		Publisher:   publisher,
		Clock:       fixedClock,
		TokenSource: func() (string, error) { return "token-fixed", nil },
	})
	if err != nil {
		t.Fatalf("NewIngestionService: %v", err)
	}
	return svc
}

func TestIngestWebhookCreatesInsigneAndQueuesGeneration(t *testing.T) {
	repo := &stubSubmissionRepository{
		create: func(_ context.Context, record repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
			insigne := record.Insigne
			insigne.ID = "ins_01NEW"
			return repositories.SubmissionResult{Insigne: insigne}, nil
		},
	}
	publisher := &stubPublisher{}
	svc := newIngestionFixture(t, repo, publisher)

	payload := []byte(`{
		"data": {
			"submissionId": "sub-42",
			"fields": [{"type": "INPUT_EMAIL", "value": "client@example.com"}]
		}
	}`)

	result, err := svc.IngestWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("IngestWebhook: %v", err)
	}
	if result.InsigneID != "ins_01NEW" || result.SubmissionID != "sub-42" || result.Deduped {
		t.Fatalf("unexpected result: %+v", result)
	}

	if len(repo.records) != 1 {
		t.Fatalf("expected one create, got %d", len(repo.records))
	}
	record := repo.records[0]
	if record.SubmissionID != "sub-42" {
		t.Fatalf("unexpected submission id: %q", record.SubmissionID)
	}
	if record.Insigne.Status != domain.InsigneStatusDraft {
		t.Fatalf("expected draft, got %q", record.Insigne.Status)
	}
	if record.Insigne.AccessToken != "token-fixed" {
		t.Fatalf("unexpected token: %q", record.Insigne.AccessToken)
	}
	if record.Insigne.ClientEmail != "client@example.com" {
		t.Fatalf("unexpected email: %q", record.Insigne.ClientEmail)
	}
	if record.Payload == nil {
		t.Fatal("expected raw payload to be stored")
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(publisher.messages))
	}
	if publisher.messages[0].InsigneID != "ins_01NEW" || publisher.messages[0].SubmissionID != "sub-42" {
		t.Fatalf("unexpected job message: %+v", publisher.messages[0])
	}
}

func TestIngestWebhookDedupedSkipsDispatch(t *testing.T) {
	repo := &stubSubmissionRepository{
		create: func(_ context.Context, _ repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
			return repositories.SubmissionResult{
				Insigne: domain.Insigne{ID: "ins_01OLD", Status: domain.InsigneStatusAwaitingApproval},
				Deduped: true,
			}, nil
		},
	}
	publisher := &stubPublisher{}
	svc := newIngestionFixture(t, repo, publisher)

	result, err := svc.IngestWebhook(context.Background(), []byte(`{"submission": {"id": "sub-42"}}`))
	if err != nil {
		t.Fatalf("IngestWebhook: %v", err)
	}
	if !result.Deduped || result.InsigneID != "ins_01OLD" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("expected no dispatch on dedupe, got %d", len(publisher.messages))
	}
}

func TestIngestWebhookMissingSubmissionID(t *testing.T) {
	repo := &stubSubmissionRepository{
		create: func(_ context.Context, _ repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
			t.Fatal("create should not be reached")
			return repositories.SubmissionResult{}, nil
		},
	}
	publisher := &stubPublisher{}
	svc := newIngestionFixture(t, repo, publisher)

	_, err := svc.IngestWebhook(context.Background(), []byte(`{"event": "FORM_RESPONSE"}`))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestWebhookDispatchFailureDoesNotAffectResponse(t *testing.T) {
	repo := &stubSubmissionRepository{
		create: func(_ context.Context, record repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
			insigne := record.Insigne
			insigne.ID = "ins_01NEW"
			return repositories.SubmissionResult{Insigne: insigne}, nil
		},
	}
	publisher := &stubPublisher{err: errors.New("broker down")}
	svc := newIngestionFixture(t, repo, publisher)

	result, err := svc.IngestWebhook(context.Background(), []byte(`{"id": "sub-9"}`))
	if err != nil {
		t.Fatalf("IngestWebhook: %v", err)
	}
	if result.InsigneID != "ins_01NEW" || result.Deduped {
		t.Fatalf("unexpected result: %+v", result)
	}
}
