package handlers

import (
	"context"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/services"
)

type stubIngestionService struct {
	result   services.IngestResult
	err      error
	calls    int
	lastBody []byte
}

func (s *stubIngestionService) IngestWebhook(_ context.Context, rawPayload []byte) (services.IngestResult, error) {
	s.calls++
	s.lastBodyCopy(rawPayload)
	return s.result, s.err
}

func (s *stubIngestionService) lastBodyCopy(raw []byte) {
	s.lastBody = append([]byte(nil), raw...)
}

type stubGenerationService struct {
	insigne domain.Insigne
	err     error
	lastID  string
}

func (s *stubGenerationService) Generate(_ context.Context, insigneID string) (domain.Insigne, error) {
	s.lastID = insigneID
	return s.insigne, s.err
}

type stubAccessService struct {
	access    services.InsigneAccess
	insigne   domain.Insigne
	queue     services.InsigneQueue
	err       error
	lastToken string
	lastID    string
	lastSub   string
	lastPage  pagination.Params
}

func (s *stubAccessService) ResolveByToken(_ context.Context, token string) (services.InsigneAccess, error) {
	s.lastToken = token
	return s.access, s.err
}

func (s *stubAccessService) ResolveByID(_ context.Context, insigneID string) (services.InsigneAccess, error) {
	s.lastID = insigneID
	return s.access, s.err
}

func (s *stubAccessService) ResolveBySubmission(_ context.Context, submissionID string) (domain.Insigne, error) {
	s.lastSub = submissionID
	return s.insigne, s.err
}

func (s *stubAccessService) Latest(_ context.Context) (domain.Insigne, error) {
	return s.insigne, s.err
}

func (s *stubAccessService) ApprovalQueue(_ context.Context, page pagination.Params) (services.InsigneQueue, error) {
	s.lastPage = page
	return s.queue, s.err
}

type stubLifecycleService struct {
	insigne      domain.Insigne
	approveErr   error
	deliverErr   error
	approveCalls int
	deliverCalls int
	lastID       string
}

func (s *stubLifecycleService) Approve(_ context.Context, insigneID string) (domain.Insigne, error) {
	s.approveCalls++
	s.lastID = insigneID
	return s.insigne, s.approveErr
}

func (s *stubLifecycleService) Deliver(_ context.Context, insigneID string) (domain.Insigne, error) {
	s.deliverCalls++
	s.lastID = insigneID
	return s.insigne, s.deliverErr
}
