package services

import (
	"context"
	"time"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/jobs"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/repositories"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type stubInsigneRepository struct {
	findByID        func(ctx context.Context, id string) (domain.Insigne, error)
	findByToken     func(ctx context.Context, token string) (domain.Insigne, error)
	findLatest      func(ctx context.Context) (domain.Insigne, error)
	listByStatus    func(ctx context.Context, status domain.InsigneStatus, page pagination.Params) ([]domain.Insigne, string, error)
	claim           func(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (domain.Insigne, error)
	release         func(ctx context.Context, id string, now time.Time) error
	complete        func(ctx context.Context, id string, content domain.GeneratedContent, now time.Time) (domain.Insigne, error)
	advance         func(ctx context.Context, id string, from []domain.InsigneStatus, to domain.InsigneStatus, now time.Time) (domain.Insigne, error)
	releaseCalls    int
	advanceTargets  []domain.InsigneStatus
	completeContent []domain.GeneratedContent
}

func (s *stubInsigneRepository) FindByID(ctx context.Context, id string) (domain.Insigne, error) {
	return s.findByID(ctx, id)
}

func (s *stubInsigneRepository) FindByAccessToken(ctx context.Context, token string) (domain.Insigne, error) {
	return s.findByToken(ctx, token)
}

func (s *stubInsigneRepository) FindLatest(ctx context.Context) (domain.Insigne, error) {
	return s.findLatest(ctx)
}

func (s *stubInsigneRepository) ListByStatus(ctx context.Context, status domain.InsigneStatus, page pagination.Params) ([]domain.Insigne, string, error) {
	return s.listByStatus(ctx, status, page)
}

func (s *stubInsigneRepository) ClaimGeneration(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (domain.Insigne, error) {
	return s.claim(ctx, id, now, staleAfter)
}

func (s *stubInsigneRepository) ReleaseGenerationClaim(ctx context.Context, id string, now time.Time) error {
	s.releaseCalls++
	if s.release == nil {
		return nil
	}
	return s.release(ctx, id, now)
}

func (s *stubInsigneRepository) CompleteGeneration(ctx context.Context, id string, content domain.GeneratedContent, now time.Time) (domain.Insigne, error) {
	s.completeContent = append(s.completeContent, content)
	return s.complete(ctx, id, content, now)
}

func (s *stubInsigneRepository) AdvanceStatus(ctx context.Context, id string, from []domain.InsigneStatus, to domain.InsigneStatus, now time.Time) (domain.Insigne, error) {
	s.advanceTargets = append(s.advanceTargets, to)
	return s.advance(ctx, id, from, to, now)
}

type stubSubmissionRepository struct {
	create  func(ctx context.Context, record repositories.SubmissionRecord) (repositories.SubmissionResult, error)
	find    func(ctx context.Context, submissionID string) (domain.Insigne, error)
	records []repositories.SubmissionRecord
}

func (s *stubSubmissionRepository) CreateForSubmission(ctx context.Context, record repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
	s.records = append(s.records, record)
	return s.create(ctx, record)
}

func (s *stubSubmissionRepository) FindInsigneBySubmission(ctx context.Context, submissionID string) (domain.Insigne, error) {
	return s.find(ctx, submissionID)
}

type stubAnswerRepository struct {
	append func(ctx context.Context, record domain.AnswersRecord) (domain.AnswersRecord, error)
	latest func(ctx context.Context, insigneID string) (domain.AnswersRecord, error)
}

func (s *stubAnswerRepository) Append(ctx context.Context, record domain.AnswersRecord) (domain.AnswersRecord, error) {
	return s.append(ctx, record)
}

func (s *stubAnswerRepository) LatestByInsigne(ctx context.Context, insigneID string) (domain.AnswersRecord, error) {
	return s.latest(ctx, insigneID)
}

type stubAssetRepository struct {
	list func(ctx context.Context, insigneID string) ([]domain.Asset, error)
	sign func(ctx context.Context, asset domain.Asset, ttl time.Duration) (domain.SignedAsset, error)
}

func (s *stubAssetRepository) ListByInsigne(ctx context.Context, insigneID string) ([]domain.Asset, error) {
	return s.list(ctx, insigneID)
}

func (s *stubAssetRepository) SignedDownload(ctx context.Context, asset domain.Asset, ttl time.Duration) (domain.SignedAsset, error) {
	return s.sign(ctx, asset, ttl)
}

type stubPublisher struct {
	err      error
	messages []jobs.GenerationJobMessage
}

func (s *stubPublisher) PublishGenerationJob(_ context.Context, message jobs.GenerationJobMessage) (string, error) {
	s.messages = append(s.messages, message)
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}
