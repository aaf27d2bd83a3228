package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/jobs"
	"github.com/insigne-house/api/internal/repositories"
	"github.com/insigne-house/api/internal/tally"
)

// accessTokenBytes sizes the random token minted at creation; hex-encoding
// yields a 48 character token.
const accessTokenBytes = 24

// IngestionServiceDeps bundles collaborators required to construct the ingestion service.
type IngestionServiceDeps struct {
	Submissions repositories.SubmissionRepository
	Publisher   jobs.GenerationPublisher
	Clock       func() time.Time
	TokenSource func() (string, error)
	Logger      *zap.Logger
}

type ingestionService struct {
	submissions repositories.SubmissionRepository
	publisher   jobs.GenerationPublisher
	clock       func() time.Time
	newToken    func() (string, error)
	logger      *zap.Logger
}

// NewIngestionService constructs the webhook ingestion service.
func NewIngestionService(deps IngestionServiceDeps) (IngestionService, error) {
	if deps.Submissions == nil {
		return nil, errors.New("ingestion service: submission repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("ingestion service: generation publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	tokenSource := deps.TokenSource
	if tokenSource == nil {
		tokenSource = newAccessToken
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ingestionService{
		submissions: deps.Submissions,
		publisher:   deps.Publisher,
		clock: func() time.Time {
			return clock().UTC()
		},
		newToken: tokenSource,
		logger:   logger.Named("ingestion"),
	}, nil
}

func (s *ingestionService) IngestWebhook(ctx context.Context, rawPayload []byte) (IngestResult, error) {
	submission := tally.ExtractSubmission(rawPayload)
	if submission.SubmissionID == "" {
		return IngestResult{}, fmt.Errorf("%w: no submission id in payload", ErrInvalidInput)
	}

	payload := tally.ParsePayload(rawPayload)
	if payload == nil {
		payload = map[string]any{}
	}

	token, err := s.newToken()
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingestion service: mint access token: %w", err)
	}

	now := s.clock()
	result, err := s.submissions.CreateForSubmission(ctx, repositories.SubmissionRecord{
		Insigne: domain.Insigne{
			Status:      domain.InsigneStatusDraft,
			AccessToken: token,
			ClientEmail: submission.Email,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		SubmissionID: submission.SubmissionID,
		Payload:      payload,
	})
	if err != nil {
		if repositories.IsUnavailable(err) {
			return IngestResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return IngestResult{}, err
	}

	if !result.Deduped {
		s.queueGeneration(ctx, result.Insigne.ID, submission.SubmissionID, now)
	}

	return IngestResult{
		InsigneID:    result.Insigne.ID,
		SubmissionID: submission.SubmissionID,
		Deduped:      result.Deduped,
	}, nil
}

// queueGeneration dispatches the generation job without affecting the
// ingestion outcome. The webhook response never depends on this succeeding.
func (s *ingestionService) queueGeneration(ctx context.Context, insigneID, submissionID string, now time.Time) {
	messageID, err := s.publisher.PublishGenerationJob(ctx, jobs.GenerationJobMessage{
		InsigneID:    insigneID,
		SubmissionID: submissionID,
		QueuedAt:     now,
	})
	if err != nil {
		s.logger.Warn("generation dispatch failed",
			zap.String("insigne_id", insigneID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("generation queued",
		zap.String("insigne_id", insigneID),
		zap.String("message_id", messageID),
	)
}

func newAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
