package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/repositories"
)

const defaultSignedURLTTL = 15 * time.Minute

// AccessServiceDeps bundles collaborators required to construct the access service.
type AccessServiceDeps struct {
	Insignes     repositories.InsigneRepository
	Submissions  repositories.SubmissionRepository
	Assets       repositories.AssetRepository
	SignedURLTTL time.Duration
	Logger       *zap.Logger
}

type accessService struct {
	insignes    repositories.InsigneRepository
	submissions repositories.SubmissionRepository
	assets      repositories.AssetRepository
	ttl         time.Duration
	logger      *zap.Logger
}

// NewAccessService constructs the insigne read service.
func NewAccessService(deps AccessServiceDeps) (AccessService, error) {
	if deps.Insignes == nil {
		return nil, errors.New("access service: insigne repository is required")
	}
	if deps.Submissions == nil {
		return nil, errors.New("access service: submission repository is required")
	}
	if deps.Assets == nil {
		return nil, errors.New("access service: asset repository is required")
	}

	ttl := deps.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &accessService{
		insignes:    deps.Insignes,
		submissions: deps.Submissions,
		assets:      deps.Assets,
		ttl:         ttl,
		logger:      logger.Named("access"),
	}, nil
}

func (s *accessService) ResolveByToken(ctx context.Context, token string) (InsigneAccess, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return InsigneAccess{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}

	insigne, err := s.insignes.FindByAccessToken(ctx, token)
	if err != nil {
		return InsigneAccess{}, mapLookupError(err, "insigne for token")
	}
	return s.withAssets(ctx, insigne)
}

func (s *accessService) ResolveByID(ctx context.Context, insigneID string) (InsigneAccess, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return InsigneAccess{}, fmt.Errorf("%w: insigne id is required", ErrInvalidInput)
	}

	insigne, err := s.insignes.FindByID(ctx, insigneID)
	if err != nil {
		return InsigneAccess{}, mapLookupError(err, "insigne "+insigneID)
	}
	return s.withAssets(ctx, insigne)
}

func (s *accessService) ResolveBySubmission(ctx context.Context, submissionID string) (domain.Insigne, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return domain.Insigne{}, fmt.Errorf("%w: submission id is required", ErrInvalidInput)
	}

	insigne, err := s.submissions.FindInsigneBySubmission(ctx, submissionID)
	if err != nil {
		return domain.Insigne{}, mapLookupError(err, "submission "+submissionID)
	}
	return insigne, nil
}

func (s *accessService) Latest(ctx context.Context) (domain.Insigne, error) {
	insigne, err := s.insignes.FindLatest(ctx)
	if err != nil {
		return domain.Insigne{}, mapLookupError(err, "latest insigne")
	}
	return insigne, nil
}

func (s *accessService) ApprovalQueue(ctx context.Context, page pagination.Params) (InsigneQueue, error) {
	queue, nextToken, err := s.insignes.ListByStatus(ctx, domain.InsigneStatusAwaitingApproval, page)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return InsigneQueue{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if repositories.IsUnavailable(err) {
			return InsigneQueue{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return InsigneQueue{}, err
	}
	return InsigneQueue{Insignes: queue, NextPageToken: nextToken}, nil
}

// withAssets signs the record's assets concurrently. One goroutine per asset,
// results joined by position; a failed signature degrades that entry only.
func (s *accessService) withAssets(ctx context.Context, insigne domain.Insigne) (InsigneAccess, error) {
	assets, err := s.assets.ListByInsigne(ctx, insigne.ID)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return InsigneAccess{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return InsigneAccess{}, err
	}

	signed := make([]domain.SignedAsset, len(assets))
	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func(i int, asset domain.Asset) {
			defer wg.Done()
			result, err := s.assets.SignedDownload(ctx, asset, s.ttl)
			if err != nil {
				s.logger.Warn("asset signing failed",
					zap.String("insigne_id", insigne.ID),
					zap.String("asset_id", asset.ID),
					zap.Error(err),
				)
				signed[i] = domain.SignedAsset{
					AssetType:   asset.AssetType,
					StoragePath: asset.StoragePath,
					Error:       err.Error(),
				}
				return
			}
			signed[i] = result
		}(i, asset)
	}
	wg.Wait()

	return InsigneAccess{Insigne: insigne, Assets: signed}, nil
}

func mapLookupError(err error, subject string) error {
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrNotFound, subject)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return err
	}
}
