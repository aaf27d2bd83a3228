package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/repositories"
)

func newAccessFixture(t *testing.T, insignes *stubInsigneRepository, submissions *stubSubmissionRepository, assets *stubAssetRepository) AccessService {
	t.Helper()
	svc, err := NewAccessService(AccessServiceDeps{
		Insignes:     insignes,
		Submissions:  submissions,
		Assets:       assets,
		SignedURLTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewAccessService: %v", err)
	}
	return svc
}

func TestResolveByTokenSignsAllAssets(t *testing.T) {
	insignes := &stubInsigneRepository{
		findByToken: func(_ context.Context, token string) (domain.Insigne, error) {
			if token != "tok-1" {
				t.Fatalf("unexpected token %q", token)
			}
			return domain.Insigne{ID: "ins_01A", Status: domain.InsigneStatusApproved}, nil
		},
	}
	assets := &stubAssetRepository{
		list: func(_ context.Context, _ string) ([]domain.Asset, error) {
			return []domain.Asset{
				{ID: "asset_1", AssetType: "crest", StoragePath: "ins_01A/crest.png"},
				{ID: "asset_2", AssetType: "report", StoragePath: "ins_01A/report.pdf"},
			}, nil
		},
		sign: func(_ context.Context, asset domain.Asset, ttl time.Duration) (domain.SignedAsset, error) {
			if ttl != 15*time.Minute {
				t.Fatalf("unexpected ttl %s", ttl)
			}
			return domain.SignedAsset{
				AssetType:   asset.AssetType,
				StoragePath: asset.StoragePath,
				SignedURL:   "https://signed/" + asset.ID,
			}, nil
		},
	}
	svc := newAccessFixture(t, insignes, &stubSubmissionRepository{}, assets)

	access, err := svc.ResolveByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("ResolveByToken: %v", err)
	}
	if access.Insigne.ID != "ins_01A" {
		t.Fatalf("unexpected insigne: %+v", access.Insigne)
	}
	if len(access.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(access.Assets))
	}
	// Results join by position regardless of goroutine completion order.
	if access.Assets[0].AssetType != "crest" || access.Assets[1].AssetType != "report" {
		t.Fatalf("asset order lost: %+v", access.Assets)
	}
	if access.Assets[0].SignedURL != "https://signed/asset_1" {
		t.Fatalf("unexpected url: %q", access.Assets[0].SignedURL)
	}
}

func TestResolveByTokenIsolatesSigningFailures(t *testing.T) {
	insignes := &stubInsigneRepository{
		findByToken: func(_ context.Context, _ string) (domain.Insigne, error) {
			return domain.Insigne{ID: "ins_01A"}, nil
		},
	}
	assets := &stubAssetRepository{
		list: func(_ context.Context, _ string) ([]domain.Asset, error) {
			return []domain.Asset{
				{ID: "asset_1", AssetType: "crest", StoragePath: "a"},
				{ID: "asset_2", AssetType: "report", StoragePath: "b"},
			}, nil
		},
		sign: func(_ context.Context, asset domain.Asset, _ time.Duration) (domain.SignedAsset, error) {
			if asset.ID == "asset_1" {
				return domain.SignedAsset{}, errors.New("signer unavailable")
			}
			return domain.SignedAsset{AssetType: asset.AssetType, StoragePath: asset.StoragePath, SignedURL: "https://signed/b"}, nil
		},
	}
	svc := newAccessFixture(t, insignes, &stubSubmissionRepository{}, assets)

	access, err := svc.ResolveByToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("ResolveByToken: %v", err)
	}
	if access.Assets[0].Error == "" || access.Assets[0].SignedURL != "" {
		t.Fatalf("expected degraded first asset, got %+v", access.Assets[0])
	}
	if access.Assets[1].SignedURL != "https://signed/b" || access.Assets[1].Error != "" {
		t.Fatalf("expected healthy second asset, got %+v", access.Assets[1])
	}
}

func TestResolveByTokenNotFound(t *testing.T) {
	insignes := &stubInsigneRepository{
		findByToken: func(_ context.Context, _ string) (domain.Insigne, error) {
			return domain.Insigne{}, repositories.NewNotFound("no insigne")
		},
	}
	svc := newAccessFixture(t, insignes, &stubSubmissionRepository{}, &stubAssetRepository{})

	_, err := svc.ResolveByToken(context.Background(), "tok-unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveBySubmission(t *testing.T) {
	submissions := &stubSubmissionRepository{
		find: func(_ context.Context, submissionID string) (domain.Insigne, error) {
			if submissionID != "sub-1" {
				t.Fatalf("unexpected submission id %q", submissionID)
			}
			return domain.Insigne{ID: "ins_01A"}, nil
		},
	}
	svc := newAccessFixture(t, &stubInsigneRepository{}, submissions, &stubAssetRepository{})

	insigne, err := svc.ResolveBySubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("ResolveBySubmission: %v", err)
	}
	if insigne.ID != "ins_01A" {
		t.Fatalf("unexpected insigne: %+v", insigne)
	}
}

func TestApprovalQueuePassesStatusAndPage(t *testing.T) {
	insignes := &stubInsigneRepository{
		listByStatus: func(_ context.Context, status domain.InsigneStatus, page pagination.Params) ([]domain.Insigne, string, error) {
			if status != domain.InsigneStatusAwaitingApproval {
				t.Fatalf("unexpected status %q", status)
			}
			if page.PageSize != 10 {
				t.Fatalf("unexpected page size %d", page.PageSize)
			}
			return []domain.Insigne{{ID: "ins_01A"}, {ID: "ins_01B"}}, "next-tok", nil
		},
	}
	svc := newAccessFixture(t, insignes, &stubSubmissionRepository{}, &stubAssetRepository{})

	queue, err := svc.ApprovalQueue(context.Background(), pagination.Params{PageSize: 10})
	if err != nil {
		t.Fatalf("ApprovalQueue: %v", err)
	}
	if len(queue.Insignes) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(queue.Insignes))
	}
	if queue.NextPageToken != "next-tok" {
		t.Fatalf("unexpected next page token %q", queue.NextPageToken)
	}
}

func TestApprovalQueueRejectsBadPageToken(t *testing.T) {
	insignes := &stubInsigneRepository{
		listByStatus: func(_ context.Context, _ domain.InsigneStatus, _ pagination.Params) ([]domain.Insigne, string, error) {
			return nil, "", fmt.Errorf("%w: malformed", pagination.ErrInvalidPageToken)
		},
	}
	svc := newAccessFixture(t, insignes, &stubSubmissionRepository{}, &stubAssetRepository{})

	if _, err := svc.ApprovalQueue(context.Background(), pagination.Params{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
