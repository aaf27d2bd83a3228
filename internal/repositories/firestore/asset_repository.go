package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/insigne-house/api/internal/domain"
	pfirestore "github.com/insigne-house/api/internal/platform/firestore"
	pstorage "github.com/insigne-house/api/internal/platform/storage"
)

const assetsCollection = "assets"

type assetDocument struct {
	InsigneID   string    `firestore:"insigneId"`
	AssetType   string    `firestore:"assetType"`
	StoragePath string    `firestore:"storagePath"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func (d assetDocument) toDomain(id string) domain.Asset {
	return domain.Asset{
		ID:          id,
		InsigneID:   d.InsigneID,
		AssetType:   d.AssetType,
		StoragePath: d.StoragePath,
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// AssetRepository lists insigne artifacts and issues signed download URLs
// against the configured bucket.
type AssetRepository struct {
	base    *pfirestore.BaseRepository[assetDocument]
	storage *pstorage.Client
	bucket  string
}

// NewAssetRepository constructs a Firestore-backed asset repository.
func NewAssetRepository(provider *pfirestore.Provider, storageClient *pstorage.Client, bucket string) (*AssetRepository, error) {
	if provider == nil {
		return nil, errors.New("asset repository: firestore provider is required")
	}
	if storageClient == nil {
		return nil, errors.New("asset repository: storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("asset repository: bucket is required")
	}

	return &AssetRepository{
		base:    pfirestore.NewBaseRepository[assetDocument](provider, assetsCollection, nil, nil),
		storage: storageClient,
		bucket:  bucket,
	}, nil
}

// ListByInsigne returns the insigne's assets, oldest first.
func (r *AssetRepository) ListByInsigne(ctx context.Context, insigneID string) ([]domain.Asset, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return nil, errors.New("asset repository: insigne id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("insigneId", "==", insigneID).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	assets := make([]domain.Asset, 0, len(docs))
	for _, doc := range docs {
		assets = append(assets, doc.Data.toDomain(doc.ID))
	}
	return assets, nil
}

// SignedDownload issues a time-limited download URL for one asset.
func (r *AssetRepository) SignedDownload(ctx context.Context, asset domain.Asset, ttl time.Duration) (domain.SignedAsset, error) {
	object := strings.TrimSpace(asset.StoragePath)
	if object == "" {
		return domain.SignedAsset{}, errors.New("asset repository: storage path is required")
	}

	signed, err := r.storage.SignedDownloadURL(ctx, r.bucket, object, pstorage.DownloadOptions{
		ExpiresIn: ttl,
	})
	if err != nil {
		return domain.SignedAsset{}, err
	}

	return domain.SignedAsset{
		AssetType:   asset.AssetType,
		StoragePath: asset.StoragePath,
		SignedURL:   signed.URL,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}
