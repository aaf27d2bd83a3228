package services

import (
	"context"
	"errors"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/pagination"
)

var (
	// ErrInvalidInput indicates required fields were missing or malformed.
	ErrInvalidInput = errors.New("insigne: invalid input")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("insigne: not found")
	// ErrGenerationInProgress indicates a live generation claim already covers the record.
	ErrGenerationInProgress = errors.New("insigne: generation in progress")
	// ErrUpstreamGeneration indicates the text generation provider failed.
	ErrUpstreamGeneration = errors.New("insigne: generation upstream failure")
	// ErrStatusConflict indicates the record's lifecycle status does not allow the operation.
	ErrStatusConflict = errors.New("insigne: status conflict")
	// ErrDeliveryPrecondition indicates the record is missing fields required for delivery.
	ErrDeliveryPrecondition = errors.New("insigne: delivery precondition failed")
	// ErrDeliveryDispatch indicates the notification could not be sent.
	ErrDeliveryDispatch = errors.New("insigne: delivery dispatch failed")
	// ErrBackendUnavailable indicates a transient storage outage.
	ErrBackendUnavailable = errors.New("insigne: backend unavailable")
)

// IngestResult reports the outcome of one webhook ingestion.
type IngestResult struct {
	InsigneID    string
	SubmissionID string
	Deduped      bool
}

// IngestionService turns raw webhook deliveries into insigne records.
type IngestionService interface {
	// IngestWebhook normalises the payload, creates the insigne exactly once
	// per submission id and queues generation for new records. It never
	// blocks on generation.
	IngestWebhook(ctx context.Context, rawPayload []byte) (IngestResult, error)
}

// GenerationService runs the report generation step for one insigne.
type GenerationService interface {
	Generate(ctx context.Context, insigneID string) (domain.Insigne, error)
}

// InsigneAccess pairs an insigne with signed URLs for its stored assets.
type InsigneAccess struct {
	Insigne domain.Insigne
	Assets  []domain.SignedAsset
}

// InsigneQueue is one page of records awaiting operator review.
type InsigneQueue struct {
	Insignes      []domain.Insigne
	NextPageToken string
}

// AccessService reads insigne records for clients and operators.
type AccessService interface {
	ResolveByToken(ctx context.Context, token string) (InsigneAccess, error)
	ResolveByID(ctx context.Context, insigneID string) (InsigneAccess, error)
	ResolveBySubmission(ctx context.Context, submissionID string) (domain.Insigne, error)
	Latest(ctx context.Context) (domain.Insigne, error)
	ApprovalQueue(ctx context.Context, page pagination.Params) (InsigneQueue, error)
}

// LifecycleService drives operator-facing lifecycle transitions.
type LifecycleService interface {
	Approve(ctx context.Context, insigneID string) (domain.Insigne, error)
	Deliver(ctx context.Context, insigneID string) (domain.Insigne, error)
}
