package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/pagination"
)

// RepositoryError exposes storage failure classification to callers without
// leaking driver types.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err maps to a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err maps to a concurrent-write or uniqueness conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err maps to a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// SubmissionRecord carries everything needed to persist a new submission:
// the insigne to create, the external submission id keying the dedup lookup,
// and the raw questionnaire payload stored as the first answers record.
type SubmissionRecord struct {
	Insigne      domain.Insigne
	SubmissionID string
	Payload      map[string]any
}

// SubmissionResult reports the insigne owning the submission. Deduped is true
// when the submission id was already registered and no new record was written.
type SubmissionResult struct {
	Insigne domain.Insigne
	Deduped bool
}

// InsigneRepository persists insigne lifecycle records.
type InsigneRepository interface {
	FindByID(ctx context.Context, insigneID string) (domain.Insigne, error)
	FindByAccessToken(ctx context.Context, token string) (domain.Insigne, error)
	FindLatest(ctx context.Context) (domain.Insigne, error)
	// ListByStatus returns one page of insignes in the given status, oldest
	// first, plus the token for the following page ("" on the last page).
	ListByStatus(ctx context.Context, status domain.InsigneStatus, page pagination.Params) ([]domain.Insigne, string, error)
	// ClaimGeneration transactionally moves the record into generating and
	// stamps the claim time. A live claim younger than staleAfter fails with
	// ErrGenerationInProgress; a record already past generating fails with
	// ErrContentAlreadyGenerated. Both failures still return the current record.
	ClaimGeneration(ctx context.Context, insigneID string, now time.Time, staleAfter time.Duration) (domain.Insigne, error)
	// ReleaseGenerationClaim clears the claim stamp while leaving the status
	// untouched, so a later explicit trigger can retry.
	ReleaseGenerationClaim(ctx context.Context, insigneID string, now time.Time) error
	// CompleteGeneration stores the generated content, clears the claim and
	// advances the record to awaiting_approval.
	CompleteGeneration(ctx context.Context, insigneID string, content domain.GeneratedContent, now time.Time) (domain.Insigne, error)
	// AdvanceStatus moves the record to the target status when its current
	// status is one of from. A record already at the target is returned
	// unchanged; any other status fails with StatusTransitionError.
	AdvanceStatus(ctx context.Context, insigneID string, from []domain.InsigneStatus, to domain.InsigneStatus, now time.Time) (domain.Insigne, error)
}

// SubmissionRepository owns the submission id → insigne mapping and the
// transactional ingest write.
type SubmissionRepository interface {
	// CreateForSubmission writes the insigne, the submission lookup and the
	// initial answers record in one transaction. A submission id seen before
	// short-circuits to the existing insigne.
	CreateForSubmission(ctx context.Context, record SubmissionRecord) (SubmissionResult, error)
	FindInsigneBySubmission(ctx context.Context, submissionID string) (domain.Insigne, error)
}

// AnswerRepository stores raw questionnaire payloads. Records are append-only.
type AnswerRepository interface {
	Append(ctx context.Context, record domain.AnswersRecord) (domain.AnswersRecord, error)
	LatestByInsigne(ctx context.Context, insigneID string) (domain.AnswersRecord, error)
}

// AssetRepository lists stored artifacts and issues time-limited download URLs.
type AssetRepository interface {
	ListByInsigne(ctx context.Context, insigneID string) ([]domain.Asset, error)
	SignedDownload(ctx context.Context, asset domain.Asset, ttl time.Duration) (domain.SignedAsset, error)
}
