package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/insigne-house/api/internal/domain"
	pfirestore "github.com/insigne-house/api/internal/platform/firestore"
	"github.com/insigne-house/api/internal/repositories"
)

const submissionLookupsCollection = "submissionLookups"

// submissionLookupDocument is keyed by the external submission id, so a
// retried webhook can never register a second insigne.
type submissionLookupDocument struct {
	InsigneID string    `firestore:"insigneId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// SubmissionRepository owns the submission id → insigne mapping and the
// transactional ingest write across insignes, submissionLookups and answers.
type SubmissionRepository struct {
	provider *pfirestore.Provider
	lookups  *pfirestore.BaseRepository[submissionLookupDocument]
	insignes *pfirestore.BaseRepository[insigneDocument]
	answers  *pfirestore.BaseRepository[answerDocument]
	clock    func() time.Time
	newID    func() string
}

// SubmissionRepositoryOption customises the repository behaviour.
type SubmissionRepositoryOption func(*SubmissionRepository)

// WithSubmissionRepositoryClock overrides the clock used by the repository.
func WithSubmissionRepositoryClock(clock func() time.Time) SubmissionRepositoryOption {
	return func(r *SubmissionRepository) {
		if clock != nil {
			r.clock = func() time.Time { return clock().UTC() }
		}
	}
}

// WithSubmissionRepositoryIDGenerator overrides the answers-record ID generator.
func WithSubmissionRepositoryIDGenerator(generator func() string) SubmissionRepositoryOption {
	return func(r *SubmissionRepository) {
		if generator != nil {
			r.newID = generator
		}
	}
}

// NewSubmissionRepository constructs a Firestore-backed submission repository.
func NewSubmissionRepository(provider *pfirestore.Provider, opts ...SubmissionRepositoryOption) (*SubmissionRepository, error) {
	if provider == nil {
		return nil, errors.New("submission repository: firestore provider is required")
	}

	repo := &SubmissionRepository{
		provider: provider,
		lookups:  pfirestore.NewBaseRepository[submissionLookupDocument](provider, submissionLookupsCollection, nil, nil),
		insignes: pfirestore.NewBaseRepository[insigneDocument](provider, insignesCollection, nil, nil),
		answers:  pfirestore.NewBaseRepository[answerDocument](provider, answersCollection, nil, nil),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: newAnswerID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo, nil
}

// CreateForSubmission writes the insigne, the lookup and the first answers
// record in one transaction, deduplicating on the submission id.
func (r *SubmissionRepository) CreateForSubmission(ctx context.Context, record repositories.SubmissionRecord) (repositories.SubmissionResult, error) {
	submissionID := strings.TrimSpace(record.SubmissionID)
	if submissionID == "" {
		return repositories.SubmissionResult{}, errors.New("submission repository: submission id is required")
	}

	now := r.clock()
	entity := record.Insigne
	entity.ID = ensureInsigneID(entity.ID)
	if entity.Status == "" {
		entity.Status = domain.InsigneStatusDraft
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = now
	}

	lookupRef, err := r.lookups.DocumentRef(ctx, submissionID)
	if err != nil {
		return repositories.SubmissionResult{}, err
	}
	insigneRef, err := r.insignes.DocumentRef(ctx, entity.ID)
	if err != nil {
		return repositories.SubmissionResult{}, err
	}
	answerRef, err := r.answers.DocumentRef(ctx, ensureAnswerID(r.newID()))
	if err != nil {
		return repositories.SubmissionResult{}, err
	}

	var result repositories.SubmissionResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(lookupRef)
		switch {
		case err == nil:
			lookup, err := r.lookups.Decode(ctx, snap)
			if err != nil {
				return err
			}
			existingSnap, err := tx.Get(insigneRef.Parent.Doc(lookup.Data.InsigneID))
			if err != nil {
				return pfirestore.WrapError("firestore.submissionLookups.resolve", err)
			}
			existing, err := r.insignes.Decode(ctx, existingSnap)
			if err != nil {
				return err
			}
			result = repositories.SubmissionResult{
				Insigne: existing.Data.toDomain(existing.ID),
				Deduped: true,
			}
			return nil
		case status.Code(err) != codes.NotFound:
			return pfirestore.WrapError("firestore.submissionLookups.get", err)
		}

		insignePayload, err := r.insignes.Encode(ctx, insigneToDocument(entity))
		if err != nil {
			return err
		}
		if err := tx.Create(insigneRef, insignePayload); err != nil {
			return pfirestore.WrapError("firestore.insignes.create", err)
		}

		lookupPayload, err := r.lookups.Encode(ctx, submissionLookupDocument{
			InsigneID: entity.ID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.Create(lookupRef, lookupPayload); err != nil {
			return pfirestore.WrapError("firestore.submissionLookups.create", err)
		}

		answerPayload, err := r.answers.Encode(ctx, answerDocument{
			InsigneID: entity.ID,
			Payload:   record.Payload,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := tx.Create(answerRef, answerPayload); err != nil {
			return pfirestore.WrapError("firestore.answers.create", err)
		}

		result = repositories.SubmissionResult{Insigne: entity}
		return nil
	})
	if err != nil {
		return repositories.SubmissionResult{}, err
	}
	return result, nil
}

// FindInsigneBySubmission resolves an external submission id to its insigne.
func (r *SubmissionRepository) FindInsigneBySubmission(ctx context.Context, submissionID string) (domain.Insigne, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return domain.Insigne{}, errors.New("submission repository: submission id is required")
	}

	lookup, err := r.lookups.Get(ctx, submissionID)
	if err != nil {
		return domain.Insigne{}, err
	}
	doc, err := r.insignes.Get(ctx, lookup.Data.InsigneID)
	if err != nil {
		return domain.Insigne{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}
