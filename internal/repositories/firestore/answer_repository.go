package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	domain "github.com/insigne-house/api/internal/domain"
	pfirestore "github.com/insigne-house/api/internal/platform/firestore"
	"github.com/insigne-house/api/internal/repositories"
)

const (
	answersCollection     = "answers"
	defaultAnswerIDPrefix = "ans_"
)

type answerDocument struct {
	InsigneID string         `firestore:"insigneId"`
	Payload   map[string]any `firestore:"payload"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

func (d answerDocument) toDomain(id string) domain.AnswersRecord {
	return domain.AnswersRecord{
		ID:        id,
		InsigneID: d.InsigneID,
		Payload:   d.Payload,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func newAnswerID() string {
	return defaultAnswerIDPrefix + ulid.Make().String()
}

func ensureAnswerID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return newAnswerID()
	}
	if strings.HasPrefix(trimmed, defaultAnswerIDPrefix) {
		return trimmed
	}
	return defaultAnswerIDPrefix + trimmed
}

// AnswerRepository stores raw questionnaire payloads in Firestore.
type AnswerRepository struct {
	base  *pfirestore.BaseRepository[answerDocument]
	clock func() time.Time
	newID func() string
}

// AnswerRepositoryOption customises the repository behaviour.
type AnswerRepositoryOption func(*AnswerRepository)

// WithAnswerRepositoryClock overrides the clock used by the repository.
func WithAnswerRepositoryClock(clock func() time.Time) AnswerRepositoryOption {
	return func(r *AnswerRepository) {
		if clock != nil {
			r.clock = func() time.Time { return clock().UTC() }
		}
	}
}

// WithAnswerRepositoryIDGenerator overrides the ID generator used by the repository.
func WithAnswerRepositoryIDGenerator(generator func() string) AnswerRepositoryOption {
	return func(r *AnswerRepository) {
		if generator != nil {
			r.newID = generator
		}
	}
}

// NewAnswerRepository constructs a Firestore-backed answer repository.
func NewAnswerRepository(provider *pfirestore.Provider, opts ...AnswerRepositoryOption) (*AnswerRepository, error) {
	if provider == nil {
		return nil, errors.New("answer repository: firestore provider is required")
	}

	repo := &AnswerRepository{
		base:  pfirestore.NewBaseRepository[answerDocument](provider, answersCollection, nil, nil),
		clock: func() time.Time { return time.Now().UTC() },
		newID: newAnswerID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo, nil
}

// Append stores a new answers record for the owning insigne.
func (r *AnswerRepository) Append(ctx context.Context, record domain.AnswersRecord) (domain.AnswersRecord, error) {
	insigneID := strings.TrimSpace(record.InsigneID)
	if insigneID == "" {
		return domain.AnswersRecord{}, errors.New("answer repository: insigne id is required")
	}
	if len(record.Payload) == 0 {
		return domain.AnswersRecord{}, errors.New("answer repository: payload is required")
	}

	record.ID = ensureAnswerID(record.ID)
	record.InsigneID = insigneID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.clock()
	}

	_, err := r.base.Create(ctx, record.ID, answerDocument{
		InsigneID: record.InsigneID,
		Payload:   record.Payload,
		CreatedAt: record.CreatedAt.UTC(),
	})
	if err != nil {
		return domain.AnswersRecord{}, err
	}
	return record, nil
}

// LatestByInsigne returns the most recent answers record for the insigne.
func (r *AnswerRepository) LatestByInsigne(ctx context.Context, insigneID string) (domain.AnswersRecord, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.AnswersRecord{}, errors.New("answer repository: insigne id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("insigneId", "==", insigneID).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.AnswersRecord{}, err
	}
	if len(docs) == 0 {
		return domain.AnswersRecord{}, repositories.NewNotFound("answer repository: no answers for insigne")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}
