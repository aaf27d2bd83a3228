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
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/repositories"
)

const (
	insignesCollection     = "insignes"
	defaultInsigneIDPrefix = "ins_"
)

type insigneDocument struct {
	Status              string     `firestore:"status"`
	AccessToken         string     `firestore:"accessToken"`
	ClientEmail         string     `firestore:"clientEmail"`
	ReportText          string     `firestore:"reportText"`
	MottoEnglish        string     `firestore:"mottoEnglish"`
	MottoLatin          string     `firestore:"mottoLatin"`
	GenerationClaimedAt *time.Time `firestore:"generationClaimedAt"`
	CreatedAt           time.Time  `firestore:"createdAt"`
	UpdatedAt           time.Time  `firestore:"updatedAt"`
}

func (d insigneDocument) toDomain(id string) domain.Insigne {
	return domain.Insigne{
		ID:                  id,
		Status:              domain.ParseInsigneStatus(d.Status),
		AccessToken:         d.AccessToken,
		ClientEmail:         d.ClientEmail,
		ReportText:          d.ReportText,
		MottoEnglish:        d.MottoEnglish,
		MottoLatin:          d.MottoLatin,
		GenerationClaimedAt: d.GenerationClaimedAt,
		CreatedAt:           d.CreatedAt.UTC(),
		UpdatedAt:           d.UpdatedAt.UTC(),
	}
}

func insigneToDocument(entity domain.Insigne) insigneDocument {
	return insigneDocument{
		Status:              string(entity.Status),
		AccessToken:         entity.AccessToken,
		ClientEmail:         entity.ClientEmail,
		ReportText:          entity.ReportText,
		MottoEnglish:        entity.MottoEnglish,
		MottoLatin:          entity.MottoLatin,
		GenerationClaimedAt: entity.GenerationClaimedAt,
		CreatedAt:           entity.CreatedAt.UTC(),
		UpdatedAt:           entity.UpdatedAt.UTC(),
	}
}

func ensureInsigneID(id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return defaultInsigneIDPrefix + ulid.Make().String()
	}
	if strings.HasPrefix(trimmed, defaultInsigneIDPrefix) {
		return trimmed
	}
	return defaultInsigneIDPrefix + trimmed
}

// InsigneRepository persists insigne lifecycle records in Firestore.
type InsigneRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[insigneDocument]
	clock    func() time.Time
}

// InsigneRepositoryOption customises the repository behaviour.
type InsigneRepositoryOption func(*InsigneRepository)

// WithInsigneRepositoryClock overrides the clock used by the repository.
func WithInsigneRepositoryClock(clock func() time.Time) InsigneRepositoryOption {
	return func(r *InsigneRepository) {
		if clock != nil {
			r.clock = func() time.Time { return clock().UTC() }
		}
	}
}

// NewInsigneRepository constructs a Firestore-backed insigne repository.
func NewInsigneRepository(provider *pfirestore.Provider, opts ...InsigneRepositoryOption) (*InsigneRepository, error) {
	if provider == nil {
		return nil, errors.New("insigne repository: firestore provider is required")
	}

	repo := &InsigneRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[insigneDocument](provider, insignesCollection, nil, nil),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo, nil
}

// FindByID loads one insigne by its document id.
func (r *InsigneRepository) FindByID(ctx context.Context, insigneID string) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, errors.New("insigne repository: insigne id is required")
	}

	doc, err := r.base.Get(ctx, insigneID)
	if err != nil {
		return domain.Insigne{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByAccessToken loads the insigne owning the given access token.
func (r *InsigneRepository) FindByAccessToken(ctx context.Context, token string) (domain.Insigne, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Insigne{}, errors.New("insigne repository: access token is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("accessToken", "==", token).Limit(1)
	})
	if err != nil {
		return domain.Insigne{}, err
	}
	if len(docs) == 0 {
		return domain.Insigne{}, repositories.NewNotFound("insigne repository: no insigne for access token")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// FindLatest loads the most recently created insigne.
func (r *InsigneRepository) FindLatest(ctx context.Context) (domain.Insigne, error) {
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("createdAt", firestore.Desc).Limit(1)
	})
	if err != nil {
		return domain.Insigne{}, err
	}
	if len(docs) == 0 {
		return domain.Insigne{}, repositories.NewNotFound("insigne repository: no insignes recorded")
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// ListByStatus returns one page of insignes in the given status, oldest
// first. The cursor orders on (createdAt, document id) so records created in
// the same instant still page deterministically.
func (r *InsigneRepository) ListByStatus(ctx context.Context, status domain.InsigneStatus, page pagination.Params) ([]domain.Insigne, string, error) {
	if !status.Known() {
		return nil, "", errors.New("insigne repository: unknown status")
	}

	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := decodeListCursor(page.Cursor)
	if err != nil {
		return nil, "", err
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.
			Where("status", "==", string(status)).
			OrderBy("createdAt", firestore.Asc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor != nil {
			query = query.StartAfter(cursor.createdAt, cursor.id)
		}
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return nil, "", err
	}

	more := len(docs) > pageSize
	if more {
		docs = docs[:pageSize]
	}

	insignes := make([]domain.Insigne, 0, len(docs))
	for _, doc := range docs {
		insignes = append(insignes, doc.Data.toDomain(doc.ID))
	}

	nextToken := ""
	if more && len(docs) > 0 {
		last := docs[len(docs)-1]
		nextToken, err = pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return nil, "", err
		}
	}
	return insignes, nextToken, nil
}

type listCursor struct {
	createdAt time.Time
	id        string
}

func decodeListCursor(cursor pagination.Cursor) (*listCursor, error) {
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawCreated, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, pagination.ErrInvalidPageToken
	}
	return &listCursor{createdAt: createdAt, id: id}, nil
}

// ClaimGeneration transactionally claims the record for a generation attempt.
func (r *InsigneRepository) ClaimGeneration(ctx context.Context, insigneID string, now time.Time, staleAfter time.Duration) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, errors.New("insigne repository: insigne id is required")
	}
	if now.IsZero() {
		now = r.clock()
	}
	now = now.UTC()

	ref, err := r.base.DocumentRef(ctx, insigneID)
	if err != nil {
		return domain.Insigne{}, err
	}

	var claimed domain.Insigne
	var claimErr error
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		claimErr = nil

		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("firestore.insignes.claim", err)
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		current := doc.Data.toDomain(doc.ID)

		if current.Status.AtLeast(domain.InsigneStatusAwaitingApproval) {
			claimed = current
			claimErr = repositories.ErrContentAlreadyGenerated
			return nil
		}
		if current.Status == domain.InsigneStatusGenerating &&
			current.GenerationClaimedAt != nil &&
			now.Sub(*current.GenerationClaimedAt) < staleAfter {
			claimed = current
			claimErr = repositories.ErrGenerationInProgress
			return nil
		}

		stamp := now
		current.Status = domain.InsigneStatusGenerating
		current.GenerationClaimedAt = &stamp
		current.UpdatedAt = now

		payload, err := r.base.Encode(ctx, insigneToDocument(current))
		if err != nil {
			return err
		}
		if err := tx.Set(ref, payload); err != nil {
			return pfirestore.WrapError("firestore.insignes.claim", err)
		}
		claimed = current
		return nil
	})
	if err != nil {
		return domain.Insigne{}, err
	}
	return claimed, claimErr
}

// ReleaseGenerationClaim clears the claim stamp after a failed attempt.
func (r *InsigneRepository) ReleaseGenerationClaim(ctx context.Context, insigneID string, now time.Time) error {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return errors.New("insigne repository: insigne id is required")
	}
	if now.IsZero() {
		now = r.clock()
	}

	_, err := r.base.Update(ctx, insigneID, []firestore.Update{
		{Path: "generationClaimedAt", Value: nil},
		{Path: "updatedAt", Value: now.UTC()},
	})
	return err
}

// CompleteGeneration stores generated content and advances to awaiting_approval.
func (r *InsigneRepository) CompleteGeneration(ctx context.Context, insigneID string, content domain.GeneratedContent, now time.Time) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, errors.New("insigne repository: insigne id is required")
	}
	if strings.TrimSpace(content.ReportText) == "" {
		return domain.Insigne{}, errors.New("insigne repository: report text is required")
	}
	if now.IsZero() {
		now = r.clock()
	}
	now = now.UTC()

	ref, err := r.base.DocumentRef(ctx, insigneID)
	if err != nil {
		return domain.Insigne{}, err
	}

	var completed domain.Insigne
	var completeErr error
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		completeErr = nil

		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("firestore.insignes.complete", err)
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		current := doc.Data.toDomain(doc.ID)

		if current.Status.AtLeast(domain.InsigneStatusAwaitingApproval) {
			completed = current
			completeErr = repositories.ErrContentAlreadyGenerated
			return nil
		}

		current.Status = domain.InsigneStatusAwaitingApproval
		current.ReportText = content.ReportText
		current.MottoEnglish = content.MottoEnglish
		current.MottoLatin = content.MottoLatin
		current.GenerationClaimedAt = nil
		current.UpdatedAt = now

		payload, err := r.base.Encode(ctx, insigneToDocument(current))
		if err != nil {
			return err
		}
		if err := tx.Set(ref, payload); err != nil {
			return pfirestore.WrapError("firestore.insignes.complete", err)
		}
		completed = current
		return nil
	})
	if err != nil {
		return domain.Insigne{}, err
	}
	return completed, completeErr
}

// AdvanceStatus moves the record to the target status when allowed.
func (r *InsigneRepository) AdvanceStatus(ctx context.Context, insigneID string, from []domain.InsigneStatus, to domain.InsigneStatus, now time.Time) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, errors.New("insigne repository: insigne id is required")
	}
	if !to.Known() {
		return domain.Insigne{}, errors.New("insigne repository: unknown target status")
	}
	if now.IsZero() {
		now = r.clock()
	}
	now = now.UTC()

	ref, err := r.base.DocumentRef(ctx, insigneID)
	if err != nil {
		return domain.Insigne{}, err
	}

	var advanced domain.Insigne
	var advanceErr error
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		advanceErr = nil

		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("firestore.insignes.advance", err)
		}
		doc, err := r.base.Decode(ctx, snap)
		if err != nil {
			return err
		}
		current := doc.Data.toDomain(doc.ID)

		noop, terr := resolveStatusAdvance(current.Status, from, to)
		if terr != nil {
			advanced = current
			advanceErr = terr
			return nil
		}
		if noop {
			advanced = current
			return nil
		}

		current.Status = to
		current.UpdatedAt = now

		payload, err := r.base.Encode(ctx, insigneToDocument(current))
		if err != nil {
			return err
		}
		if err := tx.Set(ref, payload); err != nil {
			return pfirestore.WrapError("firestore.insignes.advance", err)
		}
		advanced = current
		return nil
	})
	if err != nil {
		return domain.Insigne{}, err
	}
	return advanced, advanceErr
}

// resolveStatusAdvance decides whether a transition needs a write. A record
// already in or past the target counts as done; otherwise the current status
// must belong to the allowed from set.
func resolveStatusAdvance(current domain.InsigneStatus, from []domain.InsigneStatus, to domain.InsigneStatus) (bool, error) {
	if current.AtLeast(to) {
		return true, nil
	}
	for _, status := range from {
		if current == status {
			return false, nil
		}
	}
	return false, &repositories.StatusTransitionError{Current: current, Target: to}
}
