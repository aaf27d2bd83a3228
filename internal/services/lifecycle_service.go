package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/email"
	"github.com/insigne-house/api/internal/repositories"
)

const deliverySubject = "Your Insigne has been forged"

// LifecycleServiceDeps bundles collaborators required to construct the lifecycle service.
type LifecycleServiceDeps struct {
	Insignes       repositories.InsigneRepository
	Email          email.Sender
	ResultsBaseURL string
	Clock          func() time.Time
	Logger         *zap.Logger
}

type lifecycleService struct {
	insignes       repositories.InsigneRepository
	email          email.Sender
	resultsBaseURL string
	clock          func() time.Time
	logger         *zap.Logger
}

// NewLifecycleService constructs the approval and delivery service.
func NewLifecycleService(deps LifecycleServiceDeps) (LifecycleService, error) {
	if deps.Insignes == nil {
		return nil, errors.New("lifecycle service: insigne repository is required")
	}
	if deps.Email == nil {
		return nil, errors.New("lifecycle service: email sender is required")
	}
	resultsBaseURL := strings.TrimSpace(deps.ResultsBaseURL)
	if resultsBaseURL == "" {
		return nil, errors.New("lifecycle service: results base url is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &lifecycleService{
		insignes:       deps.Insignes,
		email:          deps.Email,
		resultsBaseURL: resultsBaseURL,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger.Named("lifecycle"),
	}, nil
}

// Approve clears the record for delivery. Approving an approved record is a no-op.
func (s *lifecycleService) Approve(ctx context.Context, insigneID string) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, fmt.Errorf("%w: insigne id is required", ErrInvalidInput)
	}

	approved, err := s.insignes.AdvanceStatus(ctx, insigneID,
		[]domain.InsigneStatus{domain.InsigneStatusAwaitingApproval},
		domain.InsigneStatusApproved, s.clock())
	if err != nil {
		return domain.Insigne{}, mapTransitionError(err, "insigne "+insigneID)
	}

	s.logger.Info("insigne approved", zap.String("insigne_id", insigneID))
	return approved, nil
}

// Deliver emails the results link and stamps the record delivered. The status
// only advances once the dispatch succeeded; a delivered record is returned
// unchanged without re-sending.
func (s *lifecycleService) Deliver(ctx context.Context, insigneID string) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, fmt.Errorf("%w: insigne id is required", ErrInvalidInput)
	}

	insigne, err := s.insignes.FindByID(ctx, insigneID)
	if err != nil {
		return domain.Insigne{}, mapLookupError(err, "insigne "+insigneID)
	}

	if insigne.Status == domain.InsigneStatusDelivered {
		return insigne, nil
	}
	if insigne.Status != domain.InsigneStatusAwaitingApproval && insigne.Status != domain.InsigneStatusApproved {
		return domain.Insigne{}, fmt.Errorf("%w: cannot deliver from %s", ErrStatusConflict, insigne.Status)
	}
	if strings.TrimSpace(insigne.AccessToken) == "" {
		return domain.Insigne{}, fmt.Errorf("%w: access token is missing", ErrDeliveryPrecondition)
	}
	if strings.TrimSpace(insigne.ClientEmail) == "" {
		return domain.Insigne{}, fmt.Errorf("%w: client email is missing", ErrDeliveryPrecondition)
	}

	message := email.Message{
		To:      insigne.ClientEmail,
		Subject: deliverySubject,
		HTML:    s.deliveryBody(insigne),
	}
	if err := s.email.Send(ctx, message); err != nil {
		s.logger.Warn("delivery dispatch failed",
			zap.String("insigne_id", insigneID),
			zap.Error(err),
		)
		return domain.Insigne{}, fmt.Errorf("%w: %v", ErrDeliveryDispatch, err)
	}

	delivered, err := s.insignes.AdvanceStatus(ctx, insigneID,
		[]domain.InsigneStatus{domain.InsigneStatusAwaitingApproval, domain.InsigneStatusApproved},
		domain.InsigneStatusDelivered, s.clock())
	if err != nil {
		return domain.Insigne{}, mapTransitionError(err, "insigne "+insigneID)
	}

	s.logger.Info("insigne delivered",
		zap.String("insigne_id", insigneID),
		zap.String("client_email", insigne.ClientEmail),
	)
	return delivered, nil
}

func (s *lifecycleService) resultsLink(token string) string {
	return s.resultsBaseURL + "?token=" + url.QueryEscape(token)
}

func (s *lifecycleService) deliveryBody(insigne domain.Insigne) string {
	link := html.EscapeString(s.resultsLink(insigne.AccessToken))
	motto := strings.TrimSpace(insigne.MottoLatin)

	var builder strings.Builder
	builder.WriteString(`<div style="font-family: Georgia, serif; max-width: 560px; margin: 0 auto; color: #1f2430;">`)
	builder.WriteString(`<h1 style="font-size: 22px;">Your Insigne has been forged</h1>`)
	if motto != "" {
		builder.WriteString(`<p style="font-style: italic; color: #6b5b3e;">`)
		builder.WriteString(html.EscapeString(motto))
		builder.WriteString(`</p>`)
	}
	builder.WriteString(`<p>Your personal insigne and report are ready to view.</p>`)
	builder.WriteString(`<p><a href="`)
	builder.WriteString(link)
	builder.WriteString(`" style="display: inline-block; padding: 12px 24px; background: #1f2430; color: #ffffff; text-decoration: none;">View your Insigne</a></p>`)
	builder.WriteString(`<p style="font-size: 12px; color: #8a8f99;">This link is personal to you. Keep it safe.</p>`)
	builder.WriteString(`</div>`)
	return builder.String()
}

func mapTransitionError(err error, subject string) error {
	var transition *repositories.StatusTransitionError
	switch {
	case errors.As(err, &transition):
		return fmt.Errorf("%w: cannot move %s from %s to %s",
			ErrStatusConflict, subject, transition.Current, transition.Target)
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: %s", ErrNotFound, subject)
	case repositories.IsUnavailable(err):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return err
	}
}
