package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/genai"
	"github.com/insigne-house/api/internal/repositories"
)

const (
	// maxPromptPayloadChars bounds how much raw questionnaire JSON is embedded
	// in the prompt. Oversized payloads are truncated, never rejected.
	maxPromptPayloadChars = 12000

	defaultStaleClaimAfter = 10 * time.Minute
)

// GenerationServiceDeps bundles collaborators required to construct the generation service.
type GenerationServiceDeps struct {
	Insignes        repositories.InsigneRepository
	Answers         repositories.AnswerRepository
	Generator       genai.TextGenerator
	Clock           func() time.Time
	StaleClaimAfter time.Duration
	Logger          *zap.Logger
}

type generationService struct {
	insignes   repositories.InsigneRepository
	answers    repositories.AnswerRepository
	generator  genai.TextGenerator
	clock      func() time.Time
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewGenerationService constructs the report generation service.
func NewGenerationService(deps GenerationServiceDeps) (GenerationService, error) {
	if deps.Insignes == nil {
		return nil, errors.New("generation service: insigne repository is required")
	}
	if deps.Answers == nil {
		return nil, errors.New("generation service: answer repository is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generation service: text generator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	staleAfter := deps.StaleClaimAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleClaimAfter
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &generationService{
		insignes:  deps.Insignes,
		answers:   deps.Answers,
		generator: deps.Generator,
		clock: func() time.Time {
			return clock().UTC()
		},
		staleAfter: staleAfter,
		logger:     logger.Named("generation"),
	}, nil
}

// Generate claims the record, runs the provider call and stores the result.
// A record that already carries generated content is returned unchanged.
func (s *generationService) Generate(ctx context.Context, insigneID string) (domain.Insigne, error) {
	insigneID = strings.TrimSpace(insigneID)
	if insigneID == "" {
		return domain.Insigne{}, fmt.Errorf("%w: insigne id is required", ErrInvalidInput)
	}

	claimed, err := s.insignes.ClaimGeneration(ctx, insigneID, s.clock(), s.staleAfter)
	switch {
	case errors.Is(err, repositories.ErrContentAlreadyGenerated):
		return claimed, nil
	case errors.Is(err, repositories.ErrGenerationInProgress):
		return claimed, fmt.Errorf("%w: claim is still live", ErrGenerationInProgress)
	case repositories.IsNotFound(err):
		return domain.Insigne{}, fmt.Errorf("%w: insigne %s", ErrNotFound, insigneID)
	case err != nil:
		return domain.Insigne{}, err
	}

	answers, err := s.answers.LatestByInsigne(ctx, insigneID)
	if err != nil {
		s.releaseClaim(ctx, insigneID)
		if repositories.IsNotFound(err) {
			return domain.Insigne{}, fmt.Errorf("%w: no answers recorded for insigne %s", ErrInvalidInput, insigneID)
		}
		return domain.Insigne{}, err
	}

	text, err := s.generator.GenerateText(ctx, buildPrompt(answers.Payload))
	if err != nil {
		s.releaseClaim(ctx, insigneID)
		s.logger.Warn("generation provider call failed",
			zap.String("insigne_id", insigneID),
			zap.Error(err),
		)
		return domain.Insigne{}, fmt.Errorf("%w: %v", ErrUpstreamGeneration, err)
	}

	content := parseGeneratedContent(text)
	completed, err := s.insignes.CompleteGeneration(ctx, insigneID, content, s.clock())
	if errors.Is(err, repositories.ErrContentAlreadyGenerated) {
		// A concurrent attempt finished first; its content stands.
		return completed, nil
	}
	if err != nil {
		return domain.Insigne{}, err
	}

	s.logger.Info("generation completed", zap.String("insigne_id", insigneID))
	return completed, nil
}

// releaseClaim clears the claim stamp so an explicit re-trigger can proceed.
// The record stays in generating. Release runs even when the request context
// is already dead.
func (s *generationService) releaseClaim(ctx context.Context, insigneID string) {
	if err := s.insignes.ReleaseGenerationClaim(context.WithoutCancel(ctx), insigneID, s.clock()); err != nil {
		s.logger.Warn("generation claim release failed",
			zap.String("insigne_id", insigneID),
			zap.Error(err),
		)
	}
}

func buildPrompt(payload map[string]any) string {
	var builder strings.Builder
	builder.WriteString("You are the herald of an ancient heraldic house. ")
	builder.WriteString("From the questionnaire answers below, compose a personal insigne report.\n\n")
	builder.WriteString("Respond with a single JSON object, no surrounding prose, shaped exactly as:\n")
	builder.WriteString(`{"report_text": "...", "motto_english": "...", "motto_latin": "..."}`)
	builder.WriteString("\n\nQuestionnaire answers:\n")
	builder.WriteString(formatPayload(payload))
	return builder.String()
}

// formatPayload renders the raw answers as indented JSON with stable key
// order, truncated to the prompt budget.
func formatPayload(payload map[string]any) string {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", sortedKeys(payload)))
	}
	text := string(encoded)
	if len(text) > maxPromptPayloadChars {
		text = text[:maxPromptPayloadChars]
	}
	return text
}

func sortedKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

type generatedContentEnvelope struct {
	ReportText   string `json:"report_text"`
	MottoEnglish string `json:"motto_english"`
	MottoLatin   string `json:"motto_latin"`
}

// parseGeneratedContent decodes the expected JSON envelope, falling back to
// treating the whole completion as report text when the model ignored the
// output contract.
func parseGeneratedContent(text string) domain.GeneratedContent {
	trimmed := strings.TrimSpace(text)

	candidates := []string{trimmed}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidates = append(candidates, trimmed[start:end+1])
	}
	for _, candidate := range candidates {
		var envelope generatedContentEnvelope
		if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.ReportText) == "" {
			continue
		}
		return domain.GeneratedContent{
			ReportText:   strings.TrimSpace(envelope.ReportText),
			MottoEnglish: strings.TrimSpace(envelope.MottoEnglish),
			MottoLatin:   strings.TrimSpace(envelope.MottoLatin),
		}
	}

	return domain.GeneratedContent{ReportText: trimmed}
}
