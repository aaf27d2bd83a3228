package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/repositories"
)

type stubGenerator struct {
	text    string
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func newGenerationFixture(t *testing.T, repo *stubInsigneRepository, answers *stubAnswerRepository, generator *stubGenerator) GenerationService {
	t.Helper()
	svc, err := NewGenerationService(GenerationServiceDeps{
		Insignes:  repo,
		Answers:   answers,
		Generator: generator,
		Clock:     fixedClock,
	})
	if err != nil {
		t.Fatalf("NewGenerationService: %v", err)
	}
	return svc
}

func claimedInsigne() domain.Insigne {
	stamp := fixedNow
	return domain.Insigne{
		ID:                  "ins_01GEN",
		Status:              domain.InsigneStatusGenerating,
		AccessToken:         "token",
		GenerationClaimedAt: &stamp,
	}
}

func TestGenerateStoresParsedContent(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), nil
		},
		complete: func(_ context.Context, id string, content domain.GeneratedContent, _ time.Time) (domain.Insigne, error) {
			return domain.Insigne{
				ID:           id,
				Status:       domain.InsigneStatusAwaitingApproval,
				ReportText:   content.ReportText,
				MottoEnglish: content.MottoEnglish,
				MottoLatin:   content.MottoLatin,
			}, nil
		},
	}
	answers := &stubAnswerRepository{
		latest: func(_ context.Context, insigneID string) (domain.AnswersRecord, error) {
			return domain.AnswersRecord{
				InsigneID: insigneID,
				Payload:   map[string]any{"virtue": "courage"},
			}, nil
		},
	}
	generator := &stubGenerator{
		text: `{"report_text": "A house of courage.", "motto_english": "Ever Forward", "motto_latin": "Semper Porro"}`,
	}
	svc := newGenerationFixture(t, repo, answers, generator)

	result, err := svc.Generate(context.Background(), "ins_01GEN")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Status != domain.InsigneStatusAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %q", result.Status)
	}
	if result.ReportText != "A house of courage." || result.MottoLatin != "Semper Porro" {
		t.Fatalf("unexpected content: %+v", result)
	}
	if len(generator.prompts) != 1 || !strings.Contains(generator.prompts[0], "courage") {
		t.Fatalf("expected answers embedded in prompt, got %q", generator.prompts)
	}
	if repo.releaseCalls != 0 {
		t.Fatalf("claim should not be released on success")
	}
}

func TestGenerateFallsBackToRawTextOnUnparseableCompletion(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), nil
		},
		complete: func(_ context.Context, id string, content domain.GeneratedContent, _ time.Time) (domain.Insigne, error) {
			return domain.Insigne{ID: id, Status: domain.InsigneStatusAwaitingApproval, ReportText: content.ReportText}, nil
		},
	}
	answers := &stubAnswerRepository{
		latest: func(_ context.Context, insigneID string) (domain.AnswersRecord, error) {
			return domain.AnswersRecord{InsigneID: insigneID, Payload: map[string]any{"q": "a"}}, nil
		},
	}
	generator := &stubGenerator{text: "Herein lies the tale of a noble house."}
	svc := newGenerationFixture(t, repo, answers, generator)

	if _, err := svc.Generate(context.Background(), "ins_01GEN"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(repo.completeContent) != 1 {
		t.Fatalf("expected one completion, got %d", len(repo.completeContent))
	}
	content := repo.completeContent[0]
	if content.ReportText != "Herein lies the tale of a noble house." {
		t.Fatalf("unexpected report text: %q", content.ReportText)
	}
	if content.MottoEnglish != "" || content.MottoLatin != "" {
		t.Fatalf("fallback should carry no mottos: %+v", content)
	}
}

func TestGenerateReleasesClaimOnProviderFailure(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), nil
		},
		complete: func(_ context.Context, _ string, _ domain.GeneratedContent, _ time.Time) (domain.Insigne, error) {
			t.Fatal("complete should not be reached")
			return domain.Insigne{}, nil
		},
	}
	answers := &stubAnswerRepository{
		latest: func(_ context.Context, insigneID string) (domain.AnswersRecord, error) {
			return domain.AnswersRecord{InsigneID: insigneID, Payload: map[string]any{"q": "a"}}, nil
		},
	}
	generator := &stubGenerator{err: errors.New("model overloaded")}
	svc := newGenerationFixture(t, repo, answers, generator)

	_, err := svc.Generate(context.Background(), "ins_01GEN")
	if !errors.Is(err, ErrUpstreamGeneration) {
		t.Fatalf("expected ErrUpstreamGeneration, got %v", err)
	}
	if repo.releaseCalls != 1 {
		t.Fatalf("expected claim released once, got %d", repo.releaseCalls)
	}
}

func TestGenerateNoOpsWhenContentAlreadyGenerated(t *testing.T) {
	existing := domain.Insigne{ID: "ins_01GEN", Status: domain.InsigneStatusApproved, ReportText: "done"}
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return existing, repositories.ErrContentAlreadyGenerated
		},
	}
	generator := &stubGenerator{}
	svc := newGenerationFixture(t, repo, &stubAnswerRepository{}, generator)

	result, err := svc.Generate(context.Background(), "ins_01GEN")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.ReportText != "done" {
		t.Fatalf("expected existing content returned, got %+v", result)
	}
	if len(generator.prompts) != 0 {
		t.Fatal("provider should not be called")
	}
}

func TestGenerateConflictsOnLiveClaim(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), repositories.ErrGenerationInProgress
		},
	}
	svc := newGenerationFixture(t, repo, &stubAnswerRepository{}, &stubGenerator{})

	_, err := svc.Generate(context.Background(), "ins_01GEN")
	if !errors.Is(err, ErrGenerationInProgress) {
		t.Fatalf("expected ErrGenerationInProgress, got %v", err)
	}
}

func TestGenerateMissingAnswersReleasesClaim(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), nil
		},
	}
	answers := &stubAnswerRepository{
		latest: func(_ context.Context, _ string) (domain.AnswersRecord, error) {
			return domain.AnswersRecord{}, repositories.NewNotFound("no answers")
		},
	}
	svc := newGenerationFixture(t, repo, answers, &stubGenerator{})

	_, err := svc.Generate(context.Background(), "ins_01GEN")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.releaseCalls != 1 {
		t.Fatalf("expected claim released once, got %d", repo.releaseCalls)
	}
}

func TestGenerateTruncatesOversizedPayload(t *testing.T) {
	repo := &stubInsigneRepository{
		claim: func(_ context.Context, _ string, _ time.Time, _ time.Duration) (domain.Insigne, error) {
			return claimedInsigne(), nil
		},
		complete: func(_ context.Context, id string, content domain.GeneratedContent, _ time.Time) (domain.Insigne, error) {
			return domain.Insigne{ID: id, Status: domain.InsigneStatusAwaitingApproval, ReportText: content.ReportText}, nil
		},
	}
	answers := &stubAnswerRepository{
		latest: func(_ context.Context, insigneID string) (domain.AnswersRecord, error) {
			return domain.AnswersRecord{
				InsigneID: insigneID,
				Payload:   map[string]any{"essay": strings.Repeat("x", 3*maxPromptPayloadChars)},
			}, nil
		},
	}
	generator := &stubGenerator{text: `{"report_text": "ok"}`}
	svc := newGenerationFixture(t, repo, answers, generator)

	if _, err := svc.Generate(context.Background(), "ins_01GEN"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(generator.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(generator.prompts))
	}
	if len(generator.prompts[0]) > maxPromptPayloadChars+1000 {
		t.Fatalf("prompt not truncated: %d chars", len(generator.prompts[0]))
	}
}

func TestParseGeneratedContentVariants(t *testing.T) {
	cases := []struct {
		name string
		text string
		want domain.GeneratedContent
	}{
		{
			name: "strict json",
			text: `{"report_text": "r", "motto_english": "e", "motto_latin": "l"}`,
			want: domain.GeneratedContent{ReportText: "r", MottoEnglish: "e", MottoLatin: "l"},
		},
		{
			name: "json wrapped in prose",
			text: "Here is the result:\n```json\n{\"report_text\": \"r\", \"motto_latin\": \"l\"}\n```",
			want: domain.GeneratedContent{ReportText: "r", MottoLatin: "l"},
		},
		{
			name: "raw text fallback",
			text: "  A plain narrative report.  ",
			want: domain.GeneratedContent{ReportText: "A plain narrative report."},
		},
		{
			name: "json without report text falls back",
			text: `{"motto_latin": "l"}`,
			want: domain.GeneratedContent{ReportText: `{"motto_latin": "l"}`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseGeneratedContent(tc.text); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
