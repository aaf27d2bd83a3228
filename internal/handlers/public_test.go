package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/services"
)

func newPublicRouter(access services.AccessService) chi.Router {
	r := chi.NewRouter()
	NewPublicHandlers(access).Routes(r)
	return r
}

func TestPublicHandlers_GetByToken_Success(t *testing.T) {
	expires := time.Date(2025, 3, 1, 12, 15, 0, 0, time.UTC)
	stub := &stubAccessService{
		access: services.InsigneAccess{
			Insigne: domain.Insigne{
				ID:          "ins_01A",
				Status:      domain.InsigneStatusApproved,
				ClientEmail: "client@example.com",
				ReportText:  "A noble report",
				MottoLatin:  "Semper Porro",
			},
			Assets: []domain.SignedAsset{
				{AssetType: "crest", StoragePath: "ins_01A/crest.png", SignedURL: "https://signed/crest", ExpiresAt: expires},
				{AssetType: "report", StoragePath: "ins_01A/report.pdf", Error: "signer unavailable"},
			},
		},
	}
	router := newPublicRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/insignes/by-token?token=tok-1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.lastToken != "tok-1" {
		t.Fatalf("service received token %q", stub.lastToken)
	}

	var resp insigneResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "ins_01A" || resp.Status != "approved" {
		t.Fatalf("unexpected record: %+v", resp)
	}
	if resp.ClientEmail != "" {
		t.Fatal("client email must not appear on the token path")
	}
	if len(resp.Assets) != 2 {
		t.Fatalf("expected 2 assets, got %d", len(resp.Assets))
	}
	if resp.Assets[0].URL != "https://signed/crest" || resp.Assets[0].ExpiresAt != "2025-03-01T12:15:00Z" {
		t.Fatalf("unexpected first asset: %+v", resp.Assets[0])
	}
	if resp.Assets[1].Error != "signer unavailable" || resp.Assets[1].URL != "" {
		t.Fatalf("unexpected degraded asset: %+v", resp.Assets[1])
	}
}

func TestPublicHandlers_GetByToken_MissingToken(t *testing.T) {
	router := newPublicRouter(&stubAccessService{})

	req := httptest.NewRequest(http.MethodGet, "/insignes/by-token", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "validation_failed")
}

func TestPublicHandlers_GetByToken_NotFound(t *testing.T) {
	stub := &stubAccessService{err: fmt.Errorf("%w: insigne for token", services.ErrNotFound)}
	router := newPublicRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/insignes/by-token?token=unknown", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "not_found")
}

func TestPublicHandlers_GetBySubmission(t *testing.T) {
	stub := &stubAccessService{
		insigne: domain.Insigne{ID: "ins_01A", Status: domain.InsigneStatusGenerating},
	}
	router := newPublicRouter(stub)

	req := httptest.NewRequest(http.MethodGet, "/submissions/sub-42", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.lastSub != "sub-42" {
		t.Fatalf("service received submission id %q", stub.lastSub)
	}

	var resp struct {
		SubmissionID string `json:"submission_id"`
		InsigneID    string `json:"insigne_id"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SubmissionID != "sub-42" || resp.InsigneID != "ins_01A" || resp.Status != "generating" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
