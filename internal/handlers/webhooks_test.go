package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/insigne-house/api/internal/services"
)

func TestWebhookHandlers_IngestTally_Success(t *testing.T) {
	stub := &stubIngestionService{
		result: services.IngestResult{
			InsigneID:    "ins_01A",
			SubmissionID: "sub-1",
		},
	}
	handler := NewWebhookHandlers(stub)

	body := `{"data": {"submissionId": "sub-1"}}`
	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK           bool   `json:"ok"`
		InsigneID    string `json:"insigne_id"`
		SubmissionID string `json:"submission_id"`
		Deduped      bool   `json:"deduped"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.OK || resp.InsigneID != "ins_01A" || resp.SubmissionID != "sub-1" || resp.Deduped {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if stub.calls != 1 || string(stub.lastBody) != body {
		t.Fatalf("service received %q (%d calls)", stub.lastBody, stub.calls)
	}
}

func TestWebhookHandlers_IngestTally_DedupedStillSucceeds(t *testing.T) {
	stub := &stubIngestionService{
		result: services.IngestResult{InsigneID: "ins_01A", SubmissionID: "sub-1", Deduped: true},
	}
	handler := NewWebhookHandlers(stub)

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(`{"id": "sub-1"}`))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"deduped":true`) {
		t.Fatalf("deduped flag missing: %s", rr.Body.String())
	}
}

func TestWebhookHandlers_IngestTally_EmptyBody(t *testing.T) {
	stub := &stubIngestionService{}
	handler := NewWebhookHandlers(stub)

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader("  "))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if stub.calls != 0 {
		t.Fatal("service should not be called")
	}
}

func TestWebhookHandlers_IngestTally_OversizedBody(t *testing.T) {
	handler := NewWebhookHandlers(&stubIngestionService{})

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(strings.Repeat("x", maxWebhookBody+1)))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
}

func TestWebhookHandlers_IngestTally_ValidationError(t *testing.T) {
	stub := &stubIngestionService{
		err: fmt.Errorf("%w: no submission id in payload", services.ErrInvalidInput),
	}
	handler := NewWebhookHandlers(stub)

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(`{"event": "PING"}`))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}
	assertErrorCode(t, rr.Body.Bytes(), "validation_failed")
}

func TestWebhookHandlers_IngestTally_BackendUnavailable(t *testing.T) {
	stub := &stubIngestionService{
		err: fmt.Errorf("%w: firestore down", services.ErrBackendUnavailable),
	}
	handler := NewWebhookHandlers(stub)

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(`{"id": "sub-1"}`))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "backend_unavailable")
}

func TestWebhookHandlers_IngestTally_UnexpectedErrorHidesDetail(t *testing.T) {
	stub := &stubIngestionService{err: errors.New("pointer dereference")}
	handler := NewWebhookHandlers(stub)

	req := httptest.NewRequest(http.MethodPost, "/tally", strings.NewReader(`{"id": "sub-1"}`))
	rr := httptest.NewRecorder()
	handler.ingestTally(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "pointer dereference") {
		t.Fatalf("internal detail leaked: %s", rr.Body.String())
	}
}

func assertErrorCode(t *testing.T, body []byte, want string) {
	t.Helper()
	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if envelope.OK {
		t.Fatal("error body must carry ok=false")
	}
	if envelope.Error != want {
		t.Fatalf("expected error code %q, got %q", want, envelope.Error)
	}
}
