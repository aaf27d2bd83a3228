package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/services"
)

// maxWebhookBody caps webhook deliveries; Tally payloads run to a few KB.
const maxWebhookBody = 1 << 20

// WebhookHandlers exposes the form-provider ingestion endpoint.
type WebhookHandlers struct {
	ingestion services.IngestionService
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(ingestion services.IngestionService) *WebhookHandlers {
	return &WebhookHandlers{ingestion: ingestion}
}

// Routes registers the webhook endpoints on the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/tally", h.ingestTally)
}

func (h *WebhookHandlers) ingestTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ingestion == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ingestion_unavailable", "ingestion service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "request body is required", http.StatusUnprocessableEntity))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds limit", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("read_body_failed", "unable to read request body", http.StatusBadRequest))
		}
		return
	}

	result, err := h.ingestion.IngestWebhook(ctx, body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"ok":            true,
		"insigne_id":    result.InsigneID,
		"submission_id": result.SubmissionID,
		"deduped":       result.Deduped,
	})
}
