package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/services"
)

// PublicHandlers exposes the client-facing read endpoints.
type PublicHandlers struct {
	access services.AccessService
}

// NewPublicHandlers constructs the public handlers.
func NewPublicHandlers(access services.AccessService) *PublicHandlers {
	return &PublicHandlers{access: access}
}

// Routes registers the public endpoints on the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/insignes/by-token", h.getByToken)
	r.Get("/submissions/{submissionId}", h.getBySubmission)
}

// getByToken returns the full record with signed asset URLs. The access token
// is the sole credential for this path.
func (h *PublicHandlers) getByToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("access_unavailable", "access service is unavailable", http.StatusServiceUnavailable))
		return
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "token query parameter is required", http.StatusUnprocessableEntity))
		return
	}

	access, err := h.access.ResolveByToken(ctx, token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	payload := toInsigneResponse(access.Insigne, access.Assets)
	// The token already proves ownership; the email stays server-side.
	payload.ClientEmail = ""
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *PublicHandlers) getBySubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("access_unavailable", "access service is unavailable", http.StatusServiceUnavailable))
		return
	}

	submissionID := strings.TrimSpace(chi.URLParam(r, "submissionId"))
	if submissionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "submission id is required", http.StatusUnprocessableEntity))
		return
	}

	insigne, err := h.access.ResolveBySubmission(ctx, submissionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"submission_id": submissionID,
		"insigne_id":    insigne.ID,
		"status":        string(insigne.Status),
	})
}
