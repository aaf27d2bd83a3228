package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/services"
)

const (
	queueDefaultPageSize = 25
	queueMaxPageSize     = 100
)

// AdminHandlers exposes the operator review and delivery endpoints.
type AdminHandlers struct {
	access    services.AccessService
	lifecycle services.LifecycleService
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(access services.AccessService, lifecycle services.LifecycleService) *AdminHandlers {
	return &AdminHandlers{
		access:    access,
		lifecycle: lifecycle,
	}
}

// Routes registers the admin endpoints on the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/insignes/latest", h.latest)
	r.With(paginationParams(pagination.Options{
		DefaultPageSize: queueDefaultPageSize,
		MaxPageSize:     queueMaxPageSize,
	})).Get("/insignes/queue", h.queue)
	r.Get("/insignes/{insigneId}", h.getByID)
	r.Post("/insignes/{insigneId}:approve", h.approve)
	r.Post("/insignes/{insigneId}:deliver", h.deliver)
}

func (h *AdminHandlers) latest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("access_unavailable", "access service is unavailable", http.StatusServiceUnavailable))
		return
	}

	insigne, err := h.access.Latest(ctx)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toInsigneResponse(insigne, nil))
}

// queue lists records waiting for review, oldest first.
func (h *AdminHandlers) queue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("access_unavailable", "access service is unavailable", http.StatusServiceUnavailable))
		return
	}

	queue, err := h.access.ApprovalQueue(ctx, pagination.FromContextOrDefault(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	entries := make([]insigneSummaryResponse, 0, len(queue.Insignes))
	for _, insigne := range queue.Insignes {
		entries = append(entries, toInsigneSummary(insigne))
	}
	body := map[string]any{"insignes": entries}
	if queue.NextPageToken != "" {
		body["next_page_token"] = queue.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, body)
}

func (h *AdminHandlers) getByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.access == nil {
		httpx.WriteError(ctx, w, httpx.NewError("access_unavailable", "access service is unavailable", http.StatusServiceUnavailable))
		return
	}

	insigneID := strings.TrimSpace(chi.URLParam(r, "insigneId"))
	if insigneID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "insigne id is required", http.StatusUnprocessableEntity))
		return
	}

	access, err := h.access.ResolveByID(ctx, insigneID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toInsigneResponse(access.Insigne, access.Assets))
}

func (h *AdminHandlers) approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lifecycle_unavailable", "lifecycle service is unavailable", http.StatusServiceUnavailable))
		return
	}

	insigneID := strings.TrimSpace(chi.URLParam(r, "insigneId"))
	if insigneID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "insigne id is required", http.StatusUnprocessableEntity))
		return
	}

	insigne, err := h.lifecycle.Approve(ctx, insigneID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toInsigneResponse(insigne, nil))
}

func (h *AdminHandlers) deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.lifecycle == nil {
		httpx.WriteError(ctx, w, httpx.NewError("lifecycle_unavailable", "lifecycle service is unavailable", http.StatusServiceUnavailable))
		return
	}

	insigneID := strings.TrimSpace(chi.URLParam(r, "insigneId"))
	if insigneID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "insigne id is required", http.StatusUnprocessableEntity))
		return
	}

	insigne, err := h.lifecycle.Deliver(ctx, insigneID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toInsigneResponse(insigne, nil))
}
