package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/services"
)

// InternalHandlers exposes the generation trigger used by the async dispatcher
// and by operators re-running a failed generation.
type InternalHandlers struct {
	generation services.GenerationService
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(generation services.GenerationService) *InternalHandlers {
	return &InternalHandlers{generation: generation}
}

// Routes registers the internal endpoints on the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/insignes/{insigneId}:generate", h.generate)
}

func (h *InternalHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.generation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("generation_unavailable", "generation service is unavailable", http.StatusServiceUnavailable))
		return
	}

	insigneID := strings.TrimSpace(chi.URLParam(r, "insigneId"))
	if insigneID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "insigne id is required", http.StatusUnprocessableEntity))
		return
	}

	insigne, err := h.generation.Generate(ctx, insigneID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toInsigneResponse(insigne, nil))
}
