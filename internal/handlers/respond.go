package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/insigne-house/api/internal/domain"
	"github.com/insigne-house/api/internal/platform/httpx"
	"github.com/insigne-house/api/internal/platform/pagination"
	"github.com/insigne-house/api/internal/services"
)

var (
	errEmptyBody    = errors.New("handlers: request body is empty")
	errBodyTooLarge = errors.New("handlers: request body exceeds limit")
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// NoStore marks responses as uncacheable. Signed URLs and report content are
// time-limited and personal, so intermediaries must never retain them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// paginationParams parses pageSize/pageToken for a list route and stashes the
// result on the request context. Malformed values never reach the handler.
func paginationParams(opts pagination.Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			page, err := pagination.FromRequest(r, opts)
			if err != nil {
				httpx.WriteError(r.Context(), w, httpx.NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
				return
			}
			next.ServeHTTP(w, r.WithContext(pagination.WithParams(r.Context(), page)))
		})
	}
}

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrGenerationInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("generation_in_progress", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("status_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDeliveryPrecondition):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_precondition_failed", err.Error(), http.StatusPreconditionFailed))
	case errors.Is(err, services.ErrUpstreamGeneration):
		httpx.WriteError(ctx, w, httpx.NewError("generation_upstream_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrDeliveryDispatch):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_dispatch_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrBackendUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", err.Error(), http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

type signedAssetResponse struct {
	AssetType   string `json:"asset_type"`
	StoragePath string `json:"storage_path"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

type insigneResponse struct {
	ID           string                `json:"id"`
	Status       string                `json:"status"`
	ClientEmail  string                `json:"client_email,omitempty"`
	ReportText   string                `json:"report_text,omitempty"`
	MottoEnglish string                `json:"motto_english,omitempty"`
	MottoLatin   string                `json:"motto_latin,omitempty"`
	CreatedAt    string                `json:"created_at,omitempty"`
	UpdatedAt    string                `json:"updated_at,omitempty"`
	Assets       []signedAssetResponse `json:"assets,omitempty"`
}

type insigneSummaryResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ClientEmail string `json:"client_email,omitempty"`
	MottoLatin  string `json:"motto_latin,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func toInsigneResponse(insigne domain.Insigne, assets []domain.SignedAsset) insigneResponse {
	payload := insigneResponse{
		ID:           insigne.ID,
		Status:       string(insigne.Status),
		ClientEmail:  insigne.ClientEmail,
		ReportText:   insigne.ReportText,
		MottoEnglish: insigne.MottoEnglish,
		MottoLatin:   insigne.MottoLatin,
		CreatedAt:    formatTimestamp(insigne.CreatedAt),
		UpdatedAt:    formatTimestamp(insigne.UpdatedAt),
	}
	for _, asset := range assets {
		payload.Assets = append(payload.Assets, signedAssetResponse{
			AssetType:   asset.AssetType,
			StoragePath: asset.StoragePath,
			URL:         asset.SignedURL,
			Error:       asset.Error,
			ExpiresAt:   formatTimestamp(asset.ExpiresAt),
		})
	}
	return payload
}

func toInsigneSummary(insigne domain.Insigne) insigneSummaryResponse {
	return insigneSummaryResponse{
		ID:          insigne.ID,
		Status:      string(insigne.Status),
		ClientEmail: insigne.ClientEmail,
		MottoLatin:  insigne.MottoLatin,
		CreatedAt:   formatTimestamp(insigne.CreatedAt),
	}
}
