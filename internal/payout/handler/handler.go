// Package handler exposes the payout engine over the admin HTTP API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"marquee/internal/payout/models"
	"marquee/internal/payout/service"
	"marquee/internal/platform/middleware"
	dErrors "marquee/pkg/domain-errors"
	"marquee/pkg/platform/httputil"
)

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the admin payout API. Callers wrap it in the admin auth
// middleware; nothing here is reachable anonymously.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.executePayout)
	r.Post("/keys", h.issueKey)
	r.Get("/keys", h.listKeys)
	r.Get("/history", h.listHistory)
	r.Get("/audit", h.listAudit)
	return r
}

func (h *Handler) executePayout(w http.ResponseWriter, r *http.Request) {
	var req models.ExecutePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}

	if err := h.svc.ExecutePayout(r.Context(), req, actor(r)); err != nil {
		h.logFailure(r, "payout rejected", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, models.ExecutePayoutResponse{Success: true})
}

func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	var req models.IssueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}

	resp, err := h.svc.IssueKey(r.Context(), req, actor(r))
	if err != nil {
		h.logFailure(r, "key issuance rejected", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.ListActiveKeys(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.ActiveKeyResponse, 0, len(active))
	for _, key := range active {
		out = append(out, models.ActiveKeyResponse{
			KeyID:    key.KeyID,
			Partner:  key.Partner,
			Kind:     key.Kind,
			Status:   key.Status,
			IssuedAt: key.IssuedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.History(r.Context(), r.URL.Query().Get("recipient"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.HistoryEntryResponse{
			ID:          e.ID,
			Recipient:   e.Recipient,
			AmountCents: e.AmountCents,
			Status:      e.Status,
			ProcessedAt: e.ProcessedAt,
			Method:      e.Method,
			Kind:        e.Kind,
			TransferID:  e.TransferID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.svc.RecentAudit(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]models.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.AuditEntryResponse{
			ID:        e.ID,
			ActorRole: e.ActorRole,
			Action:    e.Action,
			Detail:    e.Detail,
			Severity:  e.Severity,
			Timestamp: e.Timestamp,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// actor identifies the authenticated admin for the audit trail.
func actor(r *http.Request) string {
	if subject := middleware.GetActor(r.Context()); subject != "" {
		return subject
	}
	return "admin"
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.WarnContext(r.Context(), msg,
		"kind", dErrors.CodeOf(err),
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err,
	)
}
