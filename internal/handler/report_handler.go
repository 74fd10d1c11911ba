package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"repairdesk/internal/repository/clickhouse"
)

const defaultReportWindow = 7 * 24 * time.Hour

// ReportHandler answers login-activity reports out of the audit warehouse.
// Super-admin only.
type ReportHandler struct {
	store  *clickhouse.AuditStore
	logger *zap.Logger
}

func NewReportHandler(store *clickhouse.AuditStore, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{store: store, logger: logger}
}

func (h *ReportHandler) RegisterRoutes(router chi.Router) {
	router.Route("/reports", func(r chi.Router) {
		r.Use(RequirePrivileged)
		r.Get("/logins", h.LoginReport)
	})
}

// LoginReport aggregates login events per employee. The window defaults to
// the last 7 days; ?window=72h overrides it.
func (h *ReportHandler) LoginReport(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondWithError(w, http.StatusServiceUnavailable,
			errors.New("audit warehouse not configured"), "Report unavailable")
		return
	}

	window := defaultReportWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest,
				errors.New("window must be a positive duration"), "Invalid request")
			return
		}
		window = parsed
	}

	report, err := h.store.LoginReport(r.Context(), time.Now().Add(-window))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err, "Report failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(report, "Login report"))
}
