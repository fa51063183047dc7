package http

import (
	"context"
	"net/http"
)

type RouterConfig struct {
	Reservations  *ReservationHandler
	Notifications *NotificationHandler
	Staff         *StaffHandler
	// Health reports storage readiness for GET /healthz; nil always reports ok.
	Health func(ctx context.Context) error
	// Auth guards every route except GET /healthz.
	Auth       func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if h := cfg.Reservations; h != nil {
		api.HandleFunc("POST /reservations", h.Create)
		api.HandleFunc("GET /reservations", h.List)
		api.HandleFunc("GET /reservations/{id}", h.Get)
		api.HandleFunc("DELETE /reservations/{id}", h.Delete)
		api.HandleFunc("POST /reservations/{id}/approve", h.Approve)
		api.HandleFunc("POST /reservations/{id}/reject", h.Reject)
		api.HandleFunc("POST /reservations/{id}/cancel", h.Cancel)
		api.HandleFunc("POST /reservations/{id}/start", h.Start)
		api.HandleFunc("POST /reservations/{id}/end", h.End)
		api.HandleFunc("GET /reservations/{id}/extension", h.PreviewExtension)
		api.HandleFunc("POST /reservations/{id}/extension", h.RequestExtension)
		api.HandleFunc("DELETE /reservations/{id}/extension", h.ClearExtension)
		api.HandleFunc("POST /reservations/{id}/extension/approve", h.ApproveExtension)
		api.HandleFunc("POST /reservations/{id}/extension/reject", h.RejectExtension)
		api.HandleFunc("GET /occupancy", h.Occupancy)
	}

	if h := cfg.Notifications; h != nil {
		api.HandleFunc("GET /notifications", h.List)
		api.HandleFunc("GET /notifications/unread-count", h.UnreadCount)
		api.HandleFunc("POST /notifications/read-all", h.MarkAllRead)
		api.HandleFunc("POST /notifications/{id}/read", h.MarkRead)
		api.HandleFunc("POST /report-events", h.ReportEvent)
	}

	if h := cfg.Staff; h != nil {
		api.HandleFunc("GET /staff", h.List)
		api.HandleFunc("PUT /staff/{id}", h.Put)
	}

	var protected http.Handler = api
	if cfg.Auth != nil {
		protected = cfg.Auth(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", healthHandler(cfg.Health))
	root.Handle("/", protected)

	var handler http.Handler = root
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
