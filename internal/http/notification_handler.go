package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/scheduler"
)

type notificationService interface {
	ListNotifications(ctx context.Context, params application.ListNotificationsParams) ([]application.Notification, error)
	UnreadCount(ctx context.Context, principal application.Principal) (int, error)
	MarkRead(ctx context.Context, principal application.Principal, id string) (application.Notification, error)
	MarkAllRead(ctx context.Context, principal application.Principal) (int64, error)
	NotifyReport(ctx context.Context, event application.ReportEvent) error
}

// NotificationHandler serves the notification inbox and the report event hook.
type NotificationHandler struct {
	service   notificationService
	civil     scheduler.Civil
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

// NewNotificationHandler renders timestamps in civil's time zone, matching reservation payloads.
func NewNotificationHandler(service notificationService, civil scheduler.Civil, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, civil: civil, responder: newResponder(logger), logger: defaultLogger(logger), now: time.Now}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	params := application.ListNotificationsParams{Principal: principal}
	if value := strings.TrimSpace(query.Get("unread")); value != "" {
		unread, err := strconv.ParseBool(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
			return
		}
		params.UnreadOnly = unread
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
			return
		}
		params.Limit = limit
	}

	notifications, err := h.service.ListNotifications(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listNotificationsResponse{Notifications: make([]notificationDTO, 0, len(notifications))}
	for _, n := range notifications {
		response.Notifications = append(response.Notifications, toNotificationDTO(n, h.civil))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, unreadCountResponse{Unread: count})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	notification, err := h.service.MarkRead(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toNotificationDTO(notification, h.civil))
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, markAllReadResponse{Updated: updated})
}

// ReportEvent accepts events from the facility report subsystem. Only staff tokens may post.
func (h *NotificationHandler) ReportEvent(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !principal.IsStaff() {
		h.responder.handleServiceError(r.Context(), w, application.ErrForbidden)
		return
	}

	var req reportEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	event := application.ReportEvent{
		Kind:       application.EventKind(strings.TrimSpace(req.Kind)),
		ReportID:   strings.TrimSpace(req.ReportID),
		ReporterID: strings.TrimSpace(req.ReporterID),
		Floor:      req.Floor,
		Summary:    strings.TrimSpace(req.Summary),
		OccurredAt: h.now(),
	}
	if err := h.service.NotifyReport(r.Context(), event); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "NotificationHandler", "ReportEvent", "report_id", event.ReportID).
		InfoContext(r.Context(), "report event routed", "kind", string(event.Kind))
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, nil)
}

func (h *NotificationHandler) principal(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.Principal{}, false
	}
	principal, ok := PrincipalFromContext(r.Context())
	if !ok || principal.UserID == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingPrincipal)
		return application.Principal{}, false
	}
	return principal, true
}

type notificationDTO struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	ReservationID *string `json:"reservation_id,omitempty"`
	ReportID      *string `json:"report_id,omitempty"`
	Floor         string  `json:"floor,omitempty"`
	Message       string  `json:"message"`
	IsRead        bool    `json:"is_read"`
	ReadAt        *string `json:"read_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toNotificationDTO(n application.Notification, civil scheduler.Civil) notificationDTO {
	dto := notificationDTO{
		ID:            n.ID,
		Kind:          string(n.Kind),
		ReservationID: n.ReservationID,
		ReportID:      n.ReportID,
		Floor:         n.Floor,
		Message:       n.Message,
		IsRead:        n.IsRead,
		CreatedAt:     civil.In(n.CreatedAt).Format(time.RFC3339),
	}
	if n.ReadAt != nil {
		readAt := civil.In(*n.ReadAt).Format(time.RFC3339)
		dto.ReadAt = &readAt
	}
	return dto
}

type listNotificationsResponse struct {
	Notifications []notificationDTO `json:"notifications"`
}

type unreadCountResponse struct {
	Unread int `json:"unread"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type reportEventRequest struct {
	Kind       string `json:"kind"`
	ReportID   string `json:"report_id"`
	ReporterID string `json:"reporter_id"`
	Floor      string `json:"floor"`
	Summary    string `json:"summary"`
}
