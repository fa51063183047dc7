package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/scheduler"
)

type reservationService interface {
	Policy() application.Policy
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (application.Reservation, error)
	GetReservation(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	DeleteReservation(ctx context.Context, principal application.Principal, id string) error
	ListReservations(ctx context.Context, params application.ListReservationsParams) ([]application.Reservation, error)
	GetOccupancy(ctx context.Context, params application.OccupancyParams) ([]application.OccupancyWindow, error)
	Approve(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	Reject(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	Cancel(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	Start(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	EndEarly(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
	RequestExtension(ctx context.Context, principal application.Principal, id, reason string) (application.Reservation, error)
	PreviewExtension(ctx context.Context, principal application.Principal, id string) (time.Time, error)
	HandleExtension(ctx context.Context, principal application.Principal, id string, action application.ExtensionAction) (application.Reservation, error)
	ClearExtension(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)
}

// ReservationHandler serves the reservation lifecycle, extension and occupancy endpoints.
type ReservationHandler struct {
	service   reservationService
	civil     scheduler.Civil
	responder responder
	logger    *slog.Logger
}

func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	h := &ReservationHandler{service: service, responder: newResponder(logger), logger: defaultLogger(logger)}
	if service != nil {
		h.civil = service.Policy().Civil
	}
	return h
}

func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	created, err := h.service.CreateReservation(r.Context(), application.CreateReservationParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "ReservationHandler", "Create", "reservation_id", created.ID).
		InfoContext(r.Context(), "reservation requested")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, h.toDTO(created))
}

func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.toDTO(reservation))
}

func (h *ReservationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReservation(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ReservationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	params, err := h.buildListParams(r.URL.Query(), principal)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	reservations, err := h.service.ListReservations(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listReservationsResponse{Reservations: make([]reservationDTO, 0, len(reservations))}
	for _, reservation := range reservations {
		response.Reservations = append(response.Reservations, h.toDTO(reservation))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *ReservationHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	query := r.URL.Query()
	dateValue := strings.TrimSpace(query.Get("date"))
	if dateValue == "" {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
			FieldErrors: map[string]string{"date": "date is required"},
		})
		return
	}
	date, err := h.civil.ParseDate(dateValue)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	windows, err := h.service.GetOccupancy(r.Context(), application.OccupancyParams{
		Floor: strings.TrimSpace(query.Get("floor")),
		Date:  date,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := occupancyResponse{
		Date:    dateValue,
		Windows: make([]occupancyWindowDTO, 0, len(windows)),
	}
	for _, window := range windows {
		response.Windows = append(response.Windows, occupancyWindowDTO{
			Floor:          window.Floor,
			Room:           window.Room,
			Start:          h.formatTime(window.Start),
			End:            h.formatTime(window.End),
			ReservationIDs: append([]string{}, window.ReservationIDs...),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *ReservationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *ReservationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *ReservationHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *ReservationHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.EndEarly)
}

func (h *ReservationHandler) RequestExtension(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req extensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	reservation, err := h.service.RequestExtension(r.Context(), principal, id, req.Reason)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.toDTO(reservation))
}

func (h *ReservationHandler) PreviewExtension(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit, err := h.service.PreviewExtension(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, extensionPreviewResponse{
		ReservationID: id,
		AvailableEnd:  h.formatTime(limit),
	})
}

func (h *ReservationHandler) ApproveExtension(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, principal application.Principal, id string) (application.Reservation, error) {
		return h.service.HandleExtension(ctx, principal, id, application.ExtensionApprove)
	})
}

func (h *ReservationHandler) RejectExtension(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, principal application.Principal, id string) (application.Reservation, error) {
		return h.service.HandleExtension(ctx, principal, id, application.ExtensionReject)
	})
}

func (h *ReservationHandler) ClearExtension(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ClearExtension)
}

type transitionFunc func(ctx context.Context, principal application.Principal, id string) (application.Reservation, error)

func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, apply transitionFunc) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	reservation, err := apply(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.toDTO(reservation))
}

func (h *ReservationHandler) principal(w http.ResponseWriter, r *http.Request) (application.Principal, bool) {
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

func (h *ReservationHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return "", false
	}
	return id, true
}

func (h *ReservationHandler) buildListParams(query url.Values, principal application.Principal) (application.ListReservationsParams, error) {
	params := application.ListReservationsParams{
		Principal: principal,
		OwnerID:   strings.TrimSpace(query.Get("owner")),
		Floor:     strings.TrimSpace(query.Get("floor")),
		Room:      strings.TrimSpace(query.Get("room")),
	}

	for _, value := range query["status"] {
		for _, status := range strings.Split(value, ",") {
			if status = strings.TrimSpace(status); status != "" {
				params.Statuses = append(params.Statuses, application.Status(strings.ToLower(status)))
			}
		}
	}

	if value := strings.TrimSpace(query.Get("date")); value != "" {
		date, err := h.civil.ParseDate(value)
		if err != nil {
			return application.ListReservationsParams{}, errInvalidQuery
		}
		params.Date = &date
	}
	return params, nil
}

func (h *ReservationHandler) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return h.civil.In(t).Format(time.RFC3339)
}

func (h *ReservationHandler) formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := h.formatTime(*t)
	return &formatted
}

func (h *ReservationHandler) toDTO(reservation application.Reservation) reservationDTO {
	participants := make([]participantDTO, 0, len(reservation.Participants))
	for _, p := range reservation.Participants {
		participants = append(participants, participantDTO(p))
	}

	dto := reservationDTO{
		ID:           reservation.ID,
		OwnerID:      reservation.OwnerID,
		Floor:        reservation.Floor,
		Room:         reservation.Room,
		Start:        h.formatTime(reservation.Start),
		End:          h.formatTime(reservation.End),
		EffectiveEnd: h.formatTime(reservation.EffectiveEnd()),
		Status:       string(reservation.Status),
		Participants: participants,
		StartedAt:    h.formatOptionalTime(reservation.StartedAt),
		EndedAt:      h.formatOptionalTime(reservation.EndedAt),
		CreatedAt:    h.formatTime(reservation.CreatedAt),
		UpdatedAt:    h.formatTime(reservation.UpdatedAt),
		Version:      reservation.Version,
	}
	if reservation.ExtensionRequested || reservation.ExtensionStatus != application.ExtensionNone {
		dto.Extension = &extensionDTO{
			Requested:   reservation.ExtensionRequested,
			Status:      string(reservation.ExtensionStatus),
			Reason:      reservation.ExtensionReason,
			ExtendedEnd: h.formatOptionalTime(reservation.ExtendedEnd),
			Cap:         h.formatOptionalTime(reservation.ExtensionCap),
		}
	}
	return dto
}

type participantDTO struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	Course     string `json:"course,omitempty"`
	Year       string `json:"year,omitempty"`
	Department string `json:"department,omitempty"`
}

type reservationRequest struct {
	OwnerID      string           `json:"owner_id"`
	Floor        string           `json:"floor"`
	Room         string           `json:"room"`
	Start        string           `json:"start"`
	End          string           `json:"end"`
	Participants []participantDTO `json:"participants"`
}

func (r reservationRequest) toInput() (application.ReservationInput, error) {
	input := application.ReservationInput{
		OwnerID: strings.TrimSpace(r.OwnerID),
		Floor:   r.Floor,
		Room:    r.Room,
	}

	vErr := &application.ValidationError{}
	var err error
	if input.Start, err = parseTime(r.Start); err != nil {
		vErr.FieldErrors = map[string]string{"start": "start must be an RFC 3339 timestamp"}
	}
	if input.End, err = parseTime(r.End); err != nil {
		if vErr.FieldErrors == nil {
			vErr.FieldErrors = map[string]string{}
		}
		vErr.FieldErrors["end"] = "end must be an RFC 3339 timestamp"
	}
	if vErr.HasErrors() {
		return application.ReservationInput{}, vErr
	}

	for _, p := range r.Participants {
		input.Participants = append(input.Participants, application.Participant(p))
	}
	return input, nil
}

// parseTime accepts RFC 3339 timestamps. An empty value yields the zero time so that the service
// reports the field as required.
func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

type extensionRequest struct {
	Reason string `json:"reason"`
}

type extensionDTO struct {
	Requested   bool    `json:"requested"`
	Status      string  `json:"status,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	ExtendedEnd *string `json:"extended_end,omitempty"`
	Cap         *string `json:"cap,omitempty"`
}

type reservationDTO struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"owner_id"`
	Floor        string           `json:"floor"`
	Room         string           `json:"room"`
	Start        string           `json:"start"`
	End          string           `json:"end"`
	EffectiveEnd string           `json:"effective_end"`
	Status       string           `json:"status"`
	Participants []participantDTO `json:"participants"`
	Extension    *extensionDTO    `json:"extension,omitempty"`
	StartedAt    *string          `json:"started_at,omitempty"`
	EndedAt      *string          `json:"ended_at,omitempty"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
	Version      int64            `json:"version"`
}

type listReservationsResponse struct {
	Reservations []reservationDTO `json:"reservations"`
}

type extensionPreviewResponse struct {
	ReservationID string `json:"reservation_id"`
	AvailableEnd  string `json:"available_end"`
}

type occupancyWindowDTO struct {
	Floor          string   `json:"floor"`
	Room           string   `json:"room"`
	Start          string   `json:"start"`
	End            string   `json:"end"`
	ReservationIDs []string `json:"reservation_ids"`
}

type occupancyResponse struct {
	Date    string               `json:"date"`
	Windows []occupancyWindowDTO `json:"windows"`
}
