package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/facility-booking/internal/application"
)

type staffService interface {
	AssignStaff(ctx context.Context, principal application.Principal, member application.StaffMember) (application.StaffMember, error)
	ListStaff(ctx context.Context, principal application.Principal, floorLabel string) ([]application.StaffMember, error)
}

// StaffHandler mirrors floor assignments from the portal's user directory.
type StaffHandler struct {
	service   staffService
	responder responder
}

func NewStaffHandler(service staffService, logger *slog.Logger) *StaffHandler {
	return &StaffHandler{service: service, responder: newResponder(logger)}
}

func (h *StaffHandler) Put(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req staffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	member, err := h.service.AssignStaff(r.Context(), principal, application.StaffMember{
		ID:          id,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        application.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		Floor:       req.Floor,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toStaffDTO(member))
}

func (h *StaffHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	members, err := h.service.ListStaff(r.Context(), principal, r.URL.Query().Get("floor"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := listStaffResponse{Staff: make([]staffDTO, 0, len(members))}
	for _, member := range members {
		response.Staff = append(response.Staff, toStaffDTO(member))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

type staffRequest struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Floor       string `json:"floor"`
}

type staffDTO struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role"`
	Floor       string `json:"floor"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func toStaffDTO(member application.StaffMember) staffDTO {
	dto := staffDTO{
		ID:          member.ID,
		DisplayName: member.DisplayName,
		Role:        string(member.Role),
		Floor:       member.Floor,
	}
	if !member.UpdatedAt.IsZero() {
		dto.UpdatedAt = member.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

type listStaffResponse struct {
	Staff []staffDTO `json:"staff"`
}
