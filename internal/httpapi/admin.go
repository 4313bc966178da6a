package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"campusq/internal/models"
)

type createDepartmentRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		enabledOnly := r.URL.Query().Get("enabled") == "true"
		departments, err := h.admin.ListDepartments(r.Context(), enabledOnly)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.Department{"departments": departments})
	case http.MethodPost:
		var req createDepartmentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Code = strings.TrimSpace(req.Code)
		if req.Name == "" || req.Code == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "name and code are required")
			return
		}
		dept, err := h.admin.CreateDepartment(r.Context(), req.Name, req.Code)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, dept)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type updateDepartmentRequest struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
}

func (h *Handler) handleUpdateDepartment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departmentID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/departments/"), "/")
	if !isValidUUID(departmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department id must be a UUID")
		return
	}

	var req updateDepartmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "name and code are required")
		return
	}

	dept := models.Department{
		DepartmentID: departmentID,
		Name:         req.Name,
		Code:         req.Code,
		Enabled:      req.Enabled,
	}
	if err := h.admin.UpdateDepartment(r.Context(), dept); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

type createWindowRequest struct {
	DepartmentID string `json:"department_id"`
	Name         string `json:"name"`
	Number       int    `json:"number"`
}

func (h *Handler) handleWindows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
		if !isValidUUID(departmentID) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id must be a UUID")
			return
		}
		windows, err := h.admin.ListWindows(r.Context(), departmentID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]models.Window{"windows": windows})
	case http.MethodPost:
		var req createWindowRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if !isValidUUID(req.DepartmentID) || req.Name == "" || req.Number < 1 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id, name, and a positive number are required")
			return
		}
		window, err := h.admin.CreateWindow(r.Context(), req.DepartmentID, req.Name, req.Number)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusCreated, window)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type assignStaffRequest struct {
	StaffID      string  `json:"staff_id"`
	DepartmentID string  `json:"department_id"`
	WindowID     *string `json:"window_id"`
}

func (h *Handler) handleAssignStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req assignStaffRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !isValidUUID(req.StaffID) || !isValidUUID(req.DepartmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "staff_id and department_id must be UUIDs")
		return
	}
	if req.WindowID != nil && !isValidUUID(*req.WindowID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "window_id must be a UUID")
		return
	}

	assignment := models.StaffAssignment{
		StaffID:      req.StaffID,
		DepartmentID: req.DepartmentID,
		WindowID:     req.WindowID,
	}
	if err := h.admin.AssignStaff(r.Context(), assignment); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func (h *Handler) handleUpsertParticipant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var participant models.Participant
	if !decodeBody(w, r, &participant) {
		return
	}
	participant.ParticipantID = strings.TrimSpace(participant.ParticipantID)
	if participant.ParticipantID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "participant_id is required")
		return
	}
	if participant.DepartmentID != "" && !isValidUUID(participant.DepartmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id must be a UUID")
		return
	}

	if err := h.admin.UpsertParticipant(r.Context(), participant); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

func (h *Handler) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var policy models.DepartmentPolicy
	if !decodeBody(w, r, &policy) {
		return
	}
	if !isValidUUID(policy.DepartmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id must be a UUID")
		return
	}
	// Zero is a valid setting: zero hold attempts sends the first no-show
	// straight to out, zero up-next hides the preview board.
	if policy.MaxHoldAttempts < 0 || policy.UpNextCount < 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "max_hold_attempts and up_next_count must not be negative")
		return
	}

	if err := h.admin.UpsertPolicy(r.Context(), policy); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, policy)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}
