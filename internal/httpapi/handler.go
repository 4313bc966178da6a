package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"campusq/internal/admission"
	"campusq/internal/metrics"
	"campusq/internal/models"
	"campusq/internal/store"

	"github.com/google/uuid"
)

// Admission performs validated queue joins.
type Admission interface {
	Join(ctx context.Context, req admission.JoinRequest) (models.Ticket, error)
	FindActive(ctx context.Context, departmentID, participantID string) (models.Ticket, bool, error)
}

// CallEngine performs window-operator actions.
type CallEngine interface {
	CallNext(ctx context.Context, requestID, windowID string) (models.Ticket, error)
	MarkServed(ctx context.Context, ticketID string) (models.Ticket, error)
	HoldOrNoShow(ctx context.Context, ticketID string) (models.Ticket, error)
	CurrentCalled(ctx context.Context, windowID string) (models.Ticket, bool, error)
}

// DisplayAggregator derives the public board projection.
type DisplayAggregator interface {
	GetDisplay(ctx context.Context, departmentID string) (store.Display, error)
}

// Guard throttles request volume ahead of the backend. Nil-safe via noopGuard.
type Guard interface {
	Allow(ctx context.Context, action, departmentID, participantID string) (bool, time.Duration)
	CheckDepartment(ctx context.Context, participantID, departmentID string) bool
}

// TicketReader is the read slice of the ticket store the handler needs.
type TicketReader interface {
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
}

type Handler struct {
	admission Admission
	engine    CallEngine
	display   DisplayAggregator
	tickets   TicketReader
	admin     store.AdminStore
	auth      store.AuthStore
	guard     Guard
}

type Options struct {
	Guard Guard
}

func NewHandler(adm Admission, eng CallEngine, disp DisplayAggregator, tickets TicketReader, adminStore store.AdminStore, authStore store.AuthStore, options Options) *Handler {
	g := options.Guard
	if g == nil {
		g = noopGuard{}
	}
	return &Handler{
		admission: adm,
		engine:    eng,
		display:   disp,
		tickets:   tickets,
		admin:     adminStore,
		auth:      authStore,
		guard:     g,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/queue/join", h.handleJoin)
	mux.HandleFunc("/queue/ticket/", h.handleGetTicket)
	mux.HandleFunc("/queue/active", h.handleActiveTicket)
	mux.HandleFunc("/display/", h.handleDisplay)
	mux.HandleFunc("/staff/call-next", h.handleCallNext)
	mux.HandleFunc("/staff/ticket/", h.handleStaffTicketActions)
	mux.HandleFunc("/staff/current", h.handleCurrentCalled)
	mux.HandleFunc("/admin/departments", h.handleDepartments)
	mux.HandleFunc("/admin/departments/", h.handleUpdateDepartment)
	mux.HandleFunc("/admin/windows", h.handleWindows)
	mux.HandleFunc("/admin/assignments", h.handleAssignStaff)
	mux.HandleFunc("/admin/participants", h.handleUpsertParticipant)
	mux.HandleFunc("/admin/policies", h.handleUpsertPolicy)
	return AuthMiddleware(h.auth, mux)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User    models.User   `json:"user"`
	Session store.Session `json:"session"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	user, session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: user, Session: session})
}

type joinRequest struct {
	RequestID     string   `json:"request_id"`
	DepartmentID  string   `json:"department_id"`
	ParticipantID string   `json:"participant_id"`
	PurposeKeys   []string `json:"purpose_keys"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req joinRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.DepartmentID = strings.TrimSpace(req.DepartmentID)
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)

	if req.RequestID == "" || req.DepartmentID == "" || req.ParticipantID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, department_id, and participant_id are required")
		return
	}
	if !isValidUUID(req.RequestID) || !isValidUUID(req.DepartmentID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and department_id must be UUIDs")
		return
	}

	if !h.guard.CheckDepartment(r.Context(), req.ParticipantID, req.DepartmentID) {
		metrics.GuardRejections.WithLabelValues("department-lock").Inc()
		writeError(w, req.RequestID, http.StatusConflict, "department_locked", "queue actions are locked to your first department today")
		return
	}
	if ok, wait := h.guard.Allow(r.Context(), "join", req.DepartmentID, req.ParticipantID); !ok {
		writeCooldown(w, req.RequestID, "join", wait)
		return
	}

	ticket, err := h.admission.Join(r.Context(), admission.JoinRequest{
		RequestID:     req.RequestID,
		DepartmentID:  req.DepartmentID,
		ParticipantID: req.ParticipantID,
		PurposeKeys:   req.PurposeKeys,
	})
	if err != nil {
		var dup *admission.DuplicateTicketError
		if errors.As(err, &dup) {
			metrics.TicketOperations.WithLabelValues("join", "duplicate").Inc()
			writeJSON(w, http.StatusConflict, duplicateResponse{
				RequestID: req.RequestID,
				Error:     responseError{Code: "duplicate_ticket", Message: "an active ticket already exists for today"},
				Ticket:    dup.Ticket,
			})
			return
		}
		metrics.TicketOperations.WithLabelValues("join", "error").Inc()
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	metrics.TicketOperations.WithLabelValues("join", "ok").Inc()
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticketID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/queue/ticket/"), "/")
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	ticket, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleActiveTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	departmentID := strings.TrimSpace(r.URL.Query().Get("department_id"))
	participantID := strings.TrimSpace(r.URL.Query().Get("participant_id"))
	if departmentID == "" || participantID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id and participant_id are required")
		return
	}
	if !isValidUUID(departmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department_id must be a UUID")
		return
	}

	if ok, wait := h.guard.Allow(r.Context(), "lookup", departmentID, participantID); !ok {
		writeCooldown(w, "", "lookup", wait)
		return
	}

	ticket, found, err := h.admission.FindActive(r.Context(), departmentID, participantID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleDisplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	departmentID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/display/"), "/")
	if !isValidUUID(departmentID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "department id must be a UUID")
		return
	}

	display, err := h.display.GetDisplay(r.Context(), departmentID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

type callNextRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req callNextRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	assignment, err := h.admin.GetAssignment(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	if assignment.WindowID == nil {
		writeError(w, req.RequestID, http.StatusConflict, "no_window", "no service window assigned")
		return
	}

	if ok, wait := h.guard.Allow(r.Context(), "call-next", assignment.DepartmentID, user.UserID); !ok {
		writeCooldown(w, req.RequestID, "call-next", wait)
		return
	}

	ticket, err := h.engine.CallNext(r.Context(), req.RequestID, *assignment.WindowID)
	if err != nil {
		if errors.Is(err, store.ErrNoTicket) {
			metrics.TicketOperations.WithLabelValues("call", "empty").Inc()
			writeError(w, req.RequestID, http.StatusConflict, "queue_empty", "no callable tickets")
			return
		}
		metrics.TicketOperations.WithLabelValues("call", "error").Inc()
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	metrics.TicketOperations.WithLabelValues("call", "ok").Inc()
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStaffTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/staff/ticket/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ticketID, action := parts[0], parts[1]
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	switch action {
	case "served":
		h.handleTicketAction(w, r, ticketID, "served", h.engine.MarkServed)
	case "hold":
		h.handleTicketAction(w, r, ticketID, "hold", h.engine.HoldOrNoShow)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type ticketActionRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) handleTicketAction(w http.ResponseWriter, r *http.Request, ticketID, action string, apply func(context.Context, string) (models.Ticket, error)) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req ticketActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	assignment, err := h.admin.GetAssignment(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	current, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	if current.DepartmentID != assignment.DepartmentID {
		writeError(w, req.RequestID, http.StatusForbidden, "access_denied", "ticket belongs to another department")
		return
	}

	if ok, wait := h.guard.Allow(r.Context(), action, assignment.DepartmentID, user.UserID); !ok {
		writeCooldown(w, req.RequestID, action, wait)
		return
	}

	ticket, err := apply(r.Context(), ticketID)
	if err != nil {
		metrics.TicketOperations.WithLabelValues(action, "error").Inc()
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}
	metrics.TicketOperations.WithLabelValues(action, "ok").Inc()
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCurrentCalled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, "", http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	assignment, err := h.admin.GetAssignment(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if assignment.WindowID == nil {
		writeError(w, "", http.StatusConflict, "no_window", "no service window assigned")
		return
	}

	ticket, found, err := h.engine.CurrentCalled(r.Context(), *assignment.WindowID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type duplicateResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
	Ticket    models.Ticket `json:"ticket"`
}

type cooldownResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
	RetryIn   float64       `json:"retry_in_seconds"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrDepartmentNotFound):
		return http.StatusNotFound, "department_not_found", "department not found"
	case errors.Is(err, store.ErrDepartmentDisabled):
		return http.StatusConflict, "department_disabled", "department is not accepting tickets"
	case errors.Is(err, store.ErrWindowNotFound):
		return http.StatusNotFound, "window_not_found", "service window not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrAssignmentNotFound):
		return http.StatusConflict, "no_assignment", "no department assignment for staff member"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, admission.ErrInvalidPurposeSelection):
		return http.StatusBadRequest, "invalid_purpose", "selected purposes are not permitted"
	case errors.Is(err, admission.ErrDepartmentLocked):
		return http.StatusForbidden, "department_locked", "participant is locked to another department"
	case errors.Is(err, admission.ErrMissingParticipant):
		return http.StatusBadRequest, "invalid_request", "participant id is required"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid username or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeCooldown(w http.ResponseWriter, requestID, action string, wait time.Duration) {
	metrics.GuardRejections.WithLabelValues(action).Inc()
	writeJSON(w, http.StatusTooManyRequests, cooldownResponse{
		RequestID: requestID,
		Error:     responseError{Code: "cooldown", Message: "try again shortly"},
		RetryIn:   wait.Seconds(),
	})
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error:     responseError{Code: code, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

type noopGuard struct{}

func (noopGuard) Allow(context.Context, string, string, string) (bool, time.Duration) {
	return true, 0
}

func (noopGuard) CheckDepartment(context.Context, string, string) bool { return true }
