package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/iwtkmsss/queue-sub000/internal/queue"
	"github.com/iwtkmsss/queue-sub000/internal/schedule"
	"github.com/iwtkmsss/queue-sub000/internal/settings"
	"github.com/iwtkmsss/queue-sub000/internal/slots"
	"github.com/iwtkmsss/queue-sub000/internal/staff"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

const maxBodyBytes = 1 << 20

type Deps struct {
	Queue     *queue.Service
	Slots     *slots.Engine
	Schedules *schedule.Resolver
	Settings  *settings.Settings
	Staff     *staff.Service
	// APIToken is handed out on a successful employee login.
	APIToken string
}

type Handler struct {
	queue     *queue.Service
	slots     *slots.Engine
	schedules *schedule.Resolver
	settings  *settings.Settings
	staff     *staff.Service
	apiToken  string
}

type errorResponse struct {
	RequestID string               `json:"request_id"`
	Error     responseError        `json:"error"`
	Errors    []string             `json:"errors,omitempty"`
	Conflicts []store.MoveConflict `json:"conflicts,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		queue:     deps.Queue,
		slots:     deps.Slots,
		schedules: deps.Schedules,
		settings:  deps.Settings,
		staff:     deps.Staff,
		apiToken:  deps.APIToken,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/queue", h.handleQueue)
	mux.HandleFunc("/queue/", h.handleQueuePath)
	mux.HandleFunc("/appointments/", h.handleAppointments)
	mux.HandleFunc("/schedules", h.handleSchedules)
	mux.HandleFunc("/schedules/for-date", h.handleScheduleForDate)
	mux.HandleFunc("/settings", h.handleSettings)
	mux.HandleFunc("/settings/", h.handleSetting)
	mux.HandleFunc("/employees", h.handleEmployees)
	mux.HandleFunc("/employees/", h.handleEmployeePath)
	mux.HandleFunc("/questions", h.handleQuestions)
	mux.HandleFunc("/questions/", h.handleQuestionPath)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// pathParts splits the path below prefix into its non-empty segments.
func pathParts(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parseID(value string) (int64, bool) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter. Absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.Invalid(key + " must be an integer")
	}
	return value, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, store.Invalid(key + " must be an integer")
	}
	return value, nil
}

// decodeRequest decodes a JSON body strictly. An empty body leaves target untouched.
func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	requestID := requestIDFromRequest(r)
	if status == http.StatusInternalServerError {
		log.Printf("request_id=%s method=%s path=%s internal error: %v", requestID, r.Method, r.URL.Path, err)
	}
	resp := errorResponse{RequestID: requestID, Error: responseError{Code: code, Message: message}}
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = verr.Problems
	}
	var cerr *store.ConflictError
	if errors.As(err, &cerr) {
		resp.Conflicts = cerr.Conflicts
	}
	writeJSON(w, status, resp)
}

func mapError(err error) (int, string, string) {
	var verr *store.ValidationError
	var cerr *store.ConflictError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Code, strings.Join(verr.Problems, "; ")
	case errors.As(err, &cerr):
		return http.StatusConflict, "move_conflict", "destination window has bookings at the same time"
	case errors.Is(err, store.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD"
	case errors.Is(err, store.ErrInvalidWeekStart):
		return http.StatusBadRequest, "invalid_week_start", "week_start must be a Monday in YYYY-MM-DD"
	case errors.Is(err, store.ErrEmptySchedule):
		return http.StatusBadRequest, "empty_schedule", "schedule has no valid days"
	case errors.Is(err, store.ErrPrimaryTab):
		return http.StatusBadRequest, "primary_tab", "the primary tab cannot be canceled"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "record_not_found", "ticket not found"
	case errors.Is(err, store.ErrTabNotFound):
		return http.StatusNotFound, "tab_not_found", "tab not found"
	case errors.Is(err, store.ErrNothingToMove):
		return http.StatusNotFound, "nothing_to_move", "no waiting tickets in the source window"
	case errors.Is(err, store.ErrQuestionNotFound):
		return http.StatusNotFound, "question_not_found", "question not found"
	case errors.Is(err, store.ErrEmployeeNotFound):
		return http.StatusNotFound, "employee_not_found", "employee not found"
	case errors.Is(err, store.ErrSettingNotFound):
		return http.StatusNotFound, "setting_not_found", "setting not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrWindowBusy):
		return http.StatusConflict, "window_busy", "window is already serving a ticket"
	case errors.Is(err, store.ErrSlotTaken):
		return http.StatusConflict, "slot_taken", "slot already taken"
	case errors.Is(err, store.ErrTabLimit):
		return http.StatusConflict, "tab_limit", "ticket already has the maximum number of tabs"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
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
