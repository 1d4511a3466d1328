package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/schedule"
	"github.com/iwtkmsss/queue-sub000/internal/staff"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type dayScheduleResponse struct {
	EmployeeID int64            `json:"employee_id"`
	Date       string           `json:"date"`
	WeekStart  string           `json:"week_start"`
	Hours      *models.DayHours `json:"hours"`
}

type settingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginResponse struct {
	Employee models.Employee `json:"employee"`
	Token    string          `json:"token,omitempty"`
}

type windowRequest struct {
	WindowNumber *int `json:"window_number"`
}

type questionRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req schedule.CreateInput
		if !decodeRequest(w, r, &req) {
			return
		}
		ws, err := h.schedules.CreateWeeklySchedule(r.Context(), req)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ws)
	case http.MethodGet:
		employeeID, err := queryInt64(r, "employee_id")
		if err != nil {
			respondError(w, r, err)
			return
		}
		includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("include_archived"))
		list, err := h.schedules.ListSchedules(r.Context(), store.ScheduleFilter{
			EmployeeID:      employeeID,
			WeekStart:       strings.TrimSpace(r.URL.Query().Get("week_start")),
			IncludeArchived: includeArchived,
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleScheduleForDate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	employeeID, err := queryInt64(r, "employee_id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	var missing []string
	if employeeID <= 0 {
		missing = append(missing, "employee_id")
	}
	if date == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		respondError(w, r, store.MissingFields(missing...))
		return
	}
	weekStart, err := schedule.IsoWeekStart(date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	hours, err := h.schedules.ResolveDay(r.Context(), employeeID, date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dayScheduleResponse{EmployeeID: employeeID, Date: date, WeekStart: weekStart, Hours: hours})
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req settingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if err := h.settings.Set(r.Context(), req.Key, req.Value); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Setting{Key: strings.TrimSpace(req.Key), Value: strings.TrimSpace(req.Value)})
}

func (h *Handler) handleSetting(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r, "/settings/")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	value, err := h.settings.Get(r.Context(), parts[0])
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.Setting{Key: parts[0], Value: value})
}

func (h *Handler) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.staff.ListEmployees(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req staff.CreateEmployeeInput
		if !decodeRequest(w, r, &req) {
			return
		}
		emp, err := h.staff.CreateEmployee(r.Context(), req)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, emp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleEmployeePath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/employees/")
	switch {
	case len(parts) == 1 && parts[0] == "login":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req loginRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		emp, err := h.staff.Login(r.Context(), req.Name, req.Password)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Employee: emp, Token: h.apiToken})
	case len(parts) == 2 && parts[1] == "window":
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id, ok := parseID(parts[0])
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req windowRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		emp, err := h.staff.AssignWindow(r.Context(), id, req.WindowNumber)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, emp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.staff.ListQuestions(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req questionRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		q, err := h.staff.CreateQuestion(r.Context(), req.Text)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, q)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQuestionPath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/questions/")
	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, ok := parseID(parts[0])
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req questionRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		q, err := h.staff.UpdateQuestion(r.Context(), id, req.Text)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	case http.MethodDelete:
		if err := h.staff.DeleteQuestion(r.Context(), id); err != nil {
			respondError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
