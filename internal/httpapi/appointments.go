package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/iwtkmsss/queue-sub000/internal/models"
	"github.com/iwtkmsss/queue-sub000/internal/queue"
	"github.com/iwtkmsss/queue-sub000/internal/store"
)

type moveWindowRequest struct {
	From           int  `json:"from"`
	To             int  `json:"to"`
	CheckConflicts bool `json:"check_conflicts"`
}

type moveWindowResponse struct {
	Success bool `json:"success"`
	Moved   int  `json:"moved"`
}

type conflictsResponse struct {
	Conflicts []store.MoveConflict `json:"conflicts"`
}

type addTabResponse struct {
	Ticket models.Ticket `json:"ticket"`
	Slot   int           `json:"tab_slot"`
}

// handleQueue books on POST and lists a day's raw rows on GET.
func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req queue.BookInput
		if !decodeRequest(w, r, &req) {
			return
		}
		ticket, err := h.queue.Book(r.Context(), req)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ticket)
	case http.MethodGet:
		window, err := queryInt(r, "window")
		if err != nil {
			respondError(w, r, err)
			return
		}
		rows, err := h.queue.ListRows(r.Context(), window, r.URL.Query().Get("date"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQueuePath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/queue/")
	switch {
	case len(parts) == 1 && parts[0] == "available-times":
		h.handleAvailableTimes(w, r)
	case len(parts) == 1 && parts[0] == "move-window":
		h.handleMoveWindow(w, r)
	case len(parts) == 2 && parts[0] == "move-window" && parts[1] == "conflicts":
		h.handleMoveConflicts(w, r)
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		id, ok := parseID(parts[0])
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ticket, err := h.queue.GetTicket(r.Context(), id)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAvailableTimes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	questionID, err := queryInt64(r, "question_id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.slots.AvailableTimes(r.Context(), questionID, r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleMoveWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req moveWindowRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	moved, err := h.queue.MoveWindow(r.Context(), req.From, req.To, req.CheckConflicts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moveWindowResponse{Success: true, Moved: moved})
}

func (h *Handler) handleMoveConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	from, err := queryInt(r, "from")
	if err != nil {
		respondError(w, r, err)
		return
	}
	to, err := queryInt(r, "to")
	if err != nil {
		respondError(w, r, err)
		return
	}
	conflicts, err := h.queue.MoveConflicts(r.Context(), from, to)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if conflicts == nil {
		conflicts = []store.MoveConflict{}
	}
	writeJSON(w, http.StatusOK, conflictsResponse{Conflicts: conflicts})
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/appointments/")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch parts[0] {
	case "today":
		h.handleToday(w, r)
		return
	case "active":
		h.handleActive(w, r)
		return
	}

	id, ok := parseID(parts[0])
	if !ok || len(parts) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case len(parts) == 2 && parts[1] == "meta":
		h.handleUpdateMeta(w, r, id)
	case len(parts) == 2 && parts[1] == "tabs":
		h.handleAddTab(w, r, id)
	case len(parts) >= 3 && parts[1] == "tabs":
		h.handleTab(w, r, id, parts[2:])
	case len(parts) == 2:
		h.handleTransition(w, r, id, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window, err := queryInt(r, "window")
	if err != nil {
		respondError(w, r, err)
		return
	}
	groups, err := h.queue.ListToday(r.Context(), window, r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window, err := queryInt(r, "window")
	if err != nil {
		respondError(w, r, err)
		return
	}
	ticket, ok, err := h.queue.ActiveTicket(r.Context(), window)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, id int64, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var (
		ticket models.Ticket
		err    error
	)
	switch action {
	case "start":
		ticket, err = h.queue.Start(r.Context(), id)
	case "skip":
		ticket, err = h.queue.Skip(r.Context(), id)
	case "did-not-appear":
		ticket, err = h.queue.DidNotAppear(r.Context(), id)
	case "finish":
		h.handleFinish(w, r, id)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request, id int64) {
	var req queue.FinishInput
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.queue.FinishTab(r.Context(), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpdateMeta(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req queue.MetaUpdate
	if !decodeRequest(w, r, &req) {
		return
	}
	ticket, err := h.queue.UpdateMeta(r.Context(), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleAddTab(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticket, slot, err := h.queue.AddTab(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addTabResponse{Ticket: ticket, Slot: slot})
}

// handleTab serves /appointments/{id}/tabs/{slot}[/start].
func (h *Handler) handleTab(w http.ResponseWriter, r *http.Request, id int64, rest []string) {
	slot, err := strconv.Atoi(rest[0])
	if err != nil {
		respondError(w, r, store.Invalid("tab_slot must be an integer"))
		return
	}
	var ticket models.Ticket
	switch {
	case len(rest) == 1 && r.Method == http.MethodDelete:
		ticket, err = h.queue.CancelTab(r.Context(), id, slot)
	case len(rest) == 2 && strings.EqualFold(rest[1], "start") && r.Method == http.MethodPost:
		ticket, err = h.queue.StartTab(r.Context(), id, slot)
	case len(rest) <= 2:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
