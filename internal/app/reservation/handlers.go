package reservation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wheres-my-table/internal/assignment"
	"wheres-my-table/internal/domain"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/service"
)

type handler struct {
	svc *service.ReservationService
	lg  *logger.Logger
}

func newHandler(svc *service.ReservationService, lg *logger.Logger) *handler {
	return &handler{svc: svc, lg: lg}
}

func (h *handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req domain.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	result, err := h.svc.SuggestTable(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SuggestResponse{
		FullyBooked: result == nil,
		Assignment:  toView(result),
	})
}

func (h *handler) Options(w http.ResponseWriter, r *http.Request) {
	var req domain.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	maxOptions := atoiDefault(r.URL.Query().Get("max"), 0)
	results, err := h.svc.TableOptions(r.Context(), req, maxOptions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]domain.AssignmentView, 0, len(results))
	for i := range results {
		views = append(views, *toView(&results[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": views})
}

func (h *handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	assignments, err := h.svc.BatchAssign(r.Context(), req.Requests)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]domain.BatchAssignmentView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, domain.BatchAssignmentView{Request: a.Request, Assignment: toView(a.Result)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": views})
}

func (h *handler) AlternativeSlots(w http.ResponseWriter, r *http.Request) {
	var req domain.AlternativeSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	suggestions, err := h.svc.AlternativeSlots(r.Context(), req.Request, req.TimeSlots)
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]domain.SlotSuggestionView, 0, len(suggestions))
	for _, s := range suggestions {
		views = append(views, domain.SlotSuggestionView{
			TimeSlot:        s.TimeSlot,
			AvailableTables: s.AvailableTables,
			BestScore:       s.BestScore,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": views})
}

func (h *handler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	res, err := h.svc.ConfirmReservation(r.Context(), req.Request, req.TableID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, domain.CreateReservationResponse{
		ReservationID: res.ID,
		TableID:       res.TableID,
		Status:        res.Status,
	})
}

func (h *handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("reservation_id")
	if err := h.svc.CancelReservation(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation_id": id, "status": string(domain.ReservationCancelled)})
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrTableUnavailable):
		writeProblem(w, http.StatusConflict, "table_unavailable", err.Error())
	default:
		h.lg.Error("request_failed", err, nil)
		writeProblem(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toView(result *assignment.Result) *domain.AssignmentView {
	if result == nil {
		return nil
	}
	return &domain.AssignmentView{
		Table:        result.Table,
		Score:        result.Score,
		Reasons:      result.Reasons,
		Alternatives: result.Alternatives,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem emits the simplified Problem+JSON error shape used across
// the services.
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

func atoiDefault(s string, d int) int {
	if s == "" {
		return d
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return n
}
