// Package availability wires the availability-service mode: the live
// reconciler fed by the AMQP channel, exposed as a read-mostly HTTP API.
package availability

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"wheres-my-table/internal/config"
	"wheres-my-table/internal/httpx"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/realtime"
	"wheres-my-table/internal/reconciler"
)

func Run(ctx context.Context, port int, cfg config.App) error {
	lg := logger.New("availability-service")
	defer lg.Sync()

	client, err := realtime.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer client.Close()

	ch, err := realtime.NewAMQPChannel(client, lg)
	if err != nil {
		return err
	}

	rec := reconciler.New(ch, lg, reconciler.Options{
		UpdateThrottle:   cfg.Realtime.UpdateThrottle(),
		MaxRecentEvents:  cfg.Realtime.RecentEvents(),
		MaxEntryAge:      cfg.Realtime.MaxEntryAge(),
		EvictionInterval: cfg.Realtime.EvictionInterval(),
	})
	rec.Start()
	defer rec.Stop()

	h := &handler{rec: rec}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/availability/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/availability/{date}", h.Date)
	mux.HandleFunc("GET /api/v1/availability/{date}/{slot}", h.Slot)
	mux.HandleFunc("POST /api/v1/availability/{date}/watch", h.WatchDate)
	mux.HandleFunc("DELETE /api/v1/availability/{date}/watch", h.UnwatchDate)
	mux.HandleFunc("GET /api/v1/tables/{table_id}/status", h.TableStatus)
	mux.HandleFunc("GET /api/v1/tables/{table_id}/events", h.TableEvents)
	mux.HandleFunc("POST /api/v1/tables/{table_id}/watch", h.WatchTable)

	lg.Info("service_started", map[string]any{"port": port})
	return httpx.New(":"+strconv.Itoa(port), mux).Run(ctx)
}

type handler struct {
	rec *reconciler.Reconciler
}

func (h *handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rec.GetStats())
}

func (h *handler) Date(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"slots": h.rec.GetAvailabilitiesForDate(date),
	})
}

func (h *handler) Slot(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	slot := r.PathValue("slot")
	tableID := r.URL.Query().Get("table_id")

	resp := map[string]any{
		"date":      date,
		"time_slot": slot,
		"available": h.rec.IsSlotAvailable(date, slot, tableID),
	}
	if u, ok := h.rec.GetAvailabilityForSlot(date, slot); ok {
		resp["record"] = u
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) WatchDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if err := h.rec.SubscribeToDate(date); err != nil {
		writeProblem(w, http.StatusBadGateway, "subscribe_failed", err.Error())
		return
	}
	// Prime the cache; the reply arrives as a regular availability update.
	_ = h.rec.RequestAvailabilityUpdate(date)
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "watching": true})
}

func (h *handler) UnwatchDate(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if err := h.rec.UnsubscribeFromDate(date); err != nil {
		writeProblem(w, http.StatusBadGateway, "unsubscribe_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "watching": false})
}

func (h *handler) TableStatus(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("table_id")
	u, ok := h.rec.GetTableStatus(tableID)
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", "no status cached for table "+tableID)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) TableEvents(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("table_id")
	writeJSON(w, http.StatusOK, map[string]any{
		"table_id": tableID,
		"events":   h.rec.GetRecentEventsForTable(tableID),
	})
}

func (h *handler) WatchTable(w http.ResponseWriter, r *http.Request) {
	tableID := r.PathValue("table_id")
	if err := h.rec.SubscribeToTable(tableID); err != nil {
		writeProblem(w, http.StatusBadGateway, "subscribe_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table_id": tableID, "watching": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}
