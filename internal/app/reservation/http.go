// Package reservation wires the reservation-service mode: table pool from
// Postgres, assignment engine, realtime publisher, HTTP API.
package reservation

import (
	"context"
	"net/http"
	"strconv"

	"wheres-my-table/internal/config"
	"wheres-my-table/internal/database"
	"wheres-my-table/internal/httpx"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/realtime"
	"wheres-my-table/internal/repository"
	"wheres-my-table/internal/service"
)

func Run(ctx context.Context, port int, cfg config.App) error {
	lg := logger.New("reservation-service")
	defer lg.Sync()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := realtime.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer client.Close()

	pub, err := realtime.NewPublisher(client)
	if err != nil {
		return err
	}

	svc := service.NewReservationService(repository.NewTablesPG(pool), pub, lg)
	h := newHandler(svc, lg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/reservations/suggest", h.Suggest)
	mux.HandleFunc("POST /api/v1/reservations/options", h.Options)
	mux.HandleFunc("POST /api/v1/reservations/batch", h.Batch)
	mux.HandleFunc("POST /api/v1/reservations/alternative-slots", h.AlternativeSlots)
	mux.HandleFunc("POST /api/v1/reservations", h.Create)
	mux.HandleFunc("DELETE /api/v1/reservations/{reservation_id}", h.Cancel)

	lg.Info("service_started", map[string]any{"port": port})
	return httpx.New(":"+strconv.Itoa(port), mux).Run(ctx)
}
