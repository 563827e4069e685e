// Package notifysub wires the notification-subscriber mode: reservation
// events and connection transitions become user-facing notifications on
// the structured log.
package notifysub

import (
	"context"

	"wheres-my-table/internal/config"
	"wheres-my-table/internal/domain"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/notify"
	"wheres-my-table/internal/realtime"
)

func Run(ctx context.Context, cfg config.App) error {
	lg := logger.New("notification-subscriber")
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

	notifier := notify.NewNotifier(0)

	unsubEvents := ch.OnReservationEvent(func(e domain.ReservationEvent) {
		note, ok := notifier.FromEvent(e)
		if !ok {
			return
		}
		lg.Info("notification", map[string]any{
			"id":         note.ID,
			"title":      note.Title,
			"message":    note.Message,
			"priority":   string(note.Priority),
			"event_type": string(note.EventType),
			"table_id":   note.TableID,
		})
	})
	if unsubEvents != nil {
		defer unsubEvents()
	}

	unsubConn := ch.OnConnectionChange(func(s domain.ConnectionStatus) {
		note, ok := notifier.FromConnectionChange(s)
		if !ok {
			return
		}
		lg.Info("notification", map[string]any{
			"id":       note.ID,
			"title":    note.Title,
			"priority": string(note.Priority),
			"status":   string(s),
		})
	})
	if unsubConn != nil {
		defer unsubConn()
	}

	lg.Info("service_started", nil)
	<-ctx.Done()
	return nil
}
