package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wheres-my-table/internal/assignment"
	"wheres-my-table/internal/domain"
	"wheres-my-table/internal/logger"
	"wheres-my-table/internal/repository"
)

var (
	ErrValidation       = errors.New("invalid reservation request")
	ErrTableUnavailable = errors.New("table is not available")
	ErrNotFound         = errors.New("not found")
)

// EventPublisher is the outbound side of the realtime channel. Satisfied
// by realtime.Publisher.
type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, e domain.ReservationEvent) error
	PublishTableStatus(ctx context.Context, u domain.TableStatusUpdate) error
}

// ReservationService glues the table repository, the assignment engine and
// the event publisher. Assignment results are advisory until confirmed
// through ConfirmReservation.
type ReservationService struct {
	repo repository.Tables
	pub  EventPublisher
	lg   *logger.Logger
	now  func() time.Time
}

func NewReservationService(repo repository.Tables, pub EventPublisher, lg *logger.Logger) *ReservationService {
	return &ReservationService{repo: repo, pub: pub, lg: lg, now: time.Now}
}

func validateRequest(req domain.ReservationRequest) error {
	if req.GuestCount < 1 {
		return fmt.Errorf("%w: guest count must be at least 1", ErrValidation)
	}
	if req.Date == "" {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if req.TimeSlot == "" {
		return fmt.Errorf("%w: time slot is required", ErrValidation)
	}
	switch req.SeatingPreference {
	case "", domain.NoPreference,
		string(domain.LocationIndoor), string(domain.LocationOutdoor),
		string(domain.LocationBar), string(domain.LocationPrivate):
	default:
		return fmt.Errorf("%w: unknown seating preference %q", ErrValidation, req.SeatingPreference)
	}
	return nil
}

// SuggestTable scores the current pool for one request. A nil result means
// fully booked, which is a normal outcome.
func (s *ReservationService) SuggestTable(ctx context.Context, req domain.ReservationRequest) (*assignment.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load table pool: %w", err)
	}
	result := assignment.FindBestTable(tables, req)
	if result == nil {
		s.lg.Info("fully_booked", map[string]any{"date": req.Date, "time_slot": req.TimeSlot, "guests": req.GuestCount})
	}
	return result, nil
}

func (s *ReservationService) TableOptions(ctx context.Context, req domain.ReservationRequest, maxOptions int) ([]assignment.Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load table pool: %w", err)
	}
	return assignment.FindTableOptions(tables, req, maxOptions), nil
}

func (s *ReservationService) BatchAssign(ctx context.Context, reqs []domain.ReservationRequest) ([]assignment.BatchAssignment, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrValidation)
	}
	for _, req := range reqs {
		if err := validateRequest(req); err != nil {
			return nil, err
		}
	}
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load table pool: %w", err)
	}
	return assignment.OptimizeMultipleAssignments(tables, reqs), nil
}

func (s *ReservationService) AlternativeSlots(ctx context.Context, req domain.ReservationRequest, slots []string) ([]assignment.SlotSuggestion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no candidate time slots", ErrValidation)
	}
	tables, err := s.repo.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load table pool: %w", err)
	}
	return assignment.SuggestAlternativeTimeSlots(tables, req, slots), nil
}

// ConfirmReservation persists an accepted assignment and announces it on
// the realtime channel. Publishing is best-effort: the reservation stands
// even if the broker rejects the events.
func (s *ReservationService) ConfirmReservation(ctx context.Context, req domain.ReservationRequest, tableID string) (domain.Reservation, error) {
	if err := validateRequest(req); err != nil {
		return domain.Reservation{}, err
	}
	table, found, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("load table %s: %w", tableID, err)
	}
	if !found {
		return domain.Reservation{}, fmt.Errorf("%w: table %s", ErrNotFound, tableID)
	}
	if table.Status != domain.TableAvailable {
		return domain.Reservation{}, fmt.Errorf("%w: table %s is %s", ErrTableUnavailable, tableID, table.Status)
	}

	res := domain.Reservation{
		ID:              uuid.NewString(),
		TableID:         tableID,
		GuestCount:      req.GuestCount,
		Date:            req.Date,
		TimeSlot:        req.TimeSlot,
		Occasion:        req.Occasion,
		SpecialRequests: req.SpecialRequests,
		Status:          domain.ReservationConfirmed,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.CreateReservation(ctx, res); err != nil {
		return domain.Reservation{}, fmt.Errorf("persist reservation: %w", err)
	}

	s.publishEvent(ctx, domain.EventReservationCreated, tableID, req.GuestCount)
	s.publishEvent(ctx, domain.EventTableAssigned, tableID, req.GuestCount)
	s.publishStatus(ctx, tableID, domain.TableReserved)

	s.lg.Info("reservation_confirmed", map[string]any{
		"reservation_id": res.ID, "table_id": tableID,
		"date": req.Date, "time_slot": req.TimeSlot, "guests": req.GuestCount,
	})
	return res, nil
}

// CancelReservation frees the table and announces the cancellation.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID string) error {
	res, found, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("load reservation %s: %w", reservationID, err)
	}
	if !found {
		return fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}
	if res.Status == domain.ReservationCancelled {
		return nil
	}

	if err := s.repo.SetReservationStatus(ctx, reservationID, domain.ReservationCancelled); err != nil {
		return fmt.Errorf("cancel reservation %s: %w", reservationID, err)
	}
	if err := s.repo.SetTableStatus(ctx, res.TableID, domain.TableAvailable); err != nil {
		return fmt.Errorf("free table %s: %w", res.TableID, err)
	}

	s.publishEvent(ctx, domain.EventReservationCancelled, res.TableID, res.GuestCount)
	s.publishEvent(ctx, domain.EventTableFreed, res.TableID, res.GuestCount)
	s.publishStatus(ctx, res.TableID, domain.TableAvailable)

	s.lg.Info("reservation_cancelled", map[string]any{"reservation_id": reservationID, "table_id": res.TableID})
	return nil
}

func (s *ReservationService) publishEvent(ctx context.Context, typ domain.ReservationEventType, tableID string, guests int) {
	e := domain.ReservationEvent{Type: typ, TableID: tableID, GuestCount: guests, Timestamp: s.now().UTC()}
	if err := s.pub.PublishReservationEvent(ctx, e); err != nil {
		s.lg.Error("event_publish_failed", err, map[string]any{"event_type": string(typ), "table_id": tableID})
	}
}

func (s *ReservationService) publishStatus(ctx context.Context, tableID string, status domain.TableStatus) {
	u := domain.TableStatusUpdate{TableID: tableID, Status: status, Timestamp: s.now().UTC()}
	if err := s.pub.PublishTableStatus(ctx, u); err != nil {
		s.lg.Error("status_publish_failed", err, map[string]any{"table_id": tableID, "status": string(status)})
	}
}
