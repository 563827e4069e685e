package domain

import "time"

type ReservationEventType string

const (
	EventReservationCreated   ReservationEventType = "reservation_created"
	EventReservationUpdated   ReservationEventType = "reservation_updated"
	EventReservationCancelled ReservationEventType = "reservation_cancelled"
	EventTableAssigned        ReservationEventType = "table_assigned"
	EventTableFreed           ReservationEventType = "table_freed"
)

// ReservationEvent is the wire payload published on the fanout exchange for
// every reservation lifecycle transition. Ephemeral: consumers keep it only
// in a bounded recent-events buffer.
type ReservationEvent struct {
	Type       ReservationEventType `json:"event_type"`
	TableID    string               `json:"table_id"`
	GuestCount int                  `json:"guest_count"`
	Timestamp  time.Time            `json:"occurred_at"`
}

type SlotStatus string

const (
	SlotOpen    SlotStatus = "available"
	SlotLimited SlotStatus = "limited"
	SlotFull    SlotStatus = "full"
)

// AvailabilityUpdate is the slot-level cache unit, keyed by date+time slot.
type AvailabilityUpdate struct {
	Date      string     `json:"date"`
	TimeSlot  string     `json:"time_slot"`
	Status    SlotStatus `json:"status"`
	Timestamp time.Time  `json:"updated_at"`
}

// TableStatusUpdate carries an authoritative status change for one table.
type TableStatusUpdate struct {
	TableID   string      `json:"table_id"`
	Status    TableStatus `json:"status"`
	Timestamp time.Time   `json:"updated_at"`
}

type ConnectionStatus string

const (
	Connected    ConnectionStatus = "connected"
	Disconnected ConnectionStatus = "disconnected"
	Connecting   ConnectionStatus = "connecting"
)
