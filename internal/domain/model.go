package domain

import "time"

type TableStatus string

const (
	TableAvailable   TableStatus = "available"
	TableOccupied    TableStatus = "occupied"
	TableReserved    TableStatus = "reserved"
	TableMaintenance TableStatus = "maintenance"
)

type TableLocation string

const (
	LocationIndoor  TableLocation = "indoor"
	LocationOutdoor TableLocation = "outdoor"
	LocationBar     TableLocation = "bar"
	LocationPrivate TableLocation = "private"
)

type TableShape string

const (
	ShapeRound       TableShape = "round"
	ShapeSquare      TableShape = "square"
	ShapeRectangular TableShape = "rectangular"
)

// NoPreference is the seating preference value that disables the
// location match rule entirely.
const NoPreference = "no-preference"

// Position is an optional floor-plan coordinate. The engine ignores it;
// it is carried for the floor-plan UI.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Table is a snapshot of a physical seating unit. The assignment engine
// only ever reads these; the reservation backend owns the lifecycle.
type Table struct {
	ID       string        `json:"id"`
	Capacity int           `json:"capacity"`
	Status   TableStatus   `json:"status"`
	Location TableLocation `json:"location"`
	Shape    TableShape    `json:"shape"`
	Features []string      `json:"features,omitempty"`
	Position *Position     `json:"position,omitempty"`
}

// HasFeature reports whether the table carries the given free-form tag.
func (t Table) HasFeature(feature string) bool {
	for _, f := range t.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// ReservationRequest is one booking attempt. Transient: built per call,
// never persisted by the engine itself.
type ReservationRequest struct {
	GuestCount        int      `json:"guest_count"`
	Date              string   `json:"date"`      // YYYY-MM-DD
	TimeSlot          string   `json:"time_slot"` // HH:MM
	SeatingPreference string   `json:"seating_preference,omitempty"`
	Occasion          string   `json:"occasion,omitempty"`
	SpecialRequests   []string `json:"special_requests,omitempty"`
}

type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationSeated    ReservationStatus = "seated"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is a confirmed table-to-request pairing as persisted by the
// reservation service.
type Reservation struct {
	ID              string            `json:"id"`
	TableID         string            `json:"table_id"`
	GuestCount      int               `json:"guest_count"`
	Date            string            `json:"date"`
	TimeSlot        string            `json:"time_slot"`
	Occasion        string            `json:"occasion,omitempty"`
	SpecialRequests []string          `json:"special_requests,omitempty"`
	Status          ReservationStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}
