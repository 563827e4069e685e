package domain

// AssignmentView is the HTTP representation of one scored table.
type AssignmentView struct {
	Table        Table    `json:"table"`
	Score        int      `json:"score"`
	Reasons      []string `json:"reasons"`
	Alternatives []Table  `json:"alternatives,omitempty"`
}

// SuggestResponse wraps the best-table result. FullyBooked is the no-fit
// outcome: a normal response, not an error.
type SuggestResponse struct {
	FullyBooked bool            `json:"fully_booked"`
	Assignment  *AssignmentView `json:"assignment,omitempty"`
}

type BatchAssignRequest struct {
	Requests []ReservationRequest `json:"requests"`
}

type BatchAssignmentView struct {
	Request    ReservationRequest `json:"request"`
	Assignment *AssignmentView    `json:"assignment"` // null when no table fits
}

type AlternativeSlotsRequest struct {
	Request   ReservationRequest `json:"request"`
	TimeSlots []string           `json:"time_slots"`
}

type SlotSuggestionView struct {
	TimeSlot        string `json:"time_slot"`
	AvailableTables int    `json:"available_tables"`
	BestScore       int    `json:"best_score"`
}

type CreateReservationRequest struct {
	Request ReservationRequest `json:"request"`
	TableID string             `json:"table_id"`
}

type CreateReservationResponse struct {
	ReservationID string            `json:"reservation_id"`
	TableID       string            `json:"table_id"`
	Status        ReservationStatus `json:"status"`
}
