// Package notify turns reservation events and connection transitions into
// user-facing notifications. Notifications are best-effort: the buffer is
// bounded and duplicate channel deliveries are collapsed.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"wheres-my-table/internal/domain"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

const (
	// eventDedupWindow collapses redundant deliveries of the same event.
	eventDedupWindow = time.Second
	// connectionDedupWindow collapses flapping connection notices per status.
	connectionDedupWindow = 10 * time.Second

	defaultMaxNotifications = 20
)

// SystemEvent marks notifications synthesized from connection transitions
// rather than reservation traffic.
const SystemEvent domain.ReservationEventType = "system"

type Notification struct {
	ID        string                      `json:"id"`
	EventType domain.ReservationEventType `json:"event_type"`
	TableID   string                      `json:"table_id,omitempty"`
	Title     string                      `json:"title"`
	Message   string                      `json:"message"`
	Priority  Priority                    `json:"priority"`
	Timestamp time.Time                   `json:"timestamp"`
}

// Fixed label table per event type.
var eventTitles = map[domain.ReservationEventType]string{
	domain.EventReservationCreated:   "Nouvelle réservation",
	domain.EventReservationUpdated:   "Réservation modifiée",
	domain.EventReservationCancelled: "Réservation annulée",
	domain.EventTableAssigned:        "Table attribuée",
	domain.EventTableFreed:           "Table libérée",
}

var connectionNotices = map[domain.ConnectionStatus]struct {
	title    string
	priority Priority
}{
	domain.Connected:    {title: "Connexion temps réel établie", priority: PriorityLow},
	domain.Disconnected: {title: "Connexion temps réel perdue", priority: PriorityMedium},
}

// Notifier materializes notifications and remembers recent ones for
// de-duplication. Safe for concurrent use from channel handlers.
type Notifier struct {
	mu            sync.Mutex
	notifications []Notification // newest first, bounded
	lastConnNote  map[domain.ConnectionStatus]time.Time
	max           int
	now           func() time.Time
}

func NewNotifier(maxNotifications int) *Notifier {
	if maxNotifications <= 0 {
		maxNotifications = defaultMaxNotifications
	}
	return &Notifier{
		lastConnNote: make(map[domain.ConnectionStatus]time.Time),
		max:          maxNotifications,
		now:          time.Now,
	}
}

// FromEvent maps a reservation event to a notification. Returns false when
// the event duplicates an already-materialized notification (same type and
// table within one second) or carries an unknown type.
func (n *Notifier) FromEvent(e domain.ReservationEvent) (Notification, bool) {
	title, ok := eventTitles[e.Type]
	if !ok {
		return Notification{}, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, existing := range n.notifications {
		if existing.EventType == e.Type && existing.TableID == e.TableID && absDelta(existing.Timestamp, e.Timestamp) <= eventDedupWindow {
			return Notification{}, false
		}
	}

	priority := PriorityMedium
	if e.Type == domain.EventReservationCancelled {
		priority = PriorityHigh
	}
	note := Notification{
		ID:        uuid.NewString(),
		EventType: e.Type,
		TableID:   e.TableID,
		Title:     title,
		Message:   fmt.Sprintf("Table %s · %d couverts", e.TableID, e.GuestCount),
		Priority:  priority,
		Timestamp: e.Timestamp,
	}
	n.pushLocked(note)
	return note, true
}

// FromConnectionChange synthesizes a system notification for connection
// transitions, de-duplicated per status value within ten seconds.
// Transient "connecting" states stay silent.
func (n *Notifier) FromConnectionChange(s domain.ConnectionStatus) (Notification, bool) {
	notice, ok := connectionNotices[s]
	if !ok {
		return Notification{}, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, seen := n.lastConnNote[s]; seen && now.Sub(last) < connectionDedupWindow {
		return Notification{}, false
	}
	n.lastConnNote[s] = now

	note := Notification{
		ID:        uuid.NewString(),
		EventType: SystemEvent,
		Title:     notice.title,
		Message:   notice.title,
		Priority:  notice.priority,
		Timestamp: now,
	}
	n.pushLocked(note)
	return note, true
}

func (n *Notifier) pushLocked(note Notification) {
	n.notifications = append([]Notification{note}, n.notifications...)
	if len(n.notifications) > n.max {
		n.notifications = n.notifications[:n.max]
	}
}

// Recent returns materialized notifications, newest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.notifications))
	copy(out, n.notifications)
	return out
}

func absDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
