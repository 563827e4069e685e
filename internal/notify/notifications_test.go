package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheres-my-table/internal/domain"
)

func testNotifier(max int) (*Notifier, *time.Time) {
	n := NewNotifier(max)
	now := time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }
	return n, &now
}

func TestFromEventLabelsAndPriorities(t *testing.T) {
	n, now := testNotifier(0)

	note, ok := n.FromEvent(domain.ReservationEvent{
		Type: domain.EventReservationCancelled, TableID: "t1", GuestCount: 4, Timestamp: *now,
	})
	require.True(t, ok)
	assert.Equal(t, "Réservation annulée", note.Title)
	assert.Equal(t, PriorityHigh, note.Priority)
	assert.Equal(t, "Table t1 · 4 couverts", note.Message)
	assert.NotEmpty(t, note.ID)

	note, ok = n.FromEvent(domain.ReservationEvent{
		Type: domain.EventTableAssigned, TableID: "t2", GuestCount: 2, Timestamp: *now,
	})
	require.True(t, ok)
	assert.Equal(t, "Table attribuée", note.Title)
	assert.Equal(t, PriorityMedium, note.Priority)
}

func TestFromEventUnknownTypeIgnored(t *testing.T) {
	n, now := testNotifier(0)

	_, ok := n.FromEvent(domain.ReservationEvent{Type: "mystery", TableID: "t1", Timestamp: *now})
	assert.False(t, ok)
	assert.Empty(t, n.Recent())
}

func TestFromEventDeduplicatesRedundantDelivery(t *testing.T) {
	n, now := testNotifier(0)

	e := domain.ReservationEvent{Type: domain.EventTableAssigned, TableID: "t1", GuestCount: 2, Timestamp: *now}
	_, ok := n.FromEvent(e)
	require.True(t, ok)

	// Same event redelivered 500ms later: suppressed.
	dup := e
	dup.Timestamp = now.Add(500 * time.Millisecond)
	_, ok = n.FromEvent(dup)
	assert.False(t, ok)

	// Same type and table but outside the 1s window: a new notification.
	later := e
	later.Timestamp = now.Add(2 * time.Second)
	_, ok = n.FromEvent(later)
	assert.True(t, ok)

	// Same timestamp, different table: not a duplicate.
	other := e
	other.TableID = "t2"
	_, ok = n.FromEvent(other)
	assert.True(t, ok)
}

func TestFromConnectionChange(t *testing.T) {
	n, now := testNotifier(0)

	note, ok := n.FromConnectionChange(domain.Connected)
	require.True(t, ok)
	assert.Equal(t, PriorityLow, note.Priority)
	assert.Equal(t, SystemEvent, note.EventType)

	// Same status inside the 10s window: suppressed.
	*now = now.Add(5 * time.Second)
	_, ok = n.FromConnectionChange(domain.Connected)
	assert.False(t, ok)

	// A different status has its own window.
	note, ok = n.FromConnectionChange(domain.Disconnected)
	require.True(t, ok)
	assert.Equal(t, PriorityMedium, note.Priority)
	assert.Equal(t, "Connexion temps réel perdue", note.Title)

	// Past the window the same status notifies again.
	*now = now.Add(11 * time.Second)
	_, ok = n.FromConnectionChange(domain.Connected)
	assert.True(t, ok)
}

func TestFromConnectionChangeConnectingIsSilent(t *testing.T) {
	n, _ := testNotifier(0)

	_, ok := n.FromConnectionChange(domain.Connecting)
	assert.False(t, ok)
}

func TestRecentBoundedNewestFirst(t *testing.T) {
	n, now := testNotifier(3)

	tables := []string{"t1", "t2", "t3", "t4", "t5"}
	for i, id := range tables {
		_, ok := n.FromEvent(domain.ReservationEvent{
			Type:      domain.EventReservationCreated,
			TableID:   id,
			Timestamp: now.Add(time.Duration(i) * 5 * time.Second),
		})
		require.True(t, ok)
	}

	recent := n.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "t5", recent[0].TableID)
	assert.Equal(t, "t4", recent[1].TableID)
	assert.Equal(t, "t3", recent[2].TableID)
}
